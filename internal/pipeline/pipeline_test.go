package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/livetable/internal/cli/config"
	"github.com/leapstack-labs/livetable/internal/testutil"
	"github.com/leapstack-labs/livetable/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCut(t *testing.T) {
	tbl := table.MustNew([]int64{1, 2, 3, 4, 5},
		table.MustColumn("v", table.KindFloat, -10, -3, 0, 0.5, nil))

	out, err := Cut("v", []float64{-10, 0, 10}, []string{"neg", "pos"})(tbl)
	require.NoError(t, err)
	col, _ := out.Column("category")
	assert.Equal(t, []any{nil, "neg", "neg", "pos", nil}, col.Values(), "intervals are open on the left")
	assert.Equal(t, tbl.Keys(), out.Keys())

	_, err = Cut("missing", []float64{0, 1}, []string{"a"})(tbl)
	assert.ErrorIs(t, err, table.ErrUnknownColumn)
}

func TestDatetime(t *testing.T) {
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	tbl := table.MustNew([]int64{1, 2}, table.MustColumn("datetime", table.KindTime, at, nil))

	fields, err := DatetimeFields([]string{"minute", "second"})
	require.NoError(t, err)
	assert.Equal(t, []table.Field{{Name: "minute", Kind: table.KindInt}, {Name: "second", Kind: table.KindInt}}, fields)

	f := Datetime("datetime", []string{"minute", "second"})
	cells, err := f(tbl.Row(0))
	require.NoError(t, err)
	assert.Equal(t, []any{5, 6}, cells)

	cells, err = f(tbl.Row(1))
	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil}, cells)

	_, err = DatetimeFields([]string{"fortnight"})
	assert.ErrorContains(t, err, "unknown datetime part")

	_, err = Datetime("nope", []string{"minute"})(tbl.Row(0))
	assert.ErrorIs(t, err, table.ErrUnknownColumn)
}

func demoConfig() *config.Config {
	return &config.Config{
		Optimized: true,
		Sources: []config.SourceConfig{
			{Name: "clock", Kind: config.SourceClock, Period: 5 * time.Millisecond},
			{Name: "random", Kind: config.SourceRandom, Period: 5 * time.Millisecond, Seed: 3},
		},
		Views: []config.ViewConfig{
			{Name: "seconds", From: "clock", Kind: config.ViewDatetime, Column: "datetime", Parts: []string{"minute", "second"}},
			{Name: "categorized", From: "random", Kind: config.ViewCut, Column: "random2",
				Bins: []float64{-11, 0, 10}, Labels: []string{"neg", "pos"}, Target: "filter"},
			{Name: "positive", From: "categorized", Kind: config.ViewFilter, Column: "filter", Value: "pos"},
			{Name: "tagged", From: "random", Kind: config.ViewStarlark,
				Script:  "params['prefix'] + str(row.random1)",
				Outputs: []config.FieldConfig{{Name: "tag", Kind: "string"}},
				Params:  map[string]any{"prefix": "r"}},
			{Name: "pair", From: "random", Kind: config.ViewSelect, Columns: []string{"random2"}},
		},
	}
}

func TestBuild(t *testing.T) {
	p, err := Build(context.Background(), demoConfig(), testutil.NewTestLogger(t))
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	assert.NotEmpty(t, p.ID())
	assert.Equal(t, []string{"clock", "random", "seconds", "categorized", "positive", "tagged", "pair"}, p.Names())
	assert.Equal(t, 7, p.NodeCount())
	assert.Equal(t, 5, p.EdgeCount())
	assert.Equal(t, []string{"random"}, p.GetParents("categorized"))
	assert.Nil(t, p.GetParents("random"))
	assert.Equal(t, []string{"categorized", "tagged", "pair"}, p.GetChildren("random"))

	levels, err := p.Levels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"clock", "random"},
		{"categorized", "pair", "seconds", "tagged"},
		{"positive"},
	}, levels)

	seconds, ok := p.Model("seconds")
	require.True(t, ok)
	assert.Equal(t, []string{"minute", "second"}, seconds.Columns())

	categorized, _ := p.Model("categorized")
	assert.Equal(t, []string{"random1", "random2", "filter"}, categorized.Columns())

	tagged, _ := p.Model("tagged")
	tag, ok := tagged.Snapshot().Cell(0, "tag")
	require.True(t, ok)
	assert.Regexp(t, `^r-?\d+$`, tag)

	_, ok = p.Model("nope")
	assert.False(t, ok)
}

func TestRun(t *testing.T) {
	p, err := Build(context.Background(), demoConfig(), testutil.NewTestLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	random, _ := p.Model("random")
	positive, _ := p.Model("positive")
	require.Eventually(t, func() bool {
		return random.Snapshot().Len() >= 5
	}, 5*time.Second, 5*time.Millisecond)

	snap := positive.Snapshot()
	filter, _ := snap.Column("filter")
	for _, v := range filter.Values() {
		assert.Equal(t, "pos", v)
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestBuild_FileAndSQLSources(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "prices.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("key,price\n1,10\n2,12.5\n"), 0o600))

	cfg := &config.Config{
		Optimized: true,
		Sources: []config.SourceConfig{
			{Name: "prices", Kind: config.SourceFile, Path: csvPath},
			{Name: "one", Kind: config.SourceSQL, Driver: "sqlite", DSN: filepath.Join(dir, "one.db"),
				Query: "SELECT 1 AS id, 'x' AS label"},
		},
	}
	p, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	prices, _ := p.Model("prices")
	assert.Equal(t, []int64{1, 2}, prices.Snapshot().Keys())
	one, _ := p.Model("one")
	label, _ := one.Snapshot().Cell(0, "label")
	assert.Equal(t, "x", label)
}

func TestBuild_SQLMigrations(t *testing.T) {
	dir := t.TempDir()
	migrations := filepath.Join(dir, "migrations")
	require.NoError(t, os.Mkdir(migrations, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(migrations, "00001_items.sql"), []byte(
		"-- +goose Up\nCREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT);\nINSERT INTO items VALUES (1, 'a'), (2, 'b');\n"), 0o600))

	cfg := &config.Config{
		Optimized: true,
		Sources: []config.SourceConfig{
			{Name: "items", Kind: config.SourceSQL, Driver: "sqlite", DSN: filepath.Join(dir, "items.db"),
				Query: "SELECT id, name FROM items ORDER BY id", Migrations: migrations},
		},
	}
	p, err := Build(context.Background(), cfg, testutil.NewTestLogger(t))
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	items, _ := p.Model("items")
	assert.Equal(t, []int64{1, 2}, items.Snapshot().Keys())
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		msg    string
	}{
		{name: "unknown parent", mutate: func(c *config.Config) { c.Views[0].From = "ghost" }, msg: `unknown model "ghost"`},
		{name: "bad datetime part", mutate: func(c *config.Config) { c.Views[0].Parts = []string{"epoch"} }, msg: "unknown datetime part"},
		{name: "starlark syntax", mutate: func(c *config.Config) { c.Views[3].Script = "def transform(row):\n  return (" }, msg: `view "tagged"`},
		{name: "missing file", mutate: func(c *config.Config) {
			c.Sources = append(c.Sources, config.SourceConfig{Name: "f", Kind: config.SourceFile, Path: "/nonexistent/x.csv"})
		}, msg: "initial snapshot"},
		{name: "filter on unknown column", mutate: func(c *config.Config) { c.Views[2].Column = "nope" }, msg: "unknown column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := demoConfig()
			tt.mutate(cfg)
			_, err := Build(context.Background(), cfg, testutil.NewTestLogger(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

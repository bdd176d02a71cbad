package sink

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/livetable/internal/testutil"
	"github.com/leapstack-labs/livetable/pkg/diff"
	"github.com/leapstack-labs/livetable/pkg/live"
	"github.com/leapstack-labs/livetable/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(keys []int64, a []any, b []any) *table.Table[int64] {
	return table.MustNew(keys,
		table.MustColumn("a", table.KindInt, a...),
		table.MustColumn("b", table.KindString, b...),
	)
}

func syncDoc(t *testing.T, doc *live.Document) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, doc.Sync(ctx))
}

func TestDataSource_ApplyPatch(t *testing.T) {
	ds := NewDataSource("ds", sample([]int64{1, 2, 3}, []any{1, 2, 3}, []any{"x", "y", "z"}))

	err := ds.Apply(live.Delivery[int64]{Kind: live.KindPatch, Patch: diff.Patch[int64]{
		Keys: []int64{3, 1},
		Columns: map[string][]diff.Cell{
			"a": {{Pos: 0, Value: int64(30)}},
			"b": {{Pos: 1, Value: "xx"}},
		},
	}})
	require.NoError(t, err)

	got := ds.Table()
	a, _ := got.Column("a")
	b, _ := got.Column("b")
	assert.Equal(t, []any{int64(1), int64(2), int64(30)}, a.Values())
	assert.Equal(t, []any{"xx", "y", "z"}, b.Values())
	assert.Equal(t, 1, ds.Applied(live.KindPatch))
}

func TestDataSource_ApplyErrors(t *testing.T) {
	ds := NewDataSource("ds", sample([]int64{1}, []any{1}, []any{"x"}))

	err := ds.Apply(live.Delivery[int64]{Kind: live.KindPatch, Patch: diff.Patch[int64]{
		Keys:    []int64{9},
		Columns: map[string][]diff.Cell{"a": {{Pos: 0, Value: int64(1)}}},
	}})
	assert.ErrorContains(t, err, "not materialized")

	err = ds.Apply(live.Delivery[int64]{Kind: live.KindStream, Table: table.MustNew([]int64{2},
		table.MustColumn("other", table.KindInt, 1))})
	assert.ErrorIs(t, err, table.ErrShape)

	err = ds.Apply(live.Delivery[int64]{Kind: live.DeliveryKind(99)})
	assert.Error(t, err)
	assert.Equal(t, 1, ds.Table().Len())
}

// The data source must converge to the model snapshot whether it applies the
// incremental deliveries alone or together with the replace.
func TestDataSource_FollowsModel(t *testing.T) {
	initial := sample([]int64{1, 2}, []any{1, 2}, []any{"x", "y"})
	m, err := live.New("m", initial, live.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	doc := live.NewDocument(ctx, testutil.NewTestLogger(t))

	full := NewDataSource("full", initial)
	m.AttachSink(full, doc)

	incremental := NewDataSource("incremental", initial)
	m.AttachSink(live.SinkFunc[int64](func(d live.Delivery[int64]) error {
		if d.Kind == live.KindReplace {
			return nil
		}
		return incremental.Apply(d)
	}), doc)

	steps := []*table.Table[int64]{
		sample([]int64{1, 2, 3}, []any{1, 5, 3}, []any{"x", "y", "z"}),
		sample([]int64{1, 2, 3, 4}, []any{7, 5, 3, 4}, []any{"x", "q", "z", "w"}),
		sample([]int64{1, 2, 3, 4}, []any{7, 5, 3, 4}, []any{"x", "q", "z", "w"}),
	}
	for _, s := range steps {
		_, err := m.Update(s)
		require.NoError(t, err)
	}
	syncDoc(t, doc)

	want := steps[len(steps)-1]
	assert.True(t, want.Equal(full.Table()))
	assert.True(t, want.Equal(incremental.Table()), "incremental: %s", table.Sprint(incremental.Table(), table.RenderOptions{}))
	assert.Equal(t, 3, full.Applied(live.KindReplace))
	assert.Equal(t, 2, incremental.Applied(live.KindStream))
	assert.Equal(t, 2, incremental.Applied(live.KindPatch))
}

func TestDataSource_Close(t *testing.T) {
	ds := NewDataSource("ds", sample([]int64{1}, []any{1}, []any{"x"}))
	assert.True(t, ds.Attached())
	ds.Close()
	assert.False(t, ds.Attached())
	assert.Equal(t, "ds", ds.Name())
}

func TestConsole_Apply(t *testing.T) {
	var buf bytes.Buffer
	fixed := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c := NewConsole[int64]("clock", &buf, WithColor(false), WithClock(func() time.Time { return fixed }))

	require.NoError(t, c.Apply(live.Delivery[int64]{Model: "clock", Kind: live.KindPatch, Patch: diff.Patch[int64]{
		Keys:    []int64{7},
		Columns: map[string][]diff.Cell{"b": {{Pos: 0, Value: "new"}}},
	}}))
	require.NoError(t, c.Apply(live.Delivery[int64]{Model: "clock", Kind: live.KindStream,
		Table: sample([]int64{8}, []any{8}, []any{"eight"})}))

	out := buf.String()
	assert.Contains(t, out, "10:00:00.000 clock patch 1 cells in 1 rows")
	assert.Contains(t, out, "new")
	assert.Contains(t, out, "clock stream 1 rows")
	assert.Contains(t, out, "eight")
	assert.Equal(t, 2, strings.Count(out, "clock "))

	assert.Error(t, c.Apply(live.Delivery[int64]{Kind: live.DeliveryKind(0)}))
	c.Close()
	assert.False(t, c.Attached())
}

func TestConsole_MaxRows(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole[int64]("m", &buf, WithColor(false), WithMaxRows(1))
	require.NoError(t, c.Apply(live.Delivery[int64]{Model: "m", Kind: live.KindReplace,
		Table: sample([]int64{1, 2}, []any{1, 2}, []any{"first", "second"})}))
	assert.NotContains(t, buf.String(), "first")
	assert.Contains(t, buf.String(), "(2 rows, 1 shown)")
}

package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) *Table[int64] {
	t.Helper()
	tbl, err := New([]int64{10, 20, 30},
		MustColumn("a", KindInt, 1, 2, 3),
		MustColumn("b", KindString, "x", "y", "z"),
	)
	require.NoError(t, err)
	return tbl
}

func TestNew_Shape(t *testing.T) {
	tests := []struct {
		name    string
		keys    []int64
		columns []Column
		wantErr error
	}{
		{
			name:    "aligned",
			keys:    []int64{1, 2},
			columns: []Column{MustColumn("a", KindInt, 1, 2)},
		},
		{
			name:    "short column",
			keys:    []int64{1, 2},
			columns: []Column{MustColumn("a", KindInt, 1)},
			wantErr: ErrShape,
		},
		{
			name:    "duplicate column",
			keys:    []int64{1},
			columns: []Column{MustColumn("a", KindInt, 1), MustColumn("a", KindInt, 2)},
			wantErr: ErrShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.keys, tt.columns...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewColumn_Coercion(t *testing.T) {
	c, err := NewColumn("n", KindInt, 1, int32(2), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), nil}, c.Values())

	f, err := NewColumn("f", KindFloat, 1, 2.5)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.5}, f.Values())

	_, err = NewColumn("s", KindString, 1)
	assert.ErrorIs(t, err, ErrKind)
}

func TestTable_DuplicateKeys(t *testing.T) {
	tbl := MustNew([]string{"a", "b", "a", "c", "b", "a"},
		MustColumn("v", KindInt, 1, 2, 3, 4, 5, 6))
	assert.Equal(t, []string{"a", "b"}, tbl.DuplicateKeys())

	assert.Nil(t, sample(t).DuplicateKeys())
}

func TestTable_Select(t *testing.T) {
	tbl := sample(t)

	sel, err := tbl.Select("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, sel.Names())
	assert.Equal(t, tbl.Keys(), sel.Keys())

	_, err = tbl.Select("nope")
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestTable_TakeAndFilter(t *testing.T) {
	tbl := sample(t)

	sub := tbl.Take([]int{2, 0})
	assert.Equal(t, []int64{30, 10}, sub.Keys())
	v, _ := sub.Cell(0, "b")
	assert.Equal(t, "z", v)

	odd := tbl.Filter(func(r Row[int64]) bool {
		v, _ := r.Get("a")
		return v.(int64)%2 == 1
	})
	assert.Equal(t, []int64{10, 30}, odd.Keys())
}

func TestTable_WithColumnAndAppend(t *testing.T) {
	tbl := sample(t)

	withC, err := tbl.WithColumn(MustColumn("c", KindBool, true, false, true))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, withC.Names())
	assert.Equal(t, []string{"a", "b"}, tbl.Names(), "receiver must not change")

	replaced, err := tbl.WithColumn(MustColumn("a", KindInt, 7, 8, 9))
	require.NoError(t, err)
	v, _ := replaced.Cell(0, "a")
	assert.Equal(t, int64(7), v)

	more := MustNew([]int64{40}, MustColumn("a", KindInt, 4), MustColumn("b", KindString, "w"))
	all, err := tbl.Append(more)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30, 40}, all.Keys())
	assert.Equal(t, 3, tbl.Len())

	_, err = tbl.Append(MustNew([]int64{40}, MustColumn("a", KindInt, 4)))
	assert.ErrorIs(t, err, ErrShape)
}

func TestTable_Equal(t *testing.T) {
	now := time.Now()
	a := MustNew([]int64{1}, MustColumn("t", KindTime, now))
	b := MustNew([]int64{1}, MustColumn("t", KindTime, now.UTC()))
	assert.True(t, a.Equal(b), "times compare by instant")

	assert.True(t, sample(t).Equal(sample(t)))
	changed, _ := sample(t).WithColumn(MustColumn("a", KindInt, 1, 2, 4))
	assert.False(t, sample(t).Equal(changed))
}

func TestBuilder(t *testing.T) {
	b := NewBuilder[int64](Field{Name: "a", Kind: KindInt}, Field{Name: "b", Kind: KindString})
	b.Append(1, 1, "x").AppendMap(2, map[string]any{"a": 2})
	tbl, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	v, _ := tbl.Cell(1, "b")
	assert.Nil(t, v)

	bad := NewBuilder[int64](Field{Name: "a", Kind: KindInt})
	_, err = bad.Append(1, "x").Append(2, 2).Build()
	assert.ErrorIs(t, err, ErrKind)
}

func TestEmptyAndAnyNonEmpty(t *testing.T) {
	e := Empty[int64](Field{Name: "a", Kind: KindInt})
	assert.Equal(t, 0, e.Len())
	assert.False(t, e.AnyNonEmpty())

	blank := MustNew([]int64{1}, MustColumn("a", KindInt, nil))
	assert.False(t, blank.AnyNonEmpty())
	assert.True(t, sample(t).AnyNonEmpty())
}

func TestRender(t *testing.T) {
	out := Sprint(sample(t), RenderOptions{MaxRows: 2})
	assert.Contains(t, out, "30")
	assert.Contains(t, out, "(3 rows, 2 shown)")
	assert.NotContains(t, out, " x ")

	empty := Sprint(Empty[int64](Field{Name: "a"}), RenderOptions{})
	assert.Equal(t, "(0 rows) [a]\n", empty)
}

func TestRender_Markdown(t *testing.T) {
	out := Sprint(sample(t), RenderOptions{Markdown: true, KeyHeader: "key"})
	assert.Contains(t, out, "| key | a | b |")
	assert.Contains(t, out, "| 10 | 1 | x |")
	assert.Contains(t, out, "(3 rows)")
}

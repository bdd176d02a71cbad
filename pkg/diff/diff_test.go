package diff

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/leapstack-labs/livetable/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ab(keys []time.Time, a, b []any) *table.Table[time.Time] {
	return table.MustNew(keys,
		table.MustColumn("a", table.KindInt, a...),
		table.MustColumn("b", table.KindInt, b...),
	)
}

func TestCompute_ChangeDropAppend(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1, t2 := t0.Add(time.Second), t0.Add(2*time.Second)

	prev := ab([]time.Time{t0, t1}, []any{1, 2}, []any{10, 20})
	next := ab([]time.Time{t0, t2}, []any{5, 3}, []any{10, 30})

	changes := Compute(prev, next)

	assert.Equal(t, []time.Time{t0}, changes.Patch.Keys)
	assert.Equal(t, map[string][]Cell{"a": {{Pos: 0, Value: int64(5)}}}, changes.Patch.Columns)

	require.True(t, changes.Streamable())
	assert.Equal(t, []time.Time{t2}, changes.Stream.Keys())
	a, _ := changes.Stream.Cell(0, "a")
	b, _ := changes.Stream.Cell(0, "b")
	assert.Equal(t, int64(3), a)
	assert.Equal(t, int64(30), b)

	assert.Equal(t, []time.Time{t1}, changes.Removed)
}

func TestDetectPatch_PositionsWithinPatchedSubset(t *testing.T) {
	prev := table.MustNew([]int{1, 2, 3, 4},
		table.MustColumn("v", table.KindInt, 1, 2, 3, 4),
		table.MustColumn("w", table.KindString, "a", "b", "c", "d"),
	)
	next := table.MustNew([]int{1, 2, 3, 4},
		table.MustColumn("v", table.KindInt, 1, 20, 3, 40),
		table.MustColumn("w", table.KindString, "a", "b", "c", "D"),
	)

	patch := DetectPatch(prev, next)

	assert.Equal(t, []int{2, 4}, patch.Keys)
	assert.Equal(t, []Cell{{0, int64(20)}, {1, int64(40)}}, patch.Columns["v"])
	assert.Equal(t, []Cell{{1, "D"}}, patch.Columns["w"])
	assert.Equal(t, []string{"v", "w"}, patch.ColumnNames())
	assert.Equal(t, 3, patch.CellCount())
}

func TestDetectPatch_DuplicateValuesAreNotAmbiguous(t *testing.T) {
	// Every value of next exists somewhere in prev, a membership test would
	// see no change.
	prev := table.MustNew([]int{1, 2},
		table.MustColumn("x", table.KindInt, 7, 8),
		table.MustColumn("y", table.KindInt, 8, 7),
	)
	next := table.MustNew([]int{1, 2},
		table.MustColumn("x", table.KindInt, 8, 7),
		table.MustColumn("y", table.KindInt, 7, 8),
	)

	patch := DetectPatch(prev, next)
	assert.Equal(t, []int{1, 2}, patch.Keys)
	assert.Len(t, patch.Columns["x"], 2)
	assert.Len(t, patch.Columns["y"], 2)
}

func TestDetectPatch_NewColumnCountsAsChanged(t *testing.T) {
	prev := table.MustNew([]int{1}, table.MustColumn("x", table.KindInt, 1))
	next := table.MustNew([]int{1},
		table.MustColumn("x", table.KindInt, 1),
		table.MustColumn("y", table.KindInt, 2),
	)

	patch := DetectPatch(prev, next)
	assert.Equal(t, map[string][]Cell{"y": {{0, int64(2)}}}, patch.Columns)
}

func TestCompute_Unchanged(t *testing.T) {
	tbl := table.MustNew([]int{1, 2}, table.MustColumn("x", table.KindInt, 1, 2))

	changes := Compute(tbl, tbl)
	assert.True(t, changes.Patch.Empty())
	assert.False(t, changes.Streamable())
	assert.Equal(t, 0, changes.Stream.Len())
	assert.Empty(t, changes.Removed)
}

func TestDetectStream_EmptyCellsAreNotStreamable(t *testing.T) {
	prev := table.MustNew([]int{1}, table.MustColumn("x", table.KindInt, 1))
	next := table.MustNew([]int{1, 2}, table.MustColumn("x", table.KindInt, 1, nil))

	changes := Compute(prev, next)
	assert.Equal(t, 1, changes.Stream.Len())
	assert.False(t, changes.Streamable())
}

func TestCompute_PartitionIsComplete(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	randomTable := func() *table.Table[int] {
		b := table.NewBuilder[int](table.Field{Name: "v", Kind: table.KindInt})
		for k := 0; k < 40; k++ {
			if rng.IntN(2) == 0 {
				b.Append(k, rng.IntN(3))
			}
		}
		tbl, err := b.Build()
		require.NoError(t, err)
		return tbl
	}

	for i := 0; i < 50; i++ {
		prev, next := randomTable(), randomTable()

		stream := DetectStream(prev, next).Keys()
		candidates := Candidates(prev, next)

		union := map[int]int{}
		for _, k := range stream {
			union[k]++
		}
		for _, k := range candidates {
			union[k]++
		}
		assert.Len(t, union, next.Len())
		for k, n := range union {
			assert.Equal(t, 1, n, "key %d classified twice", k)
			assert.True(t, next.Has(k))
		}

		for _, k := range DetectPatch(prev, next).Keys {
			assert.Contains(t, candidates, k)
		}
	}
}

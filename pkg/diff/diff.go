// Package diff classifies the difference between two keyed table snapshots.
//
// Keys present only in the new snapshot are a stream (appended rows). Keys
// present in both snapshots whose rows differ are a patch, expressed per
// column as (position, value) cells where the position is the ordinal of the
// row inside the patched subset, not its key and not its position in the
// full table. Keys present only in the old snapshot are reported as removed
// but produce no delivery of their own.
//
// Rows are matched strictly by key and cells by column name, so duplicated
// values across rows or columns never make the comparison ambiguous.
package diff

import (
	"sort"

	"github.com/leapstack-labs/livetable/pkg/table"
)

// Cell is one changed cell of a patch.
type Cell struct {
	Pos   int
	Value any
}

// Patch is the set of changed cells of rows present in both snapshots.
type Patch[K comparable] struct {
	// Keys are the keys of the patched rows. Cell positions index this slice.
	Keys []K
	// Columns maps column name to its changed cells, in position order.
	// Columns without a changed cell are absent.
	Columns map[string][]Cell
}

// Empty reports whether the patch changes nothing.
func (p Patch[K]) Empty() bool { return len(p.Columns) == 0 }

// ColumnNames returns the patched column names, sorted.
func (p Patch[K]) ColumnNames() []string {
	names := make([]string, 0, len(p.Columns))
	for n := range p.Columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CellCount returns the number of changed cells.
func (p Patch[K]) CellCount() int {
	n := 0
	for _, cells := range p.Columns {
		n += len(cells)
	}
	return n
}

// Changes is the full classification of a snapshot transition.
type Changes[K comparable] struct {
	Patch   Patch[K]
	Stream  *table.Table[K]
	Removed []K
}

// Streamable reports whether the stream holds at least one non-empty cell.
func (c Changes[K]) Streamable() bool {
	return c.Stream != nil && c.Stream.AnyNonEmpty()
}

// Compute classifies the transition from prev to next.
func Compute[K comparable](prev, next *table.Table[K]) Changes[K] {
	return Changes[K]{
		Patch:   DetectPatch(prev, next),
		Stream:  DetectStream(prev, next),
		Removed: DetectRemoved(prev, next),
	}
}

// DetectStream returns the rows of next whose keys are absent from prev, in
// next's row order.
func DetectStream[K comparable](prev, next *table.Table[K]) *table.Table[K] {
	var positions []int
	for i := 0; i < next.Len(); i++ {
		if !prev.Has(next.Key(i)) {
			positions = append(positions, i)
		}
	}
	return next.Take(positions)
}

// DetectRemoved returns the keys of prev absent from next, in prev's row order.
func DetectRemoved[K comparable](prev, next *table.Table[K]) []K {
	var removed []K
	for i := 0; i < prev.Len(); i++ {
		if !next.Has(prev.Key(i)) {
			removed = append(removed, prev.Key(i))
		}
	}
	return removed
}

// Candidates returns the keys of next also present in prev, in next's row order.
func Candidates[K comparable](prev, next *table.Table[K]) []K {
	var keys []K
	for i := 0; i < next.Len(); i++ {
		if prev.Has(next.Key(i)) {
			keys = append(keys, next.Key(i))
		}
	}
	return keys
}

// DetectPatch returns the changed cells of rows present in both snapshots.
// A row is patched when any of next's cells differs from prev's cell of the
// same column; a column missing from prev counts as changed.
func DetectPatch[K comparable](prev, next *table.Table[K]) Patch[K] {
	patch := Patch[K]{Columns: map[string][]Cell{}}
	nextCols := next.Columns()
	prevCols := make([]*table.Column, len(nextCols))
	for j, c := range nextCols {
		if pc, ok := prev.Column(c.Name); ok {
			prevCols[j] = &pc
		}
	}

	for i := 0; i < next.Len(); i++ {
		key := next.Key(i)
		pi, ok := prev.Position(key)
		if !ok {
			continue
		}
		var changed []int
		for j, c := range nextCols {
			if prevCols[j] == nil || !table.CellEqual(prevCols[j].Value(pi), c.Value(i)) {
				changed = append(changed, j)
			}
		}
		if len(changed) == 0 {
			continue
		}
		pos := len(patch.Keys)
		patch.Keys = append(patch.Keys, key)
		for _, j := range changed {
			name := nextCols[j].Name
			patch.Columns[name] = append(patch.Columns[name], Cell{Pos: pos, Value: nextCols[j].Value(i)})
		}
	}
	return patch
}

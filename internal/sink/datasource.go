// Package sink provides render destinations for live models: an in-process
// materialized copy of a model and a terminal renderer.
package sink

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/livetable/pkg/diff"
	"github.com/leapstack-labs/livetable/pkg/live"
	"github.com/leapstack-labs/livetable/pkg/table"
)

// DataSource keeps its own copy of a model's table, maintained only from
// the deliveries it receives. It is what a plot or table widget would read.
type DataSource[K comparable] struct {
	name string

	mu      sync.RWMutex
	data    *table.Table[K]
	applied map[live.DeliveryKind]int

	closed atomic.Bool
}

var _ live.Sink[int64] = (*DataSource[int64])(nil)

// NewDataSource returns a data source starting from initial, usually the
// model snapshot at attach time.
func NewDataSource[K comparable](name string, initial *table.Table[K]) *DataSource[K] {
	return &DataSource[K]{
		name:    name,
		data:    initial,
		applied: map[live.DeliveryKind]int{},
	}
}

// Name returns the data source name.
func (s *DataSource[K]) Name() string { return s.name }

// Table returns the materialized table.
func (s *DataSource[K]) Table() *table.Table[K] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// Applied returns how many deliveries of kind were applied.
func (s *DataSource[K]) Applied(kind live.DeliveryKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied[kind]
}

// Close detaches the data source. Pending deliveries are dropped.
func (s *DataSource[K]) Close() { s.closed.Store(true) }

// Attached implements live.Sink.
func (s *DataSource[K]) Attached() bool { return !s.closed.Load() }

// Apply implements live.Sink.
func (s *DataSource[K]) Apply(d live.Delivery[K]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		next *table.Table[K]
		err  error
	)
	switch d.Kind {
	case live.KindPatch:
		next, err = applyPatch(s.data, d.Patch)
	case live.KindStream:
		next, err = s.data.Append(d.Table)
	case live.KindReplace:
		next = d.Table
	default:
		err = fmt.Errorf("unsupported delivery %s", d.Kind)
	}
	if err != nil {
		return fmt.Errorf("data source %q: %w", s.name, err)
	}
	s.data = next
	s.applied[d.Kind]++
	return nil
}

// applyPatch writes the patched cells into a copy of base. Cell positions
// index patch.Keys, which are resolved to rows of base by key.
func applyPatch[K comparable](base *table.Table[K], patch diff.Patch[K]) (*table.Table[K], error) {
	rows := make([]int, len(patch.Keys))
	for i, k := range patch.Keys {
		p, ok := base.Position(k)
		if !ok {
			return nil, fmt.Errorf("patched row %v is not materialized", k)
		}
		rows[i] = p
	}

	out := base
	for _, name := range patch.ColumnNames() {
		kind := table.KindAny
		values := make([]any, base.Len())
		if c, ok := base.Column(name); ok {
			kind = c.Kind
			values = c.Values()
		}
		for _, cell := range patch.Columns[name] {
			if cell.Pos < 0 || cell.Pos >= len(rows) {
				return nil, fmt.Errorf("patch cell position %d out of range for %d rows", cell.Pos, len(rows))
			}
			values[rows[cell.Pos]] = cell.Value
		}
		col, err := table.NewColumn(name, kind, values...)
		if err != nil {
			return nil, err
		}
		if out, err = out.WithColumn(col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

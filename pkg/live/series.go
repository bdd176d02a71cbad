package live

import (
	"fmt"
	"slices"
	"sync"
	"weak"
)

// Series is a live list of values, the keyless counterpart of Model.
// Derived series are kept fresh the same way derived models are.
type Series[T any] struct {
	mu     sync.RWMutex
	values []T

	edgesMu sync.Mutex
	order   []string
	edges   map[string]*seriesEdge[T]

	upstream *Series[T]
}

type seriesEdge[T any] struct {
	child   weak.Pointer[Series[T]]
	compute func([]T) ([]T, error)
}

// NewSeries returns a series holding a copy of values.
func NewSeries[T any](values []T) *Series[T] {
	return &Series[T]{
		values: slices.Clone(values),
		edges:  map[string]*seriesEdge[T]{},
	}
}

// Values returns a copy of the current values.
func (s *Series[T]) Values() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.values)
}

// Len returns the number of values.
func (s *Series[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// At returns the value at position i.
func (s *Series[T]) At(i int) T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[i]
}

// Update recomputes every derived series from values, then replaces the
// current values. A failing transform leaves this series unchanged.
func (s *Series[T]) Update(values []T) error {
	for id, e := range s.liveEdges() {
		child := e.child.Value()
		if child == nil {
			continue
		}
		out, err := e.compute(values)
		if err != nil {
			return &TransformError{Model: "series", Transform: id, Err: err}
		}
		if err := child.Update(out); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.values = slices.Clone(values)
	s.mu.Unlock()
	return nil
}

// Map derives the series of f applied to each element.
func (s *Series[T]) Map(id TransformID, f func(T) T) (*Series[T], error) {
	return s.derive("map:"+string(id), func(in []T) ([]T, error) {
		out := make([]T, len(in))
		for i, v := range in {
			out[i] = f(v)
		}
		return out, nil
	})
}

// Transform derives the series f(values).
func (s *Series[T]) Transform(id TransformID, f func([]T) ([]T, error)) (*Series[T], error) {
	return s.derive("transform:"+string(id), f)
}

func (s *Series[T]) derive(id string, compute func([]T) ([]T, error)) (*Series[T], error) {
	s.edgesMu.Lock()
	if e, ok := s.edges[id]; ok {
		if child := e.child.Value(); child != nil {
			s.edgesMu.Unlock()
			return child, nil
		}
	}
	s.edgesMu.Unlock()

	out, err := compute(s.Values())
	if err != nil {
		return nil, &TransformError{Model: "series", Transform: id, Err: err}
	}
	child := NewSeries(out)
	child.upstream = s

	s.edgesMu.Lock()
	defer s.edgesMu.Unlock()
	if _, ok := s.edges[id]; !ok {
		s.order = append(s.order, id)
	}
	s.edges[id] = &seriesEdge[T]{child: weak.Make(child), compute: compute}
	return child, nil
}

// liveEdges returns the edges with a referenced child in registration order.
func (s *Series[T]) liveEdges() func(yield func(string, *seriesEdge[T]) bool) {
	s.edgesMu.Lock()
	ids := slices.Clone(s.order)
	edges := make([]*seriesEdge[T], len(ids))
	for i, id := range ids {
		edges[i] = s.edges[id]
	}
	s.edgesMu.Unlock()
	return func(yield func(string, *seriesEdge[T]) bool) {
		for i, id := range ids {
			if edges[i].child.Value() == nil {
				continue
			}
			if !yield(id, edges[i]) {
				return
			}
		}
	}
}

func (s *Series[T]) String() string {
	return fmt.Sprint(s.Values())
}

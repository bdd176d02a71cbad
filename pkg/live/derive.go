package live

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"weak"

	"github.com/leapstack-labs/livetable/pkg/table"
)

// TransformID is a caller-chosen, stable identity of a transform. Deriving
// twice with the same id from the same model returns the same derived model.
type TransformID string

// TableFunc computes a whole table from the parent snapshot.
type TableFunc[K comparable] func(*table.Table[K]) (*table.Table[K], error)

// RowFunc computes the output cells of one row, in the order of the output
// fields given to Apply.
type RowFunc[K comparable] func(table.Row[K]) ([]any, error)

// DeriveOption configures a derivation.
type DeriveOption func(*deriveConfig)

type deriveConfig struct {
	name         string
	targetColumn string
}

// WithName names the derived model. The default is "<parent>[<transform>]".
func WithName(name string) DeriveOption {
	return func(c *deriveConfig) { c.name = name }
}

// WithTargetColumn makes Relate merge the single column returned by the
// transform into a copy of the parent snapshot, under name. Result rows are
// matched to parent rows by key; parent rows without a result get an empty
// cell.
func WithTargetColumn(name string) DeriveOption {
	return func(c *deriveConfig) { c.targetColumn = name }
}

// edge is one registered derivation. The parent only keeps a weak reference
// to the child: the derived model lives as long as its caller holds it.
type edge[K comparable] struct {
	transform string
	childID   string
	child     weak.Pointer[Model[K]]
	compute   TableFunc[K]
}

// dependencies keeps the derivations of a model in registration order.
type dependencies[K comparable] struct {
	mu    sync.Mutex
	order []string
	edges map[string]*edge[K]
}

// lookup returns the live child memoized under transform. A collected child
// is dropped from the lineage so the edge can be registered again.
func (d *dependencies[K]) lookup(transform string, tree *lineage) (*Model[K], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.edges[transform]
	if !ok {
		return nil, false
	}
	if child := e.child.Value(); child != nil {
		return child, true
	}
	tree.forget(e.childID)
	return nil, false
}

func (d *dependencies[K]) add(e *edge[K]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.edges[e.transform]; !ok {
		d.order = append(d.order, e.transform)
	}
	d.edges[e.transform] = e
}

// live returns the edges whose child is still referenced, dropping the others.
func (d *dependencies[K]) live(tree *lineage) []*edge[K] {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*edge[K], 0, len(d.order))
	kept := d.order[:0]
	for _, id := range d.order {
		e := d.edges[id]
		if e.child.Value() == nil {
			delete(d.edges, id)
			tree.forget(e.childID)
			continue
		}
		kept = append(kept, id)
		out = append(out, e)
	}
	d.order = kept
	return out
}

// propagate recomputes every derived model from next, depth first. The first
// failure stops propagation.
func (m *Model[K]) propagate(next *table.Table[K]) error {
	for _, e := range m.deps.live(m.tree) {
		child := e.child.Value()
		if child == nil {
			continue
		}
		out, err := e.compute(next)
		if err != nil {
			return &TransformError{Model: child.Name(), Transform: e.transform, Err: err}
		}
		if _, err := child.Update(out); err != nil {
			var te *TransformError
			if errors.As(err, &te) {
				return err
			}
			return &TransformError{Model: child.Name(), Transform: e.transform, Err: err}
		}
	}
	return nil
}

// Derived returns the number of derived models still referenced.
func (m *Model[K]) Derived() int { return len(m.deps.live(m.tree)) }

// derive returns the model memoized under transform, or computes and
// registers a new one.
func (m *Model[K]) derive(transform string, cfg deriveConfig, compute TableFunc[K]) (*Model[K], error) {
	if child, ok := m.deps.lookup(transform, m.tree); ok {
		return child, nil
	}
	name := cfg.name
	if name == "" {
		name = fmt.Sprintf("%s[%s]", m.Name(), transform)
	}
	if m.depth+1 > MaxDepth {
		return nil, fmt.Errorf("model %q: %w (max %d)", name, ErrTooDeep, MaxDepth)
	}

	out, err := compute(m.Snapshot())
	if err != nil {
		return nil, &TransformError{Model: name, Transform: transform, Err: err}
	}
	child, err := newModel(name, out, options{debug: m.Debug(), optimized: m.optimized, logger: m.logger})
	if err != nil {
		return nil, &TransformError{Model: name, Transform: transform, Err: err}
	}
	child.tree = m.tree
	child.depth = m.depth + 1
	child.upstream = m
	if err := m.tree.link(m.id, child.id, name); err != nil {
		return nil, err
	}

	m.deps.add(&edge[K]{
		transform: transform,
		childID:   child.id,
		child:     weak.Make(child),
		compute:   compute,
	})
	m.logger.Debug("derived model registered", "model", m.Name(), "derived", name, "transform", transform)
	return child, nil
}

// Relate derives a model whose snapshot is f(parent snapshot).
func (m *Model[K]) Relate(id TransformID, f TableFunc[K], opts ...DeriveOption) (*Model[K], error) {
	cfg := deriveConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	transform := "relate:" + string(id)
	if cfg.targetColumn == "" {
		return m.derive(transform, cfg, f)
	}
	target := cfg.targetColumn
	return m.derive(transform+"->"+target, cfg, func(t *table.Table[K]) (*table.Table[K], error) {
		out, err := f(t)
		if err != nil {
			return nil, err
		}
		return mergeColumn(t, out, target)
	})
}

// mergeColumn aligns the single column of result to base by key and adds it
// to a copy of base as column name.
func mergeColumn[K comparable](base, result *table.Table[K], name string) (*table.Table[K], error) {
	if result.Width() != 1 {
		return nil, fmt.Errorf("%w: target column %q needs a single-column result, got [%s]",
			table.ErrShape, name, strings.Join(result.Names(), ", "))
	}
	src := result.Columns()[0]
	values := make([]any, base.Len())
	for i := range values {
		if p, ok := result.Position(base.Key(i)); ok {
			values[i] = src.Value(p)
		}
	}
	col, err := table.NewColumn(name, src.Kind, values...)
	if err != nil {
		return nil, err
	}
	return base.WithColumn(col)
}

// Apply derives a model with one row per parent row and the columns fields,
// computed by f from each parent row independently.
func (m *Model[K]) Apply(id TransformID, fields []table.Field, f RowFunc[K], opts ...DeriveOption) (*Model[K], error) {
	cfg := deriveConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return m.derive("apply:"+string(id), cfg, func(t *table.Table[K]) (*table.Table[K], error) {
		b := table.NewBuilder[K](fields...)
		err := t.Rows(func(r table.Row[K]) error {
			cells, err := f(r)
			if err != nil {
				return fmt.Errorf("row %v: %w", r.Key, err)
			}
			b.Append(r.Key, cells...)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return b.Build()
	})
}

// Select derives the projection of the parent on columns, in that order.
// It is memoized by the exact column list.
func (m *Model[K]) Select(columns []string, opts ...DeriveOption) (*Model[K], error) {
	cfg := deriveConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	cols := append([]string(nil), columns...)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = strconv.Quote(c)
	}
	return m.derive("select:"+strings.Join(quoted, ","), cfg, func(t *table.Table[K]) (*table.Table[K], error) {
		return t.Select(cols...)
	})
}

// Filter derives the rows of the parent whose column equals value.
func (m *Model[K]) Filter(column string, value any, opts ...DeriveOption) (*Model[K], error) {
	cfg := deriveConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return m.derive(fmt.Sprintf("filter:%q=%#v", column, value), cfg, func(t *table.Table[K]) (*table.Table[K], error) {
		c, ok := t.Column(column)
		if !ok {
			return nil, fmt.Errorf("%w: %q", table.ErrUnknownColumn, column)
		}
		want, err := table.Coerce(c.Kind, value)
		if err != nil {
			return nil, err
		}
		return t.Filter(func(r table.Row[K]) bool {
			v, _ := r.Get(column)
			return table.CellEqual(v, want)
		}), nil
	})
}

package table

import "fmt"

// Row is one keyed row of a table. Values are in column order.
type Row[K comparable] struct {
	Key    K
	Values []any
	names  map[string]int
}

// Get returns the cell of column name.
func (r Row[K]) Get(name string) (any, bool) {
	i, ok := r.names[name]
	if !ok {
		return nil, false
	}
	return r.Values[i], true
}

// Map returns the row as a column name to cell map.
func (r Row[K]) Map() map[string]any {
	m := make(map[string]any, len(r.names))
	for name, i := range r.names {
		m[name] = r.Values[i]
	}
	return m
}

// Builder accumulates rows for a fixed schema.
type Builder[K comparable] struct {
	fields []Field
	keys   []K
	cells  [][]any
	err    error
}

// NewBuilder returns a builder for the given schema.
func NewBuilder[K comparable](fields ...Field) *Builder[K] {
	return &Builder[K]{
		fields: fields,
		cells:  make([][]any, len(fields)),
	}
}

// Append adds a row. values are in schema order. The first error is kept and
// returned by Build.
func (b *Builder[K]) Append(key K, values ...any) *Builder[K] {
	if b.err != nil {
		return b
	}
	if len(values) != len(b.fields) {
		b.err = fmt.Errorf("%w: row %v has %d values for %d columns", ErrShape, key, len(values), len(b.fields))
		return b
	}
	for i, v := range values {
		cv, err := Coerce(b.fields[i].Kind, v)
		if err != nil {
			b.err = fmt.Errorf("row %v column %q: %w", key, b.fields[i].Name, err)
			return b
		}
		b.cells[i] = append(b.cells[i], cv)
	}
	b.keys = append(b.keys, key)
	return b
}

// AppendMap adds a row from a name to cell map. Missing columns are empty.
func (b *Builder[K]) AppendMap(key K, values map[string]any) *Builder[K] {
	row := make([]any, len(b.fields))
	for i, f := range b.fields {
		row[i] = values[f.Name]
	}
	return b.Append(key, row...)
}

// Len returns the number of rows appended so far.
func (b *Builder[K]) Len() int { return len(b.keys) }

// Build returns the table.
func (b *Builder[K]) Build() (*Table[K], error) {
	if b.err != nil {
		return nil, b.err
	}
	cols := make([]Column, len(b.fields))
	for i, f := range b.fields {
		cols[i] = Column{Name: f.Name, Kind: f.Kind, values: b.cells[i]}
		if cols[i].values == nil {
			cols[i].values = []any{}
		}
	}
	return New(b.keys, cols...)
}

// Package table provides the immutable, keyed tabular value exchanged between
// producers, live models and sinks.
//
// A Table is an ordered set of named columns aligned to one row-key sequence.
// Tables are immutable by convention: every operation returns a new Table and
// never modifies its receiver or its arguments. Key uniqueness is not enforced
// on construction (see DuplicateKeys); the live model checks it on every
// snapshot it accepts.
package table

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by table operations.
var (
	ErrShape         = errors.New("invalid table shape")
	ErrKind          = errors.New("invalid cell kind")
	ErrUnknownColumn = errors.New("unknown column")
)

// Table is a keyed set of columns. The zero value is not usable, use New or Empty.
type Table[K comparable] struct {
	keys    []K
	pos     map[K]int // first occurrence of each key
	columns []Column
	byName  map[string]int
}

// New builds a table. All columns must have one cell per key and distinct names.
func New[K comparable](keys []K, columns ...Column) (*Table[K], error) {
	t := &Table[K]{
		keys:    append([]K(nil), keys...),
		columns: make([]Column, 0, len(columns)),
		byName:  make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		if c.Len() != len(keys) {
			return nil, fmt.Errorf("%w: column %q has %d cells for %d keys", ErrShape, c.Name, c.Len(), len(keys))
		}
		if _, dup := t.byName[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrShape, c.Name)
		}
		t.byName[c.Name] = len(t.columns)
		t.columns = append(t.columns, c)
	}
	t.index()
	return t, nil
}

// MustNew is like New but panics on error.
func MustNew[K comparable](keys []K, columns ...Column) *Table[K] {
	t, err := New(keys, columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Empty returns a table with the given schema and no rows.
func Empty[K comparable](fields ...Field) *Table[K] {
	cols := make([]Column, len(fields))
	for i, f := range fields {
		cols[i] = Column{Name: f.Name, Kind: f.Kind}
	}
	return MustNew[K](nil, cols...)
}

func (t *Table[K]) index() {
	t.pos = make(map[K]int, len(t.keys))
	for i, k := range t.keys {
		if _, seen := t.pos[k]; !seen {
			t.pos[k] = i
		}
	}
}

// Len returns the number of rows.
func (t *Table[K]) Len() int { return len(t.keys) }

// Width returns the number of columns.
func (t *Table[K]) Width() int { return len(t.columns) }

// Keys returns a copy of the row keys in row order.
func (t *Table[K]) Keys() []K { return append([]K(nil), t.keys...) }

// Key returns the key of row i.
func (t *Table[K]) Key(i int) K { return t.keys[i] }

// Has reports whether key is present.
func (t *Table[K]) Has(key K) bool {
	_, ok := t.pos[key]
	return ok
}

// Position returns the row position of key.
func (t *Table[K]) Position(key K) (int, bool) {
	p, ok := t.pos[key]
	return p, ok
}

// Names returns the column names in order.
func (t *Table[K]) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Fields returns the schema.
func (t *Table[K]) Fields() []Field {
	fields := make([]Field, len(t.columns))
	for i, c := range t.columns {
		fields[i] = c.Field()
	}
	return fields
}

// Columns returns the columns in order.
func (t *Table[K]) Columns() []Column { return append([]Column(nil), t.columns...) }

// Column returns the column named name.
func (t *Table[K]) Column(name string) (Column, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// Cell returns the cell of row i in column name.
func (t *Table[K]) Cell(i int, name string) (any, bool) {
	c, ok := t.Column(name)
	if !ok {
		return nil, false
	}
	return c.Value(i), true
}

// Row returns row i.
func (t *Table[K]) Row(i int) Row[K] {
	vals := make([]any, len(t.columns))
	for j, c := range t.columns {
		vals[j] = c.Value(i)
	}
	return Row[K]{Key: t.keys[i], names: t.byName, Values: vals}
}

// Rows calls fn for every row in order, stopping at the first error.
func (t *Table[K]) Rows(fn func(Row[K]) error) error {
	for i := range t.keys {
		if err := fn(t.Row(i)); err != nil {
			return err
		}
	}
	return nil
}

// DuplicateKeys returns every key that occurs more than once, in order of
// first repetition.
func (t *Table[K]) DuplicateKeys() []K {
	if len(t.pos) == len(t.keys) {
		return nil
	}
	seen := make(map[K]int, len(t.keys))
	var dups []K
	for _, k := range t.keys {
		seen[k]++
		if seen[k] == 2 {
			dups = append(dups, k)
		}
	}
	return dups
}

// Take returns the rows at the given positions, in that order.
func (t *Table[K]) Take(positions []int) *Table[K] {
	keys := make([]K, len(positions))
	for i, p := range positions {
		keys[i] = t.keys[p]
	}
	cols := make([]Column, len(t.columns))
	for i, c := range t.columns {
		cols[i] = c.take(positions)
	}
	return MustNew(keys, cols...)
}

// Filter returns the rows for which keep returns true.
func (t *Table[K]) Filter(keep func(Row[K]) bool) *Table[K] {
	var positions []int
	for i := range t.keys {
		if keep(t.Row(i)) {
			positions = append(positions, i)
		}
	}
	return t.Take(positions)
}

// Select returns the named columns, in the requested order.
func (t *Table[K]) Select(names ...string) (*Table[K], error) {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownColumn, n, strings.Join(t.Names(), ", "))
		}
		cols = append(cols, c)
	}
	return New(t.keys, cols...)
}

// WithColumn returns a copy of t with c appended, or replacing the column of
// the same name.
func (t *Table[K]) WithColumn(c Column) (*Table[K], error) {
	cols := t.Columns()
	if i, ok := t.byName[c.Name]; ok {
		cols[i] = c
	} else {
		cols = append(cols, c)
	}
	return New(t.keys, cols...)
}

// Append returns t followed by the rows of other. Both must have the same schema.
func (t *Table[K]) Append(other *Table[K]) (*Table[K], error) {
	if !sameFields(t.Fields(), other.Fields()) {
		return nil, fmt.Errorf("%w: cannot append %v to %v", ErrShape, other.Fields(), t.Fields())
	}
	keys := append(t.Keys(), other.keys...)
	cols := make([]Column, len(t.columns))
	for i, c := range t.columns {
		vals := append(c.Values(), other.columns[i].values...)
		cols[i] = Column{Name: c.Name, Kind: c.Kind, values: vals}
	}
	return New(keys, cols...)
}

// Equal reports whether both tables have the same keys in the same order, the
// same schema, and equal cells.
func (t *Table[K]) Equal(other *Table[K]) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	if len(t.keys) != len(other.keys) || !sameFields(t.Fields(), other.Fields()) {
		return false
	}
	for i, k := range t.keys {
		if other.keys[i] != k {
			return false
		}
	}
	for j, c := range t.columns {
		oc := other.columns[j]
		for i := range c.values {
			if !CellEqual(c.values[i], oc.values[i]) {
				return false
			}
		}
	}
	return true
}

// AnyNonEmpty reports whether at least one cell of t is not empty.
func (t *Table[K]) AnyNonEmpty() bool {
	for _, c := range t.columns {
		for _, v := range c.values {
			if v != nil {
				return true
			}
		}
	}
	return false
}

func (t *Table[K]) String() string {
	return fmt.Sprintf("table(%d rows x [%s])", t.Len(), strings.Join(t.Names(), ", "))
}

func sameFields(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

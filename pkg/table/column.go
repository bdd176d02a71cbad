package table

import (
	"fmt"
	"reflect"
	"time"
)

// Kind is the value type held by every cell of a column.
type Kind uint8

// Supported column kinds.
const (
	KindAny Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindTime
)

var kindNames = map[Kind]string{
	KindAny:    "any",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindBool:   "bool",
	KindTime:   "time",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind returns the kind named s.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindAny, fmt.Errorf("unknown column kind %q", s)
}

// Field describes a column without its values.
type Field struct {
	Name string
	Kind Kind
}

// Column is a named, homogeneously typed sequence of cells.
// A nil cell is empty. Columns are never modified once built.
type Column struct {
	Name   string
	Kind   Kind
	values []any
}

// NewColumn builds a column, converting values to the canonical Go type of kind.
// Accepted inputs: any integer type for KindInt, any integer or float type for
// KindFloat, string, bool and time.Time. Nil values are kept as empty cells.
func NewColumn(name string, kind Kind, values ...any) (Column, error) {
	if name == "" {
		return Column{}, fmt.Errorf("%w: column name is empty", ErrShape)
	}
	vals := make([]any, len(values))
	for i, v := range values {
		cv, err := Coerce(kind, v)
		if err != nil {
			return Column{}, fmt.Errorf("column %q row %d: %w", name, i, err)
		}
		vals[i] = cv
	}
	return Column{Name: name, Kind: kind, values: vals}, nil
}

// MustColumn is like NewColumn but panics on error. Meant for tests and literals.
func MustColumn(name string, kind Kind, values ...any) Column {
	c, err := NewColumn(name, kind, values...)
	if err != nil {
		panic(err)
	}
	return c
}

// Field returns the column descriptor.
func (c Column) Field() Field { return Field{Name: c.Name, Kind: c.Kind} }

// Len returns the number of cells.
func (c Column) Len() int { return len(c.values) }

// Value returns the cell at position i.
func (c Column) Value(i int) any { return c.values[i] }

// Values returns a copy of the cells.
func (c Column) Values() []any {
	out := make([]any, len(c.values))
	copy(out, c.values)
	return out
}

// Rename returns the same cells under another name.
func (c Column) Rename(name string) Column {
	return Column{Name: name, Kind: c.Kind, values: c.values}
}

func (c Column) take(positions []int) Column {
	vals := make([]any, len(positions))
	for i, p := range positions {
		vals[i] = c.values[p]
	}
	return Column{Name: c.Name, Kind: c.Kind, values: vals}
}

// Coerce converts v to the canonical Go type for kind.
func Coerce(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindAny:
		return v, nil
	case KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int8:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint8:
			return int64(n), nil
		case uint16:
			return int64(n), nil
		case uint32:
			return int64(n), nil
		}
	case KindFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindTime:
		if t, ok := v.(time.Time); ok {
			return t.Round(0), nil
		}
	}
	return nil, fmt.Errorf("%w: %T is not a valid %s value", ErrKind, v, kind)
}

// CellEqual reports whether two cells hold the same value.
// Times compare by instant, empty cells are only equal to empty cells.
func CellEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

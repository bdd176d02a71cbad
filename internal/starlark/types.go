// Package starlark evaluates user-supplied Starlark transforms over table rows.
package starlark

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/livetable/pkg/table"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	startime "go.starlark.net/lib/time"
)

// ViewInfo describes the view a transform belongs to.
// Exposed as the "view" global in Starlark execution.
type ViewInfo struct {
	Name   string // derived model name
	Source string // name of the model the view derives from
}

// ToStarlark converts ViewInfo to a Starlark struct value.
func (v *ViewInfo) ToStarlark() starlark.Value {
	return starlarkstruct.FromStringDict(starlark.String("view"), starlark.StringDict{
		"name":   starlark.String(v.Name),
		"source": starlark.String(v.Source),
	})
}

// RowToStarlark converts a table row to a Starlark struct with one field per
// column plus "key".
func RowToStarlark[K comparable](r table.Row[K]) (starlark.Value, error) {
	fields := make(starlark.StringDict, len(r.Values)+1)
	key, err := GoToStarlark(r.Key)
	if err != nil {
		return nil, fmt.Errorf("row key: %w", err)
	}
	fields["key"] = key
	for name, v := range r.Map() {
		sv, err := GoToStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		fields[name] = sv
	}
	return starlarkstruct.FromStringDict(starlark.String("row"), fields), nil
}

// GoToStarlark converts a Go value to a Starlark value.
// Supported types: string, int, int64, float64, bool, time.Time, []string, []any, map[string]any
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case time.Time:
		return startime.Time(val), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			sv, err := GoToStarlark(v)
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Starlark value back to a Go value.
// Returns: string, int64, float64, bool, time.Time, []any, map[string]any, or nil
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s overflows int64", val.String())
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case startime.Time:
		return time.Time(val), nil

	case *starlark.List:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Dict:
		result := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %T", item[0])
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	case starlark.Tuple:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("tuple index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	default:
		return val.String(), nil
	}
}

package pipeline

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/livetable/pkg/live"
	"github.com/leapstack-labs/livetable/pkg/table"
)

// Cut returns a table transform labelling each row by the interval its
// column value falls in. Intervals are (bins[i], bins[i+1]], values outside
// every interval get an empty label. The result has the single column
// "category".
func Cut(column string, bins []float64, labels []string) live.TableFunc[int64] {
	return func(t *table.Table[int64]) (*table.Table[int64], error) {
		col, ok := t.Column(column)
		if !ok {
			return nil, fmt.Errorf("%w: %q", table.ErrUnknownColumn, column)
		}
		out := make([]any, t.Len())
		for i, v := range col.Values() {
			x, ok := toFloat(v)
			if !ok {
				continue
			}
			for j := 1; j < len(bins); j++ {
				if x > bins[j-1] && x <= bins[j] {
					out[i] = labels[j-1]
					break
				}
			}
		}
		return table.New(t.Keys(), table.MustColumn("category", table.KindString, out...))
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// datetimeParts maps part names to extractors.
var datetimeParts = map[string]func(time.Time) int{
	"year":       time.Time.Year,
	"month":      func(t time.Time) int { return int(t.Month()) },
	"day":        time.Time.Day,
	"hour":       time.Time.Hour,
	"minute":     time.Time.Minute,
	"second":     time.Time.Second,
	"nanosecond": time.Time.Nanosecond,
	"weekday":    func(t time.Time) int { return int(t.Weekday()) },
	"yearday":    time.Time.YearDay,
}

// DatetimeFields returns the output schema of a datetime extraction.
func DatetimeFields(parts []string) ([]table.Field, error) {
	fields := make([]table.Field, len(parts))
	for i, p := range parts {
		if _, ok := datetimeParts[p]; !ok {
			return nil, fmt.Errorf("unknown datetime part %q", p)
		}
		fields[i] = table.Field{Name: p, Kind: table.KindInt}
	}
	return fields, nil
}

// Datetime returns a row transform extracting parts of the time held in
// column. An empty cell yields empty parts.
func Datetime(column string, parts []string) live.RowFunc[int64] {
	return func(r table.Row[int64]) ([]any, error) {
		v, ok := r.Get(column)
		if !ok {
			return nil, fmt.Errorf("%w: %q", table.ErrUnknownColumn, column)
		}
		out := make([]any, len(parts))
		if v == nil {
			return out, nil
		}
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("column %q holds %T, not a time", column, v)
		}
		for i, p := range parts {
			out[i] = datetimeParts[p](t)
		}
		return out, nil
	}
}

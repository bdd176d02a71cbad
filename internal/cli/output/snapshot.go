package output

import "github.com/leapstack-labs/livetable/pkg/table"

// NewSnapshot converts a table to its JSON form. Each row carries its key
// under "key".
func NewSnapshot(model string, t *table.Table[int64]) SnapshotOutput {
	out := SnapshotOutput{
		Model:   model,
		Columns: t.Names(),
		Rows:    make([]map[string]any, 0, t.Len()),
	}
	_ = t.Rows(func(r table.Row[int64]) error {
		row := r.Map()
		row["key"] = r.Key
		out.Rows = append(out.Rows, row)
		return nil
	})
	return out
}

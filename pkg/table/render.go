package table

import (
	"fmt"
	"io"
	"strings"
	"time"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

// RenderOptions controls text rendering.
type RenderOptions struct {
	// KeyHeader is the header of the key column. Defaults to "index".
	KeyHeader string
	// MaxRows truncates the output, keeping the last rows. Zero means no limit.
	MaxRows int
	// Style is the go-pretty style. Defaults to prettytable.StyleLight.
	Style *prettytable.Style
	// Markdown renders a markdown table instead of a text one.
	Markdown bool
}

// Render writes t as a text table.
func Render[K comparable](w io.Writer, t *Table[K], opts RenderOptions) {
	if t.Len() == 0 {
		_, _ = fmt.Fprintf(w, "(0 rows) [%s]\n", strings.Join(t.Names(), ", "))
		return
	}
	header := opts.KeyHeader
	if header == "" {
		header = "index"
	}

	tw := prettytable.NewWriter()
	tw.SetOutputMirror(w)
	if opts.Style != nil {
		tw.SetStyle(*opts.Style)
	} else {
		tw.SetStyle(prettytable.StyleLight)
	}

	headerRow := prettytable.Row{header}
	for _, n := range t.Names() {
		headerRow = append(headerRow, n)
	}
	tw.AppendHeader(headerRow)

	start := 0
	if opts.MaxRows > 0 && t.Len() > opts.MaxRows {
		start = t.Len() - opts.MaxRows
	}
	for i := start; i < t.Len(); i++ {
		row := t.Row(i)
		out := make(prettytable.Row, 0, len(row.Values)+1)
		out = append(out, FormatValue(row.Key))
		for _, v := range row.Values {
			out = append(out, FormatValue(v))
		}
		tw.AppendRow(out)
	}
	if opts.Markdown {
		tw.RenderMarkdown()
	} else {
		tw.Render()
	}
	if start > 0 {
		_, _ = fmt.Fprintf(w, "(%d rows, %d shown)\n", t.Len(), t.Len()-start)
	} else {
		_, _ = fmt.Fprintf(w, "(%d rows)\n", t.Len())
	}
}

// Sprint renders t into a string.
func Sprint[K comparable](t *Table[K], opts RenderOptions) string {
	var sb strings.Builder
	Render(&sb, t, opts)
	return sb.String()
}

// FormatValue formats a cell for display.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.Format("01/02/2006 15:04:05")
	case float64:
		return fmt.Sprintf("%.4g", val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

package sink

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/livetable/pkg/diff"
	"github.com/leapstack-labs/livetable/pkg/live"
	"github.com/leapstack-labs/livetable/pkg/table"
	"golang.org/x/term"
)

// Console prints every delivery it receives as a text table.
type Console[K comparable] struct {
	name    string
	w       io.Writer
	maxRows int
	styles  consoleStyles
	now     func() time.Time

	mu     sync.Mutex
	closed atomic.Bool
}

type consoleStyles struct {
	title   lipgloss.Style
	patch   lipgloss.Style
	stream  lipgloss.Style
	replace lipgloss.Style
	muted   lipgloss.Style
}

func newConsoleStyles(color bool) consoleStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return consoleStyles{plain, plain, plain, plain, plain}
	}
	return consoleStyles{
		title:   lipgloss.NewStyle().Bold(true),
		patch:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		stream:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		replace: lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// ConsoleOption configures a Console.
type ConsoleOption func(*consoleOptions)

type consoleOptions struct {
	maxRows int
	color   *bool
	now     func() time.Time
}

// WithMaxRows limits the number of rows printed per delivery.
func WithMaxRows(n int) ConsoleOption {
	return func(o *consoleOptions) { o.maxRows = n }
}

// WithColor forces colored output on or off.
func WithColor(color bool) ConsoleOption {
	return func(o *consoleOptions) { o.color = &color }
}

// WithClock sets the time source used for delivery timestamps.
func WithClock(now func() time.Time) ConsoleOption {
	return func(o *consoleOptions) { o.now = now }
}

// NewConsole returns a console sink writing to w. When w is a terminal,
// output is colored and limited to the terminal height unless overridden.
func NewConsole[K comparable](name string, w io.Writer, opts ...ConsoleOption) *Console[K] {
	o := consoleOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	tty := false
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		tty = true
		if o.maxRows == 0 {
			if _, height, err := term.GetSize(int(f.Fd())); err == nil && height > 8 {
				o.maxRows = height - 8
			}
		}
	}
	color := tty
	if o.color != nil {
		color = *o.color
	}

	return &Console[K]{
		name:    name,
		w:       w,
		maxRows: o.maxRows,
		styles:  newConsoleStyles(color),
		now:     o.now,
	}
}

// Close detaches the console.
func (c *Console[K]) Close() { c.closed.Store(true) }

// Attached implements live.Sink.
func (c *Console[K]) Attached() bool { return !c.closed.Load() }

// Apply implements live.Sink.
func (c *Console[K]) Apply(d live.Delivery[K]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stamp := c.styles.muted.Render(c.now().Format("15:04:05.000"))
	title := c.styles.title.Render(d.Model)

	switch d.Kind {
	case live.KindPatch:
		_, _ = fmt.Fprintf(c.w, "%s %s %s %s\n", stamp, title, c.styles.patch.Render("patch"),
			c.styles.muted.Render(fmt.Sprintf("%d cells in %d rows", d.Patch.CellCount(), len(d.Patch.Keys))))
		renderPatch(c.w, d.Patch)
	case live.KindStream:
		_, _ = fmt.Fprintf(c.w, "%s %s %s %s\n", stamp, title, c.styles.stream.Render("stream"),
			c.styles.muted.Render(fmt.Sprintf("%d rows", d.Table.Len())))
		table.Render(c.w, d.Table, table.RenderOptions{MaxRows: c.maxRows})
	case live.KindReplace:
		_, _ = fmt.Fprintf(c.w, "%s %s %s %s\n", stamp, title, c.styles.replace.Render("replace"),
			c.styles.muted.Render(fmt.Sprintf("%d rows", d.Table.Len())))
		table.Render(c.w, d.Table, table.RenderOptions{MaxRows: c.maxRows})
	default:
		return fmt.Errorf("console %q: unsupported delivery %s", c.name, d.Kind)
	}
	return nil
}

// renderPatch prints one line per patched row, with the changed cells only.
func renderPatch[K comparable](w io.Writer, p diff.Patch[K]) {
	names := p.ColumnNames()

	t := prettytable.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(prettytable.StyleLight)

	header := prettytable.Row{"#", "key"}
	for _, n := range names {
		header = append(header, n)
	}
	t.AppendHeader(header)

	rows := make([]prettytable.Row, len(p.Keys))
	for i, k := range p.Keys {
		rows[i] = make(prettytable.Row, len(names)+2)
		rows[i][0] = i
		rows[i][1] = table.FormatValue(k)
		for j := range names {
			rows[i][j+2] = ""
		}
	}
	for j, n := range names {
		for _, cell := range p.Columns[n] {
			rows[cell.Pos][j+2] = table.FormatValue(cell.Value)
		}
	}
	for _, r := range rows {
		t.AppendRow(r)
	}
	t.Render()
}

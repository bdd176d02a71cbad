package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leapstack-labs/livetable/internal/cli/output"
	"github.com/leapstack-labs/livetable/pkg/table"
	"github.com/spf13/cobra"
)

// SnapshotOptions holds options for the snapshot command.
type SnapshotOptions struct {
	Wait    time.Duration
	MaxRows int
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand() *cobra.Command {
	opts := &SnapshotOptions{}

	cmd := &cobra.Command{
		Use:   "snapshot <model>",
		Short: "Print the current table of a model",
		Long: `Print the table held by a model.

Without --wait the initial snapshot is printed. With --wait the sources
run for the given duration first, so views reflect the updates produced
in the meantime.`,
		Example: `  # Print the initial table of a view
  livetable snapshot categorized

  # Let sources tick for five seconds, then print
  livetable snapshot categorized --wait 5s

  # Output as JSON
  livetable snapshot categorized --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd, args[0], opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Wait, "wait", 0, "Run sources for this long before printing")
	cmd.Flags().IntVar(&opts.MaxRows, "rows", 0, "Print at most this many rows, the last ones (0 for all)")

	return cmd
}

func runSnapshot(cmd *cobra.Command, name string, opts *SnapshotOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	m, ok := cmdCtx.Pipeline.Model(name)
	if !ok {
		return fmt.Errorf("model not found: %s", name)
	}

	if opts.Wait > 0 {
		ctx, cancel := context.WithTimeout(cmd.Context(), opts.Wait)
		defer cancel()
		cmdCtx.Logger.Debug("running sources", "wait", opts.Wait)
		if err := cmdCtx.Pipeline.Run(ctx); err != nil {
			return err
		}
	}

	snap := m.Snapshot()
	r := cmdCtx.Renderer
	renderOpts := table.RenderOptions{KeyHeader: "key", MaxRows: opts.MaxRows}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		enc := json.NewEncoder(r.Writer())
		enc.SetIndent("", "  ")
		return enc.Encode(output.NewSnapshot(m.Name(), snap))
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, m.Name()))
		r.Println("")
		renderOpts.Markdown = true
		table.Render(r.Writer(), snap, renderOpts)
	default:
		r.Header(1, m.Name())
		table.Render(r.Writer(), snap, renderOpts)
	}
	return nil
}

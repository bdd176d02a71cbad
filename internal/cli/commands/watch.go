package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/leapstack-labs/livetable/internal/sink"
	"github.com/leapstack-labs/livetable/pkg/live"
	"github.com/spf13/cobra"
)

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Duration time.Duration
	MaxRows  int
	Replace  bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [model...]",
		Short: "Run the sources and print model deliveries",
		Long: `Run every source and print the deliveries of the given models as
they happen: patches with the changed cells, streams with the appended
rows and, with --replace, the full table after each update.

Without arguments every model is watched. Stop with Ctrl+C.`,
		Example: `  # Watch every model
  livetable watch

  # Watch one view for ten seconds
  livetable watch categorized --duration 10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().IntVar(&opts.MaxRows, "rows", 0, "Print at most this many rows per delivery (default: terminal height)")
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "Also print the full table after every update")

	return cmd
}

func runWatch(cmd *cobra.Command, names []string, opts *WatchOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	p := cmdCtx.Pipeline
	if len(names) == 0 {
		names = p.Names()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if opts.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	doc := live.NewDocument(ctx, cmdCtx.Logger)
	defer doc.Close()

	w := cmd.OutOrStdout()
	for _, name := range names {
		m, ok := p.Model(name)
		if !ok {
			return fmt.Errorf("model not found: %s", name)
		}
		console := sink.NewConsole[int64](name, w, sink.WithMaxRows(opts.MaxRows))
		defer console.Close()
		m.AttachSink(withoutReplace(console, opts.Replace), doc)
	}

	cmdCtx.Logger.Info("watching models", "models", names)
	return p.Run(ctx)
}

// withoutReplace drops replace deliveries unless keep is set.
func withoutReplace(s *sink.Console[int64], keep bool) live.Sink[int64] {
	if keep {
		return s
	}
	return filteredSink{Console: s}
}

type filteredSink struct {
	*sink.Console[int64]
}

func (f filteredSink) Apply(d live.Delivery[int64]) error {
	if d.Kind == live.KindReplace {
		return nil
	}
	return f.Console.Apply(d)
}

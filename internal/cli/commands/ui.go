package commands

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/leapstack-labs/livetable/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// UIOptions holds options for the ui command.
type UIOptions struct {
	Host      string
	Port      int
	NoBrowser bool
}

// NewUICommand creates the ui command.
func NewUICommand() *cobra.Command {
	opts := &UIOptions{}

	cmd := &cobra.Command{
		Use:     "ui",
		Aliases: []string{"serve"},
		Short:   "Run the sources and serve the models in the browser",
		Long: `Run every source and start a local web server showing the models.

The page lists the models with their row counts and renders the selected
model as a table that follows its patch, stream and replace deliveries.`,
		Example: `  # Start UI on default port
  livetable ui

  # Start on custom port
  livetable ui --port 3000

  # Start without auto-opening browser
  livetable ui --no-browser`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUI(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "", "Host to listen on (default: localhost)")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "Port to serve on (default: 8765)")
	cmd.Flags().BoolVar(&opts.NoBrowser, "no-browser", false, "Don't auto-open browser")

	return cmd
}

func runUI(cmd *cobra.Command, opts *UIOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	// Get UI config with defaults
	uiCfg := cmdCtx.Cfg.GetUIConfig()

	// CLI flags override config file
	host, port := uiCfg.Host, uiCfg.Port
	if opts.Host != "" {
		host = opts.Host
	}
	if opts.Port != 0 {
		port = opts.Port
	}

	server := ui.NewServer(ui.Config{
		Models: cmdCtx.Pipeline,
		Host:   host,
		Port:   port,
		Logger: cmdCtx.Logger,
	})

	url := "http://" + server.Addr()
	if !opts.NoBrowser {
		go openBrowser(url)
	}

	r := cmdCtx.Renderer
	r.Println(fmt.Sprintf("Serving %d models on %s", cmdCtx.Pipeline.NodeCount(), url))
	r.Println("Press Ctrl+C to stop")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cmdCtx.Pipeline.Run(gctx) })
	g.Go(func() error { return server.Serve(gctx) })
	return g.Wait()
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}

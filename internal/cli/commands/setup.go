package commands

import (
	"log/slog"
	"os"

	"github.com/leapstack-labs/livetable/internal/cli/config"
	"github.com/leapstack-labs/livetable/internal/cli/output"
	"github.com/leapstack-labs/livetable/internal/pipeline"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Pipeline *pipeline.Pipeline
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with the configured pipeline
// and a renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	p, err := pipeline.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	cleanup := func() {
		if err := p.Close(); err != nil {
			logger.Warn("closing sources", "error", err)
		}
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Pipeline: p,
		Renderer: r,
	}, cleanup, nil
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to
// defaults with an empty pipeline.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	return &config.Config{
		OutputFormat: getEnvOrDefault("LIVETABLE_OUTPUT", config.DefaultOutput),
		Verbose:      os.Getenv("LIVETABLE_VERBOSE") == "true",
		Optimized:    true,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Package config provides configuration management for the livetable CLI.
//
// A configuration declares the sources feeding root models and the views
// derived from them, plus the ambient settings of the CLI and the UI server.
package config

import "time"

// UIConfig holds configuration for the UI server.
type UIConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// DefaultUIConfig returns a UIConfig with default values.
func DefaultUIConfig() *UIConfig {
	return &UIConfig{
		Host: DefaultUIHost,
		Port: DefaultUIPort,
	}
}

// GetUIConfig returns the UI config with defaults applied for any unset values.
func (c *Config) GetUIConfig() *UIConfig {
	if c.UI == nil {
		return DefaultUIConfig()
	}
	ui := c.UI
	if ui.Port == 0 {
		ui.Port = DefaultUIPort
	}
	return ui
}

// Config holds all CLI configuration options.
type Config struct {
	Verbose      bool           `koanf:"verbose"`
	OutputFormat string         `koanf:"output"`
	Debug        bool           `koanf:"debug"`
	Optimized    bool           `koanf:"optimized"`
	UI           *UIConfig      `koanf:"ui"`
	Sources      []SourceConfig `koanf:"sources"`
	Views        []ViewConfig   `koanf:"views"`

	// BaseDir is the directory relative source paths are resolved against.
	BaseDir string `koanf:"-"`
}

// SourceConfig declares a producer and the root model it feeds.
type SourceConfig struct {
	Name   string        `koanf:"name"`
	Kind   string        `koanf:"kind"`
	Period time.Duration `koanf:"period"`

	// clock
	Window int `koanf:"window"`

	// random, randomwalk
	Seed  uint64 `koanf:"seed"`
	Bound int64  `koanf:"bound"`
	Size  int    `koanf:"size"`

	// file
	Path      string `koanf:"path"`
	Format    string `koanf:"format"`
	KeyColumn string `koanf:"key_column"`

	// sql
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
	Query  string `koanf:"query"`

	// Migrations is a directory of goose migrations applied before the
	// first poll.
	Migrations string `koanf:"migrations"`
}

// ViewConfig declares a model derived from a source or another view.
type ViewConfig struct {
	Name string `koanf:"name"`
	From string `koanf:"from"`
	Kind string `koanf:"kind"`

	// select
	Columns []string `koanf:"columns"`

	// filter
	Column string `koanf:"column"`
	Value  any    `koanf:"value"`

	// cut, starlark: merge the result into a copy of the parent as this column
	Target string `koanf:"target"`

	// cut
	Bins   []float64 `koanf:"bins"`
	Labels []string  `koanf:"labels"`

	// datetime
	Parts []string `koanf:"parts"`

	// starlark
	Script  string         `koanf:"script"`
	Outputs []FieldConfig  `koanf:"outputs"`
	Params  map[string]any `koanf:"params"`

	// MaxSteps bounds the Starlark steps spent on one row, zero for no limit.
	MaxSteps uint64 `koanf:"max_steps"`
}

// FieldConfig declares an output column of a starlark view.
type FieldConfig struct {
	Name string `koanf:"name"`
	Kind string `koanf:"kind"`
}

// Source kinds.
const (
	SourceClock      = "clock"
	SourceRandom     = "random"
	SourceRandomWalk = "randomwalk"
	SourceFile       = "file"
	SourceSQL        = "sql"
)

// View kinds.
const (
	ViewSelect   = "select"
	ViewFilter   = "filter"
	ViewCut      = "cut"
	ViewDatetime = "datetime"
	ViewStarlark = "starlark"
)

// Default configuration values.
const (
	DefaultConfigFile = "livetable.yaml"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultPeriod     = time.Second
	DefaultUIHost     = "localhost"
	DefaultUIPort     = 8765
)

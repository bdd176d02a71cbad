package config

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/leapstack-labs/livetable/pkg/table"
)

// maxRandomBound keeps 2*bound+1 within an int64.
const maxRandomBound = math.MaxInt64 / 2

var (
	sourceKinds = []string{SourceClock, SourceRandom, SourceRandomWalk, SourceFile, SourceSQL}
	viewKinds   = []string{ViewSelect, ViewFilter, ViewCut, ViewDatetime, ViewStarlark}
	outputs     = []string{"auto", "text", "markdown", "json"}
)

// Validate checks if the configuration is valid. Views may only derive from
// sources or from views declared before them.
func (c *Config) Validate() error {
	if c.OutputFormat != "" && !slices.Contains(outputs, c.OutputFormat) {
		return fmt.Errorf("invalid output format %q (valid: %v)", c.OutputFormat, outputs)
	}

	var errs []error
	names := map[string]bool{}
	declare := func(what, name string) {
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("%s without a name", what))
		case names[name]:
			errs = append(errs, fmt.Errorf("%s %q: name already used", what, name))
		}
		names[name] = true
	}

	for _, s := range c.Sources {
		declare("source", s.Name)
		if err := s.validate(); err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", s.Name, err))
		}
	}
	for _, v := range c.Views {
		if v.From != "" && !names[v.From] {
			errs = append(errs, fmt.Errorf("view %q: unknown model %q (views may only use sources and earlier views)", v.Name, v.From))
		}
		declare("view", v.Name)
		if err := v.validate(); err != nil {
			errs = append(errs, fmt.Errorf("view %q: %w", v.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s SourceConfig) validate() error {
	if !slices.Contains(sourceKinds, s.Kind) {
		return fmt.Errorf("unknown kind %q (valid: %v)", s.Kind, sourceKinds)
	}
	if s.Period < 0 {
		return fmt.Errorf("negative period %s", s.Period)
	}
	switch s.Kind {
	case SourceFile:
		if s.Path == "" {
			return errors.New("path is required")
		}
	case SourceSQL:
		if s.Driver == "" || s.DSN == "" || s.Query == "" {
			return errors.New("driver, dsn and query are required")
		}
		if s.Migrations != "" && s.Driver == "duckdb" {
			return errors.New("migrations are not supported for duckdb")
		}
	case SourceRandom:
		if s.Bound > maxRandomBound {
			return fmt.Errorf("bound %d exceeds %d", s.Bound, int64(maxRandomBound))
		}
	case SourceClock, SourceRandomWalk:
	}
	if s.Kind != SourceSQL && s.Migrations != "" {
		return errors.New("migrations only apply to sql sources")
	}
	return nil
}

func (v ViewConfig) validate() error {
	if v.From == "" {
		return errors.New("from is required")
	}
	switch v.Kind {
	case ViewSelect:
		if len(v.Columns) == 0 {
			return errors.New("columns are required")
		}
	case ViewFilter:
		if v.Column == "" {
			return errors.New("column is required")
		}
	case ViewCut:
		if v.Column == "" {
			return errors.New("column is required")
		}
		if len(v.Bins) < 2 || len(v.Labels) != len(v.Bins)-1 {
			return fmt.Errorf("need at least two bins and one label per interval, got %d bins and %d labels", len(v.Bins), len(v.Labels))
		}
		if !slices.IsSorted(v.Bins) {
			return errors.New("bins must be increasing")
		}
	case ViewDatetime:
		if v.Column == "" || len(v.Parts) == 0 {
			return errors.New("column and parts are required")
		}
	case ViewStarlark:
		if v.Script == "" || len(v.Outputs) == 0 {
			return errors.New("script and outputs are required")
		}
		for _, f := range v.Outputs {
			if _, err := table.ParseKind(f.Kind); f.Kind != "" && err != nil {
				return fmt.Errorf("output %q: %w", f.Name, err)
			}
		}
	default:
		return fmt.Errorf("unknown kind %q (valid: %v)", v.Kind, viewKinds)
	}
	return nil
}

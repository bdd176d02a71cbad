// Package pipeline assembles live models from configuration: one root model
// per source and one derived model per view.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/livetable/internal/cli/config"
	"github.com/leapstack-labs/livetable/internal/source"
	starctx "github.com/leapstack-labs/livetable/internal/starlark"
	"github.com/leapstack-labs/livetable/pkg/live"
	"github.com/leapstack-labs/livetable/pkg/table"
	"golang.org/x/sync/errgroup"
)

// Node is a model of the pipeline.
type Node struct {
	Name  string
	Kind  string // source or view kind
	From  string // parent model, empty for sources
	Model *live.Model[int64]
}

// Pipeline owns the models built from a configuration and the sources
// feeding them.
type Pipeline struct {
	id      string
	logger  *slog.Logger
	nodes   map[string]*Node
	order   []string
	roots   []string
	sources map[string]source.Source
}

// Build creates every source and view declared in cfg. Root models hold the
// initial snapshot of their source.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Pipeline{
		id:      uuid.NewString(),
		nodes:   map[string]*Node{},
		sources: map[string]source.Source{},
	}
	p.logger = logger.With("pipeline", p.id)

	opts := []live.Option{
		live.WithDebug(cfg.Debug),
		live.WithOptimized(cfg.Optimized),
		live.WithLogger(p.logger),
	}

	for _, sc := range cfg.Sources {
		src, err := newSource(ctx, sc, p.logger)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.sources[sc.Name] = src
		initial, err := src.Initial(ctx)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("source %q: initial snapshot: %w", sc.Name, err)
		}
		m, err := live.New(sc.Name, initial, opts...)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("source %q: %w", sc.Name, err)
		}
		p.add(&Node{Name: sc.Name, Kind: sc.Kind, Model: m})
		p.roots = append(p.roots, sc.Name)
	}

	for _, vc := range cfg.Views {
		parent, ok := p.nodes[vc.From]
		if !ok {
			_ = p.Close()
			return nil, fmt.Errorf("view %q: unknown model %q", vc.Name, vc.From)
		}
		m, err := derive(parent.Model, vc, p.logger)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("view %q: %w", vc.Name, err)
		}
		p.add(&Node{Name: vc.Name, Kind: vc.Kind, From: vc.From, Model: m})
	}

	p.logger.Debug("pipeline built", "sources", len(p.roots), "models", len(p.order))
	return p, nil
}

func (p *Pipeline) add(n *Node) {
	p.nodes[n.Name] = n
	p.order = append(p.order, n.Name)
}

func newSource(ctx context.Context, sc config.SourceConfig, logger *slog.Logger) (source.Source, error) {
	period := sc.Period
	if period == 0 {
		period = config.DefaultPeriod
	}
	switch sc.Kind {
	case config.SourceClock:
		return source.NewClock(sc.Name, period, source.WithWindow(sc.Window)), nil
	case config.SourceRandom:
		r, err := source.NewRandom(sc.Name, period, sc.Bound, seed(sc.Seed))
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.SourceRandomWalk:
		return source.NewRandomWalk(sc.Name, period, sc.Size, seed(sc.Seed)), nil
	case config.SourceFile:
		return source.NewFile(sc.Name, sc.Path,
			source.WithFormat(sc.Format),
			source.WithKeyColumn(sc.KeyColumn),
			source.WithFileLogger(logger.With("source", sc.Name)))
	case config.SourceSQL:
		q, err := source.OpenQuery(sc.Name, sc.Driver, sc.DSN, sc.Query, period)
		if err != nil {
			return nil, err
		}
		if sc.Migrations != "" {
			if err := q.Migrate(ctx, os.DirFS(sc.Migrations)); err != nil {
				_ = q.Close()
				return nil, err
			}
			logger.Debug("migrations applied", "source", sc.Name, "dir", sc.Migrations)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("source %q: unknown kind %q", sc.Name, sc.Kind)
	}
}

// seed returns s, or a time based seed when s is zero.
func seed(s uint64) uint64 {
	if s == 0 {
		return uint64(time.Now().UnixNano())
	}
	return s
}

func derive(parent *live.Model[int64], vc config.ViewConfig, logger *slog.Logger) (*live.Model[int64], error) {
	name := live.WithName(vc.Name)
	switch vc.Kind {
	case config.ViewSelect:
		return parent.Select(vc.Columns, name)

	case config.ViewFilter:
		return parent.Filter(vc.Column, vc.Value, name)

	case config.ViewCut:
		target := vc.Target
		if target == "" {
			target = "category"
		}
		return parent.Relate(live.TransformID("cut:"+vc.Name), Cut(vc.Column, vc.Bins, vc.Labels),
			name, live.WithTargetColumn(target))

	case config.ViewDatetime:
		fields, err := DatetimeFields(vc.Parts)
		if err != nil {
			return nil, err
		}
		return parent.Apply(live.TransformID("datetime:"+vc.Name), fields, Datetime(vc.Column, vc.Parts), name)

	case config.ViewStarlark:
		outputs := make([]table.Field, len(vc.Outputs))
		for i, f := range vc.Outputs {
			kind := table.KindAny
			if f.Kind != "" {
				k, err := table.ParseKind(f.Kind)
				if err != nil {
					return nil, err
				}
				kind = k
			}
			outputs[i] = table.Field{Name: f.Name, Kind: kind}
		}
		prog, err := starctx.Compile(vc.Name, vc.Script, outputs,
			starctx.WithView(&starctx.ViewInfo{Name: vc.Name, Source: vc.From}),
			starctx.WithParams(vc.Params),
			starctx.WithMaxSteps(vc.MaxSteps),
			starctx.WithLogger(logger.With("view", vc.Name)))
		if err != nil {
			return nil, err
		}
		id := live.TransformID("starlark:" + vc.Name)
		if vc.Target != "" {
			return parent.Relate(id, starctx.TableFunc[int64](prog), name, live.WithTargetColumn(vc.Target))
		}
		return parent.Apply(id, outputs, starctx.RowFunc[int64](prog), name)

	default:
		return nil, fmt.Errorf("unknown kind %q", vc.Kind)
	}
}

// ID returns the pipeline instance id.
func (p *Pipeline) ID() string { return p.id }

// Model returns the model named name.
func (p *Pipeline) Model(name string) (*live.Model[int64], bool) {
	n, ok := p.nodes[name]
	if !ok {
		return nil, false
	}
	return n.Model, true
}

// Nodes returns every model in declaration order, sources first.
func (p *Pipeline) Nodes() []*Node {
	out := make([]*Node, len(p.order))
	for i, name := range p.order {
		out[i] = p.nodes[name]
	}
	return out
}

// Names returns the model names in declaration order.
func (p *Pipeline) Names() []string { return append([]string(nil), p.order...) }

// Levels groups model names by derivation depth across all sources.
func (p *Pipeline) Levels() ([][]string, error) {
	var out [][]string
	for _, root := range p.roots {
		levels, err := p.nodes[root].Model.Levels()
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", root, err)
		}
		for i, level := range levels {
			if i == len(out) {
				out = append(out, nil)
			}
			out[i] = append(out[i], level...)
		}
	}
	for _, level := range out {
		sort.Strings(level)
	}
	return out, nil
}

// GetParents returns the model name derives from.
func (p *Pipeline) GetParents(name string) []string {
	if n, ok := p.nodes[name]; ok && n.From != "" {
		return []string{n.From}
	}
	return nil
}

// GetChildren returns the models derived directly from name.
func (p *Pipeline) GetChildren(name string) []string {
	var children []string
	for _, n := range p.Nodes() {
		if n.From == name {
			children = append(children, n.Name)
		}
	}
	return children
}

// NodeCount returns the number of models.
func (p *Pipeline) NodeCount() int { return len(p.order) }

// EdgeCount returns the number of derivations.
func (p *Pipeline) EdgeCount() int { return len(p.order) - len(p.roots) }

// Run feeds every root model from its source until ctx is done or a source
// fails.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, root := range p.roots {
		src, m := p.sources[root], p.nodes[root].Model
		g.Go(func() error {
			return source.Feed(gctx, src, m, p.logger)
		})
	}
	return g.Wait()
}

// Close releases the resources held by sources.
func (p *Pipeline) Close() error {
	var errs []error
	for name, src := range p.sources {
		if c, ok := src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("source %q: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

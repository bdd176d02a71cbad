// Package live keeps render destinations synchronized with a continuously
// replaced table snapshot.
//
// A Model owns the current snapshot of a table. Every call to Update
// validates the new snapshot, recomputes the models derived from this one,
// classifies the change into appended rows (stream) and changed cells
// (patch), and schedules those instructions, followed by a full replace, on
// the document of every attached sink. All of that happens synchronously on
// the caller's goroutine except the deliveries themselves, which run later on
// each sink's Document.
//
// Updates to one model must be serialized by the caller. Reads (Snapshot,
// Name) and sink registration are safe from any goroutine.
package live

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/leapstack-labs/livetable/pkg/diff"
	"github.com/leapstack-labs/livetable/pkg/table"
)

// Model is a live table.
type Model[K comparable] struct {
	id        string
	optimized bool
	logger    *slog.Logger

	mu    sync.RWMutex
	name  string
	debug bool
	data  *table.Table[K]

	sinks sinkRegistry[K]
	deps  dependencies[K]

	tree     *lineage
	depth    int
	upstream *Model[K] // keeps the parent alive while a derived model is referenced
}

// Option configures a Model.
type Option func(*options)

type options struct {
	debug     bool
	optimized bool
	logger    *slog.Logger
}

// WithDebug turns on diagnostic output of detected patches and streams.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// WithOptimized controls patch and stream detection. When false, sinks only
// receive full replaces.
func WithOptimized(optimized bool) Option {
	return func(o *options) { o.optimized = optimized }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{optimized: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// New creates a model holding data. data keys must be unique.
func New[K comparable](name string, data *table.Table[K], opts ...Option) (*Model[K], error) {
	m, err := newModel(name, data, buildOptions(opts))
	if err != nil {
		return nil, err
	}
	m.tree = newLineage(m.id, name)
	return m, nil
}

func newModel[K comparable](name string, data *table.Table[K], o options) (*Model[K], error) {
	if data == nil {
		return nil, ErrNilSnapshot
	}
	if dups := data.DuplicateKeys(); len(dups) > 0 {
		return nil, nonUniqueKeys(name, dups)
	}
	return &Model[K]{
		id:        uuid.NewString(),
		optimized: o.optimized,
		logger:    o.logger,
		name:      name,
		debug:     o.debug,
		data:      data,
		deps:      dependencies[K]{edges: map[string]*edge[K]{}},
	}, nil
}

// ID returns the unique model identifier.
func (m *Model[K]) ID() string { return m.id }

// Name returns the model name.
func (m *Model[K]) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// Debug reports whether diagnostic output is on.
func (m *Model[K]) Debug() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.debug
}

// Optimized reports whether patch and stream detection runs.
func (m *Model[K]) Optimized() bool { return m.optimized }

// Snapshot returns the current table. The returned table must not be modified.
func (m *Model[K]) Snapshot() *table.Table[K] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// Columns returns the current column names.
func (m *Model[K]) Columns() []string { return m.Snapshot().Names() }

// AttachSink registers s. Deliveries to s run on doc. Attaching the same sink
// twice registers it twice.
func (m *Model[K]) AttachSink(s Sink[K], doc *Document) SinkHandle {
	h := m.sinks.attach(s, doc)
	m.logger.Debug("sink attached", "model", m.Name(), "sink", int(h), "document", doc.ID())
	return h
}

// DetachSink stops deliveries to the registration h. It reports whether h was
// attached.
func (m *Model[K]) DetachSink(h SinkHandle) bool {
	return m.sinks.detach(h)
}

// LiveSinks returns the number of registrations that would currently accept
// a delivery.
func (m *Model[K]) LiveSinks() int { return m.sinks.liveCount() }

// PruneSinks drops the registrations that are detached, whose document is
// closed or whose sink reports it is no longer attached. It returns the
// number dropped. Handles of the remaining sinks are unchanged.
func (m *Model[K]) PruneSinks() int { return m.sinks.prune() }

// Sinks returns the number of registrations, live or not.
func (m *Model[K]) Sinks() int { return m.sinks.size() }

// Levels returns the names of the models of this model's derivation tree,
// grouped by propagation level.
func (m *Model[K]) Levels() ([][]string, error) { return m.tree.levels() }

// Downstream returns the names of every model derived from this one.
func (m *Model[K]) Downstream() []string { return m.tree.downstream(m.id) }

// updateConfig holds the metadata changes requested with an update.
type updateConfig struct {
	name  *string
	debug *bool
}

// UpdateOpt adjusts model metadata as part of Update.
type UpdateOpt func(*updateConfig)

// Rename renames the model.
func Rename(name string) UpdateOpt {
	return func(c *updateConfig) { c.name = &name }
}

// SetDebug changes the debug flag.
func SetDebug(debug bool) UpdateOpt {
	return func(c *updateConfig) { c.debug = &debug }
}

// Update replaces the snapshot with next.
//
// In order: metadata options are applied; next's keys are checked for
// uniqueness (NonUniqueKeyError, nothing else happens); every derived model is
// recomputed from next, depth first (TransformError aborts the update before
// this model's snapshot or sinks are touched); when optimized, patch and
// stream deliveries are scheduled; the snapshot is replaced; a replace
// delivery is scheduled. On error the returned model is nil and the snapshot
// is unchanged.
func (m *Model[K]) Update(next *table.Table[K], opts ...UpdateOpt) (*Model[K], error) {
	var cfg updateConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	m.applyMetadata(cfg)

	if next == nil {
		return nil, ErrNilSnapshot
	}
	name := m.Name()
	if dups := next.DuplicateKeys(); len(dups) > 0 {
		return nil, nonUniqueKeys(name, dups)
	}

	if err := m.propagate(next); err != nil {
		return nil, err
	}

	prev := m.Snapshot()
	if m.optimized {
		m.scheduleChanges(name, prev, next)
	}

	m.mu.Lock()
	m.data = next
	m.mu.Unlock()

	m.sinks.schedule(m.logger, Delivery[K]{Model: name, Kind: KindReplace, Table: next})
	return m, nil
}

func (m *Model[K]) applyMetadata(cfg updateConfig) {
	m.mu.Lock()
	if cfg.name != nil {
		m.name = *cfg.name
	}
	if cfg.debug != nil {
		m.debug = *cfg.debug
	}
	name := m.name
	m.mu.Unlock()
	if cfg.name != nil {
		m.tree.rename(m.id, name)
	}
}

func (m *Model[K]) scheduleChanges(name string, prev, next *table.Table[K]) {
	changes := diff.Compute(prev, next)

	if !changes.Patch.Empty() {
		m.report("patch update", next, changes.Patch.Keys)
		m.sinks.schedule(m.logger, Delivery[K]{Model: name, Kind: KindPatch, Patch: changes.Patch})
	}
	if changes.Streamable() {
		m.report("stream update", next, changes.Stream.Keys())
		m.sinks.schedule(m.logger, Delivery[K]{Model: name, Kind: KindStream, Table: changes.Stream})
	}
	if len(changes.Removed) > 0 {
		m.logger.Debug("rows removed", "model", name, "rows", len(changes.Removed))
	}
}

// report logs a detected change, with the affected rows rendered as a table
// when the debug flag is on.
func (m *Model[K]) report(msg string, next *table.Table[K], keys []K) {
	if !m.Debug() {
		m.logger.Debug(msg, "model", m.Name(), "rows", len(keys))
		return
	}
	positions := make([]int, 0, len(keys))
	for _, k := range keys {
		if p, ok := next.Position(k); ok {
			positions = append(positions, p)
		}
	}
	rendered := table.Sprint(next.Take(positions), table.RenderOptions{})
	m.logger.Info(msg, "model", m.Name(), "rows", len(keys), "table", "\n"+rendered)
}

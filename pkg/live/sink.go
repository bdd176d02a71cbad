package live

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/livetable/pkg/diff"
	"github.com/leapstack-labs/livetable/pkg/table"
)

// DeliveryKind is the kind of update instruction pushed to a sink.
type DeliveryKind uint8

// Delivery kinds.
const (
	KindPatch DeliveryKind = iota + 1
	KindStream
	KindReplace
)

func (k DeliveryKind) String() string {
	switch k {
	case KindPatch:
		return "patch"
	case KindStream:
		return "stream"
	case KindReplace:
		return "replace"
	default:
		return fmt.Sprintf("delivery(%d)", uint8(k))
	}
}

// Delivery is one update instruction. Patch is set for KindPatch, Table holds
// the appended rows for KindStream and the full snapshot for KindReplace.
type Delivery[K comparable] struct {
	Model string
	Kind  DeliveryKind
	Patch diff.Patch[K]
	Table *table.Table[K]
}

// Sink is an external render destination. The model never owns a sink: it
// keeps a reference and asks Attached at delivery time.
type Sink[K comparable] interface {
	// Attached reports whether the sink still renders somewhere.
	Attached() bool
	// Apply applies one delivery to the sink's own state.
	Apply(Delivery[K]) error
}

// SinkFunc adapts a function to a Sink that is always attached.
type SinkFunc[K comparable] func(Delivery[K]) error

// Attached implements Sink.
func (f SinkFunc[K]) Attached() bool { return true }

// Apply implements Sink.
func (f SinkFunc[K]) Apply(d Delivery[K]) error { return f(d) }

// SinkHandle identifies one sink registration on a model.
type SinkHandle int

type sinkEntry[K comparable] struct {
	handle   SinkHandle
	sink     Sink[K]
	doc      *Document
	detached atomic.Bool
}

func (e *sinkEntry[K]) live() bool {
	return !e.detached.Load() && !e.doc.Closed() && e.sink.Attached()
}

// sinkRegistry holds registrations in attach order. Detaching only flips a
// flag; entries leave the registry when pruned.
type sinkRegistry[K comparable] struct {
	mu       sync.Mutex
	next     SinkHandle
	entries  []*sinkEntry[K]
	byHandle map[SinkHandle]*sinkEntry[K]
}

func (r *sinkRegistry[K]) attach(s Sink[K], doc *Document) SinkHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byHandle == nil {
		r.byHandle = make(map[SinkHandle]*sinkEntry[K])
	}
	e := &sinkEntry[K]{handle: r.next, sink: s, doc: doc}
	r.next++
	r.entries = append(r.entries, e)
	r.byHandle[e.handle] = e
	return e.handle
}

func (r *sinkRegistry[K]) detach(h SinkHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byHandle[h]
	if !ok {
		return false
	}
	return !e.detached.Swap(true)
}

// prune removes the registrations that are no longer live and returns how
// many were removed. Their handles stay unused.
func (r *sinkRegistry[K]) prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	r.entries = slices.DeleteFunc(r.entries, func(e *sinkEntry[K]) bool {
		if e.live() {
			return false
		}
		delete(r.byHandle, e.handle)
		return true
	})
	return n - len(r.entries)
}

func (r *sinkRegistry[K]) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *sinkRegistry[K]) snapshot() []*sinkEntry[K] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*sinkEntry[K](nil), r.entries...)
}

func (r *sinkRegistry[K]) liveCount() int {
	n := 0
	for _, e := range r.snapshot() {
		if e.live() {
			n++
		}
	}
	return n
}

// schedule queues d on the document of every registration that is still
// live. Liveness is checked again when the callback runs.
func (r *sinkRegistry[K]) schedule(logger *slog.Logger, d Delivery[K]) int {
	scheduled := 0
	for _, e := range r.snapshot() {
		if e.detached.Load() {
			continue
		}
		if e.doc.AddNextTickCallback(func() { e.deliver(logger, d) }) {
			scheduled++
		}
	}
	return scheduled
}

func (e *sinkEntry[K]) deliver(logger *slog.Logger, d Delivery[K]) {
	if !e.live() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logDeliveryError(logger, &DeliveryError{
				Model: d.Model, Sink: e.handle, Kind: d.Kind, Err: fmt.Errorf("panic: %v", r),
			})
		}
	}()
	if err := e.sink.Apply(d); err != nil {
		logDeliveryError(logger, &DeliveryError{Model: d.Model, Sink: e.handle, Kind: d.Kind, Err: err})
	}
}

func logDeliveryError(logger *slog.Logger, err *DeliveryError) {
	logger.Warn("delivery failed", "model", err.Model, "sink", int(err.Sink), "kind", err.Kind.String(), "error", err.Err)
}

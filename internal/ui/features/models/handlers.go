package models

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/livetable/internal/cli/output"
	"github.com/leapstack-labs/livetable/internal/ui/notifier"
	"github.com/leapstack-labs/livetable/pkg/live"
	"github.com/starfederation/datastar-go/datastar"
)

// Handlers provides HTTP handlers for the models feature.
type Handlers struct {
	catalog  Catalog
	notifier *notifier.Notifier
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(catalog Catalog, notify *notifier.Notifier, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{catalog: catalog, notifier: notify, logger: logger}
}

// ListModels returns a summary of every model.
func (h *Handlers) ListModels(w http.ResponseWriter, _ *http.Request) {
	nodes := h.catalog.Nodes()
	infos := make([]output.ModelInfo, 0, len(nodes))
	for _, n := range nodes {
		snap := n.Model.Snapshot()
		infos = append(infos, output.ModelInfo{
			Name:    n.Name,
			Kind:    n.Kind,
			From:    n.From,
			Columns: snap.Names(),
			Rows:    snap.Len(),
		})
	}
	writeJSON(w, infos)
}

// Snapshot returns the current table of one model.
func (h *Handlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, ok := h.catalog.Model(name)
	if !ok {
		http.Error(w, "model not found: "+name, http.StatusNotFound)
		return
	}
	writeJSON(w, output.NewSnapshot(name, m.Snapshot()))
}

// ModelUpdates streams the deliveries of one model. The first event is a
// replace with the snapshot at connect time.
func (h *Handlers) ModelUpdates(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, ok := h.catalog.Model(name)
	if !ok {
		http.Error(w, "model not found: "+name, http.StatusNotFound)
		return
	}

	sse := datastar.NewSSE(w, r)
	doc := live.NewDocument(r.Context(), h.logger)
	defer doc.Close()

	sink := newSignalSink(name, sse)
	defer sink.Close()
	handle := m.AttachSink(sink, doc)
	defer func() {
		m.DetachSink(handle)
		if n := m.PruneSinks(); n > 0 {
			h.logger.Debug("sinks pruned", "model", name, "count", n)
		}
	}()

	// Scheduled on the document so it is ordered with the deliveries.
	doc.AddNextTickCallback(func() {
		initial := live.Delivery[int64]{Model: name, Kind: live.KindReplace, Table: m.Snapshot()}
		if err := sink.Apply(initial); err != nil {
			h.logger.Debug("initial snapshot not sent", "model", name, "error", err)
		}
	})

	<-doc.Done()
}

// StatsUpdates streams row counts of every model, starting with the
// current ones.
func (h *Handlers) StatsUpdates(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	updates := h.notifier.Subscribe()
	defer h.notifier.Unsubscribe(updates)

	initial := map[string]modelStats{}
	for _, n := range h.catalog.Nodes() {
		initial[n.Name] = modelStats{Rows: n.Model.Snapshot().Len(), Kind: n.Kind}
	}
	if err := sse.MarshalAndPatchSignals(statsSignals{Stats: initial}); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-updates:
			if !ok {
				return
			}
			stats := map[string]modelStats{ev.Model: {Rows: ev.Rows, Kind: ev.Kind, At: ev.At.UnixMilli()}}
			if err := sse.MarshalAndPatchSignals(statsSignals{Stats: stats}); err != nil {
				_ = sse.ConsoleError(err)
				return
			}
		}
	}
}

type statsSignals struct {
	Stats map[string]modelStats `json:"stats"`
}

type modelStats struct {
	Rows int    `json:"rows"`
	Kind string `json:"kind"`
	At   int64  `json:"at,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

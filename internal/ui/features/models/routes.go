// Package models serves live model snapshots and their update streams.
package models

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/livetable/internal/pipeline"
	"github.com/leapstack-labs/livetable/internal/ui/notifier"
	"github.com/leapstack-labs/livetable/pkg/live"
)

// Catalog is the set of models the UI can show.
type Catalog interface {
	Nodes() []*pipeline.Node
	Model(name string) (*live.Model[int64], bool)
}

// SetupRoutes registers model routes on the router.
func SetupRoutes(router chi.Router, catalog Catalog, notify *notifier.Notifier, logger *slog.Logger) error {
	handlers := NewHandlers(catalog, notify, logger)

	router.Route("/api", func(r chi.Router) {
		r.Get("/models", handlers.ListModels)
		r.Get("/models/{name}", handlers.Snapshot)

		// SSE routes (long-lived streams)
		r.Get("/models/{name}/updates", handlers.ModelUpdates)
		r.Get("/updates", handlers.StatsUpdates)
	})

	return nil
}

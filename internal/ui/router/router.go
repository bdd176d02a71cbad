// Package router sets up HTTP routes for the UI server.
package router

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	modelsFeature "github.com/leapstack-labs/livetable/internal/ui/features/models"
	"github.com/leapstack-labs/livetable/internal/ui/notifier"
	"github.com/leapstack-labs/livetable/internal/ui/resources"
	"github.com/starfederation/datastar-go/datastar"
)

// SetupRoutes configures all routes for the UI server.
func SetupRoutes(
	router chi.Router,
	catalog modelsFeature.Catalog,
	notify *notifier.Notifier,
	logger *slog.Logger,
	isDev bool,
) error {
	if isDev {
		rl := newReloader()
		router.Get("/reload", rl.stream)
		router.Get("/hotreload", rl.trigger)
	}

	router.Handle("/static/*", resources.Handler())
	router.Handle("/", resources.IndexHandler(resources.FS()))

	return modelsFeature.SetupRoutes(router, catalog, notify, logger)
}

// reloader asks every page connected to /reload to reload itself. The first
// connection after startup reloads right away so a rebuilt server picks up
// fresh assets.
type reloader struct {
	mu    sync.Mutex
	wait  chan struct{}
	pages int
	first sync.Once
}

func newReloader() *reloader {
	return &reloader{wait: make(chan struct{})}
}

// next returns the channel closed by the next trigger.
func (rl *reloader) next() <-chan struct{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.wait
}

func (rl *reloader) connected(delta int) {
	rl.mu.Lock()
	rl.pages += delta
	rl.mu.Unlock()
}

func (rl *reloader) stream(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	reload := func() error { return sse.ExecuteScript("window.location.reload()") }

	var err error
	rl.first.Do(func() { err = reload() })
	if err != nil {
		return
	}

	rl.connected(1)
	defer rl.connected(-1)
	for {
		select {
		case <-rl.next():
			if err := reload(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (rl *reloader) trigger(w http.ResponseWriter, _ *http.Request) {
	rl.mu.Lock()
	close(rl.wait)
	rl.wait = make(chan struct{})
	pages := rl.pages
	rl.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK %d\n", pages)
}

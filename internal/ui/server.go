// Package ui serves live models to the browser.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	modelsFeature "github.com/leapstack-labs/livetable/internal/ui/features/models"
	"github.com/leapstack-labs/livetable/internal/ui/notifier"
	"github.com/leapstack-labs/livetable/internal/ui/resources"
	"github.com/leapstack-labs/livetable/internal/ui/router"
	"github.com/leapstack-labs/livetable/pkg/live"
	"golang.org/x/sync/errgroup"
)

// Server is the main UI server.
type Server struct {
	catalog  modelsFeature.Catalog
	host     string
	port     int
	logger   *slog.Logger
	notifier *notifier.Notifier
}

// Config holds configuration for the UI server.
type Config struct {
	Models modelsFeature.Catalog
	Host   string
	Port   int
	Logger *slog.Logger
}

// NewServer creates a new UI server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		catalog:  cfg.Models,
		host:     cfg.Host,
		port:     cfg.Port,
		logger:   logger,
		notifier: notifier.New(),
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, fmt.Sprint(s.port))
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() (http.Handler, error) {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
	)
	if s.IsDev() {
		r.Use(middleware.Logger)
	}

	if err := router.SetupRoutes(r, s.catalog, s.notifier, s.logger, s.IsDev()); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	return r, nil
}

// Serve starts the UI server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until the context is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting UI server", "addr", "http://"+ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	handler, err := s.Handler()
	if err != nil {
		_ = ln.Close()
		return err
	}

	// Model stats for /api/updates, delivered on a server-wide document.
	doc := live.NewDocument(egctx, s.logger)
	defer doc.Close()
	for _, n := range s.catalog.Nodes() {
		notifier.Watch(s.notifier, n.Model, doc)
	}

	srv := &http.Server{
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start HTTP server
	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down UI server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// IsDev returns true when static assets are served from disk.
func (s *Server) IsDev() bool {
	return resources.Dev
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

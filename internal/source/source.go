// Package source provides producers that feed root live models with
// successive snapshots.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/livetable/pkg/live"
	"github.com/leapstack-labs/livetable/pkg/table"
)

// Key is the row key type of every produced table.
type Key = int64

// Source produces successive snapshots of one root model.
type Source interface {
	// Name is the name of the root model.
	Name() string
	// Initial returns the snapshot the model is created with.
	Initial(ctx context.Context) (*table.Table[Key], error)
	// Run calls push with every new snapshot until ctx is done or producing
	// fails. push is never called concurrently.
	Run(ctx context.Context, push func(*table.Table[Key]) error) error
}

// ErrStopped is returned by a push function to make Run return.
var ErrStopped = errors.New("source stopped")

// Feed runs src and updates m with every snapshot it produces. A failed
// update is logged and the source keeps running. Feed is the only writer of m.
// Stopping because ctx is done is not an error.
func Feed(ctx context.Context, src Source, m *live.Model[Key], logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("source", src.Name())
	logger.Debug("source started")

	err := src.Run(ctx, func(next *table.Table[Key]) error {
		if _, err := m.Update(next); err != nil {
			logger.Warn("update rejected", "model", m.Name(), "error", err)
		}
		return nil
	})
	if err == nil || errors.Is(err, ErrStopped) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		logger.Debug("source stopped")
		return nil
	}
	return fmt.Errorf("source %q: %w", src.Name(), err)
}

// tick calls next every period and pushes its result. A failing next is
// returned, a nil table is skipped.
func tick(ctx context.Context, period time.Duration, next func(time.Time) (*table.Table[Key], error), push func(*table.Table[Key]) error) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %s", period)
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			t, err := next(now)
			if err != nil {
				return err
			}
			if t == nil {
				continue
			}
			if err := push(t); err != nil {
				return err
			}
		}
	}
}

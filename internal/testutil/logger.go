// Package testutil holds logging helpers shared by package tests.
package testutil

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

// NewTestLogger returns a debug level logger writing through t.Log, so its
// output shows only for failing tests or with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(tbWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type tbWriter struct {
	t testing.TB
}

func (w tbWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// Recorder is a slog.Handler keeping every record it handles, for tests
// asserting on what a component logs instead of returning. Attributes and
// groups added through With are dropped.
type Recorder struct {
	mu      sync.Mutex
	records []slog.Record
}

// NewRecorder returns a recorder and a logger writing to it.
func NewRecorder() (*Recorder, *slog.Logger) {
	r := &Recorder{}
	return r, slog.New(r)
}

// Enabled implements slog.Handler.
func (r *Recorder) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec.Clone())
	return nil
}

// WithAttrs implements slog.Handler.
func (r *Recorder) WithAttrs([]slog.Attr) slog.Handler { return r }

// WithGroup implements slog.Handler.
func (r *Recorder) WithGroup(string) slog.Handler { return r }

// Records returns the records logged at level or above, oldest first.
func (r *Recorder) Records(level slog.Level) []slog.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []slog.Record
	for _, rec := range r.records {
		if rec.Level >= level {
			out = append(out, rec)
		}
	}
	return out
}

// Find returns the first record with message msg.
func (r *Recorder) Find(msg string) (slog.Record, bool) {
	for _, rec := range r.Records(slog.LevelDebug) {
		if rec.Message == msg {
			return rec, true
		}
	}
	return slog.Record{}, false
}

// FindFor returns the first record with message msg whose model attribute
// is model.
func (r *Recorder) FindFor(msg, model string) (slog.Record, bool) {
	for _, rec := range r.Records(slog.LevelDebug) {
		if rec.Message != msg {
			continue
		}
		if v, ok := Attr(rec, "model"); ok && v.String() == model {
			return rec, true
		}
	}
	return slog.Record{}, false
}

// Attr returns the value of the top level attribute key of rec.
func Attr(rec slog.Record, key string) (slog.Value, bool) {
	var (
		v     slog.Value
		found bool
	)
	rec.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			v, found = a.Value, true
			return false
		}
		return true
	})
	return v, found
}

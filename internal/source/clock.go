package source

import (
	"context"
	"sync"
	"time"

	"github.com/leapstack-labs/livetable/pkg/table"
)

// Clock appends one row holding the tick time per period. Rows are keyed by
// unix milliseconds. When Window is positive only the last Window rows are
// kept.
type Clock struct {
	name   string
	period time.Duration
	window int
	now    func() time.Time

	mu    sync.Mutex
	keys  []Key
	times []any
}

// ClockOption configures a Clock.
type ClockOption func(*Clock)

// WithWindow keeps only the last n ticks.
func WithWindow(n int) ClockOption {
	return func(c *Clock) { c.window = n }
}

// WithNow sets the time source of the initial row.
func WithNow(now func() time.Time) ClockOption {
	return func(c *Clock) { c.now = now }
}

// NewClock returns a clock source.
func NewClock(name string, period time.Duration, opts ...ClockOption) *Clock {
	c := &Clock{name: name, period: period, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Source.
func (c *Clock) Name() string { return c.name }

// Initial implements Source. It holds the current time.
func (c *Clock) Initial(context.Context) (*table.Table[Key], error) {
	return c.Tick(c.now()), nil
}

// Run implements Source.
func (c *Clock) Run(ctx context.Context, push func(*table.Table[Key]) error) error {
	return tick(ctx, c.period, func(now time.Time) (*table.Table[Key], error) {
		return c.Tick(now), nil
	}, push)
}

// Tick records now and returns the resulting table. A tick within the same
// millisecond as the previous one is dropped.
func (c *Clock) Tick(now time.Time) *table.Table[Key] {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := now.UnixMilli()
	if n := len(c.keys); n == 0 || c.keys[n-1] < key {
		c.keys = append(c.keys, key)
		c.times = append(c.times, now)
	}
	if c.window > 0 && len(c.keys) > c.window {
		drop := len(c.keys) - c.window
		c.keys = append([]Key(nil), c.keys[drop:]...)
		c.times = append([]any(nil), c.times[drop:]...)
	}
	return table.MustNew(c.keys,
		table.MustColumn("datetime", table.KindTime, c.times...))
}

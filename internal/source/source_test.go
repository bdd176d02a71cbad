package source

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/livetable/internal/testutil"
	"github.com/leapstack-labs/livetable/pkg/live"
	"github.com/leapstack-labs/livetable/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted pushes a fixed list of tables and stops.
type scripted struct {
	tables []*table.Table[Key]
	err    error
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Initial(context.Context) (*table.Table[Key], error) {
	return s.tables[0], nil
}

func (s *scripted) Run(_ context.Context, push func(*table.Table[Key]) error) error {
	for _, t := range s.tables[1:] {
		if err := push(t); err != nil {
			return err
		}
	}
	if s.err != nil {
		return s.err
	}
	return ErrStopped
}

func ints(keys []Key, vals ...any) *table.Table[Key] {
	return table.MustNew(keys, table.MustColumn("v", table.KindInt, vals...))
}

func TestFeed(t *testing.T) {
	src := &scripted{tables: []*table.Table[Key]{
		ints([]Key{1}, 1),
		ints([]Key{1, 1}, 1, 2), // rejected, duplicate key
		ints([]Key{1, 2}, 1, 2),
	}}
	initial, err := src.Initial(context.Background())
	require.NoError(t, err)
	m, err := live.New(src.Name(), initial)
	require.NoError(t, err)

	require.NoError(t, Feed(context.Background(), src, m, testutil.NewTestLogger(t)))
	assert.True(t, src.tables[2].Equal(m.Snapshot()))
}

func TestFeed_Error(t *testing.T) {
	boom := errors.New("boom")
	src := &scripted{tables: []*table.Table[Key]{ints([]Key{1}, 1)}, err: boom}
	m, err := live.New(src.Name(), src.tables[0])
	require.NoError(t, err)

	err = Feed(context.Background(), src, m, nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `source "scripted"`)
}

func TestFeed_Deadline(t *testing.T) {
	clock := NewClock("clock", time.Millisecond)
	initial, err := clock.Initial(context.Background())
	require.NoError(t, err)
	m, err := live.New(clock.Name(), initial)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.NoError(t, Feed(ctx, clock, m, nil))
	assert.Positive(t, m.Snapshot().Len())
}

func TestTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	err := tick(ctx, time.Millisecond, func(time.Time) (*table.Table[Key], error) {
		if calls.Add(1) == 1 {
			return nil, nil
		}
		return ints([]Key{1}, 1), nil
	}, func(*table.Table[Key]) error {
		return ErrStopped
	})
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, int32(2), calls.Load(), "nil tables are skipped")

	assert.Error(t, tick(ctx, 0, nil, nil))

	cancel()
	err = tick(ctx, time.Hour, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClock(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewClock("clock", time.Second, WithWindow(2), WithNow(func() time.Time { return base }))

	first, err := c.Initial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Key{base.UnixMilli()}, first.Keys())
	assert.Equal(t, []string{"datetime"}, first.Names())

	same := c.Tick(base)
	assert.Equal(t, 1, same.Len(), "ticks within one millisecond are dropped")

	c.Tick(base.Add(time.Second))
	last := c.Tick(base.Add(2 * time.Second))
	assert.Equal(t, []Key{base.Add(time.Second).UnixMilli(), base.Add(2 * time.Second).UnixMilli()}, last.Keys())
	v, _ := last.Cell(1, "datetime")
	assert.True(t, base.Add(2*time.Second).Equal(v.(time.Time)))
}

func TestClock_Run(t *testing.T) {
	c := NewClock("clock", 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pushed int
	err := c.Run(ctx, func(tbl *table.Table[Key]) error {
		pushed++
		assert.Equal(t, pushed, tbl.Len())
		if pushed == 3 {
			return ErrStopped
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRandom(t *testing.T) {
	r, err := NewRandom("random", time.Second, 10, 42)
	require.NoError(t, err)
	first := r.Next()
	second := r.Next()
	third := r.Next()

	assert.Equal(t, []Key{0, 1, 2}, third.Keys())
	assert.Equal(t, []string{"random1", "random2"}, third.Names())

	r2first, _ := first.Column("random2")
	r2second, _ := second.Column("random2")
	r2third, _ := third.Column("random2")
	assert.Equal(t, r2first.Values(), r2third.Values()[:1])
	assert.Equal(t, r2second.Values(), r2third.Values()[:2])

	for _, name := range []string{"random1", "random2"} {
		col, _ := third.Column(name)
		for _, v := range col.Values() {
			assert.GreaterOrEqual(t, v.(int64), int64(-10))
			assert.LessOrEqual(t, v.(int64), int64(10))
		}
	}

	again, err := NewRandom("random", time.Second, 10, 42)
	require.NoError(t, err)
	assert.True(t, first.Equal(again.Next()), "same seed, same draws")
}

func TestRandom_Bound(t *testing.T) {
	_, err := NewRandom("random", time.Second, MaxBound+1, 1)
	assert.ErrorContains(t, err, "exceeds")

	r, err := NewRandom("random", time.Second, MaxBound, 1)
	require.NoError(t, err)
	col, _ := r.Next().Column("random1")
	v := col.Value(0).(int64)
	assert.GreaterOrEqual(t, v, -int64(MaxBound))
	assert.LessOrEqual(t, v, int64(MaxBound))
}

func TestRandomWalk(t *testing.T) {
	w := NewRandomWalk("walk", time.Second, 4, 7)
	initial, err := w.Initial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, initial.Len())

	s1 := w.Step()
	s2 := w.Step()
	s3 := w.Step()
	assert.Equal(t, 1, s1.Len())
	assert.Equal(t, 3, s3.Len())
	c2, _ := s2.Column("walk")
	c3, _ := s3.Column("walk")
	assert.Equal(t, c2.Values(), c3.Values()[:2])
	assert.Equal(t, int64(0), c3.Value(0))
	for i := 1; i < 3; i++ {
		step := c3.Value(i).(int64) - c3.Value(i-1).(int64)
		assert.Contains(t, []int64{-1, 1}, step)
	}

	reset := w.Step()
	assert.Equal(t, 0, reset.Len(), "exhausted walk starts over")
	assert.Equal(t, 1, w.Step().Len())
}

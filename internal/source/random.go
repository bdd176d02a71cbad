package source

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/leapstack-labs/livetable/pkg/table"
)

// Random grows by one row per period. Column random1 is redrawn for every
// row on each tick while random2 keeps its past values, so updates carry
// both a patch and a stream. Values are integers in [-Bound, Bound].
type Random struct {
	name   string
	period time.Duration
	bound  int64

	mu      sync.Mutex
	rng     *rand.Rand
	random2 []any
}

// MaxBound is the largest bound whose range [-bound, bound] fits in an int64.
const MaxBound = math.MaxInt64 / 2

// NewRandom returns a random source drawing from seed. A non-positive bound
// defaults to 10.
func NewRandom(name string, period time.Duration, bound int64, seed uint64) (*Random, error) {
	if bound <= 0 {
		bound = 10
	}
	if bound > MaxBound {
		return nil, fmt.Errorf("random source %q: bound %d exceeds %d", name, bound, int64(MaxBound))
	}
	return &Random{
		name:   name,
		period: period,
		bound:  bound,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Name implements Source.
func (r *Random) Name() string { return r.name }

// Initial implements Source.
func (r *Random) Initial(context.Context) (*table.Table[Key], error) {
	return r.Next(), nil
}

// Run implements Source.
func (r *Random) Run(ctx context.Context, push func(*table.Table[Key]) error) error {
	return tick(ctx, r.period, func(time.Time) (*table.Table[Key], error) {
		return r.Next(), nil
	}, push)
}

// Next draws one more row and returns the table.
func (r *Random) Next() *table.Table[Key] {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.random2 = append(r.random2, r.draw())
	n := len(r.random2)
	keys := make([]Key, n)
	random1 := make([]any, n)
	for i := range n {
		keys[i] = Key(i)
		random1[i] = r.draw()
	}
	return table.MustNew(keys,
		table.MustColumn("random1", table.KindInt, random1...),
		table.MustColumn("random2", table.KindInt, r.random2...),
	)
}

func (r *Random) draw() int64 {
	return r.rng.Int64N(2*r.bound+1) - r.bound
}

// RandomWalk reveals a pregenerated walk one step per period. When the walk
// is exhausted it is regenerated and revealing starts over from zero rows.
type RandomWalk struct {
	name   string
	period time.Duration
	size   int

	mu      sync.Mutex
	rng     *rand.Rand
	walk    []any
	current int
}

// NewRandomWalk returns a walk source of size steps drawn from seed.
func NewRandomWalk(name string, period time.Duration, size int, seed uint64) *RandomWalk {
	if size <= 0 {
		size = 255
	}
	w := &RandomWalk{
		name:   name,
		period: period,
		size:   size,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	w.regenerate()
	return w
}

// Name implements Source.
func (w *RandomWalk) Name() string { return w.name }

// Initial implements Source. The walk starts empty.
func (w *RandomWalk) Initial(context.Context) (*table.Table[Key], error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reveal(), nil
}

// Run implements Source.
func (w *RandomWalk) Run(ctx context.Context, push func(*table.Table[Key]) error) error {
	return tick(ctx, w.period, func(time.Time) (*table.Table[Key], error) {
		return w.Step(), nil
	}, push)
}

// Step reveals one more step of the walk.
func (w *RandomWalk) Step() *table.Table[Key] {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.current++
	if w.current >= len(w.walk) {
		w.regenerate()
		w.current = 0
	}
	return w.reveal()
}

func (w *RandomWalk) regenerate() {
	w.walk = make([]any, w.size)
	pos := int64(0)
	for i := range w.walk {
		w.walk[i] = pos
		if w.rng.IntN(2) == 0 {
			pos--
		} else {
			pos++
		}
	}
}

func (w *RandomWalk) reveal() *table.Table[Key] {
	keys := make([]Key, w.current)
	for i := range keys {
		keys[i] = Key(i)
	}
	return table.MustNew(keys, table.MustColumn("walk", table.KindInt, w.walk[:w.current]...))
}

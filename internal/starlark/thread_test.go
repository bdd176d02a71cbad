package starlark

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestThreadPool_Reuse(t *testing.T) {
	pool := NewThreadPool(2, 0, nil)
	assert.Equal(t, 0, pool.Idle())
	assert.Equal(t, 2, pool.Capacity())

	a, b, c := pool.Get("a"), pool.Get("b"), pool.Get("c")
	assert.Equal(t, "a", a.Name)
	pool.Put(a)
	pool.Put(b)
	pool.Put(c)
	assert.Equal(t, 2, pool.Idle(), "a full pool drops returned threads")

	reused := pool.Get("again")
	assert.Same(t, b, reused)
	assert.Equal(t, "again", reused.Name)
	assert.Equal(t, 1, pool.Idle())
}

func TestThreadPool_DefaultCapacity(t *testing.T) {
	assert.Equal(t, defaultPoolSize, NewThreadPool(0, 0, nil).Capacity())
	assert.Equal(t, defaultPoolSize, NewThreadPool(-3, 0, nil).Capacity())
}

func TestThreadPool_StepBudgetPerGet(t *testing.T) {
	pool := NewThreadPool(1, 500, nil)
	loop := "def f(n):\n    for i in range(n):\n        pass\n"

	thread := pool.Get("loop")
	globals, err := starlark.ExecFile(thread, "loop.star", loop, nil)
	require.NoError(t, err)
	f := globals["f"]

	_, err = starlark.Call(thread, f, starlark.Tuple{starlark.MakeInt(10_000)}, nil)
	assert.ErrorContains(t, err, "too many steps")
	pool.Put(thread)

	// the returned thread is usable again with a fresh budget
	thread = pool.Get("loop")
	_, err = starlark.Call(thread, f, starlark.Tuple{starlark.MakeInt(10)}, nil)
	assert.NoError(t, err)
	pool.Put(thread)
}

func TestThreadPool_Print(t *testing.T) {
	var got []string
	pool := NewThreadPool(1, 0, func(thread *starlark.Thread, msg string) {
		got = append(got, thread.Name+": "+msg)
	})
	thread := pool.Get("printer")
	_, err := starlark.ExecFile(thread, "p.star", `print("hi")`, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"printer: hi"}, got)
}

func TestThreadPool_Concurrent(t *testing.T) {
	pool := NewThreadPool(10, 0, nil)
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Put(pool.Get("concurrent"))
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, pool.Idle(), 10)
}

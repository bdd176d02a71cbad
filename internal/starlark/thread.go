package starlark

import (
	"sync"

	"go.starlark.net/starlark"
)

// defaultPoolSize is used when NewThreadPool is given a non-positive size.
const defaultPoolSize = 8

// ThreadPool hands out Starlark threads for transform evaluation. A thread is
// never shared: each evaluation takes one with Get and returns it with Put.
// When a step budget is set, every Get grants the thread that many more
// steps, so a looping transform fails instead of stalling an update.
type ThreadPool struct {
	mu       sync.Mutex
	idle     []*starlark.Thread
	capacity int
	steps    uint64
	print    func(*starlark.Thread, string)
}

// NewThreadPool returns a pool keeping at most capacity idle threads. Threads
// run at most steps computation steps per evaluation, zero meaning no limit,
// and send print() output to print.
func NewThreadPool(capacity int, steps uint64, print func(*starlark.Thread, string)) *ThreadPool {
	if capacity <= 0 {
		capacity = defaultPoolSize
	}
	if print == nil {
		print = func(*starlark.Thread, string) {}
	}
	return &ThreadPool{
		idle:     make([]*starlark.Thread, 0, capacity),
		capacity: capacity,
		steps:    steps,
		print:    print,
	}
}

// Get returns an idle thread, or a new one, named name.
func (p *ThreadPool) Get(name string) *starlark.Thread {
	p.mu.Lock()
	var thread *starlark.Thread
	if n := len(p.idle); n > 0 {
		thread = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if thread == nil {
		thread = &starlark.Thread{}
	}
	thread.Name = name
	thread.Print = p.print
	if p.steps > 0 {
		thread.SetMaxExecutionSteps(thread.ExecutionSteps() + p.steps)
	}
	return thread
}

// Put returns thread to the pool. It is dropped when the pool is full.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	thread.Uncancel()
	thread.Name = ""

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) < p.capacity {
		p.idle = append(p.idle, thread)
	}
}

// Idle returns the number of threads waiting for reuse.
func (p *ThreadPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Capacity returns the maximum number of idle threads, which is also the
// number of rows TableFunc evaluates at once.
func (p *ThreadPool) Capacity() int { return p.capacity }

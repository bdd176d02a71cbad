package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Document is a consumer-scoped task queue with "run on next opportunity"
// semantics. Callbacks run one at a time, in the order they were added, on a
// goroutine owned by the document, never inside the caller of
// AddNextTickCallback. A closed document drops pending and future callbacks.
type Document struct {
	id     string
	logger *slog.Logger

	mu     sync.Mutex
	tasks  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

// NewDocument starts a document. It is closed when ctx is done or Close is called.
func NewDocument(ctx context.Context, logger *slog.Logger) *Document {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &Document{
		id:   uuid.NewString(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	d.logger = logger.With("document", d.id)
	go d.run(ctx)
	return d
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// AddNextTickCallback queues fn. It returns false when the document is closed.
func (d *Document) AddNextTickCallback(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.tasks = append(d.tasks, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Closed reports whether the document stopped accepting callbacks.
func (d *Document) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close detaches the document. Pending callbacks are dropped.
func (d *Document) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.tasks = nil
	d.mu.Unlock()
	close(d.done)
}

// Done is closed when the document is closed.
func (d *Document) Done() <-chan struct{} { return d.done }

// Sync waits until every callback queued before the call has run.
func (d *Document) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	if !d.AddNextTickCallback(func() { close(reached) }) {
		return ErrDocumentClosed
	}
	select {
	case <-reached:
		return nil
	case <-d.done:
		return ErrDocumentClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Document) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.Close()
			return
		case <-d.done:
			return
		case <-d.wake:
		}

		for {
			d.mu.Lock()
			if d.closed || len(d.tasks) == 0 {
				d.mu.Unlock()
				break
			}
			task := d.tasks[0]
			d.tasks[0] = nil
			d.tasks = d.tasks[1:]
			d.mu.Unlock()

			d.runTask(task)
		}
	}
}

func (d *Document) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("document callback panicked", "panic", r)
		}
	}()
	task()
}

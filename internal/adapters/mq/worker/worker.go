// Package worker runs queued check cycles one at a time.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/steamwatch/internal/adapters/mq/queue"
	"github.com/okian/steamwatch/pkg/logger"
)

// Runner executes one check cycle.
type Runner interface {
	RunCycle(ctx context.Context, r queue.Request) error
}

// Queue defines how the worker receives requests.
type Queue interface {
	Dequeue() <-chan queue.Request
}

// Worker consumes cycle requests.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called
	// or the queue is closed.
	Run(ctx context.Context)

	// Shutdown stops the worker after the cycle in progress, if any.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker is the only consumer of the cycle queue, so cycles never
// overlap.
type InMemoryWorker struct {
	queue  Queue
	runner Runner
	name   string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, runner Runner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		runner:   runner,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	requests := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case r, ok := <-requests:
			if !ok {
				return
			}
			if err := w.runner.RunCycle(ctx, r); err != nil {
				w.logger.Error(ctx, "check cycle failed",
					logger.String("cycle_id", r.ID),
					logger.String("reason", r.Reason),
					logger.Error(err),
				)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// Shutdown signals the loop to stop and waits for it or for ctx.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

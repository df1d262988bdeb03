// Package queue holds pending check-cycle requests between the ticker and
// the cycle worker.
package queue

import (
	"context"
	"sync"

	"github.com/okian/steamwatch/internal/domain/model"
	"github.com/okian/steamwatch/pkg/metrics"
)

// A single pending slot: a tick that arrives while a cycle is already queued
// is dropped rather than stacked.
const defaultQueueCapacity = 1

// Request is the payload type flowing through the queue.
type Request = model.CycleRequest

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a request. It returns ErrFull when the pending slot is
	// taken and ErrClosed after Close.
	Enqueue(ctx context.Context, r Request) error
	// Dequeue returns the channel the worker reads from. It is closed by Close.
	Dequeue() <-chan Request
	// Len returns the current number of pending requests.
	Len() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	requests chan Request
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.requests = make(chan Request, q.capacity)
	metrics.UpdatePendingCycles(0)
	return q
}

// Enqueue adds a request without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.requests <- r:
		metrics.UpdatePendingCycles(len(q.requests))
		return nil
	default:
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue() <-chan Request {
	return q.requests
}

// Len returns the current number of pending requests.
func (q *InMemoryQueue) Len() int {
	return len(q.requests)
}

// Close stops accepting requests and closes the dequeue channel.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.requests)
	q.closed = true
	metrics.UpdatePendingCycles(0)
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

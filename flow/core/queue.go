package core

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

// Queue is an unbounded FIFO between any number of producers and one
// consumer. Push never blocks. Close marks the end; the consumer still
// receives everything pushed before it.
type Queue[T any] struct {
	mu     sync.Mutex
	items  *deque.Deque[T]
	closed bool
	err    error
	wake   chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{items: deque.New[T](), wake: make(chan struct{}, 1)}
}

func (q *Queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Push appends v. It reports false, dropping v, once the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items.PushBack(v)
	q.mu.Unlock()
	q.signal()
	return true
}

// Close ends the queue with err, which may be nil. Only the first call
// counts.
func (q *Queue[T]) Close(err error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed, q.err = true, err
	q.mu.Unlock()
	q.signal()
}

// Len returns the number of items waiting.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Next waits for the next item. With ok false, err is the error the queue
// was closed with, or ctx's error if ctx ended first.
func (q *Queue[T]) Next(ctx context.Context) (v T, ok bool, err error) {
	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			v = q.items.PopFront()
			q.mu.Unlock()
			return v, true, nil
		}
		closed, endErr := q.closed, q.err
		q.mu.Unlock()
		if closed {
			return v, false, endErr
		}
		select {
		case <-ctx.Done():
			return v, false, ctx.Err()
		case <-q.wake:
		}
	}
}

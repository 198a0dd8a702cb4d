package flowerrors

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/goldentooth/flow-engine/flow/core"
)

// The hooks below only observe failures passing a hooked stage. To change
// what a failure does, use Retry, CircuitBreak or Recover.

// ErrorCounter counts the errors seen by hooked stages of one item type.
type ErrorCounter struct {
	match func(error) bool
	n     atomic.Int64
}

// Count returns the number of matching errors seen so far.
func (c *ErrorCounter) Count() int64 {
	return c.n.Load()
}

// WithErrorCounter attaches a counting hook for T. A nil match counts every
// error.
func WithErrorCounter[T any](ctx context.Context, match func(error) bool) (context.Context, *ErrorCounter) {
	c := &ErrorCounter{match: match}
	ctx = core.WithHooks(ctx, core.Hooks[T]{
		OnError: func(err error) {
			if c.match == nil || c.match(err) {
				c.n.Add(1)
			}
		},
	})
	return ctx, c
}

// ErrorCollector keeps the errors seen by hooked stages of one item type.
type ErrorCollector struct {
	mu    sync.Mutex
	errs  []error
	match func(error) bool
	limit int
}

// CollectorOption configures an ErrorCollector.
type CollectorOption func(*ErrorCollector)

// CollectMatching keeps only errors for which match returns true.
func CollectMatching(match func(error) bool) CollectorOption {
	return func(c *ErrorCollector) { c.match = match }
}

// CollectAtMost keeps the first n errors and ignores the rest. n <= 0 keeps
// everything.
func CollectAtMost(n int) CollectorOption {
	return func(c *ErrorCollector) { c.limit = n }
}

// Errors returns a copy of the collected errors in arrival order.
func (c *ErrorCollector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

func (c *ErrorCollector) add(err error) {
	if c.match != nil && !c.match(err) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit > 0 && len(c.errs) >= c.limit {
		return
	}
	c.errs = append(c.errs, err)
}

// WithErrorCollector attaches a collecting hook for T.
func WithErrorCollector[T any](ctx context.Context, opts ...CollectorOption) (context.Context, *ErrorCollector) {
	c := &ErrorCollector{}
	for _, opt := range opts {
		opt(c)
	}
	return core.WithHooks(ctx, core.Hooks[T]{OnError: c.add}), c
}

// OnErrorDo attaches fn as an error hook for T.
func OnErrorDo[T any](ctx context.Context, fn func(error)) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnError: fn})
}

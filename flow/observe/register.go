package observe

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// Hooks registered on a context fire only in hooked stages for the same
// item type:
//
//	ctx, counter := observe.WithCounter[int](ctx)
//	out, err := flow.Compose(mapper, observe.Hooks[int]()).ToList(ctx, in)

// Hooks returns a pass-through stage invoking the hooks registered on the
// context for T.
func Hooks[T any]() flow.Flow[T, T] {
	return flow.FromTransformer("hooks", core.Hooked[T]())
}

// WithValueHook registers fn for every value of type T.
func WithValueHook[T any](ctx context.Context, fn func(T)) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnValue: fn})
}

// WithErrorHook registers fn for every error in a stream of T.
func WithErrorHook[T any](ctx context.Context, fn func(error)) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnError: fn})
}

// WithStartHook registers fn for the start of every hooked stream of T.
func WithStartHook[T any](ctx context.Context, fn func()) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnStart: fn})
}

// WithCompleteHook registers fn for the end of every hooked stream of T,
// including cancelled ones.
func WithCompleteHook[T any](ctx context.Context, fn func()) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnComplete: fn})
}

// Counter counts values and errors.
type Counter struct {
	values atomic.Int64
	errors atomic.Int64
}

func (c *Counter) Values() int64 { return c.values.Load() }
func (c *Counter) Errors() int64 { return c.errors.Load() }
func (c *Counter) Total() int64  { return c.values.Load() + c.errors.Load() }

// WithCounter registers a Counter for streams of T.
func WithCounter[T any](ctx context.Context) (context.Context, *Counter) {
	c := &Counter{}
	ctx = core.WithHooks(ctx, core.Hooks[T]{
		OnValue: func(T) { c.values.Add(1) },
		OnError: func(error) { c.errors.Add(1) },
	})
	return ctx, c
}

// WithLogging registers hooks logging every event of hooked streams of T.
// Panics inside logger handlers are recovered and dropped.
func WithLogging[T any](ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		logger = slog.Default()
	}
	return core.WithSafeHooks(ctx, core.Hooks[T]{
		OnStart: func() { logger.DebugContext(ctx, "stream_start") },
		OnValue: func(v T) { logger.DebugContext(ctx, "stream_value", slog.Any("value", v)) },
		OnError: func(err error) { logger.ErrorContext(ctx, "stream_error", slog.Any("error", err)) },
		OnSentinel: func(err error) {
			logger.DebugContext(ctx, "stream_sentinel", slog.Any("sentinel", err))
		},
		OnComplete: func() { logger.DebugContext(ctx, "stream_complete") },
	}, nil)
}

package core

import (
	"context"
)

// Hooks holds typed observation callbacks for a stream.
// All fields are optional - nil means no observation for that event.
// Hooks are invoked synchronously during stream processing, so they
// should be fast to avoid blocking the pipeline.
type Hooks[T any] struct {
	OnStart    func()      // Stream begins processing
	OnValue    func(T)     // Successful value received
	OnError    func(error) // Error received
	OnSentinel func(error) // Sentinel received
	OnComplete func()      // Stream finished (called even on context cancellation)
}

// hooksKey is unexported to prevent collisions with user context keys.
type hooksKey[T any] struct{}

// WithHooks attaches typed hooks to the context.
// Multiple calls to WithHooks compose in FIFO order - hooks from earlier
// calls are invoked before hooks from later calls.
func WithHooks[T any](ctx context.Context, hooks Hooks[T]) context.Context {
	if ctx == nil {
		panic("nil context")
	}
	existing := hookSets[T](ctx)
	sets := make([]Hooks[T], len(existing), len(existing)+1)
	copy(sets, existing)
	return context.WithValue(ctx, hooksKey[T]{}, append(sets, hooks))
}

func hookSets[T any](ctx context.Context) []Hooks[T] {
	if sets, ok := ctx.Value(hooksKey[T]{}).([]Hooks[T]); ok {
		return sets
	}
	return nil
}

// Hooked returns a Transmitter that passes results through unchanged while
// invoking the hooks registered for T on the context.
func Hooked[T any]() Transmitter[T, T] {
	return Transmit(func(ctx context.Context, in <-chan Result[T]) <-chan Result[T] {
		sets := hookSets[T](ctx)
		if len(sets) == 0 {
			return in
		}
		out := make(chan Result[T], BufferSize(ctx))
		go func() {
			defer close(out)
			defer func() {
				for _, h := range sets {
					if h.OnComplete != nil {
						h.OnComplete()
					}
				}
			}()
			for _, h := range sets {
				if h.OnStart != nil {
					h.OnStart()
				}
			}
			for res := range in {
				for _, h := range sets {
					switch {
					case res.IsValue() && h.OnValue != nil:
						h.OnValue(res.Value())
					case res.IsError() && h.OnError != nil:
						h.OnError(res.Error())
					case res.IsSentinel() && h.OnSentinel != nil:
						h.OnSentinel(res.Sentinel())
					}
				}
				if !Send(ctx, out, res) {
					go Drain(in)
					return
				}
			}
		}()
		return out
	})
}

// NewSafeHooks wraps every hook so that a panic is passed to panicHandler
// instead of crashing the pipeline. A nil panicHandler silently recovers.
func NewSafeHooks[T any](hooks Hooks[T], panicHandler func(any)) Hooks[T] {
	if panicHandler == nil {
		panicHandler = func(any) {}
	}
	guard := func(fn func()) {
		defer func() {
			if r := recover(); r != nil {
				panicHandler(r)
			}
		}()
		fn()
	}

	var safe Hooks[T]
	if h := hooks.OnStart; h != nil {
		safe.OnStart = func() { guard(h) }
	}
	if h := hooks.OnValue; h != nil {
		safe.OnValue = func(v T) { guard(func() { h(v) }) }
	}
	if h := hooks.OnError; h != nil {
		safe.OnError = func(err error) { guard(func() { h(err) }) }
	}
	if h := hooks.OnSentinel; h != nil {
		safe.OnSentinel = func(err error) { guard(func() { h(err) }) }
	}
	if h := hooks.OnComplete; h != nil {
		safe.OnComplete = func() { guard(h) }
	}
	return safe
}

// WithSafeHooks wraps hooks with panic recovery before attaching them to the context.
func WithSafeHooks[T any](ctx context.Context, hooks Hooks[T], panicHandler func(any)) context.Context {
	return WithHooks(ctx, NewSafeHooks(hooks, panicHandler))
}

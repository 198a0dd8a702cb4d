package aggregate

import (
	"context"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// sink is the output side of a stage goroutine.
type sink[T any] struct {
	ctx context.Context
	out chan<- core.Result[T]
}

func (s sink[T]) send(v T) bool {
	return core.Send(s.ctx, s.out, core.Ok(v))
}

func (s sink[T]) fail(err error) {
	core.Send(s.ctx, s.out, core.Err[T](err))
}

// stage builds a stream-level flow that runs body in its own goroutine.
// When body returns the output is closed and upstream is cancelled.
func stage[IN, OUT any](name string, body func(ctx context.Context, upstream <-chan core.Result[IN], out sink[OUT])) flow.Flow[IN, OUT] {
	return flow.New(name, func(_ context.Context, in flow.Stream[IN]) flow.Stream[OUT] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[OUT] {
			out := make(chan core.Result[OUT], core.BufferSize(ctx))
			ctx, cancel := context.WithCancel(ctx)
			upstream := in.Emit(ctx)

			go func() {
				defer close(out)
				defer cancel()
				body(ctx, upstream, sink[OUT]{ctx: ctx, out: out})
			}()
			return out
		})
	})
}

// passOn forwards a non-value result. It reports whether the stage should
// keep reading.
func passOn[IN, OUT any](out sink[OUT], res core.Result[IN]) bool {
	return core.Send(out.ctx, out.out, core.Retype[OUT](res)) && !res.IsError()
}

// each feeds every upstream value to fn until fn returns false, forwarding
// sentinels and errors. It reports whether upstream ended normally, which
// is when a stage may flush what it holds.
func each[IN, OUT any](ctx context.Context, upstream <-chan core.Result[IN], out sink[OUT], fn func(IN) bool) bool {
	for res := range upstream {
		if !res.IsValue() {
			if !passOn(out, res) {
				return false
			}
			continue
		}
		if !fn(res.Value()) {
			return false
		}
	}
	return ctx.Err() == nil
}

// protect calls fn, turning a panic into an ExecutionError for stage.
func protect[T any](stage string, fn func() T) (T, error) {
	v, err := core.Protect(func() (T, error) { return fn(), nil })
	return v, core.AsExecutionError(stage, err)
}

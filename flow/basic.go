package flow

import (
	"context"
	"fmt"

	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Map applies fn to every item. An error from fn ends the stream as an
// ExecutionError naming this stage.
func Map[IN, OUT any](fn func(IN) (OUT, error)) Flow[IN, OUT] {
	if fn == nil {
		panic(core.Misconfigured("map", "nil function"))
	}
	return Lift(fmt.Sprintf("map(%s)", FuncName(fn)), func() StepFunc[IN, OUT] {
		return func(_ context.Context, v IN) (trampoline.Bounce[OUT], error) {
			out, err := fn(v)
			if err != nil {
				return trampoline.Halt[OUT](), err
			}
			return trampoline.Next(out), nil
		}
	})
}

// Filter keeps the items for which pred returns true.
func Filter[T any](pred func(T) bool) Flow[T, T] {
	if pred == nil {
		panic(core.Misconfigured("filter", "nil predicate"))
	}
	return Lift(fmt.Sprintf("filter(%s)", FuncName(pred)), func() StepFunc[T, T] {
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			if pred(v) {
				return trampoline.Next(v), nil
			}
			return trampoline.Drop[T](), nil
		}
	})
}

// Tap calls fn on every item for its side effect and passes the item on.
func Tap[T any](fn func(T) error) Flow[T, T] {
	if fn == nil {
		panic(core.Misconfigured("tap", "nil function"))
	}
	return Lift(fmt.Sprintf("tap(%s)", FuncName(fn)), func() StepFunc[T, T] {
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			if err := fn(v); err != nil {
				return trampoline.Halt[T](), err
			}
			return trampoline.Next(v), nil
		}
	})
}

// FlatMap expands every item into a sub-stream. Sub-streams are drained one
// after the other, so output order follows input order. An error from any
// sub-stream ends the whole stream.
func FlatMap[IN, OUT any](fn func(IN) Stream[OUT]) Flow[IN, OUT] {
	if fn == nil {
		panic(core.Misconfigured("flat_map", "nil function"))
	}
	name := fmt.Sprintf("flat_map(%s)", FuncName(fn))
	return New(name, func(_ context.Context, in Stream[IN]) Stream[OUT] {
		return core.Emit(func(ctx context.Context) <-chan Result[OUT] {
			out := make(chan Result[OUT], core.BufferSize(ctx))
			ctx, cancel := context.WithCancel(ctx)
			upstream := in.Emit(ctx)

			go func() {
				defer close(out)
				defer cancel()

				for res := range upstream {
					if !res.IsValue() {
						if !core.Send(ctx, out, core.Retype[OUT](res)) || res.IsError() {
							return
						}
						continue
					}

					sub, err := core.Protect(func() (Stream[OUT], error) { return fn(res.Value()), nil })
					if err != nil {
						core.Send(ctx, out, core.Err[OUT](core.AsExecutionError(name, err)))
						return
					}
					if sub == nil {
						continue
					}
					for r := range sub.Emit(ctx) {
						if !core.Send(ctx, out, r) || r.IsError() {
							return
						}
					}
					if ctx.Err() != nil {
						return
					}
				}
			}()
			return out
		})
	})
}

// Flatten concatenates a stream of streams, draining each in turn.
func Flatten[T any]() Flow[Stream[T], T] {
	return FlatMap(func(s Stream[T]) Stream[T] { return s }).Label("flatten")
}

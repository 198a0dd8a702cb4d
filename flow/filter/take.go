// Package filter provides combinators that select which items of a stream
// reach the next stage. Item-wise filters are fused into the enclosing
// flow's trampoline loop.
package filter

import (
	"context"
	"fmt"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Take passes through the first n items and then ends the stream, cancelling
// upstream. If n <= 0 the result is empty and upstream is never subscribed.
func Take[T any](n int) flow.Flow[T, T] {
	name := fmt.Sprintf("take(%d)", n)
	if n <= 0 {
		return flow.New(name, func(context.Context, flow.Stream[T]) flow.Stream[T] {
			return flow.Empty[T]()
		})
	}
	return flow.Lift(name, func() flow.StepFunc[T, T] {
		count := 0
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			count++
			if count >= n {
				return trampoline.Stop(v), nil
			}
			return trampoline.Next(v), nil
		}
	})
}

// First is Take(1).
func First[T any]() flow.Flow[T, T] {
	return Take[T](1).Label("first")
}

// Skip drops the first n items and passes the rest. If n <= 0 every item
// passes.
func Skip[T any](n int) flow.Flow[T, T] {
	return flow.Lift(fmt.Sprintf("skip(%d)", n), func() flow.StepFunc[T, T] {
		skipped := 0
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			if skipped < n {
				skipped++
				return trampoline.Drop[T](), nil
			}
			return trampoline.Next(v), nil
		}
	})
}

// TakeWhile passes items while pred holds. The first item failing pred ends
// the stream and is not emitted.
func TakeWhile[T any](pred func(T) bool) flow.Flow[T, T] {
	if pred == nil {
		panic(core.Misconfigured("take_while", "nil predicate"))
	}
	return flow.Lift(fmt.Sprintf("take_while(%s)", flow.FuncName(pred)), func() flow.StepFunc[T, T] {
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			if !pred(v) {
				return trampoline.Halt[T](), nil
			}
			return trampoline.Next(v), nil
		}
	})
}

// SkipWhile drops items while pred holds. From the first item failing pred
// on, every item passes.
func SkipWhile[T any](pred func(T) bool) flow.Flow[T, T] {
	if pred == nil {
		panic(core.Misconfigured("skip_while", "nil predicate"))
	}
	return flow.Lift(fmt.Sprintf("skip_while(%s)", flow.FuncName(pred)), func() flow.StepFunc[T, T] {
		skipping := true
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			if skipping && pred(v) {
				return trampoline.Drop[T](), nil
			}
			skipping = false
			return trampoline.Next(v), nil
		}
	})
}

// Until passes items up to and including the first one satisfying pred,
// then ends the stream.
func Until[T any](pred func(T) bool) flow.Flow[T, T] {
	if pred == nil {
		panic(core.Misconfigured("until", "nil predicate"))
	}
	return flow.Lift(fmt.Sprintf("until(%s)", flow.FuncName(pred)), func() flow.StepFunc[T, T] {
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			if pred(v) {
				return trampoline.Stop(v), nil
			}
			return trampoline.Next(v), nil
		}
	})
}

// Nth emits only the item at zero-based index n and then ends the stream.
func Nth[T any](n int) flow.Flow[T, T] {
	if n < 0 {
		panic(core.Misconfigured("nth", "negative index %d", n))
	}
	return flow.Lift(fmt.Sprintf("nth(%d)", n), func() flow.StepFunc[T, T] {
		index := 0
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			if index == n {
				return trampoline.Stop(v), nil
			}
			index++
			return trampoline.Drop[T](), nil
		}
	})
}

// Last emits the last n items once the stream has ended. An error ends the
// stream without flushing.
func Last[T any](n int) flow.Flow[T, T] {
	return flow.New(fmt.Sprintf("last(%d)", n), func(_ context.Context, in flow.Stream[T]) flow.Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
			out := make(chan core.Result[T], core.BufferSize(ctx))
			upstream := in.Emit(ctx)
			go func() {
				defer close(out)
				var buffer []T
				for res := range upstream {
					switch {
					case res.IsError():
						core.Send(ctx, out, res)
						return
					case res.IsValue() && n > 0:
						if len(buffer) == n {
							copy(buffer, buffer[1:])
							buffer = buffer[:n-1]
						}
						buffer = append(buffer, res.Value())
					}
				}
				if ctx.Err() != nil {
					return
				}
				for _, v := range buffer {
					if !core.Send(ctx, out, core.Ok(v)) {
						return
					}
				}
			}()
			return out
		})
	})
}

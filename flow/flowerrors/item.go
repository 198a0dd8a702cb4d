// Package flowerrors provides combinators that react to failures: retrying,
// circuit breaking, recovering and turning errors into values.
//
// A failure ends a stream, so the per-item combinators here (Retry,
// CircuitBreak, CatchAndContinue) run an inner flow over each item on its
// own and decide what to do with that run's error before it can reach the
// outer stream. Only errors raised by the inner flow are handled; errors
// arriving from upstream are forwarded as they are.
package flowerrors

import (
	"context"
	"time"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// attempt runs inner over a stream holding only v and returns everything it
// produced. Outputs of a failed run are discarded.
func attempt[IN, OUT any](ctx context.Context, inner flow.Flow[IN, OUT], v IN) ([]OUT, error) {
	outs, err := inner.ToList(ctx, flow.Once(v))
	if err != nil {
		return nil, err
	}
	return outs, nil
}

// perItem builds a stream-level flow that hands every upstream value to fn
// and emits the outputs fn returns. An error from fn ends the stream; a nil
// error with no outputs drops the item.
func perItem[IN, OUT any](name string, fn func(context.Context, IN) ([]OUT, error)) flow.Flow[IN, OUT] {
	return flow.New(name, func(_ context.Context, in flow.Stream[IN]) flow.Stream[OUT] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[OUT] {
			out := make(chan core.Result[OUT], core.BufferSize(ctx))
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

					outs, err := fn(ctx, res.Value())
					if ctx.Err() != nil {
						return
					}
					if err != nil {
						core.Send(ctx, out, core.Err[OUT](err))
						return
					}
					for _, o := range outs {
						if !core.Send(ctx, out, core.Ok(o)) {
							return
						}
					}
				}
			}()
			return out
		})
	})
}

// sleep waits for d or until ctx is done, reporting whether the full
// duration passed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package filter

import (
	"context"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// TakeUntil passes items until notifier emits its first value, then ends the
// stream. A notifier that ends without a value has no effect.
func TakeUntil[T, N any](notifier flow.Stream[N]) flow.Flow[T, T] {
	return gateOn[T, N]("take_until", notifier, true)
}

// SkipUntil drops items until notifier emits its first value and passes
// every item after that.
func SkipUntil[T, N any](notifier flow.Stream[N]) flow.Flow[T, T] {
	return gateOn[T, N]("skip_until", notifier, false)
}

// gateOn forwards items while open and flips the gate when notifier fires.
// A gate that closes on notification ends the stream.
func gateOn[T, N any](name string, notifier flow.Stream[N], open bool) flow.Flow[T, T] {
	return flow.New(name, func(_ context.Context, in flow.Stream[T]) flow.Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
			out := make(chan core.Result[T], core.BufferSize(ctx))
			ctx, cancel := context.WithCancel(ctx)
			upstream := in.Emit(ctx)
			signal := notifier.Emit(ctx)

			go func() {
				defer close(out)
				defer cancel()

				passing := open
				for {
					select {
					case <-ctx.Done():
						return
					case n, ok := <-signal:
						switch {
						case !ok:
							signal = nil
						case n.IsError():
							core.Send(ctx, out, core.Err[T](n.Error()))
							return
						case n.IsValue():
							if open {
								return
							}
							passing = true
							signal = nil
						}
					case res, ok := <-upstream:
						if !ok {
							return
						}
						if res.IsValue() && !passing {
							continue
						}
						if !core.Send(ctx, out, res) || res.IsError() {
							return
						}
					}
				}
			}()
			return out
		})
	})
}

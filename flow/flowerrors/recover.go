package flowerrors

import (
	"context"
	"errors"
	"fmt"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// Recover turns the error ending the stream into one last item computed by
// handler. If handler itself fails, its error ends the stream instead.
func Recover[T any](handler func(error) (T, error)) flow.Flow[T, T] {
	if handler == nil {
		panic(core.Misconfigured("recover", "nil handler"))
	}
	return onFailure(fmt.Sprintf("recover(%s)", flow.FuncName(handler)), func(err error) core.Result[T] {
		v, herr := handler(err)
		if herr != nil {
			return core.Err[T](herr)
		}
		return core.Ok(v)
	})
}

// RecoverPanic recovers only from failures caused by a panic, handing
// handler the panic value. Other errors pass through.
func RecoverPanic[T any](handler func(panicValue any) (T, error)) flow.Flow[T, T] {
	if handler == nil {
		panic(core.Misconfigured("recover_panic", "nil handler"))
	}
	return Recover(func(err error) (T, error) {
		var p core.ErrPanic
		if errors.As(err, &p) {
			return handler(p.Value)
		}
		var zero T
		return zero, err
	}).Label(fmt.Sprintf("recover_panic(%s)", flow.FuncName(handler)))
}

// WithFallback ends a failed stream with value instead of the error.
func WithFallback[T any](value T) flow.Flow[T, T] {
	return onFailure(fmt.Sprintf("with_fallback(%v)", value), func(error) core.Result[T] {
		return core.Ok(value)
	})
}

// MapErrors rewrites the error ending the stream.
func MapErrors[T any](fn func(error) error) flow.Flow[T, T] {
	if fn == nil {
		panic(core.Misconfigured("map_errors", "nil function"))
	}
	return onFailure(fmt.Sprintf("map_errors(%s)", flow.FuncName(fn)), func(err error) core.Result[T] {
		return core.Err[T](fn(err))
	})
}

// OnError calls fn with the error ending the stream and passes the error on.
func OnError[T any](fn func(error)) flow.Flow[T, T] {
	if fn == nil {
		panic(core.Misconfigured("on_error", "nil function"))
	}
	return onFailure(fmt.Sprintf("on_error(%s)", flow.FuncName(fn)), func(err error) core.Result[T] {
		fn(err)
		return core.Err[T](err)
	})
}

// onFailure forwards values and replaces an upstream error with the result
// of replace, after which the stream ends.
func onFailure[T any](name string, replace func(error) core.Result[T]) flow.Flow[T, T] {
	return flow.New(name, func(_ context.Context, in flow.Stream[T]) flow.Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
			out := make(chan core.Result[T], core.BufferSize(ctx))
			ctx, cancel := context.WithCancel(ctx)
			upstream := in.Emit(ctx)

			go func() {
				defer close(out)
				defer cancel()

				for res := range upstream {
					if res.IsError() {
						replacement, err := core.Protect(func() (core.Result[T], error) {
							return replace(res.Error()), nil
						})
						if err != nil {
							replacement = core.Err[T](core.AsExecutionError(name, err))
						}
						core.Send(ctx, out, replacement)
						return
					}
					if !core.Send(ctx, out, res) {
						return
					}
				}
			}()
			return out
		})
	})
}

// CatchAndContinue runs inner on every item on its own. A failed run is
// reported to handler, which may be nil, and the item is dropped; the
// stream goes on with the next item.
func CatchAndContinue[IN, OUT any](inner flow.Flow[IN, OUT], handler func(item IN, err error)) flow.Flow[IN, OUT] {
	name := fmt.Sprintf("catch_and_continue(%s)", inner.Name())
	return perItem(name, func(ctx context.Context, v IN) ([]OUT, error) {
		outs, err := attempt(ctx, inner, v)
		if err != nil && ctx.Err() == nil {
			if handler != nil {
				handler(v, err)
			}
			return nil, nil
		}
		return outs, nil
	})
}

// Finalize calls fn once when the stream finishes, whether it ended
// normally, failed, or was cancelled by the consumer.
func Finalize[T any](fn func()) flow.Flow[T, T] {
	if fn == nil {
		panic(core.Misconfigured("finalize", "nil function"))
	}
	return flow.New(fmt.Sprintf("finalize(%s)", flow.FuncName(fn)), func(_ context.Context, in flow.Stream[T]) flow.Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
			out := make(chan core.Result[T], core.BufferSize(ctx))
			ctx, cancel := context.WithCancel(ctx)
			upstream := in.Emit(ctx)

			go func() {
				defer close(out)
				defer fn()
				defer cancel()

				for res := range upstream {
					if !core.Send(ctx, out, res) || res.IsError() {
						return
					}
				}
			}()
			return out
		})
	})
}

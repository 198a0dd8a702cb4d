package flow

import (
	"context"
	"fmt"
	"iter"

	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Identity passes every item through unchanged.
func Identity[T any]() Flow[T, T] {
	return Flow[T, T]{fused: true}
}

// Pure emits value once, whatever its input. The input is never subscribed.
func Pure[T any](value T) Flow[Unit, T] {
	return Source(fmt.Sprintf("pure(%v)", value), FromSlice([]T{value}))
}

// Source turns a stream into a Flow that ignores its input. Each
// application re-emits the source, so the source should be cold.
func Source[T any](name string, src Stream[T]) Flow[Unit, T] {
	return New(name, func(context.Context, Stream[Unit]) Stream[T] {
		return src
	})
}

// FromFunction wraps a synchronous function as a fused flow.
func FromFunction[IN, OUT any](fn func(IN) (OUT, error)) Flow[IN, OUT] {
	if fn == nil {
		panic(core.Misconfigured("from_function", "nil function"))
	}
	return Lift(fmt.Sprintf("from_function(%s)", FuncName(fn)), func() StepFunc[IN, OUT] {
		return func(_ context.Context, v IN) (trampoline.Bounce[OUT], error) {
			out, err := fn(v)
			if err != nil {
				return trampoline.Halt[OUT](), err
			}
			return trampoline.Next(out), nil
		}
	})
}

// FromIterable emits the items of a finite sequence.
func FromIterable[T any](items []T) Flow[Unit, T] {
	return Source(fmt.Sprintf("from_iterable(%d)", len(items)), FromSlice(items))
}

// FromSeq emits the items of an iterator.
func FromSeq[T any](seq iter.Seq[T]) Flow[Unit, T] {
	if seq == nil {
		panic(core.Misconfigured("from_seq", "nil sequence"))
	}
	return Source("from_seq", FromIter(seq))
}

// FromEmitter adapts a push-based callback source. register is called once
// per subscription with an emit callback and a done callback, both safe to
// call from any goroutine, and returns an optional unregister function that
// is called when the stream ends. done(nil) ends the stream once every
// pushed item has been delivered; done(err) fails it after them. Items
// pushed after done are dropped. Pushed items are queued without bound
// until the consumer pulls them. A source that never calls done runs until
// its context is cancelled.
func FromEmitter[T any](register func(emit func(T), done func(error)) (unregister func())) Flow[Unit, T] {
	if register == nil {
		panic(core.Misconfigured("from_emitter", "nil register callback"))
	}
	return New("from_emitter", func(context.Context, Stream[Unit]) Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan Result[T] {
			out := make(chan Result[T])
			q := core.NewQueue[T]()
			unregister := register(func(v T) { q.Push(v) }, q.Close)

			go func() {
				defer close(out)
				if unregister != nil {
					defer unregister()
				}
				for {
					item, ok, err := q.Next(ctx)
					if !ok {
						if err != nil && ctx.Err() == nil {
							core.Send(ctx, out, core.Err[T](err))
						}
						return
					}
					if !core.Send(ctx, out, core.Ok(item)) {
						return
					}
				}
			}()
			return out
		})
	})
}

package flowerrors

import (
	"context"
	"fmt"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// Kind tells what a Notification carries.
type Kind int

const (
	KindNext Kind = iota
	KindError
	KindComplete
)

func (k Kind) String() string {
	switch k {
	case KindNext:
		return "next"
	case KindError:
		return "error"
	case KindComplete:
		return "complete"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Notification is a stream event turned into a plain value.
type Notification[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

// Materialize turns every event into a Notification value. An upstream
// error becomes a KindError notification and the stream then ends normally;
// a normal end emits KindComplete. Cancellation emits neither.
func Materialize[T any]() flow.Flow[T, Notification[T]] {
	return flow.New("materialize", func(_ context.Context, in flow.Stream[T]) flow.Stream[Notification[T]] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[Notification[T]] {
			out := make(chan core.Result[Notification[T]], core.BufferSize(ctx))
			ctx, cancel := context.WithCancel(ctx)
			upstream := in.Emit(ctx)

			go func() {
				defer close(out)
				defer cancel()

				for res := range upstream {
					switch {
					case res.IsValue():
						if !core.Send(ctx, out, core.Ok(Notification[T]{Kind: KindNext, Value: res.Value()})) {
							return
						}
					case res.IsError():
						core.Send(ctx, out, core.Ok(Notification[T]{Kind: KindError, Err: res.Error()}))
						return
					}
				}
				if ctx.Err() == nil {
					core.Send(ctx, out, core.Ok(Notification[T]{Kind: KindComplete}))
				}
			}()
			return out
		})
	})
}

// Dematerialize reverses Materialize: KindNext becomes a value, KindError
// ends the stream with its error and KindComplete ends it normally.
func Dematerialize[T any]() flow.Flow[Notification[T], T] {
	return flow.New("dematerialize", func(_ context.Context, in flow.Stream[Notification[T]]) flow.Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
			out := make(chan core.Result[T], core.BufferSize(ctx))
			ctx, cancel := context.WithCancel(ctx)
			upstream := in.Emit(ctx)

			go func() {
				defer close(out)
				defer cancel()

				for res := range upstream {
					if !res.IsValue() {
						if !core.Send(ctx, out, core.Retype[T](res)) || res.IsError() {
							return
						}
						continue
					}
					n := res.Value()
					switch n.Kind {
					case KindNext:
						if !core.Send(ctx, out, core.Ok(n.Value)) {
							return
						}
					case KindError:
						core.Send(ctx, out, core.Err[T](n.Err))
						return
					case KindComplete:
						return
					}
				}
			}()
			return out
		})
	})
}

package flow

import (
	"cmp"
	"context"
	"iter"
	"maps"
	"slices"
	"time"

	"github.com/goldentooth/flow-engine/flow/core"
)

// Sources are cold: every Emit replays them from the start. They are the
// inputs of flows, not flow outputs, so they are not single-consumer.

// FromSlice creates a Stream that emits each element of items.
// Small slices are pre-filled into a buffered channel so no goroutine is needed.
func FromSlice[T any](items []T) Stream[T] {
	const maxBufferSize = 512

	return Emit(func(ctx context.Context) <-chan Result[T] {
		if len(items) <= maxBufferSize {
			out := make(chan Result[T], len(items))
			for _, item := range items {
				out <- Ok(item)
			}
			close(out)
			return out
		}

		out := make(chan Result[T], maxBufferSize)
		go func() {
			defer close(out)
			for _, item := range items {
				if !core.Send(ctx, out, Ok(item)) {
					return
				}
			}
		}()
		return out
	})
}

// FromChannel emits the values received from ch until it is closed.
// The caller owns ch and is responsible for closing it.
func FromChannel[T any](ch <-chan T) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-ch:
					if !ok || !core.Send(ctx, out, Ok(item)) {
						return
					}
				}
			}
		}()
		return out
	})
}

// FromIter emits the values of an iterator.
func FromIter[T any](seq iter.Seq[T]) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			for item := range seq {
				if !core.Send(ctx, out, Ok(item)) {
					return
				}
			}
		}()
		return out
	})
}

// Empty emits nothing.
func Empty[T any]() Stream[T] {
	return Emit(func(context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		close(out)
		return out
	})
}

// Once emits value and ends.
func Once[T any](value T) Stream[T] {
	return FromSlice([]T{value})
}

// FromError emits a single error, which ends the stream.
func FromError[T any](err error) Stream[T] {
	return Emit(func(context.Context) <-chan Result[T] {
		out := make(chan Result[T], 1)
		out <- core.Err[T](err)
		close(out)
		return out
	})
}

// Never emits nothing and ends only when its context is cancelled.
func Never[T any]() Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			<-ctx.Done()
		}()
		return out
	})
}

// Generate calls fn until it reports false. An error from fn is emitted and
// ends the stream.
func Generate[T any](fn func() (T, bool, error)) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			for {
				value, ok, err := fn()
				switch {
				case err != nil:
					core.Send(ctx, out, core.Err[T](err))
					return
				case !ok:
					return
				}
				if !core.Send(ctx, out, Ok(value)) {
					return
				}
			}
		}()
		return out
	})
}

// Repeat emits value n times, or forever when n is negative.
func Repeat[T any](value T, n int) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			for i := 0; n < 0 || i < n; i++ {
				if !core.Send(ctx, out, Ok(value)) {
					return
				}
			}
		}()
		return out
	})
}

// Range emits the integers in [start, end).
func Range(start, end int) Stream[int] {
	return RangeStep(start, end, 1)
}

// RangeStep emits start, start+step, ... while the value has not reached
// end. A zero step or a step pointing away from end gives an empty stream.
func RangeStep(start, end, step int) Stream[int] {
	return Emit(func(ctx context.Context) <-chan Result[int] {
		out := make(chan Result[int])
		go func() {
			defer close(out)
			if step == 0 {
				return
			}
			for i := start; (step > 0 && i < end) || (step < 0 && i > end); i += step {
				if !core.Send(ctx, out, Ok(i)) {
					return
				}
			}
		}()
		return out
	})
}

// Timer emits the current time once, after delay.
func Timer(delay time.Duration) Stream[time.Time] {
	return Emit(func(ctx context.Context) <-chan Result[time.Time] {
		out := make(chan Result[time.Time])
		go func() {
			defer close(out)
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
			case t := <-timer.C:
				core.Send(ctx, out, Ok(t))
			}
		}()
		return out
	})
}

// Ticks emits 0, 1, 2, ... every period, the first after one period. It runs
// until its context is cancelled.
func Ticks(period time.Duration) Stream[int] {
	return Emit(func(ctx context.Context) <-chan Result[int] {
		out := make(chan Result[int])
		go func() {
			defer close(out)
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			for count := 0; ; count++ {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if !core.Send(ctx, out, Ok(count)) {
						return
					}
				}
			}
		}()
		return out
	})
}

// KeyValue is one entry of a map.
type KeyValue[K comparable, V any] struct {
	Key   K
	Value V
}

// FromMap emits the entries of m in ascending key order.
func FromMap[K cmp.Ordered, V any](m map[K]V) Stream[KeyValue[K, V]] {
	return Emit(func(ctx context.Context) <-chan Result[KeyValue[K, V]] {
		out := make(chan Result[KeyValue[K, V]])
		keys := slices.Sorted(maps.Keys(m))
		go func() {
			defer close(out)
			for _, k := range keys {
				if !core.Send(ctx, out, Ok(KeyValue[K, V]{Key: k, Value: m[k]})) {
					return
				}
			}
		}()
		return out
	})
}

// Defer calls factory on every subscription and emits the stream it returns.
func Defer[T any](factory func() Stream[T]) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		return factory().Emit(ctx)
	})
}

// Create runs producer in its own goroutine, handing it an emit callback.
// emit reports false once the consumer has gone away. An error returned by
// producer is emitted and ends the stream.
func Create[T any](producer func(ctx context.Context, emit func(T) bool) error) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			emit := func(v T) bool { return core.Send(ctx, out, Ok(v)) }
			if err := producer(ctx, emit); err != nil {
				core.Send(ctx, out, core.Err[T](err))
			}
		}()
		return out
	})
}

// Unfold emits values computed from a running state, starting at seed,
// until fn reports false. An error from fn ends the stream.
func Unfold[T, S any](seed S, fn func(S) (T, S, bool, error)) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			state := seed
			for {
				value, next, ok, err := fn(state)
				switch {
				case err != nil:
					core.Send(ctx, out, core.Err[T](err))
					return
				case !ok:
					return
				}
				if !core.Send(ctx, out, Ok(value)) {
					return
				}
				state = next
			}
		}()
		return out
	})
}

// Iterate emits seed, fn(seed), fn(fn(seed)), ... until cancelled.
func Iterate[T any](seed T, fn func(T) T) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			for current := seed; core.Send(ctx, out, Ok(current)); current = fn(current) {
			}
		}()
		return out
	})
}

// StartWith emits values before the items of its input.
func StartWith[T any](values ...T) Flow[T, T] {
	return New("start_with", func(_ context.Context, in Stream[T]) Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan Result[T] {
			out := make(chan Result[T], core.BufferSize(ctx))
			go func() {
				defer close(out)
				for _, v := range values {
					if !core.Send(ctx, out, Ok(v)) {
						return
					}
				}
				forward(ctx, in.Emit(ctx), out)
			}()
			return out
		})
	})
}

// EndWith emits values after its input has ended without error.
func EndWith[T any](values ...T) Flow[T, T] {
	return New("end_with", func(_ context.Context, in Stream[T]) Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan Result[T] {
			out := make(chan Result[T], core.BufferSize(ctx))
			upstream := in.Emit(ctx)
			go func() {
				defer close(out)
				if !forward(ctx, upstream, out) {
					return
				}
				for _, v := range values {
					if !core.Send(ctx, out, Ok(v)) {
						return
					}
				}
			}()
			return out
		})
	})
}

// forward copies in to out. It reports false when the copy stopped early on
// an error or a cancelled context.
func forward[T any](ctx context.Context, in <-chan Result[T], out chan<- Result[T]) bool {
	for res := range in {
		if !core.Send(ctx, out, res) || res.IsError() {
			return false
		}
	}
	return ctx.Err() == nil
}

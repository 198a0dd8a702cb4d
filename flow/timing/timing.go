// Package timing provides time-based combinators: delays, timeouts,
// debouncing, throttling and sampling. Timers come from the standard
// runtime and every timer is stopped when its stage ends, including on
// context cancellation.
package timing

import (
	"context"
	"fmt"
	"time"

	"github.com/gammazero/deque"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

type period struct {
	Duration time.Duration `validate:"gt=0"`
}

type delay struct {
	Duration time.Duration `validate:"gte=0"`
}

// stage builds a same-typed stream-level flow that runs body in its own
// goroutine. Returning from body closes the output and cancels upstream.
func stage[T any](name string, body func(ctx context.Context, upstream <-chan core.Result[T], out chan<- core.Result[T])) flow.Flow[T, T] {
	return flow.New(name, func(_ context.Context, in flow.Stream[T]) flow.Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
			out := make(chan core.Result[T], core.BufferSize(ctx))
			ctx, cancel := context.WithCancel(ctx)
			upstream := in.Emit(ctx)

			go func() {
				defer close(out)
				defer cancel()
				body(ctx, upstream, out)
			}()
			return out
		})
	})
}

type delayed[T any] struct {
	res core.Result[T]
	due time.Time
}

// Delay shifts every item, error included, d later than it arrived. Items
// keep their order and their spacing.
func Delay[T any](d time.Duration) flow.Flow[T, T] {
	core.MustValidate("delay", delay{Duration: d})

	return stage(fmt.Sprintf("delay(%s)", d), func(ctx context.Context, upstream <-chan core.Result[T], out chan<- core.Result[T]) {
		queue := deque.New[delayed[T]]()
		timer := time.NewTimer(d)
		timer.Stop()
		defer timer.Stop()

		var wake <-chan time.Time
		arm := func() {
			if queue.Len() == 0 {
				wake = nil
				return
			}
			timer.Reset(time.Until(queue.Front().due))
			wake = timer.C
		}

		for upstream != nil || queue.Len() > 0 {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-upstream:
				if !ok {
					if ctx.Err() != nil {
						return
					}
					upstream = nil
					continue
				}
				queue.PushBack(delayed[T]{res: res, due: time.Now().Add(d)})
				if res.IsError() {
					upstream = nil
				}
				if queue.Len() == 1 {
					arm()
				}
			case now := <-wake:
				for queue.Len() > 0 && !queue.Front().due.After(now) {
					next := queue.PopFront()
					if !core.Send(ctx, out, next.res) || next.res.IsError() {
						return
					}
				}
				arm()
			}
		}
	})
}

// Timeout fails the stream with a TimeoutError when no item arrives within
// d of the previous one, or of subscription for the first item. Time spent
// waiting on the consumer does not count.
func Timeout[T any](d time.Duration) flow.Flow[T, T] {
	core.MustValidate("timeout", period{Duration: d})
	name := fmt.Sprintf("timeout(%s)", d)

	return stage(name, func(ctx context.Context, upstream <-chan core.Result[T], out chan<- core.Result[T]) {
		timer := time.NewTimer(d)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				core.Send(ctx, out, core.Err[T](&core.TimeoutError{Stage: name, After: d}))
				return
			case res, ok := <-upstream:
				if !ok {
					return
				}
				if !core.Send(ctx, out, res) || res.IsError() {
					return
				}
				timer.Reset(d)
			}
		}
	})
}

// Interval is a source flow emitting 0, 1, 2, ... every d, the first value
// after one period. It runs until the consumer cancels.
func Interval(d time.Duration) flow.Flow[flow.Unit, int] {
	core.MustValidate("interval", period{Duration: d})
	return flow.Source(fmt.Sprintf("interval(%s)", d), flow.Ticks(d))
}

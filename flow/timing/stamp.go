package timing

import (
	"context"
	"time"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Timestamped pairs an item with the time it passed the stage.
type Timestamped[T any] struct {
	Value T
	Time  time.Time
}

// Timestamp stamps every item with the current time.
func Timestamp[T any]() flow.Flow[T, Timestamped[T]] {
	return flow.Lift("timestamp", func() flow.StepFunc[T, Timestamped[T]] {
		return func(_ context.Context, v T) (trampoline.Bounce[Timestamped[T]], error) {
			return trampoline.Next(Timestamped[T]{Value: v, Time: time.Now()}), nil
		}
	})
}

// TimeInterval pairs an item with the time since the previous one.
type TimeInterval[T any] struct {
	Value   T
	Elapsed time.Duration
}

// Elapsed measures the gap before every item. The first item's gap is
// measured from subscription.
func Elapsed[T any]() flow.Flow[T, TimeInterval[T]] {
	return flow.Lift("elapsed", func() flow.StepFunc[T, TimeInterval[T]] {
		last := time.Now()
		return func(_ context.Context, v T) (trampoline.Bounce[TimeInterval[T]], error) {
			now := time.Now()
			gap := now.Sub(last)
			last = now
			return trampoline.Next(TimeInterval[T]{Value: v, Elapsed: gap}), nil
		}
	})
}

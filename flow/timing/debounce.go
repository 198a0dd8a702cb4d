package timing

import (
	"context"
	"fmt"
	"time"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Debounce drops every item that is followed by another within d. The last
// item of a burst is emitted once the input has been quiet for d, or when
// the input ends.
func Debounce[T any](d time.Duration) flow.Flow[T, T] {
	core.MustValidate("debounce", period{Duration: d})

	return stage(fmt.Sprintf("debounce(%s)", d), func(ctx context.Context, upstream <-chan core.Result[T], out chan<- core.Result[T]) {
		timer := time.NewTimer(d)
		timer.Stop()
		defer timer.Stop()

		var (
			pending    T
			hasPending bool
		)
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if hasPending {
					hasPending = false
					if !core.Send(ctx, out, core.Ok(pending)) {
						return
					}
				}
			case res, ok := <-upstream:
				if !ok {
					if hasPending && ctx.Err() == nil {
						core.Send(ctx, out, core.Ok(pending))
					}
					return
				}
				if !res.IsValue() {
					if !core.Send(ctx, out, res) || res.IsError() {
						return
					}
					continue
				}
				pending, hasPending = res.Value(), true
				timer.Reset(d)
			}
		}
	})
}

// DebounceLeading emits the first item of every burst and drops the rest,
// where a burst ends once the input has been quiet for d. Unlike Throttle,
// the quiet period restarts with every item, dropped ones included.
func DebounceLeading[T any](d time.Duration) flow.Flow[T, T] {
	core.MustValidate("debounce_leading", period{Duration: d})

	return flow.Lift(fmt.Sprintf("debounce_leading(%s)", d), func() flow.StepFunc[T, T] {
		var last time.Time
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			now := time.Now()
			quiet := last.IsZero() || now.Sub(last) >= d
			last = now
			if !quiet {
				return trampoline.Drop[T](), nil
			}
			return trampoline.Next(v), nil
		}
	})
}

// Sample emits the latest item at every tick of d. Ticks with no new item
// since the previous one emit nothing. An item still unsampled when the
// input ends is emitted.
func Sample[T any](d time.Duration) flow.Flow[T, T] {
	core.MustValidate("sample", period{Duration: d})

	return stage(fmt.Sprintf("sample(%s)", d), func(ctx context.Context, upstream <-chan core.Result[T], out chan<- core.Result[T]) {
		ticker := time.NewTicker(d)
		defer ticker.Stop()

		var (
			latest    T
			hasLatest bool
		)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if hasLatest {
					hasLatest = false
					if !core.Send(ctx, out, core.Ok(latest)) {
						return
					}
				}
			case res, ok := <-upstream:
				if !ok {
					if hasLatest && ctx.Err() == nil {
						core.Send(ctx, out, core.Ok(latest))
					}
					return
				}
				if !res.IsValue() {
					if !core.Send(ctx, out, res) || res.IsError() {
						return
					}
					continue
				}
				latest, hasLatest = res.Value(), true
			}
		}
	})
}

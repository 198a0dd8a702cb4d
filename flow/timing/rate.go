package timing

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Throttle lets at most one item through per interval. Items arriving
// before the interval has passed are dropped, not queued. The first item
// always passes.
func Throttle[T any](interval time.Duration) flow.Flow[T, T] {
	core.MustValidate("throttle", period{Duration: interval})

	return flow.Lift(fmt.Sprintf("throttle(%s)", interval), func() flow.StepFunc[T, T] {
		limiter := rate.NewLimiter(rate.Every(interval), 1)
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			if limiter.Allow() {
				return trampoline.Next(v), nil
			}
			return trampoline.Drop[T](), nil
		}
	})
}

type rateConfig struct {
	PerSecond float64 `validate:"gt=0"`
	Burst     int     `validate:"gte=1"`
}

// RateLimit delays items so that no more than perSecond pass per second on
// average, with bursts of up to burst items. Unlike Throttle nothing is
// dropped. A wait runs until the item's turn comes or ctx ends; in the
// latter case the stream fails with ctx's error.
func RateLimit[T any](perSecond float64, burst int) flow.Flow[T, T] {
	core.MustValidate("rate_limit", rateConfig{PerSecond: perSecond, Burst: burst})

	return flow.Lift(fmt.Sprintf("rate_limit(%g/s)", perSecond), func() flow.StepFunc[T, T] {
		limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
		return func(ctx context.Context, v T) (trampoline.Bounce[T], error) {
			if err := wait(ctx, limiter); err != nil {
				return trampoline.Halt[T](), err
			}
			return trampoline.Next(v), nil
		}
	})
}

// wait is limiter.Wait without the early failure when the wait would
// outlast ctx's deadline.
func wait(ctx context.Context, limiter *rate.Limiter) error {
	r := limiter.Reserve()
	d := r.Delay()
	if d == 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package observe watches flows without changing what they emit: a log
// stage, an Observer decorator with slog, OpenTelemetry and Prometheus
// implementations, and context-carried hooks.
package observe

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// Run identifies one subscription to an instrumented flow.
type Run struct {
	ID      uuid.UUID
	Stage   string
	Started time.Time
}

// Stats summarizes a finished run.
type Stats struct {
	Items     int64
	Errors    int64
	Sentinels int64
	// FirstItem is the delay between the start of the run and its first
	// item, zero if there was none.
	FirstItem time.Duration
	Duration  time.Duration
	Cancelled bool
}

// ItemsPerSecond returns the run's throughput.
func (s Stats) ItemsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Items) / s.Duration.Seconds()
}

// Observer receives the lifecycle of every run of an instrumented flow.
// Callbacks run on the stream's goroutine, so they should return quickly.
type Observer interface {
	OnStart(ctx context.Context, run Run)
	OnItem(ctx context.Context, run Run, item any)
	OnError(ctx context.Context, run Run, err error)
	OnComplete(ctx context.Context, run Run, stats Stats)
}

// NoopObserver ignores every event. Embed it to implement only some
// callbacks.
type NoopObserver struct{}

func (NoopObserver) OnStart(context.Context, Run)           {}
func (NoopObserver) OnItem(context.Context, Run, any)       {}
func (NoopObserver) OnError(context.Context, Run, error)    {}
func (NoopObserver) OnComplete(context.Context, Run, Stats) {}

type composite []Observer

// Observers forwards every event to each non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var list composite
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	switch len(list) {
	case 0:
		return NoopObserver{}
	case 1:
		return list[0]
	}
	return list
}

func (c composite) OnStart(ctx context.Context, run Run) {
	for _, o := range c {
		o.OnStart(ctx, run)
	}
}

func (c composite) OnItem(ctx context.Context, run Run, item any) {
	for _, o := range c {
		o.OnItem(ctx, run, item)
	}
}

func (c composite) OnError(ctx context.Context, run Run, err error) {
	for _, o := range c {
		o.OnError(ctx, run, err)
	}
}

func (c composite) OnComplete(ctx context.Context, run Run, stats Stats) {
	for _, o := range c {
		o.OnComplete(ctx, run, stats)
	}
}

// Instrument returns f reporting every run to observer. The result has f's
// name and signature and emits exactly what f emits.
func Instrument[IN, OUT any](f flow.Flow[IN, OUT], observer Observer) flow.Flow[IN, OUT] {
	if observer == nil {
		panic(core.Misconfigured("instrument", "nil observer"))
	}
	name := f.Name()
	return flow.New(name, func(ctx context.Context, in flow.Stream[IN]) flow.Stream[OUT] {
		inner := f.Apply(ctx, in)
		return core.Emit(func(ctx context.Context) <-chan core.Result[OUT] {
			return watch(ctx, name, inner.Emit(ctx), observer)
		})
	})
}

// Meter reports the stats of every run of the stage to onComplete.
func Meter[T any](onComplete func(Stats)) flow.Flow[T, T] {
	if onComplete == nil {
		panic(core.Misconfigured("meter", "nil callback"))
	}
	return flow.New("meter", func(ctx context.Context, in flow.Stream[T]) flow.Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
			return watch(ctx, "meter", in.Emit(ctx), statsObserver(onComplete))
		})
	})
}

type statsObserver func(Stats)

func (statsObserver) OnStart(context.Context, Run)        {}
func (statsObserver) OnItem(context.Context, Run, any)    {}
func (statsObserver) OnError(context.Context, Run, error) {}
func (fn statsObserver) OnComplete(_ context.Context, _ Run, stats Stats) {
	fn(stats)
}

func watch[T any](ctx context.Context, stage string, in <-chan core.Result[T], observer Observer) <-chan core.Result[T] {
	out := make(chan core.Result[T], core.BufferSize(ctx))
	run := Run{ID: uuid.New(), Stage: stage, Started: time.Now()}

	go func() {
		defer close(out)
		var stats Stats
		observer.OnStart(ctx, run)
		defer func() {
			stats.Duration = time.Since(run.Started)
			stats.Cancelled = ctx.Err() != nil
			observer.OnComplete(ctx, run, stats)
		}()

		for res := range in {
			switch {
			case res.IsValue():
				if stats.Items == 0 {
					stats.FirstItem = time.Since(run.Started)
				}
				stats.Items++
				observer.OnItem(ctx, run, res.Value())
			case res.IsError():
				stats.Errors++
				observer.OnError(ctx, run, res.Error())
			default:
				stats.Sentinels++
			}
			if !core.Send(ctx, out, res) {
				go core.Drain(in)
				return
			}
		}
	}()
	return out
}

// Spy calls inspect with every result passing the stage, errors and
// sentinels included.
func Spy[T any](inspect func(core.Result[T])) flow.Flow[T, T] {
	if inspect == nil {
		panic(core.Misconfigured("spy", "nil function"))
	}
	return flow.New("spy", func(ctx context.Context, in flow.Stream[T]) flow.Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
			upstream := in.Emit(ctx)
			out := make(chan core.Result[T], core.BufferSize(ctx))
			go func() {
				defer close(out)
				for res := range upstream {
					inspect(res)
					if !core.Send(ctx, out, res) {
						go core.Drain(upstream)
						return
					}
				}
			}()
			return out
		})
	})
}

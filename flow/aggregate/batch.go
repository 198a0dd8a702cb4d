package aggregate

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

type batchArgs struct {
	Size    int           `validate:"gte=0"`
	Timeout time.Duration `validate:"gte=0"`
}

// Batch groups consecutive items into slices of size. The last batch may be
// shorter if the stream ends early.
//
// A size of 0 means the BatchSize from Configure; without one the stream
// fails with a ConfigurationError when it is emitted. A negative size
// panics with a ConfigurationError.
func Batch[T any](size int) flow.Flow[T, []T] {
	name := fmt.Sprintf("batch(%d)", size)
	core.MustValidate(name, batchArgs{Size: size})
	return stage(name, func(ctx context.Context, upstream <-chan core.Result[T], out sink[[]T]) {
		n := batchSize(ctx, size)
		if n <= 0 {
			out.fail(core.Misconfigured(name, "batch size must be > 0"))
			return
		}

		batch := make([]T, 0, n)
		ended := each(ctx, upstream, out, func(v T) bool {
			batch = append(batch, v)
			if len(batch) < n {
				return true
			}
			full := batch
			batch = make([]T, 0, n)
			return out.send(full)
		})
		if ended && len(batch) > 0 {
			out.send(batch)
		}
	})
}

// Chunk is Batch under another name.
func Chunk[T any](size int) flow.Flow[T, []T] {
	return Batch[T](size).Label(fmt.Sprintf("chunk(%d)", size))
}

// BatchTimeout groups items like Batch, but also emits a partial batch once
// timeout has passed since its first item arrived. Zero arguments fall back
// to the Configure defaults; negative ones panic.
func BatchTimeout[T any](size int, timeout time.Duration) flow.Flow[T, []T] {
	name := fmt.Sprintf("batch_timeout(%d, %s)", size, timeout)
	core.MustValidate(name, batchArgs{Size: size, Timeout: timeout})
	return stage(name, func(ctx context.Context, upstream <-chan core.Result[T], out sink[[]T]) {
		n, d := batchSize(ctx, size), batchTimeout(ctx, timeout)
		if n <= 0 || d <= 0 {
			out.fail(core.Misconfigured(name, "batch size and timeout must be > 0"))
			return
		}

		timer := time.NewTimer(d)
		timer.Stop()
		defer timer.Stop()

		var batch []T
		flush := func() bool {
			timer.Stop()
			if len(batch) == 0 {
				return true
			}
			full := batch
			batch = nil
			return out.send(full)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if !flush() {
					return
				}
			case res, ok := <-upstream:
				if !ok {
					if ctx.Err() == nil {
						flush()
					}
					return
				}
				if !res.IsValue() {
					if !passOn(out, res) {
						return
					}
					continue
				}
				if len(batch) == 0 {
					timer.Reset(d)
				}
				batch = append(batch, res.Value())
				if len(batch) >= n && !flush() {
					return
				}
			}
		}
	})
}

type windowConfig struct {
	Size int `validate:"gt=0"`
	Step int `validate:"gt=0"`
}

// Window emits sliding windows of size items, starting a new window every
// step items. Windows overlap when step < size and leave gaps when
// step > size. A trailing window shorter than size is never emitted.
//
// Window panics with a ConfigurationError if size or step is not positive.
func Window[T any](size, step int) flow.Flow[T, []T] {
	core.MustValidate("window", windowConfig{Size: size, Step: step})

	return flow.Lift(fmt.Sprintf("window(%d, %d)", size, step), func() flow.StepFunc[T, []T] {
		buf := make([]T, 0, size)
		seen := 0
		return func(_ context.Context, v T) (trampoline.Bounce[[]T], error) {
			if len(buf) == size {
				buf = append(buf[:0], buf[1:]...)
			}
			buf = append(buf, v)
			seen++
			if len(buf) == size && (seen-size)%step == 0 {
				return trampoline.Next(slices.Clone(buf)), nil
			}
			return trampoline.Drop[[]T](), nil
		}
	})
}

// Pairwise emits every item together with the one before it. The first item
// only opens the first pair.
func Pairwise[T any]() flow.Flow[T, [2]T] {
	return flow.Lift("pairwise", func() flow.StepFunc[T, [2]T] {
		var (
			prev    T
			started bool
		)
		return func(_ context.Context, v T) (trampoline.Bounce[[2]T], error) {
			if !started {
				prev, started = v, true
				return trampoline.Drop[[2]T](), nil
			}
			pair := [2]T{prev, v}
			prev = v
			return trampoline.Next(pair), nil
		}
	})
}

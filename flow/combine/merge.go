// Package combine joins and splits streams and flows: merging several
// sources, racing them, routing items between flows, and sharing one pass
// over a source among several consumers (Partition, Multicast, Replay).
//
// Unless a combinator says otherwise, the first error from any input ends
// the combined stream and cancels the other inputs.
package combine

import (
	"context"
	"sync"

	"github.com/goldentooth/flow-engine/flow/core"
)

// Merge emits items from all streams as they arrive. Output order between
// streams is not defined. The merged stream ends once every input has.
func Merge[T any](streams ...core.Stream[T]) core.Stream[T] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
		out := make(chan core.Result[T], core.BufferSize(ctx))
		ctx, cancel := context.WithCancel(ctx)

		var (
			mu     sync.Mutex
			failed bool
		)
		// emit keeps an error the last thing written to out.
		emit := func(res core.Result[T]) bool {
			mu.Lock()
			defer mu.Unlock()
			if failed || !core.Send(ctx, out, res) {
				return false
			}
			if res.IsError() {
				failed = true
				cancel()
				return false
			}
			return true
		}

		var wg sync.WaitGroup
		wg.Add(len(streams))
		for _, s := range streams {
			go func(in <-chan core.Result[T]) {
				defer wg.Done()
				for res := range in {
					if !emit(res) {
						return
					}
				}
			}(s.Emit(ctx))
		}

		go func() {
			wg.Wait()
			cancel()
			close(out)
		}()
		return out
	})
}

// Concat emits every item of the first stream, then of the second, and so
// on. A stream is not started before the previous one has ended.
func Concat[T any](streams ...core.Stream[T]) core.Stream[T] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
		out := make(chan core.Result[T], core.BufferSize(ctx))
		go func() {
			defer close(out)
			for _, s := range streams {
				if !pipe(ctx, s, out) {
					return
				}
			}
		}()
		return out
	})
}

// pipe copies s to out and reports whether s ended normally.
func pipe[T any](ctx context.Context, s core.Stream[T], out chan<- core.Result[T]) bool {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for res := range s.Emit(ctx) {
		if !core.Send(ctx, out, res) || res.IsError() {
			return false
		}
	}
	return ctx.Err() == nil
}

// Interleave takes one item from each stream in turn. A stream that has
// ended drops out of the rotation; the others go on until all have ended.
// Waiting for a slow stream holds back the rest.
func Interleave[T any](streams ...core.Stream[T]) core.Stream[T] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
		out := make(chan core.Result[T], core.BufferSize(ctx))
		ctx, cancel := context.WithCancel(ctx)

		go func() {
			defer close(out)
			defer cancel()

			active := make([]<-chan core.Result[T], 0, len(streams))
			for _, s := range streams {
				active = append(active, s.Emit(ctx))
			}

			for i := 0; len(active) > 0; {
				var (
					res core.Result[T]
					ok  bool
				)
				select {
				case <-ctx.Done():
					return
				case res, ok = <-active[i]:
				}
				if !ok {
					active = append(active[:i], active[i+1:]...)
					if len(active) > 0 {
						i %= len(active)
					}
					continue
				}
				if !core.Send(ctx, out, res) || res.IsError() {
					return
				}
				i = (i + 1) % len(active)
			}
		}()
		return out
	})
}

// Pair holds one item from each side of a Zip.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Zip pairs the n-th items of a and b. It ends as soon as either side ends;
// the unmatched rest of the longer side is not read.
func Zip[A, B any](a core.Stream[A], b core.Stream[B]) core.Stream[Pair[A, B]] {
	return ZipWith(a, b, func(x A, y B) Pair[A, B] { return Pair[A, B]{First: x, Second: y} })
}

// ZipWith is Zip with a custom combiner.
func ZipWith[A, B, C any](a core.Stream[A], b core.Stream[B], combine func(A, B) C) core.Stream[C] {
	if combine == nil {
		panic(core.Misconfigured("zip_with", "nil combiner"))
	}
	return core.Emit(func(ctx context.Context) <-chan core.Result[C] {
		out := make(chan core.Result[C], core.BufferSize(ctx))
		ctx, cancel := context.WithCancel(ctx)

		go func() {
			defer close(out)
			defer cancel()

			chA, chB := a.Emit(ctx), b.Emit(ctx)
			for {
				x, ok := nextValue(ctx, chA, out)
				if !ok {
					return
				}
				y, ok := nextValue(ctx, chB, out)
				if !ok {
					return
				}
				c, err := core.Protect(func() (C, error) { return combine(x, y), nil })
				if err != nil {
					core.Send(ctx, out, core.Err[C](core.AsExecutionError("zip_with", err)))
					return
				}
				if !core.Send(ctx, out, core.Ok(c)) {
					return
				}
			}
		}()
		return out
	})
}

// nextValue reads the next value from in, skipping sentinels. An error is
// forwarded to out and reported as the end of in.
func nextValue[T, OUT any](ctx context.Context, in <-chan core.Result[T], out chan<- core.Result[OUT]) (T, bool) {
	var zero T
	for {
		var (
			res core.Result[T]
			ok  bool
		)
		select {
		case <-ctx.Done():
			return zero, false
		case res, ok = <-in:
		}
		switch {
		case !ok:
			return zero, false
		case res.IsError():
			core.Send(ctx, out, core.Retype[OUT](res))
			return zero, false
		case res.IsValue():
			return res.Value(), true
		}
	}
}

type indexed[T any] struct {
	i   int
	res core.Result[T]
}

// CombineLatest emits the latest value of every stream each time any of
// them produces one, once all of them have produced at least one. Every
// emitted slice is a fresh copy. It ends when all streams have ended.
func CombineLatest[T any](streams ...core.Stream[T]) core.Stream[[]T] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[[]T] {
		out := make(chan core.Result[[]T], core.BufferSize(ctx))
		ctx, cancel := context.WithCancel(ctx)

		events := make(chan indexed[T])
		var wg sync.WaitGroup
		wg.Add(len(streams))
		for i, s := range streams {
			go func(i int, in <-chan core.Result[T]) {
				defer wg.Done()
				for res := range in {
					select {
					case <-ctx.Done():
						return
					case events <- indexed[T]{i: i, res: res}:
					}
				}
			}(i, s.Emit(ctx))
		}
		go func() {
			wg.Wait()
			close(events)
		}()

		go func() {
			defer close(out)
			defer cancel()

			latest := make([]T, len(streams))
			seen := make([]bool, len(streams))
			missing := len(streams)
			for ev := range events {
				switch {
				case ev.res.IsError():
					core.Send(ctx, out, core.Retype[[]T](ev.res))
					return
				case !ev.res.IsValue():
					continue
				}
				latest[ev.i] = ev.res.Value()
				if !seen[ev.i] {
					seen[ev.i] = true
					missing--
				}
				if missing > 0 {
					continue
				}
				if !core.Send(ctx, out, core.Ok(append([]T(nil), latest...))) {
					return
				}
			}
		}()
		return out
	})
}

package parallel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// ConcatMap expands every item into a sub-stream and drains the sub-streams
// one after the other.
func ConcatMap[IN, OUT any](fn func(IN) flow.Stream[OUT]) flow.Flow[IN, OUT] {
	if fn == nil {
		panic(core.Misconfigured("concat_map", "nil function"))
	}
	return flow.FlatMap(fn).Label(fmt.Sprintf("concat_map(%s)", flow.FuncName(fn)))
}

// MergeMap expands every item into a sub-stream and drains up to
// concurrency of them at once, interleaving their outputs.
func MergeMap[IN, OUT any](concurrency int, fn func(IN) flow.Stream[OUT]) flow.Flow[IN, OUT] {
	if fn == nil {
		panic(core.Misconfigured("merge_map", "nil function"))
	}
	return Parallel(concurrency, fn).Label(fmt.Sprintf("merge_map(%d, %s)", concurrency, flow.FuncName(fn)))
}

// inner drains one sub-stream into em under its own cancellable context.
type inner struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (i *inner) stop() {
	if i == nil {
		return
	}
	i.cancel()
	<-i.done
}

func startInner[IN, OUT any](ctx context.Context, name string, fn func(IN) flow.Stream[OUT], v IN, em *emitter[OUT], onDone func()) *inner {
	ctx, cancel := context.WithCancel(ctx)
	in := &inner{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(in.done)
		defer cancel()
		if onDone != nil {
			defer onDone()
		}
		sub, err := open(name, fn, v)
		if err != nil {
			em.emit(core.Err[OUT](err))
			return
		}
		if sub == nil {
			return
		}
		for res := range sub.Emit(ctx) {
			// A switched-away sub-stream may report its own cancellation.
			if ctx.Err() != nil || !em.emit(res) {
				return
			}
		}
	}()
	return in
}

// SwitchMap expands every item into a sub-stream, cancelling the previous
// sub-stream when a new item arrives. Only the latest sub-stream runs to
// completion.
func SwitchMap[IN, OUT any](fn func(IN) flow.Stream[OUT]) flow.Flow[IN, OUT] {
	if fn == nil {
		panic(core.Misconfigured("switch_map", "nil function"))
	}
	name := fmt.Sprintf("switch_map(%s)", flow.FuncName(fn))
	return nested(name, func(ctx context.Context, upstream <-chan core.Result[IN], em *emitter[OUT]) {
		var current *inner
		defer func() { current.stop() }()
		for res := range upstream {
			if !res.IsValue() {
				if !em.emit(core.Retype[OUT](res)) {
					return
				}
				continue
			}
			current.stop()
			current = startInner(ctx, name, fn, res.Value(), em, nil)
		}
		if current != nil {
			<-current.done
		}
	})
}

// ExhaustMap expands an item into a sub-stream only when no sub-stream is
// running. Items that arrive while one is running are dropped.
func ExhaustMap[IN, OUT any](fn func(IN) flow.Stream[OUT]) flow.Flow[IN, OUT] {
	if fn == nil {
		panic(core.Misconfigured("exhaust_map", "nil function"))
	}
	name := fmt.Sprintf("exhaust_map(%s)", flow.FuncName(fn))
	return nested(name, func(ctx context.Context, upstream <-chan core.Result[IN], em *emitter[OUT]) {
		var (
			busy atomic.Bool
			wg   sync.WaitGroup
		)
		defer wg.Wait()
		for res := range upstream {
			if !res.IsValue() {
				if !em.emit(core.Retype[OUT](res)) {
					return
				}
				continue
			}
			if !busy.CompareAndSwap(false, true) {
				continue
			}
			wg.Add(1)
			startInner(ctx, name, fn, res.Value(), em, func() {
				busy.Store(false)
				wg.Done()
			})
		}
	})
}

// nested is the stage shared by SwitchMap and ExhaustMap. run returns once
// every sub-stream it started has finished.
func nested[IN, OUT any](name string, run func(context.Context, <-chan core.Result[IN], *emitter[OUT])) flow.Flow[IN, OUT] {
	return flow.New(name, func(_ context.Context, in flow.Stream[IN]) flow.Stream[OUT] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[OUT] {
			out := make(chan core.Result[OUT], core.BufferSize(ctx))
			ctx, cancel := context.WithCancel(ctx)
			upstream := in.Emit(ctx)

			go func() {
				defer close(out)
				defer cancel()
				run(ctx, upstream, &emitter[OUT]{ctx: ctx, out: out, cancel: cancel})
			}()
			return out
		})
	})
}

// Package parallel runs sub-streams concurrently: bounded fan-out over a
// worker pool, order-preserving resequencing, memoization with shared
// in-flight work, and the switch/exhaust/concat/merge family of nested
// stream maps.
//
// Every combinator here owns its goroutines. They are cancelled through a
// derived context on every exit path and waited for before the output
// stream closes.
package parallel

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// pool runs at most n tasks at a time. submit blocks until a slot is free
// so that the input is not read ahead of the workers.
type pool struct {
	wp    *workerpool.WorkerPool
	slots chan struct{}
}

func newPool(n int) *pool {
	if n <= 0 {
		n = 1
	}
	return &pool{wp: workerpool.New(n), slots: make(chan struct{}, n)}
}

func (p *pool) submit(ctx context.Context, task func()) bool {
	select {
	case <-ctx.Done():
		return false
	case p.slots <- struct{}{}:
	}
	p.wp.Submit(func() {
		defer func() { <-p.slots }()
		task()
	})
	return true
}

// wait blocks until every submitted task has finished.
func (p *pool) wait() { p.wp.StopWait() }

// emitter serializes writes to out from several goroutines and keeps an
// error the last thing written. The first error cancels the stage.
type emitter[T any] struct {
	mu     sync.Mutex
	ctx    context.Context
	out    chan<- core.Result[T]
	cancel context.CancelFunc
	failed bool
}

func (e *emitter[T]) emit(res core.Result[T]) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failed || !core.Send(e.ctx, e.out, res) {
		return false
	}
	if res.IsError() {
		e.failed = true
		e.cancel()
		return false
	}
	return true
}

// open calls fn with panic protection. A nil stream means no output.
func open[IN, OUT any](name string, fn func(IN) flow.Stream[OUT], v IN) (flow.Stream[OUT], error) {
	sub, err := core.Protect(func() (flow.Stream[OUT], error) { return fn(v), nil })
	return sub, core.AsExecutionError(name, err)
}

// Parallel runs fn's sub-stream for each item, with at most concurrency of
// them running at once on a worker pool. Outputs are emitted as they are
// produced, so order is not preserved; use Ordered for input order. The
// first error from any sub-stream ends the stream and cancels the others.
// concurrency <= 0 means 1.
func Parallel[IN, OUT any](concurrency int, fn func(IN) flow.Stream[OUT]) flow.Flow[IN, OUT] {
	if fn == nil {
		panic(core.Misconfigured("parallel", "nil function"))
	}
	name := fmt.Sprintf("parallel(%d, %s)", concurrency, flow.FuncName(fn))
	return fanOut(name, concurrency, func(ctx context.Context, v IN, em *emitter[OUT]) {
		sub, err := open(name, fn, v)
		if err != nil {
			em.emit(core.Err[OUT](err))
			return
		}
		if sub == nil {
			return
		}
		for res := range sub.Emit(ctx) {
			if !em.emit(res) {
				return
			}
		}
	})
}

// Successful is Parallel for sub-streams that may fail on their own: each
// sub-stream's outputs are held until it ends and dropped if it failed.
// Upstream errors still end the stream.
func Successful[IN, OUT any](concurrency int, fn func(IN) flow.Stream[OUT]) flow.Flow[IN, OUT] {
	if fn == nil {
		panic(core.Misconfigured("parallel_successful", "nil function"))
	}
	name := fmt.Sprintf("parallel_successful(%d, %s)", concurrency, flow.FuncName(fn))
	return fanOut(name, concurrency, func(ctx context.Context, v IN, em *emitter[OUT]) {
		sub, err := open(name, fn, v)
		if err != nil || sub == nil {
			return
		}
		items, err := flow.Slice(ctx, sub)
		if err != nil {
			return
		}
		for _, item := range items {
			if !em.emit(core.Ok(item)) {
				return
			}
		}
	})
}

// fanOut is the stage shared by Parallel and Successful: it submits work
// for every upstream value and waits for all of it before closing.
func fanOut[IN, OUT any](name string, concurrency int, work func(context.Context, IN, *emitter[OUT])) flow.Flow[IN, OUT] {
	return flow.New(name, func(_ context.Context, in flow.Stream[IN]) flow.Stream[OUT] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[OUT] {
			out := make(chan core.Result[OUT], core.BufferSize(ctx))
			ctx, cancel := context.WithCancel(ctx)
			upstream := in.Emit(ctx)

			go func() {
				p := newPool(concurrency)
				em := &emitter[OUT]{ctx: ctx, out: out, cancel: cancel}
				defer close(out)
				defer p.wait()
				defer cancel()

				for res := range upstream {
					if !res.IsValue() {
						if !em.emit(core.Retype[OUT](res)) {
							return
						}
						continue
					}
					v := res.Value()
					if !p.submit(ctx, func() { work(ctx, v, em) }) {
						return
					}
				}
				// Let in-flight work finish before cancelling.
				p.wait()
			}()
			return out
		})
	})
}

type done[OUT any] struct {
	idx   int
	items []OUT
	err   error
}

// Ordered is Parallel with outputs in input order: each sub-stream is
// collected, and collections are released in the order their items
// arrived. A failed sub-stream ends the stream once everything before it
// has been emitted.
func Ordered[IN, OUT any](concurrency int, fn func(IN) flow.Stream[OUT]) flow.Flow[IN, OUT] {
	if fn == nil {
		panic(core.Misconfigured("ordered", "nil function"))
	}
	name := fmt.Sprintf("ordered(%d, %s)", concurrency, flow.FuncName(fn))

	return flow.New(name, func(_ context.Context, in flow.Stream[IN]) flow.Stream[OUT] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[OUT] {
			out := make(chan core.Result[OUT], core.BufferSize(ctx))
			ctx, cancel := context.WithCancel(ctx)
			upstream := in.Emit(ctx)
			results := make(chan done[OUT])
			em := &emitter[OUT]{ctx: ctx, out: out, cancel: cancel}

			collected := make(chan struct{})
			go func() {
				defer close(collected)
				resequence(results, em)
			}()

			go func() {
				p := newPool(concurrency)
				defer close(out)
				defer cancel()
				finish := func() {
					p.wait()
					close(results)
					<-collected
				}

				idx := 0
				for res := range upstream {
					if res.IsError() {
						// Queued behind the items read before it.
						select {
						case <-ctx.Done():
						case results <- done[OUT]{idx: idx, err: res.Error()}:
						}
						finish()
						return
					}
					if !res.IsValue() {
						continue
					}
					i, v := idx, res.Value()
					idx++
					ok := p.submit(ctx, func() {
						d := done[OUT]{idx: i}
						var sub flow.Stream[OUT]
						if sub, d.err = open(name, fn, v); d.err == nil && sub != nil {
							d.items, d.err = flow.Slice(ctx, sub)
						}
						select {
						case <-ctx.Done():
						case results <- d:
						}
					})
					if !ok {
						finish()
						return
					}
				}
				// The collector may still be emitting, so finish before
				// cancelling.
				finish()
			}()
			return out
		})
	})
}

// resequence emits collected sub-streams in index order.
func resequence[OUT any](results <-chan done[OUT], em *emitter[OUT]) {
	pending := make(map[int]done[OUT])
	next := 0
	for d := range results {
		pending[d.idx] = d
		for {
			d, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if d.err != nil {
				em.emit(core.Err[OUT](d.err))
				return
			}
			for _, item := range d.items {
				if !em.emit(core.Ok(item)) {
					return
				}
			}
		}
	}
}

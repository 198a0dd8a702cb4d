package combine

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// RaceStreams emits from whichever stream produces a value first and
// cancels the others. Streams that end or fail before producing a value
// drop out of the race; if all of them do, the first failure, if any, ends
// the result.
func RaceStreams[T any](streams ...core.Stream[T]) core.Stream[T] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
		out := make(chan core.Result[T], core.BufferSize(ctx))

		go func() {
			defer close(out)

			n := len(streams)
			cancels := make([]context.CancelFunc, n)
			cases := make([]reflect.SelectCase, 0, n+1)
			owners := make([]int, 0, n)
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
			for i, s := range streams {
				sctx, cancel := context.WithCancel(ctx)
				cancels[i] = cancel
				cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.Emit(sctx))})
				owners = append(owners, i)
			}
			defer func() {
				for _, cancel := range cancels {
					cancel()
				}
			}()

			var firstErr error
			for len(cases) > 1 {
				chosen, recv, ok := reflect.Select(cases)
				if chosen == 0 {
					return
				}
				owner := owners[chosen-1]
				var res core.Result[T]
				if ok {
					res = recv.Interface().(core.Result[T])
				}
				if !ok || !res.IsValue() {
					if ok && res.IsSentinel() {
						continue
					}
					if ok && firstErr == nil {
						firstErr = res.Error()
					}
					cancels[owner]()
					cases = append(cases[:chosen], cases[chosen+1:]...)
					owners = append(owners[:chosen-1], owners[chosen:]...)
					continue
				}

				for i, cancel := range cancels {
					if i != owner {
						cancel()
					}
				}
				if !core.Send(ctx, out, res) {
					return
				}
				winner := cases[chosen].Chan.Interface().(<-chan core.Result[T])
				for res := range winner {
					if !core.Send(ctx, out, res) || res.IsError() {
						return
					}
				}
				return
			}
			if firstErr != nil {
				core.Send(ctx, out, core.Err[T](firstErr))
			}
		}()
		return out
	})
}

type raceEvent[T any] struct {
	racer int
	res   core.Result[T]
	end   bool
}

// Race starts every flow on each input item at the same time. The first
// flow to produce a value wins that item: its outputs for the item are
// emitted and the other flows are cancelled. Flows that fail before any
// value is produced drop out; if every flow fails, the first failure ends
// the stream. An item no flow produces a value for is dropped.
func Race[IN, OUT any](flows ...flow.Flow[IN, OUT]) flow.Flow[IN, OUT] {
	if len(flows) == 0 {
		panic(core.Misconfigured("race", "no flows to race"))
	}
	name := fmt.Sprintf("race(%s)", names(flows))
	return flow.New(name, func(_ context.Context, in flow.Stream[IN]) flow.Stream[OUT] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[OUT] {
			out := make(chan core.Result[OUT], core.BufferSize(ctx))
			ctx, cancel := context.WithCancel(ctx)
			upstream := in.Emit(ctx)

			go func() {
				defer close(out)
				defer cancel()

				for res := range upstream {
					if !res.IsValue() {
						if !core.Send(ctx, out, core.Retype[OUT](res)) || res.IsError() {
							return
						}
						continue
					}
					if !raceItem(ctx, flows, res.Value(), out) {
						return
					}
				}
			}()
			return out
		})
	})
}

// raceItem runs one round of Race and reports whether the stream may go on.
func raceItem[IN, OUT any](ctx context.Context, flows []flow.Flow[IN, OUT], v IN, out chan<- core.Result[OUT]) bool {
	events := make(chan raceEvent[OUT])
	cancels := make([]context.CancelFunc, len(flows))
	var wg sync.WaitGroup
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
		wg.Wait()
	}()

	for i, f := range flows {
		rctx, cancel := context.WithCancel(ctx)
		cancels[i] = cancel
		wg.Add(1)
		go func(i int, s core.Stream[OUT]) {
			defer wg.Done()
			send := func(ev raceEvent[OUT]) bool {
				select {
				case <-rctx.Done():
					return false
				case events <- ev:
					return true
				}
			}
			for res := range s.Emit(rctx) {
				if !send(raceEvent[OUT]{racer: i, res: res}) || res.IsError() {
					return
				}
			}
			send(raceEvent[OUT]{racer: i, end: true})
		}(i, f.Apply(rctx, flow.Once(v)))
	}

	winner := -1
	finished := 0
	var firstErr error
	for {
		var ev raceEvent[OUT]
		select {
		case <-ctx.Done():
			return false
		case ev = <-events:
		}
		if winner >= 0 && ev.racer != winner {
			continue
		}

		switch {
		case ev.end:
			if winner >= 0 {
				return true
			}
			finished++
		case ev.res.IsError():
			if winner >= 0 {
				core.Send(ctx, out, ev.res)
				return false
			}
			if firstErr == nil {
				firstErr = ev.res.Error()
			}
			cancels[ev.racer]()
			finished++
		case ev.res.IsValue():
			if winner < 0 {
				winner = ev.racer
				for i, cancel := range cancels {
					if i != winner {
						cancel()
					}
				}
			}
			if !core.Send(ctx, out, ev.res) {
				return false
			}
		}

		if winner < 0 && finished == len(flows) {
			if firstErr != nil {
				core.Send(ctx, out, core.Err[OUT](firstErr))
				return false
			}
			return true
		}
	}
}

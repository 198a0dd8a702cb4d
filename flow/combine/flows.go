package combine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

func names[IN, OUT any](flows []flow.Flow[IN, OUT]) string {
	return strings.Join(lo.Map(flows, func(f flow.Flow[IN, OUT], _ int) string {
		return f.Name()
	}), ", ")
}

// ChainFlows reads the whole input, then runs each flow over it in turn and
// concatenates their outputs. The input is read once, whatever the number
// of flows; an upstream error ends the stream before any flow runs.
func ChainFlows[T any](flows ...flow.Flow[T, T]) flow.Flow[T, T] {
	return flow.New(fmt.Sprintf("chain_flows(%s)", names(flows)), func(_ context.Context, in flow.Stream[T]) flow.Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
			out := make(chan core.Result[T], core.BufferSize(ctx))
			go func() {
				defer close(out)
				items, err := flow.Slice(ctx, in)
				if err != nil {
					core.Send(ctx, out, core.Err[T](err))
					return
				}
				for _, f := range flows {
					if !pipe(ctx, f.Apply(ctx, flow.FromSlice(items)), out) {
						return
					}
				}
			}()
			return out
		})
	})
}

// MergeFlows runs every flow over the same input, read once, and
// interleaves their outputs one at a time in turn. A flow whose turn comes
// with no output ready is waited for; it drops out of the rotation only
// once it has finished. Outputs waiting for their turn are queued without
// bound so that no flow blocks another, and a flow that finishes without
// reading all of its input stops holding the shared read back.
func MergeFlows[IN, OUT any](flows ...flow.Flow[IN, OUT]) flow.Flow[IN, OUT] {
	return flow.New(fmt.Sprintf("merge_flows(%s)", names(flows)), func(_ context.Context, in flow.Stream[IN]) flow.Stream[OUT] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[OUT] {
			out := make(chan core.Result[OUT], core.BufferSize(ctx))
			if len(flows) == 0 {
				close(out)
				return out
			}
			ctx, cancel := context.WithCancel(ctx)

			// The shared read belongs to this stage, not to whichever flow
			// subscribes first and may finish early.
			h := newHub(in, len(flows), DefaultPartitionBuffer, func(IN) int { return -1 })
			h.start.Do(func() { go h.pump(ctx) })
			inputs := h.streams()
			lanes := make([]*core.Queue[core.Result[OUT]], len(flows))
			var wg sync.WaitGroup
			for i, f := range flows {
				lanes[i] = core.NewQueue[core.Result[OUT]]()
				wg.Add(1)
				go func(lane *core.Queue[core.Result[OUT]], input *side[IN], s core.Stream[OUT]) {
					defer wg.Done()
					defer lane.Close(nil)
					// A flow may end without subscribing to its input.
					defer input.release()
					for res := range s.Emit(ctx) {
						lane.Push(res)
					}
				}(lanes[i], h.sides[i], f.Apply(ctx, inputs[i]))
			}

			go func() {
				defer close(out)
				defer wg.Wait()
				defer cancel()

				active := lanes
				for i := 0; len(active) > 0; {
					res, ok, _ := active[i].Next(ctx)
					if !ok {
						if ctx.Err() != nil {
							return
						}
						active = append(active[:i:i], active[i+1:]...)
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
	})
}

// ParallelFlows runs every flow on each item concurrently and emits one
// slice per item holding all their outputs, in flow order. The first
// failing flow cancels the others and ends the stream with its error.
func ParallelFlows[IN, OUT any](flows ...flow.Flow[IN, OUT]) flow.Flow[IN, []OUT] {
	return gather(fmt.Sprintf("parallel(%s)", names(flows)), flows, false)
}

// ParallelFlowsSuccessful is ParallelFlows that leaves failed flows out of
// the slice instead of ending the stream.
func ParallelFlowsSuccessful[IN, OUT any](flows ...flow.Flow[IN, OUT]) flow.Flow[IN, []OUT] {
	return gather(fmt.Sprintf("parallel_successful(%s)", names(flows)), flows, true)
}

func gather[IN, OUT any](name string, flows []flow.Flow[IN, OUT], skipFailed bool) flow.Flow[IN, []OUT] {
	if len(flows) == 0 {
		panic(core.Misconfigured(name, "no flows"))
	}
	return flow.Lift(name, func() flow.StepFunc[IN, []OUT] {
		return func(ctx context.Context, v IN) (trampoline.Bounce[[]OUT], error) {
			results := make([][]OUT, len(flows))
			g, gctx := errgroup.WithContext(ctx)
			for i, f := range flows {
				g.Go(func() error {
					items, err := f.ToList(gctx, flow.Once(v))
					if err != nil && skipFailed {
						return nil
					}
					results[i] = items
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return trampoline.Halt[[]OUT](), err
			}
			return trampoline.Next(lo.Flatten(results)), nil
		}
	})
}

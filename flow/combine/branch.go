package combine

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// Branch reads the whole input and splits it by pred, then runs onTrue over
// the matching items and onFalse over the rest, in that order. A zero
// onFalse drops the items that do not match.
func Branch[IN, OUT any](pred func(IN) bool, onTrue, onFalse flow.Flow[IN, OUT]) flow.Flow[IN, OUT] {
	if pred == nil {
		panic(core.Misconfigured("branch", "nil predicate"))
	}
	name := fmt.Sprintf("branch(%s, %s, %s)", flow.FuncName(pred), onTrue.Name(), flowName(onFalse))

	return flow.New(name, func(_ context.Context, in flow.Stream[IN]) flow.Stream[OUT] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[OUT] {
			out := make(chan core.Result[OUT], core.BufferSize(ctx))
			go func() {
				defer close(out)
				items, err := flow.Slice(ctx, in)
				if err != nil {
					core.Send(ctx, out, core.Err[OUT](err))
					return
				}
				yes, no := lo.FilterReject(items, func(v IN, _ int) bool { return pred(v) })
				if len(yes) > 0 && !pipe(ctx, onTrue.Apply(ctx, flow.FromSlice(yes)), out) {
					return
				}
				if len(no) > 0 && !onFalse.IsZero() {
					pipe(ctx, onFalse.Apply(ctx, flow.FromSlice(no)), out)
				}
			}()
			return out
		})
	})
}

// IfThen runs then over each item for which pred holds and els over the
// others, one item at a time, keeping input order. A zero els drops the
// items pred rejects.
func IfThen[IN, OUT any](pred func(IN) bool, then, els flow.Flow[IN, OUT]) flow.Flow[IN, OUT] {
	if pred == nil {
		panic(core.Misconfigured("if_then", "nil predicate"))
	}
	name := fmt.Sprintf("if_then(%s, %s, %s)", flow.FuncName(pred), then.Name(), flowName(els))
	return route(name, func(v IN) (flow.Flow[IN, OUT], bool) {
		if pred(v) {
			return then, true
		}
		return els, !els.IsZero()
	})
}

// Switch sends each item through the flow registered for its selector key,
// or through fallback when no case matches. Items matching no case are
// dropped when fallback is the zero Flow.
func Switch[IN any, K comparable, OUT any](selector func(IN) K, cases map[K]flow.Flow[IN, OUT], fallback flow.Flow[IN, OUT]) flow.Flow[IN, OUT] {
	if selector == nil {
		panic(core.Misconfigured("switch", "nil selector"))
	}
	name := fmt.Sprintf("switch(%s, %d cases, %s)", flow.FuncName(selector), len(cases), flowName(fallback))
	return route(name, func(v IN) (flow.Flow[IN, OUT], bool) {
		if f, ok := cases[selector(v)]; ok {
			return f, true
		}
		return fallback, !fallback.IsZero()
	})
}

// route runs each item through the flow pick chooses, on a one-item stream.
func route[IN, OUT any](name string, pick func(IN) (flow.Flow[IN, OUT], bool)) flow.Flow[IN, OUT] {
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
					f, ok, err := pickSafely(pick, res.Value())
					if err != nil {
						core.Send(ctx, out, core.Err[OUT](core.AsExecutionError(name, err)))
						return
					}
					if ok && !pipe(ctx, f.Apply(ctx, flow.Once(res.Value())), out) {
						return
					}
				}
			}()
			return out
		})
	})
}

func pickSafely[IN, OUT any](pick func(IN) (flow.Flow[IN, OUT], bool), v IN) (flow.Flow[IN, OUT], bool, error) {
	var ok bool
	f, err := core.Protect(func() (flow.Flow[IN, OUT], error) {
		var f flow.Flow[IN, OUT]
		f, ok = pick(v)
		return f, nil
	})
	return f, ok, err
}

func flowName[IN, OUT any](f flow.Flow[IN, OUT]) string {
	if f.IsZero() {
		return "none"
	}
	return f.Name()
}

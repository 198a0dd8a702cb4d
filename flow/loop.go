package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Step is an item-wise stage that steers the trampoline directly: return
// trampoline.Next to continue, Drop to skip the item, Restart to run the
// chain again from its first step, and Stop or Halt to end the stream.
type Step[T any] = trampoline.Step[T]

// ExitableChain runs steps in order for every item. A Restart from any step
// starts the chain over with the carried value; a Stop emits its value and
// ends the stream. maxRestarts bounds the restarts per item (zero means
// unbounded); exceeding it fails the stream with trampoline.ErrRestartLimit.
func ExitableChain[T any](maxRestarts int, steps ...Step[T]) Flow[T, T] {
	if len(steps) == 0 {
		return Identity[T]()
	}
	name := fmt.Sprintf("exitable_chain(%s)", stepNames(steps))
	return Lift(name, func() StepFunc[T, T] {
		prog := trampoline.NewProgram(steps, nil, trampoline.WithMaxRestarts(maxRestarts))
		return prog.Run
	})
}

// Loop runs steps repeatedly over each item, feeding every pass's output to
// the next pass, until a step returns Stop (the carried value is emitted)
// or Drop (the item is discarded). The stream then moves on to the next
// item. Loops run on the trampoline, so a million passes use no extra stack.
func Loop[T any](maxPasses int, steps ...Step[T]) Flow[T, T] {
	name := fmt.Sprintf("trampoline(%s)", stepNames(steps))
	return Lift(name, func() StepFunc[T, T] {
		prog := trampoline.NewProgram(steps, nil, trampoline.WithMaxRestarts(maxPasses))
		return func(ctx context.Context, v T) (trampoline.Bounce[T], error) {
			out, ok, err := prog.Loop(ctx, v)
			switch {
			case err != nil:
				return trampoline.Halt[T](), err
			case !ok:
				return trampoline.Drop[T](), nil
			}
			return trampoline.Next(out), nil
		}
	})
}

// WhileCondition applies body to an item for as long as cond holds and
// emits the result. maxIterations bounds the iterations per item; zero
// means unbounded.
func WhileCondition[T any](cond func(T) bool, body func(T) (T, error), maxIterations int) Flow[T, T] {
	if cond == nil || body == nil {
		panic(core.Misconfigured("while_condition", "nil condition or body"))
	}
	step := func(_ context.Context, v T) (trampoline.Bounce[T], error) {
		if !cond(v) {
			return trampoline.Stop(v), nil
		}
		next, err := body(v)
		if err != nil {
			return trampoline.Halt[T](), err
		}
		return trampoline.Next(next), nil
	}
	return Loop(maxIterations, step).Label(fmt.Sprintf("while_condition(%s)", FuncName(cond)))
}

// Conditional routes each item through then when cond holds and through
// els otherwise, keeping the first item the chosen flow produces. Use
// Identity for a branch that passes items through. Fused branches run
// inline on the trampoline.
func Conditional[T, OUT any](cond func(T) bool, then, els Flow[T, OUT]) Flow[T, OUT] {
	if cond == nil {
		panic(core.Misconfigured("conditional", "nil condition"))
	}
	name := fmt.Sprintf("conditional(%s ? %s : %s)", FuncName(cond), then.Name(), els.Name())
	return Lift(name, func() StepFunc[T, OUT] {
		runThen, runElse := inline(then), inline(els)
		return func(ctx context.Context, v T) (trampoline.Bounce[OUT], error) {
			if cond(v) {
				return runThen(ctx, v)
			}
			return runElse(ctx, v)
		}
	})
}

// SkipIf passes items for which cond holds through unchanged and sends the
// rest through target.
func SkipIf[T any](cond func(T) bool, target Flow[T, T]) Flow[T, T] {
	return Conditional(cond, Identity[T](), target).
		Label(fmt.Sprintf("skip_if(%s, %s)", FuncName(cond), target.Name()))
}

// inline returns a step running f over a single item. Fused flows are
// compiled once and driven directly; other flows are applied to a
// one-item stream and their first output is kept.
func inline[IN, OUT any](f Flow[IN, OUT]) StepFunc[IN, OUT] {
	if f.fused {
		prog := f.chain.Compile()
		return func(ctx context.Context, v IN) (trampoline.Bounce[OUT], error) {
			b, err := prog.Run(ctx, any(v))
			if err != nil {
				return trampoline.Halt[OUT](), err
			}
			if !b.Emits() {
				return trampoline.Drop[OUT](), nil
			}
			return trampoline.Next(cast[OUT](b.Value())), nil
		}
	}
	return func(ctx context.Context, v IN) (trampoline.Bounce[OUT], error) {
		out, err := f.First(ctx, Once(v))
		switch {
		case errors.Is(err, core.ErrEmptyStream):
			return trampoline.Drop[OUT](), nil
		case err != nil:
			return trampoline.Halt[OUT](), err
		}
		return trampoline.Next(out), nil
	}
}

func stepNames[T any](steps []Step[T]) string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = FuncName(s)
	}
	return strings.Join(names, ", ")
}

package trampoline

import (
	"context"
	"errors"
	"fmt"

	"github.com/goldentooth/flow-engine/flow/core"
)

// ErrRestartLimit is returned when a pass restarts or loops more often than
// the program allows.
var ErrRestartLimit = errors.New("trampoline restart limit exceeded")

// cancelCheckInterval bounds how many steps run between context checks.
const cancelCheckInterval = 1024

// Step evaluates one stage of a chain for a single item.
type Step[T any] func(context.Context, T) (Bounce[T], error)

// Program is a flattened chain of steps ready to drive. A Program holds the
// per-subscription state of its steps and must not be shared between
// concurrent consumers.
type Program[T any] struct {
	steps       []Step[T]
	names       []string
	maxRestarts int
}

// Option configures a Program.
type Option func(*options)

type options struct {
	maxRestarts int
}

// WithMaxRestarts bounds the number of Break restarts per item, and the
// number of iterations of Loop. Zero means unbounded.
func WithMaxRestarts(n int) Option {
	return func(o *options) {
		o.maxRestarts = n
	}
}

// NewProgram builds a Program from steps. names, when given, label the steps
// in errors and must have the same length as steps.
func NewProgram[T any](steps []Step[T], names []string, opts ...Option) *Program[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if names != nil && len(names) != len(steps) {
		panic(core.Misconfigured("trampoline", "got %d names for %d steps", len(names), len(steps)))
	}
	return &Program[T]{steps: steps, names: names, maxRestarts: o.maxRestarts}
}

// Len returns the number of steps.
func (p *Program[T]) Len() int { return len(p.steps) }

func (p *Program[T]) stepName(i int) string {
	if p.names == nil {
		return fmt.Sprintf("step %d", i)
	}
	return p.names[i]
}

// Run drives v through the chain once. The returned bounce is never Break:
// restarts are resolved inside the loop. A Continue result means the value
// reached the end of the chain. An Exit carrying a value finishes the pass
// through the remaining steps and is returned as Exit, so the caller emits
// it and then terminates. Errors and panics raised by a step are reported as
// core.ExecutionError naming that step.
func (p *Program[T]) Run(ctx context.Context, v T) (b Bounce[T], err error) {
	pc := 0
	defer func() {
		if r := recover(); r != nil {
			err = core.AsExecutionError(p.stepName(pc), core.NewPanicError(r))
		}
	}()

	restarts := 0
	exiting := false
	for pc < len(p.steps) {
		if pc%cancelCheckInterval == cancelCheckInterval-1 {
			if err := ctx.Err(); err != nil {
				return Halt[T](), err
			}
		}

		next, err := p.steps[pc](ctx, v)
		if err != nil {
			return Halt[T](), core.AsExecutionError(p.stepName(pc), err)
		}

		switch next.signal {
		case Continue:
			v = next.value
			pc++
		case Skip:
			if exiting {
				return Halt[T](), nil
			}
			return next, nil
		case Exit:
			if !next.hasValue {
				return next, nil
			}
			exiting = true
			v = next.value
			pc++
		case Break:
			if exiting {
				return Halt[T](), nil
			}
			restarts++
			if p.maxRestarts > 0 && restarts > p.maxRestarts {
				return Halt[T](), core.AsExecutionError(p.stepName(pc), ErrRestartLimit)
			}
			if next.hasValue {
				v = next.value
			}
			pc = 0
		}
	}
	if exiting {
		return Stop(v), nil
	}
	return Next(v), nil
}

// Loop runs the chain repeatedly, feeding each pass's output to the next
// pass, until a step returns Exit (the carried value is the result) or Skip
// (the item is dropped and Loop reports ok=false).
func (p *Program[T]) Loop(ctx context.Context, v T) (result T, ok bool, err error) {
	if len(p.steps) == 0 {
		return v, true, nil
	}
	for iter := 0; ; iter++ {
		if p.maxRestarts > 0 && iter > p.maxRestarts {
			return result, false, core.AsExecutionError("loop", ErrRestartLimit)
		}
		if err := ctx.Err(); err != nil {
			return result, false, err
		}

		b, err := p.Run(ctx, v)
		if err != nil {
			return result, false, err
		}
		switch b.signal {
		case Skip:
			return result, false, nil
		case Exit:
			if !b.hasValue {
				return result, false, nil
			}
			return b.value, true, nil
		default:
			v = b.value
		}
	}
}

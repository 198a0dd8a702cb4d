package flow

import (
	"context"

	"github.com/goldentooth/flow-engine/flow/core"
)

// ToList runs the flow over in and collects every output. On failure it
// returns the outputs produced before the error together with the error.
func (f Flow[IN, OUT]) ToList(ctx context.Context, in Stream[IN]) ([]OUT, error) {
	return core.Slice(ctx, f.Apply(ctx, in))
}

// Collect is ToList.
func (f Flow[IN, OUT]) Collect(ctx context.Context, in Stream[IN]) ([]OUT, error) {
	return f.ToList(ctx, in)
}

// ForEach runs the flow over in and calls fn for every output.
func (f Flow[IN, OUT]) ForEach(ctx context.Context, in Stream[IN], fn func(OUT) error) error {
	return core.ForEach(ctx, f.Apply(ctx, in), fn)
}

// First returns the first output and cancels the rest of the run.
func (f Flow[IN, OUT]) First(ctx context.Context, in Stream[IN]) (OUT, error) {
	return core.First(ctx, f.Apply(ctx, in))
}

// Preview returns at most limit outputs, cancelling the run once it has them.
func (f Flow[IN, OUT]) Preview(ctx context.Context, in Stream[IN], limit int) ([]OUT, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make([]OUT, 0, limit)
	for res := range f.Apply(ctx, in).Emit(ctx) {
		switch {
		case res.IsError():
			return items, res.Error()
		case res.IsValue():
			items = append(items, res.Value())
			if len(items) == limit {
				return items, nil
			}
		}
	}
	return items, ctx.Err()
}

// Validate checks cfg's validate struct tags and returns a
// *ConfigurationError describing the first violation.
func Validate(op string, cfg any) error {
	return core.ValidateConfig(op, cfg)
}

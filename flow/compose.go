package flow

import (
	"context"

	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Compose returns the flow that feeds f's output into g. Composition is
// associative and Identity is its unit. Composing two fused flows
// concatenates their stage chains in O(1) and the result is named after its
// stages. Otherwise the plans are joined in O(1), and fused steps that end
// up next to each other still run in a single loop.
func Compose[A, B, C any](f Flow[A, B], g Flow[B, C]) Flow[A, C] {
	out := Flow[A, C]{meta: f.meta.merge(g.meta)}
	if f.fused && g.fused {
		out.fused = true
		out.chain = trampoline.Concat(f.chain, g.chain)
		return out
	}
	out.parts = joinParts(f.plan(), g.plan())
	return out
}

// Then appends a same-typed flow. It is Compose for the common
// Flow[T, T] case, usable as a method.
func (f Flow[IN, OUT]) Then(g Flow[OUT, OUT]) Flow[IN, OUT] {
	return Compose(f, g)
}

// Chain composes flows left to right. With no arguments it returns Identity.
func Chain[T any](flows ...Flow[T, T]) Flow[T, T] {
	out := Identity[T]()
	for _, f := range flows {
		out = Compose(out, f)
	}
	return out
}

// Through composes two core Transformers, as Compose does for flows.
func Through[IN, MID, OUT any](t1 Transformer[IN, MID], t2 Transformer[MID, OUT]) Transformer[IN, OUT] {
	return Compose(FromTransformer("through", t1), FromTransformer("through", t2)).Transform()
}

// Pipe applies flows to a source stream in order.
func Pipe[T any](ctx context.Context, source Stream[T], flows ...Flow[T, T]) Stream[T] {
	return Chain(flows...).Apply(ctx, source)
}

// MapFlow maps fn over the output of f.
func MapFlow[IN, OUT, R any](f Flow[IN, OUT], fn func(OUT) (R, error)) Flow[IN, R] {
	return Compose(f, Map(fn))
}

// FlatMapFlow expands every output of f into a sub-stream, flattened in order.
func FlatMapFlow[IN, OUT, R any](f Flow[IN, OUT], fn func(OUT) Stream[R]) Flow[IN, R] {
	return Compose(f, FlatMap(fn))
}

// Filter keeps the outputs of f that satisfy pred.
func (f Flow[IN, OUT]) Filter(pred func(OUT) bool) Flow[IN, OUT] {
	return Compose(f, Filter(pred))
}

// Tap runs fn on every output of f for its side effect.
func (f Flow[IN, OUT]) Tap(fn func(OUT) error) Flow[IN, OUT] {
	return Compose(f, Tap(fn))
}

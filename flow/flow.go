package flow

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"runtime"
	"strings"

	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Metadata is free-form diagnostic data attached to a Flow.
type Metadata map[string]any

// merge returns a new map holding m overlaid with other. Nil when both are
// empty, so composing metadata-free flows allocates nothing.
func (m Metadata) merge(other Metadata) Metadata {
	switch {
	case len(m) == 0 && len(other) == 0:
		return nil
	case len(other) == 0:
		return m
	case len(m) == 0:
		return other
	}
	out := make(Metadata, len(m)+len(other))
	maps.Copy(out, m)
	maps.Copy(out, other)
	return out
}

// StepFunc is an item-wise stage: it receives one item and tells the fused
// loop what to do with it through a trampoline.Bounce.
type StepFunc[IN, OUT any] func(context.Context, IN) (trampoline.Bounce[OUT], error)

// Flow is an immutable, named transformation from a Stream[IN] to a
// Stream[OUT]. Build flows with the factories in this package or with
// combinators; the zero value is not usable.
type Flow[IN, OUT any] struct {
	name string
	meta Metadata

	// Fused flows keep their stages as a trampoline chain and run them in a
	// single loop. Others carry a plan of chains and stream-level stages.
	fused bool
	chain *trampoline.Chain[any]
	parts *pipeline
}

// New creates a Flow from a stream-level transform. fn must not emit its
// input before the returned stream is emitted.
func New[IN, OUT any](name string, fn func(ctx context.Context, in Stream[IN]) Stream[OUT]) Flow[IN, OUT] {
	if fn == nil {
		panic(core.Misconfigured(name, "nil transform"))
	}
	st := &stage{name: name, run: func(ctx context.Context, up boxed, pre *trampoline.Chain[any]) boxed {
		return box(fn(ctx, unbox[IN](up, pre)))
	}}
	return Flow[IN, OUT]{name: name, parts: stagePart(st)}
}

// FromTransformer adapts a core Transformer into a Flow.
func FromTransformer[IN, OUT any](name string, t Transformer[IN, OUT]) Flow[IN, OUT] {
	return New(name, t.Apply)
}

// Lift creates a fused, item-wise Flow. newStep is called once per
// subscription, so per-stream state (counters, seen-sets) lives in the
// closure it returns.
func Lift[IN, OUT any](name string, newStep func() StepFunc[IN, OUT]) Flow[IN, OUT] {
	if newStep == nil {
		panic(core.Misconfigured(name, "nil step"))
	}
	leaf := trampoline.Leaf(name, func() trampoline.Step[any] {
		step := newStep()
		return func(ctx context.Context, v any) (trampoline.Bounce[any], error) {
			b, err := step(ctx, cast[IN](v))
			return trampoline.Map(b, func(o OUT) any { return o }), err
		}
	})
	return Flow[IN, OUT]{name: name, fused: true, chain: leaf}
}

// cast converts a boxed value back to T, mapping nil to T's zero value so
// interface-typed items survive the fused loop.
func cast[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}
	return v.(T)
}

// Name returns the flow's display name.
func (f Flow[IN, OUT]) Name() string {
	switch {
	case f.name != "":
		return f.name
	case f.fused && f.chain.Len() == 0:
		return "identity"
	case f.fused:
		return strings.Join(f.chain.Names(), " >> ")
	case f.parts != nil:
		return strings.Join(f.parts.names(), " >> ")
	}
	return "flow"
}

func (f Flow[IN, OUT]) String() string {
	return fmt.Sprintf("Flow(%s)", f.Name())
}

// Metadata returns a copy of the flow's metadata.
func (f Flow[IN, OUT]) Metadata() Metadata {
	return maps.Clone(f.meta)
}

// Label returns a copy of the flow with a new display name.
func (f Flow[IN, OUT]) Label(name string) Flow[IN, OUT] {
	f.name = name
	return f
}

// WithMetadata returns a copy of the flow with key set to value.
func (f Flow[IN, OUT]) WithMetadata(key string, value any) Flow[IN, OUT] {
	f.meta = f.meta.merge(Metadata{key: value})
	return f
}

// IsZero reports whether f is the zero Flow, which combinators taking an
// optional branch read as "no flow".
func (f Flow[IN, OUT]) IsZero() bool { return !f.fused && f.parts == nil }

// Fused reports whether the flow runs as a single trampolined loop.
func (f Flow[IN, OUT]) Fused() bool { return f.fused }

// Stages returns the number of fused steps plus stream-level stages.
func (f Flow[IN, OUT]) Stages() int {
	if f.fused {
		return f.chain.Len()
	}
	return f.parts.size()
}

// plan returns the flow as a pipeline, labelled with its name if it has one.
func (f Flow[IN, OUT]) plan() *pipeline {
	if f.fused {
		return chainPart(f.chain).labeled(f.name)
	}
	return f.parts.labeled(f.name)
}

// Apply transforms in. The result is a single-consumer stream: emitting it a
// second time yields ErrStreamConsumed.
func (f Flow[IN, OUT]) Apply(ctx context.Context, in Stream[IN]) Stream[OUT] {
	return core.Single(f.stream(ctx, in))
}

// Transform is Apply for callers that want a Flow as a core.Transformer.
func (f Flow[IN, OUT]) Transform() Transformer[IN, OUT] {
	return transformer[IN, OUT]{f}
}

type transformer[IN, OUT any] struct{ f Flow[IN, OUT] }

func (t transformer[IN, OUT]) Apply(ctx context.Context, in Stream[IN]) Stream[OUT] {
	return t.f.Apply(ctx, in)
}

func (f Flow[IN, OUT]) stream(ctx context.Context, in Stream[IN]) Stream[OUT] {
	if f.fused {
		return unbox[OUT](box(in), f.chain)
	}
	if f.parts == nil {
		panic(core.Misconfigured("apply", "zero Flow value"))
	}
	out, pending := f.parts.run(ctx, box(in))
	return unbox[OUT](out, pending)
}

// FuncName returns a short display name for fn, used in combinator names
// such as "map(double)". Anonymous functions are shown as "fn".
func FuncName(fn any) string {
	if fn == nil {
		return "nil"
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Sprintf("%T", fn)
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return "fn"
	}
	name := rf.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if strings.Contains(name, ".func") || strings.HasPrefix(name, "func") {
		return "fn"
	}
	name = strings.TrimSuffix(name, "-fm")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

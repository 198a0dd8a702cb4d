// Package flow builds type-safe, composable stream pipelines out of small
// named transformation units.
//
// A Flow[IN, OUT] turns a Stream[IN] into a Stream[OUT]. Flows are immutable
// values: combinators and Compose return new flows and never change the
// ones they were given. Item-wise stages (Map, Filter, Tap, FromFunction and
// the filter package's Take/Skip/Guard family) are fused into a single
// trampolined loop, so a chain of any length runs in one goroutine with a
// constant call stack. Stream-level stages (batching, timing, concurrency)
// run in their own goroutine each, and the item-wise stages between two of
// them still share one loop.
//
// This package is the primary user-facing API. The combinator packages
// (filter, aggregate, timing, flowerrors, combine, parallel, observe) build
// on it; flow/core holds the low-level stream abstractions.
package flow

import (
	"context"
	"iter"

	"github.com/goldentooth/flow-engine/flow/core"
)

// Type aliases for core stream abstractions.
// These allow users to work with the framework without importing core directly.
type (
	// Result represents one stream event: a Value, an Error, or a Sentinel.
	Result[T any] = core.Result[T]

	// Stream represents a lazy sequence of Results.
	Stream[T any] = core.Stream[T]

	// Transformer transforms a Stream of type IN into a Stream of type OUT.
	Transformer[IN, OUT any] = core.Transformer[IN, OUT]

	// Emitter produces a channel of Results and implements Stream.
	Emitter[T any] = core.Emitter[T]

	// Transmitter transforms one channel of Results into another and implements Transformer.
	Transmitter[IN, OUT any] = core.Transmitter[IN, OUT]
)

// Error taxonomy.
type (
	ConfigurationError = core.ConfigurationError
	ExecutionError     = core.ExecutionError
	TimeoutError       = core.TimeoutError
	ValidationError    = core.ValidationError
)

var (
	// ErrEndOfStream is the sentinel error indicating normal stream termination.
	ErrEndOfStream = core.ErrEndOfStream

	// ErrStreamConsumed is reported when a flow's output stream is emitted twice.
	ErrStreamConsumed = core.ErrStreamConsumed

	// ErrEmptyStream is returned by First on a stream without values.
	ErrEmptyStream = core.ErrEmptyStream
)

// Unit is the input type of source flows, which ignore their input.
type Unit = struct{}

// Ok creates a successful Result containing the given value.
func Ok[T any](value T) Result[T] {
	return core.Ok(value)
}

// Err creates an error Result. It terminates the stream carrying it.
func Err[T any](err error) Result[T] {
	return core.Err[T](err)
}

// Emit wraps a channel-producing function as a Stream.
func Emit[T any](emitter func(context.Context) <-chan Result[T]) Emitter[T] {
	return core.Emit(emitter)
}

// Transmit wraps a channel-transforming function as a Transformer.
func Transmit[IN, OUT any](transmitter func(context.Context, <-chan Result[IN]) <-chan Result[OUT]) Transmitter[IN, OUT] {
	return core.Transmit(transmitter)
}

// Slice collects all values from a stream, returning the first error.
func Slice[T any](ctx context.Context, in Stream[T]) ([]T, error) {
	return core.Slice(ctx, in)
}

// First returns the first value of a stream.
func First[T any](ctx context.Context, in Stream[T]) (T, error) {
	return core.First(ctx, in)
}

// Run drains a stream for its side effects.
func Run[T any](ctx context.Context, in Stream[T]) error {
	return core.Run(ctx, in)
}

// All adapts a stream to a range-over-func iterator.
func All[T any](ctx context.Context, stream Stream[T]) iter.Seq[Result[T]] {
	return core.All(ctx, stream)
}

// Package core defines the core abstractions for data flow processing:
// streams, transformers, emitters and the Result event type they carry.
//
// NOTE: apart from configuration validation this package depends only on
// the standard library and on no other flow package.
package core

import (
	"context"
	"iter"
	"sync/atomic"
)

// Stream represents a lazy sequence of Results. Emit starts production; the
// returned channel is closed when the stream ends, fails, or the context is
// cancelled.
// Stream answers the question: "What operations will produce the stream's data?".
type Stream[OUT any] interface {
	Emit(context.Context) <-chan Result[OUT]

	Collect(context.Context) []Result[OUT]
	All(context.Context) iter.Seq[Result[OUT]]
}

// Collect drains a stream into a slice of Results.
func Collect[OUT any](ctx context.Context, stream Stream[OUT]) []Result[OUT] {
	var results []Result[OUT]
	for res := range stream.Emit(ctx) {
		results = append(results, res)
	}
	return results
}

// All adapts a stream to a range-over-func iterator. Breaking out of the
// loop cancels the stream.
func All[OUT any](ctx context.Context, stream Stream[OUT]) iter.Seq[Result[OUT]] {
	return func(yield func(Result[OUT]) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		for res := range stream.Emit(ctx) {
			if !yield(res) {
				return
			}
		}
	}
}

// Transformer represents a data processing unit that transforms a Stream of
// type IN into a Stream of type OUT.
// It answers the question: "What operations are being applied to the stream's data?".
type Transformer[IN, OUT any] interface {
	Apply(context.Context, Stream[IN]) Stream[OUT]
}

// Single wraps a stream so it can be emitted only once. Later calls to Emit
// produce a stream holding a single ErrStreamConsumed error.
func Single[OUT any](stream Stream[OUT]) Stream[OUT] {
	if s, ok := stream.(*single[OUT]); ok {
		return s
	}
	return &single[OUT]{inner: stream}
}

type single[OUT any] struct {
	inner    Stream[OUT]
	consumed atomic.Bool
}

func (s *single[OUT]) Emit(ctx context.Context) <-chan Result[OUT] {
	if s.consumed.Swap(true) {
		out := make(chan Result[OUT], 1)
		out <- Err[OUT](ErrStreamConsumed)
		close(out)
		return out
	}
	return s.inner.Emit(ctx)
}

func (s *single[OUT]) Collect(ctx context.Context) []Result[OUT] {
	return Collect[OUT](ctx, s)
}

func (s *single[OUT]) All(ctx context.Context) iter.Seq[Result[OUT]] {
	return All[OUT](ctx, s)
}

package core

import (
	"context"
)

// Terminal functions are sinks that drive a stream to completion and
// produce a final result. They return the first error the stream carries;
// values received before it are never silently dropped without that error.

// Slice collects every value of the stream. Sentinels are skipped.
func Slice[OUT any](ctx context.Context, in Stream[OUT]) ([]OUT, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var result []OUT
	for res := range in.Emit(ctx) {
		switch {
		case res.IsError():
			return result, res.Error()
		case res.IsValue():
			result = append(result, res.Value())
		}
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// First returns the first value of the stream and cancels the rest.
func First[OUT any](ctx context.Context, in Stream[OUT]) (OUT, error) {
	var zero OUT

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for res := range in.Emit(ctx) {
		switch {
		case res.IsError():
			return zero, res.Error()
		case res.IsValue():
			return res.Value(), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return zero, ErrEmptyStream
}

// ForEach calls fn for every value. An error from fn stops the stream and
// is returned as is.
func ForEach[OUT any](ctx context.Context, in Stream[OUT], fn func(OUT) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for res := range in.Emit(ctx) {
		switch {
		case res.IsError():
			return res.Error()
		case res.IsValue():
			if err := fn(res.Value()); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

// Run drains the stream for its side effects.
func Run[OUT any](ctx context.Context, in Stream[OUT]) error {
	return ForEach(ctx, in, func(OUT) error { return nil })
}

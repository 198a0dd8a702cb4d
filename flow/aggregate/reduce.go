package aggregate

import (
	"context"
	"fmt"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Numeric is a constraint for types that support addition.
type Numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Scan is a running fold: it emits the accumulator after every item. The
// initial value itself is not emitted.
func Scan[T, R any](initial R, fn func(acc R, item T) R) flow.Flow[T, R] {
	if fn == nil {
		panic(core.Misconfigured("scan", "nil function"))
	}
	return flow.Lift(fmt.Sprintf("scan(%s)", flow.FuncName(fn)), func() flow.StepFunc[T, R] {
		acc := initial
		return func(_ context.Context, v T) (trampoline.Bounce[R], error) {
			acc = fn(acc, v)
			return trampoline.Next(acc), nil
		}
	})
}

// Fold reduces the stream to a single value emitted when the stream ends.
// An empty stream yields initial.
func Fold[T, R any](initial R, fn func(acc R, item T) R) flow.Flow[T, R] {
	if fn == nil {
		panic(core.Misconfigured("fold", "nil function"))
	}
	name := fmt.Sprintf("fold(%s)", flow.FuncName(fn))
	return stage(name, func(ctx context.Context, upstream <-chan core.Result[T], out sink[R]) {
		acc := initial
		var err error
		ended := each(ctx, upstream, out, func(v T) bool {
			acc, err = protect(name, func() R { return fn(acc, v) })
			return err == nil
		})
		switch {
		case err != nil:
			out.fail(err)
		case ended:
			out.send(acc)
		}
	})
}

// Reduce folds the stream using its first item as the initial value. An
// empty stream yields nothing.
func Reduce[T any](fn func(acc, item T) T) flow.Flow[T, T] {
	if fn == nil {
		panic(core.Misconfigured("reduce", "nil function"))
	}
	name := fmt.Sprintf("reduce(%s)", flow.FuncName(fn))
	return stage(name, func(ctx context.Context, upstream <-chan core.Result[T], out sink[T]) {
		var (
			acc     T
			started bool
			err     error
		)
		ended := each(ctx, upstream, out, func(v T) bool {
			if !started {
				acc, started = v, true
				return true
			}
			acc, err = protect(name, func() T { return fn(acc, v) })
			return err == nil
		})
		switch {
		case err != nil:
			out.fail(err)
		case ended && started:
			out.send(acc)
		}
	})
}

// Count emits the number of items once the stream ends.
func Count[T any]() flow.Flow[T, int] {
	return Fold(0, func(n int, _ T) int { return n + 1 }).Label("count")
}

// Sum emits the sum of all items once the stream ends.
func Sum[T Numeric]() flow.Flow[T, T] {
	return Fold(T(0), func(acc, v T) T { return acc + v }).Label("sum")
}

package aggregate

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Indexed pairs an item with its position in the stream.
type Indexed[T any] struct {
	Index int
	Value T
}

// WithIndex numbers items from 0.
func WithIndex[T any]() flow.Flow[T, Indexed[T]] {
	return flow.Lift("with_index", func() flow.StepFunc[T, Indexed[T]] {
		i := 0
		return func(_ context.Context, v T) (trampoline.Bounce[Indexed[T]], error) {
			out := Indexed[T]{Index: i, Value: v}
			i++
			return trampoline.Next(out), nil
		}
	})
}

// ToSlice emits every item as one slice when the stream ends. An empty
// stream yields an empty slice.
func ToSlice[T any]() flow.Flow[T, []T] {
	return Fold([]T{}, func(acc []T, v T) []T { return append(acc, v) }).Label("to_slice")
}

// ToMap emits a map of the items by key when the stream ends. Later items
// replace earlier ones with the same key.
func ToMap[T any, K comparable](keyFn func(T) K) flow.Flow[T, map[K]T] {
	if keyFn == nil {
		panic(core.Misconfigured("to_map", "nil key function"))
	}
	return stage(fmt.Sprintf("to_map(%s)", flow.FuncName(keyFn)), func(ctx context.Context, upstream <-chan core.Result[T], out sink[map[K]T]) {
		var items []T
		if each(ctx, upstream, out, func(v T) bool {
			items = append(items, v)
			return true
		}) {
			out.send(lo.KeyBy(items, keyFn))
		}
	})
}

// ToSet emits the distinct items as a set when the stream ends.
func ToSet[T comparable]() flow.Flow[T, map[T]struct{}] {
	return stage("to_set", func(ctx context.Context, upstream <-chan core.Result[T], out sink[map[T]struct{}]) {
		set := make(map[T]struct{})
		if each(ctx, upstream, out, func(v T) bool {
			set[v] = struct{}{}
			return true
		}) {
			out.send(set)
		}
	})
}

// DefaultIfEmpty emits value when the stream ends without items.
func DefaultIfEmpty[T any](value T) flow.Flow[T, T] {
	return stage("default_if_empty", func(ctx context.Context, upstream <-chan core.Result[T], out sink[T]) {
		seen := false
		if each(ctx, upstream, out, func(v T) bool {
			seen = true
			return out.send(v)
		}) && !seen {
			out.send(value)
		}
	})
}

// IgnoreElements drops every item, keeping only the stream's end or error.
func IgnoreElements[T any]() flow.Flow[T, T] {
	return flow.Lift("ignore_elements", func() flow.StepFunc[T, T] {
		return func(context.Context, T) (trampoline.Bounce[T], error) {
			return trampoline.Drop[T](), nil
		}
	})
}

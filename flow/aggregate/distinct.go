package aggregate

import (
	"context"
	"fmt"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Distinct suppresses items equal to one seen before. Seen items are kept
// for the lifetime of one stream consumption.
func Distinct[T comparable]() flow.Flow[T, T] {
	return distinct("distinct", func(v T) T { return v })
}

// DistinctBy suppresses items whose key has been seen before.
func DistinctBy[T any, K comparable](keyFn func(T) K) flow.Flow[T, T] {
	if keyFn == nil {
		panic(core.Misconfigured("distinct_by", "nil key function"))
	}
	return distinct(fmt.Sprintf("distinct_by(%s)", flow.FuncName(keyFn)), keyFn)
}

func distinct[T any, K comparable](name string, keyFn func(T) K) flow.Flow[T, T] {
	return flow.Lift(name, func() flow.StepFunc[T, T] {
		seen := make(map[K]struct{})
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			key := keyFn(v)
			if _, dup := seen[key]; dup {
				return trampoline.Drop[T](), nil
			}
			seen[key] = struct{}{}
			return trampoline.Next(v), nil
		}
	})
}

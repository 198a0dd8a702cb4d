package filter

import (
	"context"
	"fmt"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// DefaultGuardMessage is the violation reason used when Guard has no
// onViolation callback.
const DefaultGuardMessage = "guard condition failed"

// Guard passes items satisfying pred. The first item that does not ends the
// stream with a *core.ValidationError whose reason comes from onViolation,
// or DefaultGuardMessage when onViolation is nil.
func Guard[T any](pred func(T) bool, onViolation func(T) string) flow.Flow[T, T] {
	if pred == nil {
		panic(core.Misconfigured("guard", "nil predicate"))
	}
	name := fmt.Sprintf("guard(%s)", flow.FuncName(pred))
	return flow.Lift(name, func() flow.StepFunc[T, T] {
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			if pred(v) {
				return trampoline.Next(v), nil
			}
			reason := DefaultGuardMessage
			if onViolation != nil {
				reason = onViolation(v)
			}
			return trampoline.Halt[T](), &core.ValidationError{Stage: name, Item: v, Reason: reason}
		}
	})
}

// Exclude drops the items for which pred returns true.
func Exclude[T any](pred func(T) bool) flow.Flow[T, T] {
	if pred == nil {
		panic(core.Misconfigured("exclude", "nil predicate"))
	}
	return flow.Filter(func(v T) bool { return !pred(v) }).
		Label(fmt.Sprintf("exclude(%s)", flow.FuncName(pred)))
}

// MapWhere filters and maps in one step: fn returns the mapped value and
// whether to keep it.
func MapWhere[IN, OUT any](fn func(IN) (OUT, bool)) flow.Flow[IN, OUT] {
	if fn == nil {
		panic(core.Misconfigured("map_where", "nil function"))
	}
	return flow.Lift(fmt.Sprintf("map_where(%s)", flow.FuncName(fn)), func() flow.StepFunc[IN, OUT] {
		return func(_ context.Context, v IN) (trampoline.Bounce[OUT], error) {
			if out, ok := fn(v); ok {
				return trampoline.Next(out), nil
			}
			return trampoline.Drop[OUT](), nil
		}
	})
}

// DistinctUntilChanged drops items equal to the item just before them.
func DistinctUntilChanged[T comparable]() flow.Flow[T, T] {
	return DistinctUntilChangedBy(func(v T) T { return v }).Label("distinct_until_changed")
}

// DistinctUntilChangedBy drops items whose key equals the previous item's key.
func DistinctUntilChangedBy[T any, K comparable](keyFn func(T) K) flow.Flow[T, T] {
	if keyFn == nil {
		panic(core.Misconfigured("distinct_until_changed", "nil key function"))
	}
	return flow.Lift(fmt.Sprintf("distinct_until_changed(%s)", flow.FuncName(keyFn)), func() flow.StepFunc[T, T] {
		var last K
		first := true
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			key := keyFn(v)
			if !first && key == last {
				return trampoline.Drop[T](), nil
			}
			first, last = false, key
			return trampoline.Next(v), nil
		}
	})
}

// EveryNth emits every nth item: the nth, the 2nth, and so on.
func EveryNth[T any](n int) flow.Flow[T, T] {
	if n <= 0 {
		panic(core.Misconfigured("every_nth", "n must be positive, got %d", n))
	}
	return flow.Lift(fmt.Sprintf("every_nth(%d)", n), func() flow.StepFunc[T, T] {
		count := 0
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			count++
			if count < n {
				return trampoline.Drop[T](), nil
			}
			count = 0
			return trampoline.Next(v), nil
		}
	})
}

package parallel

import (
	"context"
	"fmt"
	"sync"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Memo is the cache behind a Memoize flow. It is shared by every run of
// that flow and safe for concurrent use.
type Memo[K comparable, OUT any] struct {
	mu     sync.RWMutex
	values map[K]OUT
	calls  map[K]*call[OUT]
}

// call is a computation in flight; done closes once v and err are set.
type call[OUT any] struct {
	done chan struct{}
	v    OUT
	err  error
}

// Len returns the number of cached results.
func (m *Memo[K, OUT]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// Forget drops the cached result for k.
func (m *Memo[K, OUT]) Forget(k K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, k)
}

func (m *Memo[K, OUT]) get(k K, compute func() (OUT, error)) (OUT, error) {
	m.mu.Lock()
	if v, ok := m.values[k]; ok {
		m.mu.Unlock()
		return v, nil
	}
	if c, ok := m.calls[k]; ok {
		m.mu.Unlock()
		<-c.done
		return c.v, c.err
	}
	c := &call[OUT]{done: make(chan struct{})}
	m.calls[k] = c
	m.mu.Unlock()

	c.v, c.err = core.Protect(compute)

	m.mu.Lock()
	delete(m.calls, k)
	if c.err == nil {
		m.values[k] = c.v
	}
	m.mu.Unlock()
	close(c.done)
	return c.v, c.err
}

// Memoize computes fn once per key and reuses the result for every later
// item with that key, across all runs of the returned flow. Concurrent
// items with the same key wait for a single computation. Failures are not
// cached; they end the stream.
func Memoize[IN any, K comparable, OUT any](keyFn func(IN) K, fn func(IN) (OUT, error)) flow.Flow[IN, OUT] {
	f, _ := MemoizeWith(keyFn, fn)
	return f
}

// MemoizeWith is Memoize that also returns the cache.
func MemoizeWith[IN any, K comparable, OUT any](keyFn func(IN) K, fn func(IN) (OUT, error)) (flow.Flow[IN, OUT], *Memo[K, OUT]) {
	if keyFn == nil || fn == nil {
		panic(core.Misconfigured("memoize", "nil key or value function"))
	}
	memo := &Memo[K, OUT]{values: make(map[K]OUT), calls: make(map[K]*call[OUT])}
	name := fmt.Sprintf("memoize(%s, %s)", flow.FuncName(keyFn), flow.FuncName(fn))

	f := flow.Lift(name, func() flow.StepFunc[IN, OUT] {
		return func(_ context.Context, v IN) (trampoline.Bounce[OUT], error) {
			out, err := memo.get(keyFn(v), func() (OUT, error) { return fn(v) })
			if err != nil {
				return trampoline.Halt[OUT](), err
			}
			return trampoline.Next(out), nil
		}
	})
	return f, memo
}

// MemoizeItems replaces every item with the first item seen with the same
// key in the current run.
func MemoizeItems[T any, K comparable](keyFn func(T) K) flow.Flow[T, T] {
	if keyFn == nil {
		panic(core.Misconfigured("memoize_items", "nil key function"))
	}
	return flow.Lift(fmt.Sprintf("memoize_items(%s)", flow.FuncName(keyFn)), func() flow.StepFunc[T, T] {
		first := make(map[K]T)
		return func(_ context.Context, v T) (trampoline.Bounce[T], error) {
			k := keyFn(v)
			if seen, ok := first[k]; ok {
				return trampoline.Next(seen), nil
			}
			first[k] = v
			return trampoline.Next(v), nil
		}
	})
}

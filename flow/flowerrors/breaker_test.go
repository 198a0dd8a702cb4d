package flowerrors_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/flowerrors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type switchable struct {
	fail  atomic.Bool
	calls atomic.Int64
}

func (s *switchable) flow() flow.Flow[int, int] {
	return flow.Map(func(v int) (int, error) {
		s.calls.Add(1)
		if s.fail.Load() {
			return 0, errBoom
		}
		return v, nil
	})
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	var (
		mu          sync.Mutex
		transitions []string
	)
	cb := flowerrors.NewCircuitBreaker(3, time.Minute,
		flowerrors.WithClock(clock.Now),
		flowerrors.WithStateChange(func(from, to flowerrors.CircuitState) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, string(from)+"->"+string(to))
		}),
	)
	dep := &switchable{}
	guarded := flowerrors.CircuitBreak(cb, dep.flow())
	run := func() ([]int, error) {
		return guarded.ToList(context.Background(), flow.Once(7))
	}

	dep.fail.Store(true)
	for i := 0; i < 3; i++ {
		_, err := run()
		require.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, flowerrors.CircuitOpen, cb.State())

	// Open: fail fast without touching the dependency.
	_, err := run()
	assert.ErrorIs(t, err, flowerrors.ErrCircuitOpen)
	assert.Equal(t, int64(3), dep.calls.Load())

	// After the open period a trial goes through and closes the circuit.
	clock.Advance(time.Minute)
	dep.fail.Store(false)
	got, err := run()
	require.NoError(t, err)
	assert.Equal(t, []int{7}, got)
	assert.Equal(t, flowerrors.CircuitClosed, cb.State())

	// A failed trial opens it again for another full period.
	dep.fail.Store(true)
	for i := 0; i < 3; i++ {
		_, _ = run()
	}
	clock.Advance(time.Minute)
	_, err = run()
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, flowerrors.CircuitOpen, cb.State())
	clock.Advance(30 * time.Second)
	_, err = run()
	assert.ErrorIs(t, err, flowerrors.ErrCircuitOpen)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"closed->open",
		"open->half_open",
		"half_open->closed",
		"closed->open",
		"open->half_open",
		"half_open->open",
	}, transitions)
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := flowerrors.NewCircuitBreaker(2, time.Minute)

	assert.ErrorIs(t, cb.Call(func() error { return errBoom }), errBoom)
	assert.NoError(t, cb.Call(func() error { return nil }))
	assert.ErrorIs(t, cb.Call(func() error { return errBoom }), errBoom)
	assert.Equal(t, flowerrors.CircuitClosed, cb.State())

	assert.ErrorIs(t, cb.Call(func() error { return errBoom }), errBoom)
	assert.Equal(t, flowerrors.CircuitOpen, cb.State())
}

func TestCircuitBreakerSingleTrial(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := flowerrors.NewCircuitBreaker(1, time.Second, flowerrors.WithClock(clock.Now))
	_ = cb.Call(func() error { return errBoom })
	clock.Advance(time.Second)

	require.NoError(t, cb.Allow())
	assert.Equal(t, flowerrors.CircuitHalfOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), flowerrors.ErrCircuitOpen)

	cb.Done(nil)
	assert.Equal(t, flowerrors.CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreakerSharedAcrossItems(t *testing.T) {
	dep := &switchable{}
	dep.fail.Store(true)
	cb := flowerrors.NewCircuitBreaker(2, time.Hour)
	guarded := flowerrors.CircuitBreak(cb, dep.flow())

	_, err := guarded.ToList(context.Background(), flow.FromSlice([]int{1, 2, 3}))
	assert.ErrorIs(t, err, errBoom)
	_, err = guarded.ToList(context.Background(), flow.FromSlice([]int{4}))
	assert.ErrorIs(t, err, errBoom)

	_, err = flowerrors.CircuitBreak(cb, dep.flow()).ToList(context.Background(), flow.Once(5))
	assert.ErrorIs(t, err, flowerrors.ErrCircuitOpen)
	var exec *flow.ExecutionError
	require.ErrorAs(t, err, &exec)
	assert.Contains(t, exec.Stage, "circuit_breaker(2, 1h0m0s")
}

func TestCircuitBreakerInvalidConfig(t *testing.T) {
	assert.Panics(t, func() { flowerrors.NewCircuitBreaker(0, time.Second) })
	assert.Panics(t, func() { flowerrors.NewCircuitBreaker(1, 0) })
	assert.Panics(t, func() { flowerrors.CircuitBreak[int, int](nil, flow.Identity[int]()) })
}

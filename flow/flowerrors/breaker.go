package flowerrors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// ErrCircuitOpen is returned for calls rejected by an open circuit breaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the state of a CircuitBreaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

const (
	eventTrip  = "trip"
	eventProbe = "probe"
	eventReset = "reset"
)

type breakerConfig struct {
	Threshold    int           `validate:"gt=0"`
	OpenDuration time.Duration `validate:"gt=0"`
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithStateChange registers fn to be called on every state transition.
// fn runs with the breaker locked and must not call back into it.
func WithStateChange(fn func(from, to CircuitState)) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.onChange = fn
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// CircuitBreaker stops calling a failing dependency for a while.
//
// Closed, calls go through and consecutive failures are counted; reaching
// the threshold opens the circuit. Open, calls fail fast with
// ErrCircuitOpen. Once openDuration has passed, the next call is let
// through as a trial (half-open) while any other call still fails fast; a
// successful trial closes the circuit and a failed one opens it again for
// another openDuration.
//
// A breaker is safe for concurrent use. Every flow built on the same breaker
// shares its state.
type CircuitBreaker struct {
	mu        sync.Mutex
	machine   *fsm.FSM
	threshold int
	openFor   time.Duration
	failures  int
	openedAt  time.Time

	now      func() time.Time
	onChange func(from, to CircuitState)
}

// NewCircuitBreaker creates a closed breaker. It panics with a
// ConfigurationError unless threshold and openDuration are positive.
func NewCircuitBreaker(threshold int, openDuration time.Duration, opts ...BreakerOption) *CircuitBreaker {
	core.MustValidate("circuit_breaker", breakerConfig{Threshold: threshold, OpenDuration: openDuration})

	cb := &CircuitBreaker{
		threshold: threshold,
		openFor:   openDuration,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}

	cb.machine = fsm.NewFSM(
		string(CircuitClosed),
		fsm.Events{
			{Name: eventTrip, Src: []string{string(CircuitClosed), string(CircuitHalfOpen)}, Dst: string(CircuitOpen)},
			{Name: eventProbe, Src: []string{string(CircuitOpen)}, Dst: string(CircuitHalfOpen)},
			{Name: eventReset, Src: []string{string(CircuitHalfOpen)}, Dst: string(CircuitClosed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if cb.onChange != nil {
					cb.onChange(CircuitState(e.Src), CircuitState(e.Dst))
				}
			},
		},
	)
	return cb
}

// State returns the current state. An open breaker whose open period has
// passed still reports CircuitOpen until the next call probes it.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state()
}

func (cb *CircuitBreaker) state() CircuitState {
	return CircuitState(cb.machine.Current())
}

// fire performs a transition that the caller has checked is valid.
func (cb *CircuitBreaker) fire(event string) {
	// Transitions must not be abandoned because a consumer went away.
	_ = cb.machine.Event(context.Background(), event)
}

// Allow reports whether a call may proceed, moving an expired open circuit
// to half-open. Every allowed call must be followed by Done.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state() {
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.openFor {
			return ErrCircuitOpen
		}
		cb.fire(eventProbe)
		return nil
	case CircuitHalfOpen:
		return ErrCircuitOpen
	}
	return nil
}

// Done records the outcome of an allowed call.
func (cb *CircuitBreaker) Done(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.state()
	if err == nil {
		cb.failures = 0
		if state == CircuitHalfOpen {
			cb.fire(eventReset)
		}
		return
	}

	cb.failures++
	if state == CircuitHalfOpen || (state == CircuitClosed && cb.failures >= cb.threshold) {
		cb.openedAt = cb.now()
		cb.fire(eventTrip)
	}
}

// Call runs fn through the breaker.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Done(err)
	return err
}

// CircuitBreak runs inner on every item on its own, through cb. A rejected
// or failed run ends the stream; a rejected run never invokes inner.
// Cancellation is not counted as a failure.
func CircuitBreak[IN, OUT any](cb *CircuitBreaker, inner flow.Flow[IN, OUT]) flow.Flow[IN, OUT] {
	if cb == nil {
		panic(core.Misconfigured("circuit_break", "nil circuit breaker"))
	}
	name := fmt.Sprintf("circuit_breaker(%d, %s, %s)", cb.threshold, cb.openFor, inner.Name())

	return perItem(name, func(ctx context.Context, v IN) ([]OUT, error) {
		if err := cb.Allow(); err != nil {
			return nil, &core.ExecutionError{Stage: name, Err: err}
		}
		outs, err := attempt(ctx, inner, v)
		if ctx.Err() != nil {
			// Release a half-open trial without judging it.
			cb.release()
			return nil, ctx.Err()
		}
		cb.Done(err)
		return outs, core.AsExecutionError(name, err)
	})
}

// release returns a half-open breaker to open without restarting its
// timer, so the next call may probe again.
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state() == CircuitHalfOpen {
		cb.fire(eventTrip)
	}
}

// CircuitBreakerFlow creates a breaker and wraps inner with it.
func CircuitBreakerFlow[IN, OUT any](threshold int, openDuration time.Duration, inner flow.Flow[IN, OUT]) flow.Flow[IN, OUT] {
	return CircuitBreak(NewCircuitBreaker(threshold, openDuration), inner)
}

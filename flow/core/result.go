package core

import (
	"errors"
)

// Result represents one event on a stream. It exists in one of three states:
//   - Value: an item produced by the stream (IsValue() returns true)
//   - Error: a failure; it is the last event a stream emits (IsError() returns true)
//   - Sentinel: a control signal such as end-of-stream (IsSentinel() returns true)
//
// Operators forward an Error and stop reading their input, so a consumer sees
// every value produced before the failure followed by the failure itself.
type Result[OUT any] struct {
	value      OUT
	err        error
	isSentinel bool
}

// NewResult creates a Result with explicit control over all fields.
// Prefer Ok(), Err(), Sentinel(), or EndOfStream() for common cases.
func NewResult[OUT any](value OUT, err error, isSentinel bool) Result[OUT] {
	return Result[OUT]{value: value, err: err, isSentinel: isSentinel}
}

// Ok creates a successful Result containing the given value.
func Ok[OUT any](value OUT) Result[OUT] {
	return Result[OUT]{value: value}
}

// Err creates an error Result. Receiving it terminates the stream.
func Err[OUT any](err error) Result[OUT] {
	var zero OUT
	return Result[OUT]{value: zero, err: err}
}

// Sentinel creates a sentinel Result with an optional descriptive error.
func Sentinel[OUT any](err error) Result[OUT] {
	var zero OUT
	return Result[OUT]{value: zero, err: err, isSentinel: true}
}

// ErrEndOfStream is the sentinel error indicating normal stream termination.
var ErrEndOfStream = errors.New("end of stream")

// EndOfStream creates a sentinel Result indicating the stream has ended normally.
func EndOfStream[OUT any]() Result[OUT] {
	return Sentinel[OUT](ErrEndOfStream)
}

// IsValue returns true if this Result contains an item.
func (r Result[OUT]) IsValue() bool {
	return r.err == nil && !r.isSentinel
}

// IsSentinel returns true if this Result is a control signal.
func (r Result[OUT]) IsSentinel() bool {
	return r.isSentinel
}

// IsError returns true if this Result carries a failure.
func (r Result[OUT]) IsError() bool {
	return r.err != nil && !r.isSentinel
}

// IsEnd reports whether the Result is the end-of-stream sentinel.
func (r Result[OUT]) IsEnd() bool {
	return r.isSentinel && errors.Is(r.err, ErrEndOfStream)
}

// Value returns the contained value. Only meaningful when IsValue() is true.
func (r Result[OUT]) Value() OUT {
	return r.value
}

// Error returns the failure of an error Result, nil otherwise.
func (r Result[OUT]) Error() error {
	if r.isSentinel {
		return nil
	}
	return r.err
}

// Sentinel returns the sentinel's context error, nil for values and errors.
func (r Result[OUT]) Sentinel() error {
	if !r.isSentinel {
		return nil
	}
	return r.err
}

// Unwrap returns the value and error together.
func (r Result[OUT]) Unwrap() (OUT, error) {
	return r.value, r.err
}

// Retype converts a non-value Result (error or sentinel) to another item
// type. It is used by operators that change the item type and must forward
// errors and control signals untouched.
func Retype[OUT, IN any](r Result[IN]) Result[OUT] {
	var zero OUT
	return Result[OUT]{value: zero, err: r.err, isSentinel: r.isSentinel}
}

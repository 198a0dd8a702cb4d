// Package trampoline runs chains of item-wise stages as an explicit loop.
//
// Each stage is a Step that returns a Bounce: a Signal plus the value to
// hand on. The driver inspects the signal and decides what to do next
// instead of calling the following stage directly, so the call stack stays
// the same depth however long the chain is.
//
//	Continue  stay running, feed the value to the next step
//	Skip      discard the current item
//	Break     abandon the current pass and restart the chain from the first step
//	Exit      the carried value (if any) finishes the current pass, then the
//	          whole stream terminates
package trampoline

// Signal tells the driver loop what to do after a step.
type Signal uint8

const (
	Continue Signal = iota
	Skip
	Break
	Exit
)

func (s Signal) String() string {
	switch s {
	case Continue:
		return "continue"
	case Skip:
		return "skip"
	case Break:
		return "break"
	case Exit:
		return "exit"
	default:
		return "unknown"
	}
}

// Bounce is the outcome of one step.
type Bounce[T any] struct {
	signal   Signal
	value    T
	hasValue bool
}

// Next continues with v.
func Next[T any](v T) Bounce[T] {
	return Bounce[T]{signal: Continue, value: v, hasValue: true}
}

// Drop discards the current item.
func Drop[T any]() Bounce[T] {
	return Bounce[T]{signal: Skip}
}

// Restart abandons the current pass and reruns the chain on v.
func Restart[T any](v T) Bounce[T] {
	return Bounce[T]{signal: Break, value: v, hasValue: true}
}

// Stop makes v the last item: it finishes the current pass and the stream
// terminates after it is emitted.
func Stop[T any](v T) Bounce[T] {
	return Bounce[T]{signal: Exit, value: v, hasValue: true}
}

// Halt terminates the stream without emitting the current item.
func Halt[T any]() Bounce[T] {
	return Bounce[T]{signal: Exit}
}

func (b Bounce[T]) Signal() Signal { return b.signal }

func (b Bounce[T]) Value() T { return b.value }

// HasValue reports whether the bounce carries an item to emit.
func (b Bounce[T]) HasValue() bool { return b.hasValue }

// Emits reports whether the driver should emit the carried value.
func (b Bounce[T]) Emits() bool {
	return b.hasValue && (b.signal == Continue || b.signal == Exit)
}

// Terminates reports whether the stream must end after this bounce.
func (b Bounce[T]) Terminates() bool {
	return b.signal == Exit
}

// Map converts the carried value, keeping the signal.
func Map[T, U any](b Bounce[T], fn func(T) U) Bounce[U] {
	out := Bounce[U]{signal: b.signal, hasValue: b.hasValue}
	if b.hasValue {
		out.value = fn(b.value)
	}
	return out
}

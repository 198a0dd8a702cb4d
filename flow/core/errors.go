package core

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

var (
	// ErrStreamConsumed is emitted when a single-consumer stream is emitted a second time.
	ErrStreamConsumed = errors.New("stream already consumed")

	// ErrEmptyStream is returned by terminals that need at least one item.
	ErrEmptyStream = errors.New("stream is empty")
)

// ConfigurationError reports invalid construction arguments. It is detected
// eagerly, when a flow or combinator is built.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("flow configuration %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Misconfigured builds a ConfigurationError with a formatted reason.
func Misconfigured(op, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Op: op, Err: fmt.Errorf(format, args...)}
}

// ExecutionError reports a failure raised while a stage was producing an item.
type ExecutionError struct {
	Stage string
	Err   error
}

func (e *ExecutionError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("flow execution: %v", e.Err)
	}
	return fmt.Sprintf("flow execution in %s: %v", e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TimeoutError reports that a temporal bound was exceeded.
type TimeoutError struct {
	Stage string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("flow timeout in %s: no item within %s", e.Stage, e.After)
}

// Timeout marks the error as a timeout for net.Error style checks.
func (e *TimeoutError) Timeout() bool { return true }

// ValidationError reports an item rejected by a guard.
type ValidationError struct {
	Stage  string
	Item   any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("flow validation in %s: %s (item: %v)", e.Stage, e.Reason, e.Item)
}

// AsExecutionError wraps err in an ExecutionError for stage unless it already
// belongs to the flow error taxonomy.
func AsExecutionError(stage string, err error) error {
	if err == nil {
		return nil
	}
	var (
		exec *ExecutionError
		to   *TimeoutError
		val  *ValidationError
		conf *ConfigurationError
	)
	switch {
	case errors.As(err, &exec), errors.As(err, &to), errors.As(err, &val), errors.As(err, &conf):
		return err
	}
	return &ExecutionError{Stage: stage, Err: err}
}

// ErrPanic wraps a recovered panic value as an error. It includes a stack
// trace with the engine's own frames removed, so the user frame that
// panicked is at the top.
type ErrPanic struct {
	Value any
	Stack string
}

func (e ErrPanic) Error() string {
	if e.Stack != "" {
		return fmt.Sprintf("panic: %v\n%s", e.Value, e.Stack)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// NewPanicError creates an ErrPanic from a recovered value.
func NewPanicError(recovered any) ErrPanic {
	return ErrPanic{
		Value: recovered,
		Stack: cleanStack(captureStack(4)), // skip: runtime.Callers, captureStack, NewPanicError, defer func
	}
}

// Protect runs fn and converts a panic into an ErrPanic.
func Protect[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPanicError(r)
		}
	}()
	return fn()
}

func captureStack(skip int) string {
	const maxFrames = 32
	var pcs [maxFrames]uintptr
	n := runtime.Callers(skip, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}

const internalPrefix = "github.com/goldentooth/flow-engine/flow"

// cleanStack drops the engine's frames (and the file:line that follows each)
// from a stack trace.
func cleanStack(stack string) string {
	var kept []string
	skipNext := false
	for _, line := range strings.Split(stack, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasPrefix(line, "\t") {
			skipNext = isInternalFrame(line)
			if skipNext {
				continue
			}
		} else if skipNext {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// isInternalFrame reports whether a function line belongs to an engine
// package. Test packages are kept.
func isInternalFrame(fn string) bool {
	rest, ok := strings.CutPrefix(fn, internalPrefix)
	if !ok {
		return false
	}
	pkg, _, _ := strings.Cut(rest, ".")
	return !strings.HasSuffix(pkg, "_test")
}

package flow_test

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldentooth/flow-engine/flow"
)

func TestPureNeverSubscribesToInput(t *testing.T) {
	var subscribed atomic.Bool
	input := flow.Emit(func(ctx context.Context) <-chan flow.Result[flow.Unit] {
		subscribed.Store(true)
		out := make(chan flow.Result[flow.Unit])
		close(out)
		return out
	})

	got, err := flow.Pure(42).ToList(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []int{42}, got)
	assert.False(t, subscribed.Load())
}

func TestFromFunction(t *testing.T) {
	itoa := flow.FromFunction(func(n int) (string, error) { return strconv.Itoa(n), nil })
	assert.True(t, itoa.Fused())
	assert.Equal(t, []string{"1", "2"}, collect(t, itoa, []int{1, 2}))

	atoi := flow.FromFunction(strconv.Atoi)
	assert.Equal(t, "from_function(Atoi)", atoi.Name())
	_, err := atoi.ToList(context.Background(), flow.FromSlice([]string{"1", "x"}))
	var exec *flow.ExecutionError
	assert.ErrorAs(t, err, &exec)
}

func TestFromIterableAndSeq(t *testing.T) {
	ctx := context.Background()

	got, err := flow.FromIterable([]string{"a", "b"}).ToList(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = flow.FromSeq(slices.Values([]string{"x", "y", "z"})).ToList(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, got)
}

func TestFromEmitter(t *testing.T) {
	var unregistered atomic.Bool
	source := flow.FromEmitter(func(emit func(int), _ func(error)) func() {
		// Producers may push before anyone pulls; items are queued.
		for i := 1; i <= 3; i++ {
			emit(i)
		}
		go func() {
			for i := 4; i <= 6; i++ {
				time.Sleep(time.Millisecond)
				emit(i)
			}
		}()
		return func() { unregistered.Store(true) }
	})

	got, err := source.Preview(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
	assert.Eventually(t, unregistered.Load, time.Second, time.Millisecond)
}

func TestFromEmitterCompletes(t *testing.T) {
	errFeed := errors.New("feed closed")
	tests := []struct {
		name    string
		doneErr error
	}{
		{"done without error", nil},
		{"done with error", errFeed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			source := flow.FromEmitter(func(emit func(int), done func(error)) func() {
				go func() {
					for i := 1; i <= 3; i++ {
						emit(i)
					}
					done(tt.doneErr)
					emit(4)
				}()
				return nil
			})

			got, err := source.ToList(ctx, nil)
			assert.Equal(t, []int{1, 2, 3}, got)
			if tt.doneErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errFeed)
			}
		})
	}
}

func TestFromEmitterEndsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	source := flow.FromEmitter(func(emit func(string), _ func(error)) func() {
		emit("only")
		return nil
	})

	got, err := source.ToList(ctx, nil)
	assert.Equal(t, []string{"only"}, got)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFromEmitterRejectsNilRegister(t *testing.T) {
	assert.Panics(t, func() { flow.FromEmitter[int](nil) })
}

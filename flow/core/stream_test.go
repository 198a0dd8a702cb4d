package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	boom := errors.New("boom")
	results := Collect(context.Background(), fromResults(Ok(1), Ok(2), Err[int](boom)))

	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Value())
	assert.Equal(t, 2, results[1].Value())
	assert.ErrorIs(t, results[2].Error(), boom)
}

func TestAllStopsOnBreak(t *testing.T) {
	var got []int
	for res := range All(context.Background(), fromSlice([]int{1, 2, 3, 4})) {
		got = append(got, res.Value())
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []int{1, 2}, got)
}

func TestSingle(t *testing.T) {
	ctx := context.Background()
	s := Single(fromSlice([]int{1, 2, 3}))

	first, err := Slice(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, first)

	_, err = Slice(ctx, s)
	assert.ErrorIs(t, err, ErrStreamConsumed)
}

func TestSingleIsIdempotent(t *testing.T) {
	s := Single(fromSlice([]int{1}))
	assert.Same(t, s, Single(s))
}

func TestTransmitterApplyIsLazy(t *testing.T) {
	subscribed := false
	src := Emit(func(ctx context.Context) <-chan Result[int] {
		subscribed = true
		return fromSlice([]int{1, 2}).Emit(ctx)
	})

	double := Transmit(func(ctx context.Context, in <-chan Result[int]) <-chan Result[int] {
		out := make(chan Result[int])
		go func() {
			defer close(out)
			for res := range in {
				if !Send(ctx, out, Ok(res.Value()*2)) {
					return
				}
			}
		}()
		return out
	})

	stream := double.Apply(context.Background(), src)
	assert.False(t, subscribed)

	got, err := Slice(context.Background(), stream)
	require.NoError(t, err)
	assert.True(t, subscribed)
	assert.Equal(t, []int{2, 4}, got)
}

func TestSendRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan Result[int])
	assert.False(t, Send(ctx, out, Ok(1)))
}

package combine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/combine"
)

func isEven(v int) bool { return v%2 == 0 }

// drainAll consumes every stream concurrently, each to its end.
func drainAll(ctx context.Context, streams ...flow.Stream[int]) ([][]int, error) {
	results := make([][]int, len(streams))
	var g errgroup.Group
	for i, s := range streams {
		g.Go(func() error {
			items, err := flow.Slice(ctx, s)
			results[i] = items
			return err
		})
	}
	return results, g.Wait()
}

func TestPartition(t *testing.T) {
	evens, odds := combine.Partition(isEven, flow.Range(0, 200), combine.WithPartitionBuffer(4))

	got, err := drainAll(context.Background(), evens, odds)
	require.NoError(t, err)
	require.Len(t, got[0], 100)
	require.Len(t, got[1], 100)
	for i := range got[0] {
		assert.Equal(t, 2*i, got[0][i])
		assert.Equal(t, 2*i+1, got[1][i])
	}
}

func TestPartitionErrorReachesBothSides(t *testing.T) {
	evens, odds := combine.Partition(isEven, failAfter(1, 2))
	got, err := drainAll(context.Background(), evens, odds)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []int{2}, got[0])
	assert.Equal(t, []int{1}, got[1])
}

func TestPartitionStallsWhenOneSideIsIgnored(t *testing.T) {
	evens, _ := combine.Partition(isEven, flow.Range(0, 100), combine.WithPartitionBuffer(2))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	got, err := flow.Slice(ctx, evens)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, len(got), 50)
}

func TestPartitionSideEmittedOnce(t *testing.T) {
	evens, odds := combine.Partition(isEven, ints(1, 2))
	_, err := drainAll(context.Background(), evens, odds)
	require.NoError(t, err)

	_, err = flow.Slice(context.Background(), evens)
	assert.ErrorIs(t, err, flow.ErrStreamConsumed)
}

func TestMulticast(t *testing.T) {
	var reads int
	src := flow.Create(func(_ context.Context, emit func(int) bool) error {
		reads++
		for i := 1; i <= 3; i++ {
			emit(i)
		}
		return nil
	})

	got, err := drainAll(context.Background(), combine.Multicast(src, 3)...)
	require.NoError(t, err)
	for _, items := range got {
		assert.Equal(t, []int{1, 2, 3}, items)
	}
	assert.Equal(t, 1, reads)
}

func TestTee(t *testing.T) {
	a, b := combine.Tee(ints(4, 5))
	got, err := drainAll(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{4, 5}, {4, 5}}, got)
}

func TestFanOutInvalidOptions(t *testing.T) {
	assert.Panics(t, func() { combine.Partition(isEven, ints(), combine.WithPartitionBuffer(0)) })
	assert.Panics(t, func() { combine.Partition[int](nil, ints()) })
	assert.Panics(t, func() { combine.Multicast(ints(), 0) })
}

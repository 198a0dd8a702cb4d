package aggregate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/aggregate"
)

var errBoom = errors.New("boom")

func run[IN, OUT any](t *testing.T, f flow.Flow[IN, OUT], input []IN) []OUT {
	t.Helper()
	got, err := f.ToList(context.Background(), flow.FromSlice(input))
	require.NoError(t, err)
	return got
}

func TestBatch(t *testing.T) {
	tests := []struct {
		name  string
		input []int
		size  int
		want  [][]int
	}{
		{"uneven tail", []int{1, 2, 3, 4, 5}, 2, [][]int{{1, 2}, {3, 4}, {5}}},
		{"exact fit", []int{1, 2, 3, 4, 5, 6}, 3, [][]int{{1, 2, 3}, {4, 5, 6}}},
		{"larger than input", []int{1, 2}, 5, [][]int{{1, 2}}},
		{"empty stream", nil, 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, aggregate.Batch[int](tt.size), tt.input))
		})
	}
}

func TestBatchSizeFromContext(t *testing.T) {
	src := flow.FromSlice([]int{1, 2, 3})

	_, err := aggregate.Batch[int](0).ToList(context.Background(), src)
	var conf *flow.ConfigurationError
	require.ErrorAs(t, err, &conf)
	assert.Equal(t, "batch(0)", conf.Op)

	ctx := aggregate.Configure(context.Background(), aggregate.WithBatchSize(2))
	got, err := aggregate.Batch[int](0).ToList(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}, {3}}, got)

	got, err = aggregate.Chunk[int](3).ToList(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2, 3}}, got)
}

func TestBatchRejectsNegativeArguments(t *testing.T) {
	tests := map[string]func(){
		"batch":              func() { aggregate.Batch[int](-1) },
		"chunk":              func() { aggregate.Chunk[int](-3) },
		"batch_timeout size": func() { aggregate.BatchTimeout[int](-1, time.Second) },
		"batch_timeout time": func() { aggregate.BatchTimeout[int](2, -time.Second) },
	}
	for name, build := range tests {
		t.Run(name, func(t *testing.T) {
			var conf *flow.ConfigurationError
			defer func() {
				err, _ := recover().(error)
				require.ErrorAs(t, err, &conf)
			}()
			build()
		})
	}
	assert.NotPanics(t, func() { aggregate.BatchTimeout[int](0, 0) })
}

func TestConfigureRejectsInvalidDefaults(t *testing.T) {
	assert.Panics(t, func() {
		aggregate.Configure(context.Background(), aggregate.WithBatchSize(-1))
	})
}

func TestBatchDropsPartialBatchOnError(t *testing.T) {
	src := flow.Create(func(_ context.Context, emit func(int) bool) error {
		for i := 1; i <= 3; i++ {
			emit(i)
		}
		return errBoom
	})
	got, err := aggregate.Batch[int](2).ToList(context.Background(), src)
	assert.Equal(t, [][]int{{1, 2}}, got)
	assert.ErrorIs(t, err, errBoom)
}

func TestBatchTimeout(t *testing.T) {
	src := flow.Create(func(ctx context.Context, emit func(int) bool) error {
		emit(1)
		emit(2)
		time.Sleep(50 * time.Millisecond)
		emit(3)
		return nil
	})
	got, err := aggregate.BatchTimeout[int](10, 10*time.Millisecond).ToList(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}, {3}}, got)

	got, err = aggregate.BatchTimeout[int](2, time.Hour).ToList(context.Background(), flow.Range(0, 5))
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1}, {2, 3}, {4}}, got)
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name       string
		input      []int
		size, step int
		want       [][]int
	}{
		{"sliding", []int{1, 2, 3, 4, 5}, 3, 1, [][]int{{1, 2, 3}, {2, 3, 4}, {3, 4, 5}}},
		{"tumbling", []int{1, 2, 3, 4, 5}, 2, 2, [][]int{{1, 2}, {3, 4}}},
		{"gapped", []int{1, 2, 3, 4, 5, 6, 7}, 2, 3, [][]int{{1, 2}, {4, 5}}},
		{"shorter than window", []int{1, 2}, 3, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, aggregate.Window[int](tt.size, tt.step), tt.input))
		})
	}
}

func TestWindowIsFused(t *testing.T) {
	f := flow.Compose(aggregate.Window[int](2, 1), flow.Map(func(w []int) (int, error) { return w[0] + w[1], nil }))
	assert.True(t, f.Fused())
	assert.Equal(t, []int{3, 5, 7}, run(t, f, []int{1, 2, 3, 4}))
}

func TestWindowRejectsInvalidParams(t *testing.T) {
	var conf *flow.ConfigurationError
	for _, params := range [][2]int{{0, 1}, {2, 0}, {-1, -1}} {
		func() {
			defer func() {
				err, ok := recover().(error)
				require.True(t, ok)
				assert.ErrorAs(t, err, &conf)
			}()
			aggregate.Window[int](params[0], params[1])
		}()
	}
}

func TestPairwise(t *testing.T) {
	assert.Equal(t, [][2]int{{1, 2}, {2, 3}}, run(t, aggregate.Pairwise[int](), []int{1, 2, 3}))
	assert.Empty(t, run(t, aggregate.Pairwise[int](), []int{1}))
}

package combine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/combine"
	"github.com/goldentooth/flow-engine/flow/filter"
)

func double(v int) (int, error) { return v * 2, nil }
func addOne(v int) (int, error) { return v + 1, nil }
func negate(v int) (int, error) { return -v, nil }
func timesTen(v int) (int, error) { return v * 10, nil }

func TestChainFlows(t *testing.T) {
	chained := combine.ChainFlows(flow.Map(double), flow.Map(addOne))
	assert.Equal(t, "chain_flows(map(double), map(addOne))", chained.Name())

	got, err := chained.ToList(context.Background(), ints(1, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 2, 3}, got)

	got, err = chained.ToList(context.Background(), failAfter(1))
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, got)
}

func TestMergeFlowsRoundRobin(t *testing.T) {
	got, err := combine.MergeFlows(flow.Map(double), flow.Map(negate)).ToList(context.Background(), ints(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []int{2, -1, 4, -2, 6, -3}, got)
}

func TestMergeFlowsUnevenOutputs(t *testing.T) {
	twice := flow.FlatMap(func(v int) flow.Stream[int] { return ints(v, v) })
	nothing := flow.Filter(func(int) bool { return false })

	got, err := combine.MergeFlows(flow.Identity[int](), twice, nothing).ToList(context.Background(), ints(1, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 1, 2, 2}, got)
}

func TestMergeFlowsError(t *testing.T) {
	failing := flow.Map(func(v int) (int, error) {
		if v == 2 {
			return 0, errBoom
		}
		return v, nil
	})
	_, err := combine.MergeFlows(flow.Identity[int](), failing).ToList(context.Background(), ints(1, 2, 3))
	assert.ErrorIs(t, err, errBoom)
}

func TestMergeFlowsWithFlowIgnoringInput(t *testing.T) {
	ignoring := flow.New("ignore_input", func(context.Context, flow.Stream[int]) flow.Stream[int] {
		return flow.Empty[int]()
	})
	input := make([]int, 200)
	for i := range input {
		input[i] = i
	}

	tests := []struct {
		name  string
		other flow.Flow[int, int]
	}{
		{"take nothing", filter.Take[int](0)},
		{"never subscribes", ignoring},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			got, err := combine.MergeFlows(flow.Identity[int](), tt.other).ToList(ctx, flow.FromSlice(input))
			require.NoError(t, err)
			assert.Equal(t, input, got)
		})
	}
}

func sleepy(d time.Duration, fn func(int) (int, error)) flow.Flow[int, int] {
	return flow.Map(func(v int) (int, error) {
		time.Sleep(d)
		return fn(v)
	})
}

func TestRace(t *testing.T) {
	failing := flow.Map(func(int) (int, error) { return 0, errBoom })
	tests := []struct {
		name    string
		flows   []flow.Flow[int, int]
		want    []int
		wantErr bool
	}{
		{"fastest wins", []flow.Flow[int, int]{sleepy(50*time.Millisecond, timesTen), flow.Map(negate)}, []int{-1, -2}, false},
		{"failures drop out", []flow.Flow[int, int]{failing, sleepy(10*time.Millisecond, timesTen)}, []int{10, 20}, false},
		{"every flow fails", []flow.Flow[int, int]{failing, failing}, nil, true},
		{"no values", []flow.Flow[int, int]{flow.Filter(func(int) bool { return false })}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := combine.Race(tt.flows...).ToList(context.Background(), ints(1, 2))
			if tt.wantErr {
				assert.ErrorIs(t, err, errBoom)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRaceCancelsLosers(t *testing.T) {
	slow := flow.New("slow", func(_ context.Context, in flow.Stream[int]) flow.Stream[int] {
		return flow.Create(func(ctx context.Context, emit func(int) bool) error {
			<-ctx.Done()
			return nil
		})
	})
	start := time.Now()
	got, err := combine.Race(slow, flow.Map(double)).ToList(context.Background(), ints(4))
	require.NoError(t, err)
	assert.Equal(t, []int{8}, got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRaceStreams(t *testing.T) {
	slow := flow.Create(func(ctx context.Context, emit func(int) bool) error {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(50 * time.Millisecond):
		}
		emit(1)
		return nil
	})

	got, err := flow.Slice(context.Background(), combine.RaceStreams(slow, ints(7, 8)))
	require.NoError(t, err)
	assert.Equal(t, []int{7, 8}, got)

	got, err = flow.Slice(context.Background(), combine.RaceStreams(ints(), failAfter(), slow))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got)

	_, err = flow.Slice(context.Background(), combine.RaceStreams(failAfter(), ints()))
	assert.ErrorIs(t, err, errBoom)
}

func TestBranching(t *testing.T) {
	tests := []struct {
		name string
		flow flow.Flow[int, int]
		want []int
	}{
		{"branch", combine.Branch(isEven, flow.Map(timesTen), flow.Map(negate)), []int{20, 40, 60, -1, -3, -5}},
		{"branch without else", combine.Branch(isEven, flow.Map(timesTen), flow.Flow[int, int]{}), []int{20, 40, 60}},
		{"if then", combine.IfThen(isEven, flow.Map(timesTen), flow.Map(negate)), []int{-1, 20, -3, 40, -5, 60}},
		{"if then without else", combine.IfThen(isEven, flow.Map(timesTen), flow.Flow[int, int]{}), []int{20, 40, 60}},
		{"switch", combine.Switch(
			func(v int) int { return v % 3 },
			map[int]flow.Flow[int, int]{0: flow.Map(timesTen), 1: flow.Map(negate)},
			flow.Flow[int, int]{},
		), []int{-1, 30, -4, 60}},
		{"switch fallback", combine.Switch(
			func(v int) int { return v % 3 },
			map[int]flow.Flow[int, int]{0: flow.Map(timesTen)},
			flow.Identity[int](),
		), []int{1, 2, 30, 4, 5, 60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flow.ToList(context.Background(), flow.Range(1, 7))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBranchingNames(t *testing.T) {
	assert.Equal(t, "if_then(isEven, map(timesTen), none)", combine.IfThen(isEven, flow.Map(timesTen), flow.Flow[int, int]{}).Name())
	assert.Panics(t, func() { combine.Branch[int, int](nil, flow.Identity[int](), flow.Identity[int]()) })
}

func TestParallelFlows(t *testing.T) {
	failing := flow.Map(func(int) (int, error) { return 0, errBoom })
	dup := flow.FlatMap(func(v int) flow.Stream[int] { return flow.FromSlice([]int{v, v}) })
	tests := []struct {
		name    string
		flow    flow.Flow[int, []int]
		want    [][]int
		wantErr bool
	}{
		{"flow order", combine.ParallelFlows(sleepy(30*time.Millisecond, timesTen), flow.Map(negate), dup), [][]int{{10, -1, 1, 1}, {20, -2, 2, 2}}, false},
		{"first failure ends", combine.ParallelFlows(flow.Map(double), failing), nil, true},
		{"failures left out", combine.ParallelFlowsSuccessful(flow.Map(double), failing), [][]int{{2}, {4}}, false},
		{"nothing survives", combine.ParallelFlowsSuccessful(failing), [][]int{{}, {}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flow.ToList(context.Background(), ints(1, 2))
			if tt.wantErr {
				assert.ErrorIs(t, err, errBoom)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParallelFlowsRunConcurrently(t *testing.T) {
	f := combine.ParallelFlows(
		sleepy(100*time.Millisecond, double).Label("slow_double"),
		sleepy(100*time.Millisecond, negate).Label("slow_negate"),
	)
	assert.True(t, f.Fused())
	assert.Equal(t, "parallel(slow_double, slow_negate)", f.Name())

	start := time.Now()
	got, err := f.ToList(context.Background(), ints(3))
	require.NoError(t, err)
	assert.Equal(t, [][]int{{6, -3}}, got)
	assert.Less(t, time.Since(start), 180*time.Millisecond)
}

func TestParallelFlowsCancelsSiblings(t *testing.T) {
	blocked := flow.New("blocked", func(_ context.Context, in flow.Stream[int]) flow.Stream[int] {
		return flow.Create(func(ctx context.Context, emit func(int) bool) error {
			<-ctx.Done()
			return ctx.Err()
		})
	})
	failing := flow.Map(func(int) (int, error) { return 0, errBoom })

	start := time.Now()
	_, err := combine.ParallelFlows(blocked, failing).ToList(context.Background(), ints(1))
	assert.ErrorIs(t, err, errBoom)
	assert.Less(t, time.Since(start), time.Second)
	assert.Panics(t, func() { combine.ParallelFlows[int, int]() })
}

package flow_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldentooth/flow-engine/flow"
)

func double(n int) (int, error) { return n * 2, nil }
func inc(n int) (int, error)    { return n + 1, nil }
func isEven(n int) bool         { return n%2 == 0 }

func dup(n int) flow.Stream[int] { return flow.FromSlice([]int{n, n}) }

func collect[IN, OUT any](t *testing.T, f flow.Flow[IN, OUT], in []IN) []OUT {
	t.Helper()
	got, err := f.ToList(context.Background(), flow.FromSlice(in))
	require.NoError(t, err)
	return got
}

func TestComposeLaws(t *testing.T) {
	input := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name    string
		f, g, h flow.Flow[int, int]
	}{
		{
			name: "fused stages",
			f:    flow.Map(double),
			g:    flow.Filter(isEven),
			h:    flow.Map(inc),
		},
		{
			name: "mixed fused and stream-level stages",
			f:    flow.Map(double),
			g:    flow.FlatMap(dup),
			h:    flow.Map(inc),
		},
		{
			name: "stream-level stages",
			f:    flow.FlatMap(dup),
			g:    flow.StartWith(0),
			h:    flow.EndWith(9),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left := flow.Compose(flow.Compose(tt.f, tt.g), tt.h)
			right := flow.Compose(tt.f, flow.Compose(tt.g, tt.h))
			assert.Equal(t, collect(t, left, input), collect(t, right, input))

			id := flow.Identity[int]()
			assert.Equal(t, collect(t, tt.f, input), collect(t, flow.Compose(id, tt.f), input))
			assert.Equal(t, collect(t, tt.f, input), collect(t, flow.Compose(tt.f, id), input))
		})
	}
}

func TestMapDistributesOverCompose(t *testing.T) {
	input := []int{1, 2, 3}
	composed := flow.Compose(flow.Map(double), flow.Map(inc))
	direct := flow.Map(func(n int) (int, error) {
		d, _ := double(n)
		return inc(d)
	})
	assert.Equal(t, collect(t, direct, input), collect(t, composed, input))
	assert.Equal(t, []int{3, 5, 7}, collect(t, composed, input))
}

func TestComposePreservesOrder(t *testing.T) {
	input := make([]int, 1000)
	for i := range input {
		input[i] = i
	}
	got := collect(t, flow.Chain(flow.Map(inc), flow.Identity[int](), flow.Map(double)), input)
	require.Len(t, got, len(input))
	for i, v := range got {
		assert.Equal(t, (i+1)*2, v)
	}
}

func TestNames(t *testing.T) {
	tests := []struct {
		name string
		f    interface{ Name() string }
		want string
	}{
		{"map", flow.Map(double), "map(double)"},
		{"filter", flow.Filter(isEven), "filter(isEven)"},
		{"identity", flow.Identity[int](), "identity"},
		{"fused compose", flow.Compose(flow.Map(double), flow.Filter(isEven)), "map(double) >> filter(isEven)"},
		{"nested compose", flow.Compose(flow.Map(double), flow.FlatMap(dup)), "map(double) >> flat_map(dup)"},
		{"label", flow.Map(double).Label("doubler"), "doubler"},
		{"closure", flow.Map(func(n int) (int, error) { return n, nil }), "map(fn)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Name())
		})
	}
	assert.Equal(t, "Flow(map(double))", flow.Map(double).String())
}

func TestMetadataSurvivesComposition(t *testing.T) {
	f := flow.Map(double).WithMetadata("owner", "ingest").WithMetadata("tier", 1)
	g := flow.Map(inc).WithMetadata("tier", 2)

	composed := flow.Compose(f, g)
	assert.Equal(t, flow.Metadata{"owner": "ingest", "tier": 2}, composed.Metadata())

	// Metadata returns a copy.
	md := composed.Metadata()
	md["owner"] = "changed"
	assert.Equal(t, "ingest", composed.Metadata()["owner"])
	assert.Equal(t, 1, f.Metadata()["tier"])
}

func TestFusion(t *testing.T) {
	fused := flow.Chain(flow.Map(double), flow.Filter(isEven), flow.Tap(func(int) error { return nil }))
	assert.True(t, fused.Fused())
	assert.Equal(t, 3, fused.Stages())

	mixed := flow.Compose(fused, flow.FlatMap(dup))
	assert.False(t, mixed.Fused())
	assert.Equal(t, 4, mixed.Stages())
}

func TestFusionAroundStreamStages(t *testing.T) {
	stage := flow.FlatMap(dup)
	tests := []struct {
		name string
		f    flow.Flow[int, int]
	}{
		{"left nested", flow.Compose(flow.Compose(flow.Map(double), stage), flow.Map(inc))},
		{"right nested", flow.Compose(flow.Map(double), flow.Compose(stage, flow.Map(inc)))},
		{"chained", flow.Chain(flow.Map(double), stage, flow.Map(inc))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.f.Fused())
			assert.Equal(t, 3, tt.f.Stages())
			assert.Equal(t, "map(double) >> flat_map(dup) >> map(inc)", tt.f.Name())
			assert.Equal(t, []int{3, 3, 5, 5}, collect(t, tt.f, []int{1, 2}))
		})
	}
}

func TestApplyIsSingleConsumer(t *testing.T) {
	ctx := context.Background()
	out := flow.Map(double).Apply(ctx, flow.FromSlice([]int{1, 2}))

	got, err := flow.Slice(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, got)

	_, err = flow.Slice(ctx, out)
	assert.ErrorIs(t, err, flow.ErrStreamConsumed)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	ctx := context.Background()
	src := flow.FromSlice([]int{1, 2, 3})
	_, err := flow.Map(double).ToList(ctx, src)
	require.NoError(t, err)

	again, err := flow.Slice(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, again)
}

func TestThrough(t *testing.T) {
	combined := flow.Through(flow.Map(double).Transform(), flow.Map(inc).Transform())
	got, err := flow.Slice(context.Background(), combined.Apply(context.Background(), flow.FromSlice([]int{1, 2, 3})))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 7}, got)
}

func TestPipe(t *testing.T) {
	ctx := context.Background()
	got, err := flow.Slice(ctx, flow.Pipe(ctx, flow.FromSlice([]int{1, 2, 3, 4}), flow.Map(double), flow.Filter(func(n int) bool { return n > 4 })))
	require.NoError(t, err)
	assert.Equal(t, []int{6, 8}, got)
}

func TestDerivedCombinators(t *testing.T) {
	base := flow.Map(double)
	assert.Equal(t, []string{"2", "4"}, collect(t, flow.MapFlow(base, func(n int) (string, error) {
		return string(rune('0' + n)), nil
	}), []int{1, 2}))
	assert.Equal(t, []int{4}, collect(t, base.Filter(func(n int) bool { return n > 2 }), []int{1, 2}))
	assert.Equal(t, []int{2, 2, 4, 4}, collect(t, flow.FlatMapFlow(base, dup), []int{1, 2}))

	var seen []int
	assert.Equal(t, []int{2, 4}, collect(t, base.Tap(func(n int) error { seen = append(seen, n); return nil }), []int{1, 2}))
	assert.Equal(t, []int{2, 4}, seen)
}

func stackDepth() int {
	pcs := make([]uintptr, 4096)
	return runtime.Callers(0, pcs)
}

func TestDeepMapChainUsesConstantStack(t *testing.T) {
	const stages = 100_000

	var firstDepth, lastDepth int
	f := recordDepth(&firstDepth)
	for i := 0; i < stages; i++ {
		f = flow.Compose(f, flow.Map(inc))
	}
	f = flow.Compose(f, recordDepth(&lastDepth))

	require.True(t, f.Fused())
	got := collect(t, f, []int{0})
	assert.Equal(t, []int{stages}, got)
	assert.NotZero(t, firstDepth)
	assert.Equal(t, firstDepth, lastDepth)
}

func recordDepth(depth *int) flow.Flow[int, int] {
	return flow.Map(func(n int) (int, error) {
		*depth = stackDepth()
		return n, nil
	})
}

func TestDeepMapChainAfterStreamStage(t *testing.T) {
	const stages = 100_000

	var firstDepth, lastDepth int
	maps := make([]flow.Flow[int, int], 0, stages+3)
	maps = append(maps, flow.FlatMap(dup), recordDepth(&firstDepth))
	for i := 0; i < stages; i++ {
		maps = append(maps, flow.Map(inc))
	}
	maps = append(maps, recordDepth(&lastDepth))
	f := flow.Chain(maps...)

	assert.False(t, f.Fused())
	assert.Equal(t, stages+3, f.Stages())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	got, err := f.ToList(ctx, flow.FromSlice([]int{0}))
	require.NoError(t, err)
	assert.Equal(t, []int{stages, stages}, got)
	assert.NotZero(t, firstDepth)
	assert.Equal(t, firstDepth, lastDepth)
}

func TestZeroFlowPanics(t *testing.T) {
	var f flow.Flow[int, int]
	assert.Panics(t, func() { f.Apply(context.Background(), flow.FromSlice([]int{1})) })
	assert.Panics(t, func() { flow.New[int, int]("broken", nil) })
}

package flow_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

var errBoom = errors.New("boom")

func failOnThree(n int) (int, error) {
	if n == 3 {
		return 0, errBoom
	}
	return n * 10, nil
}

func TestMapErrorsEndTheStream(t *testing.T) {
	got, err := flow.Map(failOnThree).ToList(context.Background(), flow.FromSlice([]int{1, 2, 3, 4}))
	assert.Equal(t, []int{10, 20}, got)
	require.ErrorIs(t, err, errBoom)

	var exec *flow.ExecutionError
	require.ErrorAs(t, err, &exec)
	assert.Equal(t, "map(failOnThree)", exec.Stage)
}

func TestMapRecoversPanics(t *testing.T) {
	mapper := flow.Map(func(n int) (int, error) {
		if n == 1 {
			panic("boom")
		}
		return n, nil
	})

	results := mapper.Apply(context.Background(), flow.FromSlice([]int{0, 1, 2})).Collect(context.Background())
	require.Len(t, results, 2)
	assert.True(t, results[0].IsValue())
	require.True(t, results[1].IsError())

	var p core.ErrPanic
	assert.ErrorAs(t, results[1].Error(), &p)
	assert.Equal(t, "boom", p.Value)
}

func TestErrorResultsAreTerminal(t *testing.T) {
	boom := errors.New("upstream")
	src := flow.Emit(func(ctx context.Context) <-chan flow.Result[int] {
		out := make(chan flow.Result[int], 3)
		out <- flow.Ok(1)
		out <- flow.Err[int](boom)
		out <- flow.Ok(2)
		close(out)
		return out
	})

	tests := []struct {
		name string
		f    flow.Flow[int, int]
	}{
		{"fused", flow.Map(double)},
		{"flat map", flow.FlatMap(dup)},
		{"start with", flow.StartWith(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := tt.f.Apply(context.Background(), src).Collect(context.Background())
			require.NotEmpty(t, results)
			last := results[len(results)-1]
			assert.ErrorIs(t, last.Error(), boom)
			for _, r := range results[:len(results)-1] {
				assert.True(t, r.IsValue())
			}
		})
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name  string
		pred  func(int) bool
		input []int
		want  []int
	}{
		{"keeps matching", isEven, []int{1, 2, 3, 4}, []int{2, 4}},
		{"drops everything", func(int) bool { return false }, []int{1, 2}, nil},
		{"empty input", isEven, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collect(t, flow.Filter(tt.pred), tt.input))
		})
	}
}

func TestTapError(t *testing.T) {
	stop := errors.New("stop")
	tap := flow.Tap(func(n int) error {
		if n > 1 {
			return stop
		}
		return nil
	})
	got, err := tap.ToList(context.Background(), flow.FromSlice([]int{1, 2, 3}))
	assert.Equal(t, []int{1}, got)
	assert.ErrorIs(t, err, stop)
}

func TestFlatMapIsSequential(t *testing.T) {
	slow := func(n int) flow.Stream[string] {
		return flow.Create(func(ctx context.Context, emit func(string) bool) error {
			for i := 0; i < 2; i++ {
				time.Sleep(time.Duration(3-n) * time.Millisecond)
				if !emit(fmt.Sprintf("%d.%d", n, i)) {
					return nil
				}
			}
			return nil
		})
	}
	got := collect(t, flow.FlatMap(slow), []int{1, 2, 3})
	assert.Equal(t, []string{"1.0", "1.1", "2.0", "2.1", "3.0", "3.1"}, got)
}

func TestFlatMapSubStreamError(t *testing.T) {
	boom := errors.New("sub")
	f := flow.FlatMap(func(n int) flow.Stream[int] {
		if n == 2 {
			return flow.FromError[int](boom)
		}
		return flow.Once(n)
	})
	got, err := f.ToList(context.Background(), flow.FromSlice([]int{1, 2, 3}))
	assert.Equal(t, []int{1}, got)
	assert.ErrorIs(t, err, boom)
}

func TestConstructorsRejectNilFunctions(t *testing.T) {
	var conf *flow.ConfigurationError
	tests := map[string]func(){
		"map":      func() { flow.Map[int, int](nil) },
		"filter":   func() { flow.Filter[int](nil) },
		"tap":      func() { flow.Tap[int](nil) },
		"flat map": func() { flow.FlatMap[int, int](nil) },
	}
	for name, build := range tests {
		t.Run(name, func(t *testing.T) {
			defer func() {
				r := recover()
				require.NotNil(t, r)
				err, ok := r.(error)
				require.True(t, ok)
				assert.ErrorAs(t, err, &conf)
			}()
			build()
		})
	}
}

func FuzzMap(f *testing.F) {
	for _, seed := range []int{0, 1, -1, 5, 11} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, n int) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		mapper := flow.Map(func(x int) (int, error) {
			switch {
			case x%11 == 0:
				return 0, fmt.Errorf("err-%d", x)
			case x%5 == 0:
				panic("panic-path")
			case x < 0:
				return -x, nil
			default:
				return x * 2, nil
			}
		})

		results := mapper.Apply(ctx, flow.FromSlice([]int{n})).Collect(ctx)
		if len(results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(results))
		}

		res := results[0]
		switch {
		case res.IsValue():
			want := n * 2
			if n < 0 {
				want = -n
			}
			if res.Value() != want {
				t.Fatalf("value mismatch: got %d want %d", res.Value(), want)
			}
		case res.IsError():
			if n%11 != 0 && n%5 != 0 {
				t.Fatalf("unexpected error for input %d: %v", n, res.Error())
			}
		default:
			t.Fatalf("unexpected sentinel for input %d", n)
		}
	})
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		name    string
		in      []flow.Stream[int]
		want    []int
		wantErr bool
	}{
		{"in order", []flow.Stream[int]{flow.FromSlice([]int{1, 2}), flow.Empty[int](), flow.Once(3)}, []int{1, 2, 3}, false},
		{"inner error", []flow.Stream[int]{flow.Once(1), flow.FromError[int](errBoom), flow.Once(2)}, []int{1}, true},
		{"empty", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := flow.Flatten[int]()
			assert.Equal(t, "flatten", f.Name())
			got, err := f.ToList(context.Background(), flow.FromSlice(tt.in))
			if tt.wantErr {
				assert.ErrorIs(t, err, errBoom)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

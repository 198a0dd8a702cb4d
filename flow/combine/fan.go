package combine

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/goldentooth/flow-engine/flow/core"
)

// DefaultPartitionBuffer is how many items a side of Partition or Multicast
// may lag behind the source.
const DefaultPartitionBuffer = 64

type fanConfig struct {
	Buffer int `validate:"gte=1"`
}

// FanOption configures Partition and Multicast.
type FanOption func(*fanConfig)

// WithPartitionBuffer sets how many items a side may lag behind the source.
func WithPartitionBuffer(n int) FanOption {
	return func(c *fanConfig) { c.Buffer = n }
}

func fanSettings(op string, opts []FanOption) fanConfig {
	cfg := fanConfig{Buffer: DefaultPartitionBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}
	core.MustValidate(op, cfg)
	return cfg
}

// hub reads its source once and hands every item to one or all of its
// sides. The pass starts when the first side is emitted and runs under
// that side's context.
type hub[T any] struct {
	src   core.Stream[T]
	route func(T) int // side index, or -1 for every side
	sides []*side[T]
	start sync.Once
}

type side[T any] struct {
	h        *hub[T]
	ch       chan core.Result[T]
	claimed  atomic.Bool
	gone     chan struct{}
	goneOnce sync.Once
}

func newHub[T any](src core.Stream[T], n, buffer int, route func(T) int) *hub[T] {
	h := &hub[T]{src: src, route: route}
	for i := 0; i < n; i++ {
		h.sides = append(h.sides, &side[T]{
			h:    h,
			ch:   make(chan core.Result[T], buffer),
			gone: make(chan struct{}),
		})
	}
	return h
}

func (h *hub[T]) streams() []core.Stream[T] {
	out := make([]core.Stream[T], len(h.sides))
	for i, s := range h.sides {
		out[i] = s
	}
	return out
}

func (h *hub[T]) pump(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		for _, s := range h.sides {
			close(s.ch)
		}
	}()

	for res := range h.src.Emit(ctx) {
		target := -1
		if res.IsValue() {
			target = h.route(res.Value())
		}
		for i, s := range h.sides {
			if target >= 0 && i != target {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-s.gone:
			case s.ch <- res:
			}
		}
		if res.IsError() {
			return
		}
	}
}

// Emit starts the shared pass if needed and streams this side's items. A
// side can be emitted only once.
func (s *side[T]) Emit(ctx context.Context) <-chan core.Result[T] {
	if !s.claimed.CompareAndSwap(false, true) {
		out := make(chan core.Result[T], 1)
		out <- core.Err[T](core.ErrStreamConsumed)
		close(out)
		return out
	}
	s.h.start.Do(func() { go s.h.pump(ctx) })

	out := make(chan core.Result[T], core.BufferSize(ctx))
	go func() {
		defer close(out)
		defer s.release()
		for {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-s.ch:
				if !ok || !core.Send(ctx, out, res) {
					return
				}
			}
		}
	}()
	return out
}

// release tells the pump to stop waiting on this side.
func (s *side[T]) release() {
	s.goneOnce.Do(func() { close(s.gone) })
}

func (s *side[T]) Collect(ctx context.Context) []core.Result[T] {
	return core.Collect[T](ctx, s)
}

func (s *side[T]) All(ctx context.Context) iter.Seq[core.Result[T]] {
	return core.All[T](ctx, s)
}

// Partition splits stream in one pass into the items matching pred and the
// rest. Errors go to both sides.
//
// Each side buffers at most WithPartitionBuffer items (DefaultPartitionBuffer
// unless set). When a side's buffer is full the pass waits for it, holding
// back the other side too, so both sides should be consumed concurrently.
// A side that will never be consumed must be cancelled through the context
// of the side that is, or the pass stalls once its buffer fills. A side
// whose consumer has gone away no longer holds back the pass.
func Partition[T any](pred func(T) bool, stream core.Stream[T], opts ...FanOption) (matched, unmatched core.Stream[T]) {
	if pred == nil {
		panic(core.Misconfigured("partition", "nil predicate"))
	}
	cfg := fanSettings("partition", opts)
	h := newHub(stream, 2, cfg.Buffer, func(v T) int {
		if pred(v) {
			return 0
		}
		return 1
	})
	return h.sides[0], h.sides[1]
}

// Multicast returns n streams that each receive every item of stream from
// a single pass. Buffering and stalling work as in Partition.
func Multicast[T any](stream core.Stream[T], n int, opts ...FanOption) []core.Stream[T] {
	if n < 1 {
		panic(core.Misconfigured("multicast", "need at least one consumer, got %d", n))
	}
	cfg := fanSettings("multicast", opts)
	return newHub(stream, n, cfg.Buffer, func(T) int { return -1 }).streams()
}

// Tee is Multicast with two consumers.
func Tee[T any](stream core.Stream[T], opts ...FanOption) (core.Stream[T], core.Stream[T]) {
	s := Multicast(stream, 2, opts...)
	return s[0], s[1]
}

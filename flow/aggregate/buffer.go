package aggregate

import (
	"context"
	"fmt"

	"github.com/gammazero/deque"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// Buffer collects items until trigger emits a value, then emits what it has
// collected. Triggers arriving while the buffer is empty are ignored. When
// the input ends, the remainder is emitted; when trigger ends, items are
// held until the input ends. An error on trigger fails the stream.
func Buffer[T, N any](trigger flow.Stream[N]) flow.Flow[T, []T] {
	return stage("buffer", func(ctx context.Context, upstream <-chan core.Result[T], out sink[[]T]) {
		ticks := trigger.Emit(ctx)
		var buf []T
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-ticks:
				switch {
				case !ok:
					ticks = nil
				case tick.IsError():
					out.fail(tick.Error())
					return
				case tick.IsValue() && len(buf) > 0:
					full := buf
					buf = nil
					if !out.send(full) {
						return
					}
				}
			case res, ok := <-upstream:
				if !ok {
					if ctx.Err() == nil && len(buf) > 0 {
						out.send(buf)
					}
					return
				}
				if !res.IsValue() {
					if !passOn(out, res) {
						return
					}
					continue
				}
				buf = append(buf, res.Value())
			}
		}
	})
}

type expansion[T any] struct {
	item  T
	depth int
}

// Expand emits every input item and, breadth first, the items fn expands
// them into, down to maxDepth levels below the input. Input is read to the
// end before the first item is emitted. A nil sub-stream expands to nothing.
func Expand[T any](fn func(T) flow.Stream[T], maxDepth int) flow.Flow[T, T] {
	if fn == nil {
		panic(core.Misconfigured("expand", "nil function"))
	}
	if maxDepth < 0 {
		panic(core.Misconfigured("expand", "negative depth %d", maxDepth))
	}

	name := fmt.Sprintf("expand(%s, %d)", flow.FuncName(fn), maxDepth)
	return stage(name, func(ctx context.Context, upstream <-chan core.Result[T], out sink[T]) {
		queue := deque.New[expansion[T]]()
		ended := each(ctx, upstream, out, func(v T) bool {
			queue.PushBack(expansion[T]{item: v})
			return true
		})
		if !ended {
			return
		}

		for queue.Len() > 0 {
			next := queue.PopFront()
			if !out.send(next.item) {
				return
			}
			if next.depth >= maxDepth {
				continue
			}

			sub, err := protect(name, func() flow.Stream[T] { return fn(next.item) })
			if err != nil {
				out.fail(err)
				return
			}
			if sub == nil {
				continue
			}
			for res := range sub.Emit(ctx) {
				switch {
				case res.IsError():
					out.fail(res.Error())
					return
				case res.IsValue():
					queue.PushBack(expansion[T]{item: res.Value(), depth: next.depth + 1})
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	})
}

package flow

import (
	"context"

	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// pipeline is the persistent plan of a flow that is not fully fused: a
// sequence of fused step chains and stream-level stages. Like
// trampoline.Chain, concatenation allocates one node and every traversal
// uses an explicit stack, so plans of any length are built and run without
// recursion. Adjacent chains are merged when the plan is run, so fused steps
// on either side of a stage run in one loop however the flow was composed.
type pipeline struct {
	left, right *pipeline
	label       string // display name for the whole subtree

	chain *trampoline.Chain[any]
	stage *stage
}

// stage is a stream-level transform. run feeds up through the fused steps
// of pre, applies the transform and returns its output.
type stage struct {
	name string
	run  func(ctx context.Context, up boxed, pre *trampoline.Chain[any]) boxed
}

func chainPart(c *trampoline.Chain[any]) *pipeline {
	if c.Len() == 0 {
		return nil
	}
	return &pipeline{chain: c}
}

func stagePart(s *stage) *pipeline {
	return &pipeline{stage: s}
}

func joinParts(a, b *pipeline) *pipeline {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return &pipeline{left: a, right: b}
}

func (p *pipeline) labeled(name string) *pipeline {
	if p == nil || name == "" {
		return p
	}
	return &pipeline{left: p, label: name}
}

// walk visits nodes in execution order. Children of a node are skipped when
// visit returns false.
func (p *pipeline) walk(visit func(*pipeline) bool) {
	if p == nil {
		return
	}
	stack := []*pipeline{p}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(node) {
			continue
		}
		if node.right != nil {
			stack = append(stack, node.right)
		}
		if node.left != nil {
			stack = append(stack, node.left)
		}
	}
}

func (p *pipeline) names() []string {
	var names []string
	p.walk(func(node *pipeline) bool {
		switch {
		case node.label != "":
			names = append(names, node.label)
			return false
		case node.stage != nil:
			names = append(names, node.stage.name)
		case node.chain != nil:
			names = append(names, node.chain.Names()...)
		}
		return true
	})
	return names
}

// size counts fused steps and stages.
func (p *pipeline) size() int {
	n := 0
	p.walk(func(node *pipeline) bool {
		switch {
		case node.stage != nil:
			n++
		case node.chain != nil:
			n += node.chain.Len()
		}
		return true
	})
	return n
}

// run subscribes the stages one after another and returns the output
// together with the fused steps still to apply to it.
func (p *pipeline) run(ctx context.Context, up boxed) (boxed, *trampoline.Chain[any]) {
	var pending *trampoline.Chain[any]
	p.walk(func(node *pipeline) bool {
		switch {
		case node.stage != nil:
			up = node.stage.run(ctx, up, pending)
			pending = nil
		case node.chain != nil:
			pending = trampoline.Concat(pending, node.chain)
		}
		return true
	})
	return up, pending
}

// boxed is a stream whose item type is known only to the code that made
// it. typed holds the underlying Stream[T] so a consumer expecting exactly
// T can take it unchanged.
type boxed struct {
	typed any
	open  func(ctx context.Context) func(yield func(Result[any]) bool)
}

func box[T any](s Stream[T]) boxed {
	return boxed{typed: s, open: func(ctx context.Context) func(func(Result[any]) bool) {
		upstream := s.Emit(ctx)
		return func(yield func(Result[any]) bool) {
			for res := range upstream {
				if !yield(boxResult(res)) {
					return
				}
			}
		}
	}}
}

func boxResult[T any](res Result[T]) Result[any] {
	if res.IsValue() {
		return core.Ok[any](res.Value())
	}
	return core.Retype[any](res)
}

// unbox returns up as a Stream[T] with the steps of pre applied to its
// items in a single goroutine. Errors and panics end the stream as an
// ExecutionError naming the failing step. With no steps and an upstream
// already of type T, up is returned as is.
func unbox[T any](up boxed, pre *trampoline.Chain[any]) Stream[T] {
	if pre.Len() == 0 {
		if s, ok := up.typed.(Stream[T]); ok {
			return s
		}
	}
	return core.Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T], core.BufferSize(ctx))
		ctx, cancel := context.WithCancel(ctx)
		upstream := up.open(ctx)

		go func() {
			defer close(out)
			defer cancel()

			prog := pre.Compile()
			for res := range upstream {
				if !res.IsValue() {
					if !core.Send(ctx, out, core.Retype[T](res)) || res.IsError() {
						return
					}
					continue
				}

				b, err := prog.Run(ctx, res.Value())
				if err != nil {
					core.Send(ctx, out, core.Err[T](err))
					return
				}
				if b.Emits() && !core.Send(ctx, out, core.Ok(cast[T](b.Value()))) {
					return
				}
				if b.Terminates() {
					return
				}
			}
		}()
		return out
	})
}

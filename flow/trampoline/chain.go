package trampoline

// Chain is a persistent, immutable sequence of step factories. Concatenating
// two chains allocates one node and never copies, so building a chain by
// repeated composition costs O(1) per composition. Compile flattens the
// tree with an explicit stack, so neither operation recurses.
type Chain[T any] struct {
	left, right *Chain[T]
	name        string
	newStep     func() Step[T]
	size        int
}

// Leaf creates a single-step chain. newStep is called once per Compile so
// that every subscription gets fresh step state (counters, seen-sets).
func Leaf[T any](name string, newStep func() Step[T]) *Chain[T] {
	return &Chain[T]{name: name, newStep: newStep, size: 1}
}

// Concat returns the chain running a then b. Either side may be nil.
func Concat[T any](a, b *Chain[T]) *Chain[T] {
	switch {
	case a == nil || a.size == 0:
		return b
	case b == nil || b.size == 0:
		return a
	}
	return &Chain[T]{left: a, right: b, size: a.size + b.size}
}

// Len returns the number of steps in the chain.
func (c *Chain[T]) Len() int {
	if c == nil {
		return 0
	}
	return c.size
}

// Walk visits the leaves in execution order.
func (c *Chain[T]) Walk(visit func(name string, newStep func() Step[T])) {
	if c == nil {
		return
	}
	stack := []*Chain[T]{c}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node.newStep != nil {
			visit(node.name, node.newStep)
			continue
		}
		// Right pushed first so the left subtree is visited first.
		if node.right != nil {
			stack = append(stack, node.right)
		}
		if node.left != nil {
			stack = append(stack, node.left)
		}
	}
}

// Names returns the step names in execution order.
func (c *Chain[T]) Names() []string {
	names := make([]string, 0, c.Len())
	c.Walk(func(name string, _ func() Step[T]) {
		names = append(names, name)
	})
	return names
}

// Compile instantiates every step and returns a runnable Program.
func (c *Chain[T]) Compile(opts ...Option) *Program[T] {
	steps := make([]Step[T], 0, c.Len())
	names := make([]string, 0, c.Len())
	c.Walk(func(name string, newStep func() Step[T]) {
		steps = append(steps, newStep())
		names = append(names, name)
	})
	return NewProgram(steps, names, opts...)
}

package flow

// Named is implemented by every Flow. It is what a Registry stores.
type Named interface {
	Name() string
	Metadata() Metadata
}

// Registry maps names to flows. The engine only consumes this interface;
// implementations live with the application that owns the flows.
type Registry interface {
	Register(name string, f Named, meta Metadata) error
	Lookup(name string) (Named, bool)
}

var _ Named = Flow[int, int]{}

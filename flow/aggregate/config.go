// Package aggregate provides combinators that combine several items of a
// stream into one: batches, sliding windows, running folds and groups.
//
// Combinators that emit at most one item per input (Window, Scan, Distinct,
// Pairwise) are fused into the enclosing flow's trampoline loop. The ones
// that hold items back until later (Batch, Fold, GroupBy, Buffer) run as a
// stream-level stage and flush only when their input ends normally: an
// upstream error is forwarded and whatever was held back is dropped.
package aggregate

import (
	"context"
	"time"

	"github.com/goldentooth/flow-engine/flow/core"
)

// Config holds context-carried defaults for aggregate combinators.
type Config struct {
	// BatchSize is used by Batch and BatchTimeout when called with size 0.
	BatchSize int `validate:"gte=0"`

	// BatchTimeout is used by BatchTimeout when called with timeout 0.
	BatchTimeout time.Duration `validate:"gte=0"`
}

// Option adjusts a Config.
type Option func(*Config)

// WithBatchSize sets the default batch size.
func WithBatchSize(size int) Option {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// WithBatchTimeout sets the default batch timeout.
func WithBatchTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.BatchTimeout = timeout
	}
}

// Configure returns a context carrying aggregate defaults. Options apply on
// top of any Config already present on ctx. It panics with a
// ConfigurationError if the result is invalid.
//
// Example:
//
//	ctx = aggregate.Configure(ctx, aggregate.WithBatchSize(100))
//	batches := aggregate.Batch[Event](0).Apply(ctx, events)
func Configure(ctx context.Context, opts ...Option) context.Context {
	cfg, _ := core.GetConfig[Config](ctx)
	for _, opt := range opts {
		opt(&cfg)
	}
	core.MustValidate("aggregate", cfg)
	return core.WithConfig(ctx, cfg)
}

// batchSize returns size if positive, else the context default, else 0.
func batchSize(ctx context.Context, size int) int {
	if size > 0 {
		return size
	}
	if cfg, ok := core.GetConfig[Config](ctx); ok && cfg.BatchSize > 0 {
		return cfg.BatchSize
	}
	return 0
}

func batchTimeout(ctx context.Context, timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	if cfg, ok := core.GetConfig[Config](ctx); ok && cfg.BatchTimeout > 0 {
		return cfg.BatchTimeout
	}
	return 0
}

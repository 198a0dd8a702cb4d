package core

import (
	"context"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
)

// configKey is a typed context key for config injection.
// Each config type gets its own unique key.
type configKey[C any] struct{}

// WithConfig attaches a configuration value to the context.
// The config is keyed by its type, so only one instance of each config type
// can be stored. Later calls with the same type will override earlier ones.
//
// Example:
//
//	ctx := core.WithConfig(ctx, StreamConfig{BufferSize: 16})
func WithConfig[C any](ctx context.Context, cfg C) context.Context {
	return context.WithValue(ctx, configKey[C]{}, cfg)
}

// GetConfig retrieves a configuration of type C from the context.
// Returns the config and true if found, or zero value and false if not present.
func GetConfig[C any](ctx context.Context) (C, bool) {
	if cfg, ok := ctx.Value(configKey[C]{}).(C); ok {
		return cfg, true
	}
	return *new(C), false
}

// StreamConfig holds context-carried defaults shared by stream stages.
type StreamConfig struct {
	// BufferSize is the capacity of stage output channels. Zero keeps stages
	// in lock step with their consumer.
	BufferSize int `validate:"gte=0"`
}

// BufferSize returns the configured channel capacity for ctx.
func BufferSize(ctx context.Context) int {
	if cfg, ok := GetConfig[StreamConfig](ctx); ok && cfg.BufferSize > 0 {
		return cfg.BufferSize
	}
	return 0
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ValidateConfig checks cfg against its `validate` struct tags and reports
// violations as a ConfigurationError for op.
func ValidateConfig(op string, cfg any) error {
	err := configValidator().Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return Misconfigured(op, "%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
	return &ConfigurationError{Op: op, Err: err}
}

// MustValidate panics with a ConfigurationError when cfg is invalid.
// Combinator constructors use it so misconfiguration fails at build time.
func MustValidate(op string, cfg any) {
	if err := ValidateConfig(op, cfg); err != nil {
		panic(err)
	}
}

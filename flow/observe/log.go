package observe

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

type logConfig struct {
	level   slog.Level
	message string
	label   string
}

// LogOption configures Log.
type LogOption func(*logConfig)

// WithLevel sets the level items are logged at. Errors are always logged
// at slog.LevelError.
func WithLevel(level slog.Level) LogOption {
	return func(c *logConfig) { c.level = level }
}

// WithMessage sets the log message for items.
func WithMessage(msg string) LogOption {
	return func(c *logConfig) { c.message = msg }
}

// WithLabel adds a "stage" attribute to every record.
func WithLabel(label string) LogOption {
	return func(c *logConfig) { c.label = label }
}

// Log logs every item passing the stage and passes it on unchanged. Records
// of one run share a "run_id" attribute. A nil logger means slog.Default().
func Log[T any](logger *slog.Logger, opts ...LogOption) flow.Flow[T, T] {
	cfg := logConfig{level: slog.LevelInfo, message: "item"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.label != "" {
		logger = logger.With(slog.String("stage", cfg.label))
	}

	return flow.New("log", func(_ context.Context, in flow.Stream[T]) flow.Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
			upstream := in.Emit(ctx)
			out := make(chan core.Result[T], core.BufferSize(ctx))
			go func() {
				defer close(out)
				run := logger.With(slog.String("run_id", uuid.NewString()))
				var index int64
				for res := range upstream {
					switch {
					case res.IsValue():
						run.Log(ctx, cfg.level, cfg.message,
							slog.Int64("index", index),
							slog.Any("item", res.Value()),
						)
						index++
					case res.IsError():
						run.ErrorContext(ctx, "error",
							slog.Int64("index", index),
							slog.Any("error", res.Error()),
						)
					}
					if !core.Send(ctx, out, res) {
						go core.Drain(upstream)
						return
					}
				}
			}()
			return out
		})
	})
}

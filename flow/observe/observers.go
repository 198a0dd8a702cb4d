package observe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LogObserver writes run lifecycles as structured logs.
type LogObserver struct {
	Logger *slog.Logger
	// Items logs every item at debug level when set.
	Items bool
}

// NewLogObserver returns an Observer logging to logger, or to slog.Default()
// when logger is nil.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{Logger: logger}
}

func (o *LogObserver) OnStart(ctx context.Context, run Run) {
	o.Logger.DebugContext(ctx, "flow_start",
		slog.String("stage", run.Stage),
		slog.String("run_id", run.ID.String()),
	)
}

func (o *LogObserver) OnItem(ctx context.Context, run Run, item any) {
	if !o.Items {
		return
	}
	o.Logger.DebugContext(ctx, "flow_item",
		slog.String("stage", run.Stage),
		slog.String("run_id", run.ID.String()),
		slog.Any("item", item),
	)
}

func (o *LogObserver) OnError(ctx context.Context, run Run, err error) {
	o.Logger.ErrorContext(ctx, "flow_failed",
		slog.String("stage", run.Stage),
		slog.String("run_id", run.ID.String()),
		slog.Any("error", err),
	)
}

func (o *LogObserver) OnComplete(ctx context.Context, run Run, stats Stats) {
	o.Logger.InfoContext(ctx, "flow_completed",
		slog.String("stage", run.Stage),
		slog.String("run_id", run.ID.String()),
		slog.Int64("items", stats.Items),
		slog.Int64("errors", stats.Errors),
		slog.Duration("duration", stats.Duration),
		slog.Bool("cancelled", stats.Cancelled),
	)
}

// OTelObserver records runs as OpenTelemetry metrics, all carrying a
// "stage" attribute.
type OTelObserver struct {
	items    metric.Int64Counter
	errors   metric.Int64Counter
	active   metric.Int64UpDownCounter
	duration metric.Float64Histogram
}

// NewOTelObserver creates the observer's instruments on meter.
func NewOTelObserver(meter metric.Meter) (*OTelObserver, error) {
	o := &OTelObserver{}
	var err error
	if o.items, err = meter.Int64Counter("flow.items",
		metric.WithDescription("Items emitted by a flow.")); err != nil {
		return nil, fmt.Errorf("create items counter: %w", err)
	}
	if o.errors, err = meter.Int64Counter("flow.errors",
		metric.WithDescription("Errors emitted by a flow.")); err != nil {
		return nil, fmt.Errorf("create errors counter: %w", err)
	}
	if o.active, err = meter.Int64UpDownCounter("flow.active",
		metric.WithDescription("Runs in progress.")); err != nil {
		return nil, fmt.Errorf("create active counter: %w", err)
	}
	if o.duration, err = meter.Float64Histogram("flow.duration",
		metric.WithDescription("Run duration."), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return o, nil
}

func stageAttr(run Run) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("stage", run.Stage))
}

func (o *OTelObserver) OnStart(ctx context.Context, run Run) {
	o.active.Add(ctx, 1, stageAttr(run))
}

func (o *OTelObserver) OnItem(ctx context.Context, run Run, _ any) {
	o.items.Add(ctx, 1, stageAttr(run))
}

func (o *OTelObserver) OnError(ctx context.Context, run Run, _ error) {
	o.errors.Add(ctx, 1, stageAttr(run))
}

func (o *OTelObserver) OnComplete(ctx context.Context, run Run, stats Stats) {
	// The run's context may already be cancelled; metrics are still wanted.
	ctx = context.WithoutCancel(ctx)
	o.active.Add(ctx, -1, stageAttr(run))
	o.duration.Record(ctx, stats.Duration.Seconds(), stageAttr(run))
}

// PromObserver records runs as Prometheus metrics labelled by stage.
type PromObserver struct {
	Items    *prometheus.CounterVec
	Errors   *prometheus.CounterVec
	Active   *prometheus.GaugeVec
	Duration *prometheus.HistogramVec
}

// NewPromObserver registers the observer's collectors with reg under
// namespace. A nil reg leaves them unregistered. Registering twice with
// the same registry panics, as promauto does.
func NewPromObserver(reg prometheus.Registerer, namespace string) *PromObserver {
	factory := promauto.With(reg)
	stage := []string{"stage"}
	return &PromObserver{
		Items: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_items_total",
			Help:      "Items emitted by a flow.",
		}, stage),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_errors_total",
			Help:      "Errors emitted by a flow.",
		}, stage),
		Active: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flow_active_runs",
			Help:      "Runs in progress.",
		}, stage),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flow_duration_seconds",
			Help:      "Run duration.",
			Buckets:   prometheus.DefBuckets,
		}, stage),
	}
}

func (o *PromObserver) OnStart(_ context.Context, run Run) {
	o.Active.WithLabelValues(run.Stage).Inc()
}

func (o *PromObserver) OnItem(_ context.Context, run Run, _ any) {
	o.Items.WithLabelValues(run.Stage).Inc()
}

func (o *PromObserver) OnError(_ context.Context, run Run, _ error) {
	o.Errors.WithLabelValues(run.Stage).Inc()
}

func (o *PromObserver) OnComplete(_ context.Context, run Run, stats Stats) {
	o.Active.WithLabelValues(run.Stage).Dec()
	o.Duration.WithLabelValues(run.Stage).Observe(stats.Duration.Seconds())
}

package adapter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type managerMetrics struct {
	rollbacks     metric.Int64Counter
	sweepDuration metric.Float64Histogram
}

func newManagerMetrics(provider metric.MeterProvider) managerMetrics {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}

	meter := provider.Meter("resilience.adapter")

	var (
		metrics managerMetrics
		err     error
	)

	metrics.rollbacks, err = meter.Int64Counter(
		"adapter.rollbacks",
		metric.WithDescription("Number of adapter version rollbacks performed"),
		metric.WithUnit("{rollback}"),
	)
	if err != nil {
		metrics.rollbacks, _ = noop.NewMeterProvider().Meter("resilience.adapter").Int64Counter("adapter.rollbacks")
	}

	metrics.sweepDuration, err = meter.Float64Histogram(
		"adapter.sweep.duration",
		metric.WithDescription("Duration of one rollback evaluation sweep"),
		metric.WithUnit("s"),
	)
	if err != nil {
		metrics.sweepDuration, _ = noop.NewMeterProvider().Meter("resilience.adapter").Float64Histogram("adapter.sweep.duration")
	}

	return metrics
}

func (m managerMetrics) rollback(ctx context.Context, platform string, automatic bool) {
	if m.rollbacks == nil {
		return
	}

	m.rollbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.Bool("automatic", automatic),
	))
}

func (m managerMetrics) sweep(ctx context.Context, seconds float64) {
	if m.sweepDuration == nil {
		return
	}

	m.sweepDuration.Record(ctx, seconds)
}

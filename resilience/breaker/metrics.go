package breaker

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type breakerMetrics struct {
	transitions  metric.Int64Counter
	rejections   metric.Int64Counter
	callDuration metric.Float64Histogram
}

func newBreakerMetrics(provider metric.MeterProvider) breakerMetrics {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}

	meter := provider.Meter("resilience.breaker")

	var (
		metrics breakerMetrics
		err     error
	)

	metrics.transitions, err = meter.Int64Counter(
		"breaker.transitions",
		metric.WithDescription("Number of circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		metrics.transitions, _ = noop.NewMeterProvider().Meter("resilience.breaker").Int64Counter("breaker.transitions")
	}

	metrics.rejections, err = meter.Int64Counter(
		"breaker.rejections",
		metric.WithDescription("Number of calls rejected while the circuit was open"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		metrics.rejections, _ = noop.NewMeterProvider().Meter("resilience.breaker").Int64Counter("breaker.rejections")
	}

	metrics.callDuration, err = meter.Float64Histogram(
		"breaker.call.duration",
		metric.WithDescription("Duration of calls executed through the breaker"),
		metric.WithUnit("s"),
	)
	if err != nil {
		metrics.callDuration, _ = noop.NewMeterProvider().Meter("resilience.breaker").Float64Histogram("breaker.call.duration")
	}

	return metrics
}

func (m breakerMetrics) transition(ctx context.Context, name string, from, to State) {
	if m.transitions == nil {
		return
	}

	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m breakerMetrics) rejection(ctx context.Context, name string) {
	if m.rejections == nil {
		return
	}

	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", name)))
}

func (m breakerMetrics) callDurationRecord(ctx context.Context, seconds float64, name string) {
	if m.callDuration == nil {
		return
	}

	m.callDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("breaker", name)))
}

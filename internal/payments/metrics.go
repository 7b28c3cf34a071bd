package payments

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type serviceMetrics struct {
	started             metric.Int64Counter
	confirmed           metric.Int64Counter
	failed              metric.Int64Counter
	retried             metric.Int64Counter
	invariantViolations metric.Int64Counter
	providerDuration    metric.Float64Histogram
}

func newServiceMetrics(meter metric.Meter) (*serviceMetrics, error) {
	m := &serviceMetrics{}
	var err, e error

	m.started, e = meter.Int64Counter("payments.started", metric.WithDescription("Payments started"))
	err = errors.Join(err, e)
	m.confirmed, e = meter.Int64Counter("payments.confirmed", metric.WithDescription("Payments confirmed by the provider"))
	err = errors.Join(err, e)
	m.failed, e = meter.Int64Counter("payments.failed", metric.WithDescription("Payments that ended failed"))
	err = errors.Join(err, e)
	m.retried, e = meter.Int64Counter("payments.retried", metric.WithDescription("Payment retries"))
	err = errors.Join(err, e)
	m.invariantViolations, e = meter.Int64Counter("payments.invariant_violations",
		metric.WithDescription("Provider answers that contradict the provider contract"))
	err = errors.Join(err, e)
	m.providerDuration, e = meter.Float64Histogram("payments.provider.duration",
		metric.WithDescription("Latency of payment provider calls"),
		metric.WithUnit("s"))
	err = errors.Join(err, e)

	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *serviceMetrics) recordProviderCall(ctx context.Context, op, provider string, elapsed time.Duration, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	m.providerDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}

func metricAttrs(op string) metric.AddOption {
	return metric.WithAttributes(attribute.String("operation", op))
}

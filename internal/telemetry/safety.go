package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SafetyMetrics holds the domain counters for planning, alerts and monitoring.
type SafetyMetrics struct {
	plans            metric.Int64Counter
	alerts           metric.Int64Counter
	deliveryFailures metric.Int64Counter
	deviations       metric.Int64Counter
}

// NewSafetyMetrics creates the domain counters on meter.
func NewSafetyMetrics(meter metric.Meter) (*SafetyMetrics, error) {
	plans, err := meter.Int64Counter(
		"hershield.planning.total",
		metric.WithDescription("Planning requests by score source"),
		metric.WithUnit("{plan}"),
	)
	if err != nil {
		return nil, err
	}

	alerts, err := meter.Int64Counter(
		"hershield.alerts.dispatched",
		metric.WithDescription("Alerts recorded by kind"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, err
	}

	deliveryFailures, err := meter.Int64Counter(
		"hershield.alerts.delivery_failures",
		metric.WithDescription("Failed alert deliveries by notifier"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	deviations, err := meter.Int64Counter(
		"hershield.monitoring.deviations",
		metric.WithDescription("Transitions from on-route to deviated"),
		metric.WithUnit("{deviation}"),
	)
	if err != nil {
		return nil, err
	}

	return &SafetyMetrics{
		plans:            plans,
		alerts:           alerts,
		deliveryFailures: deliveryFailures,
		deviations:       deviations,
	}, nil
}

// RecordPlan counts a planning request answered from source.
func (m *SafetyMetrics) RecordPlan(ctx context.Context, source string) {
	m.plans.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordAlert counts a recorded alert.
func (m *SafetyMetrics) RecordAlert(ctx context.Context, kind string) {
	m.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDeliveryFailure counts a failed notifier call.
func (m *SafetyMetrics) RecordDeliveryFailure(ctx context.Context, notifier string) {
	m.deliveryFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("notifier", notifier)))
}

// RecordDeviation counts a deviation edge.
func (m *SafetyMetrics) RecordDeviation(ctx context.Context) {
	m.deviations.Add(ctx, 1)
}

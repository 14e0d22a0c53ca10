// Package telemetry wires OpenTelemetry export for HerShield processes and
// defines the safety counters recorded by planning, monitoring and alerting.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// DefaultMetricInterval is the push period for the periodic metric reader.
const DefaultMetricInterval = 15 * time.Second

// Config selects where telemetry goes and how much of it is kept.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	Enabled        bool

	// SampleRatio is the fraction of root traces kept. Values outside
	// (0, 1) keep everything; child spans follow their parent.
	SampleRatio float64

	MetricInterval time.Duration
}

// Provider owns the exporters started by Init.
type Provider struct {
	meter     metric.Meter
	stoppers  []stopper
	exporting bool
}

type stopper struct {
	name string
	stop func(context.Context) error
}

// Exporting reports whether spans and metrics leave the process.
func (p *Provider) Exporting() bool { return p.exporting }

// SafetyMetrics registers the safety counters on the service meter.
func (p *Provider) SafetyMetrics() (*SafetyMetrics, error) {
	meter := p.meter
	if meter == nil {
		meter = otel.Meter("hershield")
	}
	return NewSafetyMetrics(meter)
}

// Shutdown flushes every exporter, newest first, and joins their errors.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(p.stoppers) - 1; i >= 0; i-- {
		s := p.stoppers[i]
		if err := s.stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	p.stoppers = nil
	return errors.Join(errs...)
}

// Init installs the global tracer and meter providers. With telemetry
// disabled the otel noop globals stay in place and nothing is exported.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{}
	if !cfg.Enabled {
		p.meter = otel.Meter(cfg.ServiceName)
		return p, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	spans, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spans),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	p.stoppers = append(p.stoppers, stopper{"tracer provider", tracerProvider.Shutdown})

	measurements, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(measurements,
			sdkmetric.WithInterval(metricInterval(cfg.MetricInterval)),
		)),
		sdkmetric.WithResource(res),
	)
	p.stoppers = append(p.stoppers, stopper{"meter provider", meterProvider.Shutdown})

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.meter = meterProvider.Meter(cfg.ServiceName)
	p.exporting = true
	return p, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func metricInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultMetricInterval
	}
	return d
}

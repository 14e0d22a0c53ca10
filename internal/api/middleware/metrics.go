package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/hershield/hershield/internal/api/middleware"

// Metrics records request instruments following the OpenTelemetry HTTP
// server conventions. Monitoring streams count as in-flight requests for
// as long as the websocket is open.
type Metrics struct {
	duration     metric.Float64Histogram
	requests     metric.Int64Counter
	active       metric.Int64UpDownCounter
	responseSize metric.Int64Histogram
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	duration, err1 := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests"),
		metric.WithUnit("s"))
	requests, err2 := meter.Int64Counter("http.server.request.total",
		metric.WithDescription("HTTP server requests served"),
		metric.WithUnit("{request}"))
	active, err3 := meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("HTTP requests and monitoring streams in progress"),
		metric.WithUnit("{request}"))
	responseSize, err4 := meter.Int64Histogram("http.server.response.body.size",
		metric.WithDescription("Size of HTTP response bodies"),
		metric.WithUnit("By"))
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, err
	}

	return &Metrics{duration: duration, requests: requests, active: active, responseSize: responseSize}, nil
}

// Middleware records one observation per request once the handler returns.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := time.Now()

			method := attribute.String("http.request.method", r.Method)
			m.active.Add(ctx, 1, metric.WithAttributes(method))
			defer m.active.Add(ctx, -1, metric.WithAttributes(method))

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			attrs := metric.WithAttributeSet(responseAttributes(r, rec.statusCode))
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.requests.Add(ctx, 1, attrs)
			m.responseSize.Record(ctx, rec.written, attrs)
		})
	}
}

// responseAttributes labels by route pattern, never by raw path, and marks
// failed responses with their status as error.type.
func responseAttributes(r *http.Request, status int) attribute.Set {
	kvs := []attribute.KeyValue{
		attribute.String("http.request.method", r.Method),
		attribute.String("http.route", routePattern(r)),
		attribute.Int("http.response.status_code", status),
	}
	if status >= http.StatusBadRequest {
		kvs = append(kvs, attribute.String("error.type", strconv.Itoa(status)))
	}
	return attribute.NewSet(kvs...)
}

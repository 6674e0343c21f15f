package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
}

// Telemetry holds the meter and the instruments recorded by the controller.
// A disabled or nil Telemetry records nothing.
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	registry      *prometheus.Registry

	notificationsTotal metric.Int64Counter
	unhandledTotal     metric.Int64Counter
	transfersActive    metric.Int64UpDownCounter
	bytesTotal         metric.Int64Counter

	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
}

// New creates a new telemetry instance.
func New(cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "download-controller"
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	t := &Telemetry{
		meterProvider: provider,
		meter:         provider.Meter(cfg.ServiceName, metric.WithInstrumentationVersion(cfg.ServiceVersion)),
		registry:      registry,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return t, nil
}

// Enabled reports whether metrics are recorded
func (t *Telemetry) Enabled() bool {
	return t != nil && t.meter != nil
}

// RecordNotification counts one notification emitted to subscribers
func (t *Telemetry) RecordNotification(name string) {
	if t == nil || t.notificationsTotal == nil {
		return
	}
	t.notificationsTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("event", name)))
}

// RecordUnhandled counts a lifecycle event dropped by the adapter
func (t *Telemetry) RecordUnhandled(kind, reason string) {
	if t == nil || t.unhandledTotal == nil {
		return
	}
	t.unhandledTotal.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("reason", reason),
		))
}

// AddActiveTransfers moves the active transfer gauge by delta
func (t *Telemetry) AddActiveTransfers(delta int64) {
	if t == nil || t.transfersActive == nil || delta == 0 {
		return
	}
	t.transfersActive.Add(context.Background(), delta)
}

// RecordBytes counts bytes received by finished transfers
func (t *Telemetry) RecordBytes(n int64) {
	if t == nil || t.bytesTotal == nil || n <= 0 {
		return
	}
	t.bytesTotal.Add(context.Background(), n)
}

// RecordHTTPRequest records control API request metrics.
func (t *Telemetry) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if t == nil || t.httpRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", statusClass(status)),
	)
	t.httpRequestsTotal.Add(context.Background(), 1, attrs)
	t.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// Handler returns the HTTP handler for the metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.meterProvider == nil {
		return nil
	}
	return t.meterProvider.Shutdown(ctx)
}

func (t *Telemetry) initializeMetrics() error {
	var err error

	t.notificationsTotal, err = t.meter.Int64Counter(
		"download_notifications_total",
		metric.WithDescription("Notifications emitted to subscribers by event"),
	)
	if err != nil {
		return fmt.Errorf("failed to create download_notifications_total counter: %w", err)
	}

	t.unhandledTotal, err = t.meter.Int64Counter(
		"download_unhandled_events_total",
		metric.WithDescription("Lifecycle events dropped by the adapter"),
	)
	if err != nil {
		return fmt.Errorf("failed to create download_unhandled_events_total counter: %w", err)
	}

	t.transfersActive, err = t.meter.Int64UpDownCounter(
		"download_transfers_active",
		metric.WithDescription("Transfers currently moving bytes"),
	)
	if err != nil {
		return fmt.Errorf("failed to create download_transfers_active counter: %w", err)
	}

	t.bytesTotal, err = t.meter.Int64Counter(
		"download_bytes_total",
		metric.WithDescription("Bytes received by finished transfers"),
	)
	if err != nil {
		return fmt.Errorf("failed to create download_bytes_total counter: %w", err)
	}

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of control API requests"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("Control API request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	return nil
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

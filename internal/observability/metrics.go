package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics collects operation, resolution, and polling telemetry.
type Metrics struct {
	meter metric.Meter

	operations        metric.Int64Counter
	operationDuration metric.Float64Histogram
	resolutions       metric.Int64Counter
	pollAttempts      metric.Int64Histogram
	activeSupervisors metric.Int64UpDownCounter
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// NewMetrics creates the collector backed by the Prometheus exporter.
// When disabled, every record call is a cheap no-op.
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if !config.Enabled {
		return &Metrics{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("qcmcp")

	operations, err := meter.Int64Counter(
		"qcmcp.operations.total",
		metric.WithDescription("Total operations executed"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operations counter: %w", err)
	}

	operationDuration, err := meter.Float64Histogram(
		"qcmcp.operation.duration",
		metric.WithDescription("Operation execution latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	resolutions, err := meter.Int64Counter(
		"qcmcp.resolutions.total",
		metric.WithDescription("Argument resolution outcomes"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolutions counter: %w", err)
	}

	pollAttempts, err := meter.Int64Histogram(
		"qcmcp.supervisor.attempts",
		metric.WithDescription("Invocation attempts per supervised operation"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll attempts histogram: %w", err)
	}

	activeSupervisors, err := meter.Int64UpDownCounter(
		"qcmcp.supervisor.active",
		metric.WithDescription("Long-running operations currently polling"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active supervisors counter: %w", err)
	}

	return &Metrics{
		meter:             meter,
		operations:        operations,
		operationDuration: operationDuration,
		resolutions:       resolutions,
		pollAttempts:      pollAttempts,
		activeSupervisors: activeSupervisors,
	}, nil
}

// RecordOperation counts one executed operation and its latency.
func (m *Metrics) RecordOperation(name, status string, duration time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", name),
		attribute.String("status", status),
	)
	ctx := context.Background()
	m.operations.Add(ctx, 1, attrs)
	m.operationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordResolution counts one resolver outcome.
func (m *Metrics) RecordResolution(name, outcome string) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("operation", name),
		attribute.String("outcome", outcome),
	))
}

// RecordPollAttempts records how many invocation attempts a supervised
// operation took to terminate.
func (m *Metrics) RecordPollAttempts(name string, attempts int) {
	if m == nil || m.pollAttempts == nil {
		return
	}
	m.pollAttempts.Record(context.Background(), int64(attempts), metric.WithAttributes(
		attribute.String("operation", name),
	))
}

// SupervisorStarted marks one more long-running operation polling.
func (m *Metrics) SupervisorStarted() {
	if m == nil || m.activeSupervisors == nil {
		return
	}
	m.activeSupervisors.Add(context.Background(), 1)
}

// SupervisorFinished marks one long-running operation done.
func (m *Metrics) SupervisorFinished() {
	if m == nil || m.activeSupervisors == nil {
		return
	}
	m.activeSupervisors.Add(context.Background(), -1)
}

// PrometheusHandler returns the scrape endpoint handler.
func PrometheusHandler() http.Handler {
	return promclient.Handler()
}

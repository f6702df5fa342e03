// Package observability provides application metrics via OpenTelemetry with a
// Prometheus exporter.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/jobs/provider calls take
// - Traffic: Request/job throughput
// - Errors: Rate of failures
// - Saturation: Resource utilization (active jobs, stream subscribers)
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Publish job metrics (Latency, Traffic, Errors, Saturation)
	JobDuration    metric.Float64Histogram
	JobsTotal      metric.Int64Counter
	JobsTerminal   metric.Int64Counter
	JobsActive     metric.Int64UpDownCounter
	JobProviders   metric.Int64Histogram

	// Provider publish metrics (Latency, Errors)
	ProviderDuration metric.Float64Histogram
	ProviderOutcomes metric.Int64Counter

	// Broadcast metrics (Traffic, Saturation)
	StreamSubscribers metric.Int64UpDownCounter
	FramesPublished   metric.Int64Counter
	FramesDropped     metric.Int64Counter

	// Dispatcher metrics (Latency, Traffic, Errors, Saturation)
	DispatcherDuration  metric.Float64Histogram
	DispatcherDelivered metric.Int64Counter
	DispatcherFailed    metric.Int64Counter
	DispatcherDropped   metric.Int64Counter
	DispatcherRequeued  metric.Int64Counter
	DispatcherQueueSize metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("socialpub")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Publish job metrics
	m.JobDuration, err = meter.Float64Histogram(
		"publish_job_duration_seconds",
		metric.WithDescription("Publish job fan-out duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTotal, err = meter.Int64Counter(
		"publish_jobs_total",
		metric.WithDescription("Total number of publish jobs created"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTerminal, err = meter.Int64Counter(
		"publish_jobs_terminal_total",
		metric.WithDescription("Total publish jobs reaching a terminal status, by status"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"publish_jobs_active",
		metric.WithDescription("Number of publish jobs currently fanning out (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobProviders, err = meter.Int64Histogram(
		"publish_job_providers",
		metric.WithDescription("Number of providers requested per publish job"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5, 6),
	)
	if err != nil {
		return nil, nil, err
	}

	// Provider metrics
	m.ProviderDuration, err = meter.Float64Histogram(
		"provider_publish_duration_seconds",
		metric.WithDescription("Per-provider publish latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ProviderOutcomes, err = meter.Int64Counter(
		"provider_outcomes_total",
		metric.WithDescription("Per-provider publish outcomes, by provider and result"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Broadcast metrics
	m.StreamSubscribers, err = meter.Int64UpDownCounter(
		"stream_subscribers",
		metric.WithDescription("Currently connected progress stream subscribers (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.FramesPublished, err = meter.Int64Counter(
		"stream_frames_published_total",
		metric.WithDescription("Total progress frames published to subscribers"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.FramesDropped, err = meter.Int64Counter(
		"stream_frames_dropped_total",
		metric.WithDescription("Total progress frames dropped for slow subscribers"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Dispatcher metrics
	m.DispatcherDuration, err = meter.Float64Histogram(
		"dispatcher_duration_seconds",
		metric.WithDescription("Callback delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherDelivered, err = meter.Int64Counter(
		"dispatcher_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherFailed, err = meter.Int64Counter(
		"dispatcher_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherDropped, err = meter.Int64Counter(
		"dispatcher_dropped_total",
		metric.WithDescription("Total events dropped (buffer full or max requeues)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherRequeued, err = meter.Int64Counter(
		"dispatcher_requeued_total",
		metric.WithDescription("Total events requeued due to open circuit"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherQueueSize, err = meter.Int64Gauge(
		"dispatcher_queue_size",
		metric.WithDescription("Current number of events in dispatcher queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobCreated records a new publish job being accepted.
func (m *Metrics) RecordJobCreated(ctx context.Context, providerCount int) {
	m.JobsTotal.Add(ctx, 1)
	m.JobsActive.Add(ctx, 1)
	m.JobProviders.Record(ctx, int64(providerCount))
}

// RecordJobTerminal records a publish job reaching a terminal status.
func (m *Metrics) RecordJobTerminal(ctx context.Context, status string, durationSeconds float64) {
	m.JobDuration.Record(ctx, durationSeconds, metric.WithAttributes(jobStatusAttr(status)))
	m.JobsTerminal.Add(ctx, 1, metric.WithAttributes(jobStatusAttr(status)))
	m.JobsActive.Add(ctx, -1)
}

// RecordProviderOutcome records one provider task finishing.
func (m *Metrics) RecordProviderOutcome(ctx context.Context, provider string, ok bool, durationSeconds float64) {
	attrs := metric.WithAttributes(providerAttr(provider), successAttr(ok))
	m.ProviderDuration.Record(ctx, durationSeconds, attrs)
	m.ProviderOutcomes.Add(ctx, 1, attrs)
}

// RecordSubscriberConnected records a stream subscriber attaching.
func (m *Metrics) RecordSubscriberConnected(ctx context.Context) {
	m.StreamSubscribers.Add(ctx, 1)
}

// RecordSubscriberDisconnected records a stream subscriber detaching.
func (m *Metrics) RecordSubscriberDisconnected(ctx context.Context) {
	m.StreamSubscribers.Add(ctx, -1)
}

// RecordFramePublished records a progress frame delivered to subscribers.
func (m *Metrics) RecordFramePublished(ctx context.Context) {
	m.FramesPublished.Add(ctx, 1)
}

// RecordFrameDropped records a frame dropped for a slow subscriber.
func (m *Metrics) RecordFrameDropped(ctx context.Context) {
	m.FramesDropped.Add(ctx, 1)
}

// RecordDispatcherDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordDispatcherDelivered(ctx context.Context, durationSeconds float64) {
	m.DispatcherDelivered.Add(ctx, 1)
	m.DispatcherDuration.Record(ctx, durationSeconds)
}

// RecordDispatcherFailed records a failed event delivery.
func (m *Metrics) RecordDispatcherFailed(ctx context.Context) {
	m.DispatcherFailed.Add(ctx, 1)
}

// RecordDispatcherDropped records a dropped event.
func (m *Metrics) RecordDispatcherDropped(ctx context.Context) {
	m.DispatcherDropped.Add(ctx, 1)
}

// RecordDispatcherRequeued records a requeued event.
func (m *Metrics) RecordDispatcherRequeued(ctx context.Context) {
	m.DispatcherRequeued.Add(ctx, 1)
}

// RecordDispatcherQueueSize records the current queue size.
func (m *Metrics) RecordDispatcherQueueSize(ctx context.Context, size int64) {
	m.DispatcherQueueSize.Record(ctx, size)
}

// Package observe holds the signbridge telemetry: OpenTelemetry instruments
// for sessions and backend calls, span helpers, and the middleware for the
// local status listener.
//
// [InitProvider] installs the global providers and exposes them through a
// Prometheus registry. [DefaultMetrics] binds to whatever global meter
// provider is installed when it is first called; tests build their own with
// [NewMetrics].
package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all signbridge metrics.
const meterName = "github.com/MrWong99/signbridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Streaming session ---

	// FramesSent counts outbound audio messages, the end-of-stream sentinel
	// included.
	FramesSent metric.Int64Counter

	// BytesSent counts encoded outbound bytes.
	BytesSent metric.Int64Counter

	// FramesReceived counts inbound messages before decoding.
	FramesReceived metric.Int64Counter

	// FramesDropped counts inbound messages that were discarded. Use with
	// attribute:
	//   attribute.String("reason", "corrupt" | "unexpected")
	FramesDropped metric.Int64Counter

	// TranscriptResults counts applied recognition results. Use with
	// attribute:
	//   attribute.String("kind", "partial" | "final")
	TranscriptResults metric.Int64Counter

	// SessionOutcomes counts sessions by terminal state. Use with attribute:
	//   attribute.String("state", "closed" | "failed")
	SessionOutcomes metric.Int64Counter

	// SessionOpenDuration tracks time from start to streaming.
	SessionOpenDuration metric.Float64Histogram

	// ActiveSessions tracks the number of streaming sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Downstream collaborators ---

	// BackendRequests counts collaborator calls. Use with attributes:
	//   attribute.String("endpoint", ...), attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// BackendDuration tracks collaborator call latency by endpoint.
	BackendDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// handshakes and collaborator round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// builder creates instruments on one meter and keeps the first error, so
// NewMetrics reads as a flat list.
type builder struct {
	m   metric.Meter
	err error
}

func (b *builder) counter(name, desc string, opts ...metric.Int64CounterOption) metric.Int64Counter {
	c, err := b.m.Int64Counter(name, append(opts, metric.WithDescription(desc))...)
	b.keep(name, err)
	return c
}

func (b *builder) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.m.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.keep(name, err)
	return g
}

func (b *builder) seconds(name, desc string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.m.Float64Histogram(name, opts...)
	b.keep(name, err)
	return h
}

func (b *builder) keep(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("observe: instrument %s: %w", name, err)
	}
}

// NewMetrics creates every instrument on mp. Tests pass a provider backed by
// a manual reader.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &builder{m: mp.Meter(meterName)}
	met := &Metrics{
		FramesSent:          b.counter("signbridge.session.frames_sent", "Outbound audio messages, end-of-stream included."),
		BytesSent:           b.counter("signbridge.session.bytes_sent", "Encoded outbound bytes.", metric.WithUnit("By")),
		FramesReceived:      b.counter("signbridge.session.frames_received", "Inbound messages before decoding."),
		FramesDropped:       b.counter("signbridge.session.frames_dropped", "Inbound messages discarded by reason."),
		TranscriptResults:   b.counter("signbridge.transcript.results", "Applied recognition results by kind."),
		SessionOutcomes:     b.counter("signbridge.session.outcomes", "Finished sessions by terminal state."),
		SessionOpenDuration: b.seconds("signbridge.session.open.duration", "Time from session start until audio streams.", latencyBuckets),
		ActiveSessions:      b.gauge("signbridge.session.active", "Number of streaming sessions."),

		BackendRequests: b.counter("signbridge.backend.requests", "Downstream API requests by endpoint and status."),
		BackendDuration: b.seconds("signbridge.backend.duration", "Latency of downstream API requests.", latencyBuckets),

		HTTPRequestDuration: b.seconds("signbridge.http.request.duration", "Status listener latency by method and route.", nil),
	}
	if b.err != nil {
		return nil, b.err
	}
	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics], built on first use from
// [otel.GetMeterProvider]. Call [InitProvider] before it.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrameSent records one outbound message of n encoded bytes.
func (m *Metrics) RecordFrameSent(ctx context.Context, n int) {
	m.FramesSent.Add(ctx, 1)
	m.BytesSent.Add(ctx, int64(n))
}

// RecordFrameDropped records a discarded inbound message.
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordTranscriptResult records an applied partial or final result.
func (m *Metrics) RecordTranscriptResult(ctx context.Context, kind string) {
	m.TranscriptResults.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSessionOutcome records a session reaching a terminal state.
func (m *Metrics) RecordSessionOutcome(ctx context.Context, state string) {
	m.SessionOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordBackendRequest records one downstream call with its outcome and
// latency.
func (m *Metrics) RecordBackendRequest(ctx context.Context, endpoint, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	)
	m.BackendRequests.Add(ctx, 1, attrs)
	m.BackendDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// Package observe provides observability primitives for the ingest
// daemon: OpenTelemetry metrics with a Prometheus exporter bridge and
// HTTP middleware for the ops endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all ingest metrics.
const meterName = "github.com/stagelink/ingestd"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use — the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// --- Counters ---

	// FramesCaptured counts raw frames delivered by capture devices.
	// Use with attribute.String("device", ...).
	FramesCaptured metric.Int64Counter

	// Xruns counts driver over/underruns. Use with attribute
	// attribute.String("device", ...).
	Xruns metric.Int64Counter

	// QueueDrops counts frames evicted from sliding-window queues.
	// Use with attribute.String("queue", ...).
	QueueDrops metric.Int64Counter

	// Reconnects counts device reconnect attempts. Use with attributes
	// attribute.String("device", ...).
	Reconnects metric.Int64Counter

	// DeadDevices counts permanent device failures.
	DeadDevices metric.Int64Counter

	// VADSegments counts completed voice segments (a STOP transition).
	VADSegments metric.Int64Counter

	// PublishedEvents counts messages handed to the transport. Use with
	// attribute.String("subject", ...).
	PublishedEvents metric.Int64Counter

	// --- Histograms ---

	// DispatchLatency tracks the time from enqueue to publish for
	// button events.
	DispatchLatency metric.Float64Histogram

	// HTTPRequestDuration tracks ops endpoint request time. Use with
	// attributes attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram

	// --- Gauges ---

	// LiveDevices tracks the number of currently connected devices.
	LiveDevices metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) tuned
// for dispatch latencies within one host.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesCaptured, err = m.Int64Counter("ingestd.frames.captured",
		metric.WithDescription("Raw frames delivered by capture devices."),
	); err != nil {
		return nil, err
	}
	if met.Xruns, err = m.Int64Counter("ingestd.capture.xruns",
		metric.WithDescription("Driver buffer over/underruns by device."),
	); err != nil {
		return nil, err
	}
	if met.QueueDrops, err = m.Int64Counter("ingestd.queue.drops",
		metric.WithDescription("Frames evicted from sliding-window queues."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("ingestd.device.reconnects",
		metric.WithDescription("Device reconnect attempts by device."),
	); err != nil {
		return nil, err
	}
	if met.DeadDevices, err = m.Int64Counter("ingestd.device.dead",
		metric.WithDescription("Devices that exhausted their reconnect budget."),
	); err != nil {
		return nil, err
	}
	if met.VADSegments, err = m.Int64Counter("ingestd.vad.segments",
		metric.WithDescription("Completed voice activity segments."),
	); err != nil {
		return nil, err
	}
	if met.PublishedEvents, err = m.Int64Counter("ingestd.published.events",
		metric.WithDescription("Messages handed to the transport by subject."),
	); err != nil {
		return nil, err
	}

	if met.DispatchLatency, err = m.Float64Histogram("ingestd.dispatch.latency",
		metric.WithDescription("Time from enqueue to publish for button events."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("ingestd.http.request.duration",
		metric.WithDescription("Ops endpoint request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.LiveDevices, err = m.Int64UpDownCounter("ingestd.devices.live",
		metric.WithDescription("Number of currently connected devices."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating
// it on first call using [otel.GetMeterProvider]. Subsequent calls return
// the same pointer. Panics if instrument creation fails (should not
// happen with the global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity
// at call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame increments the captured-frame counter for one device.
func (m *Metrics) RecordFrame(ctx context.Context, device string) {
	m.FramesCaptured.Add(ctx, 1,
		metric.WithAttributes(attribute.String("device", device)))
}

// RecordXrun increments the xrun counter for one device.
func (m *Metrics) RecordXrun(ctx context.Context, device string) {
	m.Xruns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("device", device)))
}

// RecordQueueDrop increments the drop counter for one queue.
func (m *Metrics) RecordQueueDrop(ctx context.Context, queue string) {
	m.RecordQueueDrops(ctx, queue, 1)
}

// RecordQueueDrops adds n to the drop counter for one queue.
func (m *Metrics) RecordQueueDrops(ctx context.Context, queue string, n int64) {
	m.QueueDrops.Add(ctx, n,
		metric.WithAttributes(attribute.String("queue", queue)))
}

// RecordPublished increments the published-message counter for a subject.
func (m *Metrics) RecordPublished(ctx context.Context, subject string) {
	m.PublishedEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("subject", subject)))
}

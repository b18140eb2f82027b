// Package metrics promotes the otel packages the teacher's go.mod carries
// as unexercised transitive dependencies into a directly wired concern:
// frame, upload, and transcription counters plus an ASR latency histogram,
// exported in Prometheus exposition format at /metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Registry holds the instruments the rest of the gateway increments and
// observes. It owns the MeterProvider and exposes the /metrics handler.
type Registry struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler

	FramesReceived         metric.Int64Counter
	UploadsCompleted       metric.Int64Counter
	UploadsFailed          metric.Int64Counter
	TranscriptionsComplete metric.Int64Counter
	TranscriptionsFailed   metric.Int64Counter
	ASRLatencyMs           metric.Float64Histogram
}

// New constructs a Registry backed by a Prometheus exporter. The returned
// Registry's Handler serves /metrics.
func New() (*Registry, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("metrics: construct prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("asrgateway")

	r := &Registry{provider: provider, handler: promhttp.Handler()}

	if r.FramesReceived, err = meter.Int64Counter("asrgateway.frames_received",
		metric.WithDescription("audio_chunk messages processed")); err != nil {
		return nil, err
	}
	if r.UploadsCompleted, err = meter.Int64Counter("asrgateway.uploads_completed",
		metric.WithDescription("archiver uploads that succeeded")); err != nil {
		return nil, err
	}
	if r.UploadsFailed, err = meter.Int64Counter("asrgateway.uploads_failed",
		metric.WithDescription("archiver uploads that errored")); err != nil {
		return nil, err
	}
	if r.TranscriptionsComplete, err = meter.Int64Counter("asrgateway.transcriptions_completed",
		metric.WithDescription("ASR requests that returned a transcript")); err != nil {
		return nil, err
	}
	if r.TranscriptionsFailed, err = meter.Int64Counter("asrgateway.transcriptions_failed",
		metric.WithDescription("ASR requests that errored")); err != nil {
		return nil, err
	}
	if r.ASRLatencyMs, err = meter.Float64Histogram("asrgateway.asr_latency_ms",
		metric.WithDescription("provider round-trip latency"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}

	return r, nil
}

// Handler returns the http.Handler to mount at /metrics.
func (r *Registry) Handler() http.Handler { return r.handler }

// Shutdown flushes and stops the MeterProvider.
func (r *Registry) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}

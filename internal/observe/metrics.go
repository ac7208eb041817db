// Package observe exposes the daemon's OpenTelemetry instruments and the
// Prometheus bridge that serves them on a loopback /metrics endpoint.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/rbright/quill"

// Metrics holds every instrument the daemon records.
type Metrics struct {
	// Seconds spent in recognizer.Transcribe, by model and status.
	ASRDuration metric.Float64Histogram
	// Ratio of inference time to audio duration.
	ASRRealTimeFactor metric.Float64Histogram
	// Seconds to load and warm a model, by model and status.
	WarmupDuration metric.Float64Histogram
	// 1 when the engine is Ready, 0 otherwise.
	ASRReady metric.Int64Gauge

	// Per-frame classification cost.
	VADFrameDuration metric.Float64Histogram

	// Sessions by outcome (transcribed, no-audio, no-speech, ...).
	Sessions metric.Int64Counter
	// Paste attempts by outcome.
	Pastes metric.Int64Counter

	FramesDropped   metric.Int64Counter
	CaptureRestarts metric.Int64Counter
	DeviceErrors    metric.Int64Counter
}

var (
	latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32}
	rtfBuckets     = []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1, 1.5, 2, 4}
	frameBuckets   = []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02}
)

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ASRDuration, err = m.Float64Histogram("quill.asr.duration",
		metric.WithDescription("Latency of one transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ASRRealTimeFactor, err = m.Float64Histogram("quill.asr.real_time_factor",
		metric.WithDescription("Inference time divided by audio duration."),
		metric.WithExplicitBucketBoundaries(rtfBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WarmupDuration, err = m.Float64Histogram("quill.asr.warmup.duration",
		metric.WithDescription("Time to load and warm a model."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ASRReady, err = m.Int64Gauge("quill.asr.ready",
		metric.WithDescription("1 when a model is loaded and warm."),
	); err != nil {
		return nil, err
	}
	if met.VADFrameDuration, err = m.Float64Histogram("quill.vad.frame.duration",
		metric.WithDescription("Time to classify one 20ms frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("quill.sessions",
		metric.WithDescription("Dictation sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Pastes, err = m.Int64Counter("quill.output.pastes",
		metric.WithDescription("Paste injections by outcome."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("quill.audio.frames_dropped",
		metric.WithDescription("Frames dropped because the consumer fell behind."),
	); err != nil {
		return nil, err
	}
	if met.CaptureRestarts, err = m.Int64Counter("quill.audio.restarts",
		metric.WithDescription("Soft restarts of the capture stream."),
	); err != nil {
		return nil, err
	}
	if met.DeviceErrors, err = m.Int64Counter("quill.audio.device_errors",
		metric.WithDescription("Capture stalls that exhausted the restart budget."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordTranscription records latency and real-time factor for one ASR call.
func (m *Metrics) RecordTranscription(ctx context.Context, model string, audio, took time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("status", status(err)),
	)
	m.ASRDuration.Record(ctx, took.Seconds(), attrs)
	if err == nil && audio > 0 {
		m.ASRRealTimeFactor.Record(ctx, took.Seconds()/audio.Seconds(),
			metric.WithAttributes(attribute.String("model", model)))
	}
}

func (m *Metrics) RecordWarmup(ctx context.Context, model string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.WarmupDuration.Record(ctx, took.Seconds(), metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("status", status(err)),
	))
}

func (m *Metrics) SetReady(ctx context.Context, model string, ready bool) {
	if m == nil {
		return
	}
	var v int64
	if ready {
		v = 1
	}
	m.ASRReady.Record(ctx, v, metric.WithAttributes(attribute.String("model", model)))
}

func (m *Metrics) RecordVADFrame(ctx context.Context, took time.Duration) {
	if m == nil {
		return
	}
	m.VADFrameDuration.Record(ctx, took.Seconds())
}

func (m *Metrics) RecordSession(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordPaste(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Pastes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordDrops(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.FramesDropped.Add(ctx, n)
}

func (m *Metrics) RecordRestart(ctx context.Context) {
	if m == nil {
		return
	}
	m.CaptureRestarts.Add(ctx, 1)
}

func (m *Metrics) RecordDeviceError(ctx context.Context) {
	if m == nil {
		return
	}
	m.DeviceErrors.Add(ctx, 1)
}

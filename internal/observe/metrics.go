// Package observe provides the optional metrics and health surface.
//
// Instruments are created through the OpenTelemetry Metrics API. Tests build
// a Metrics with [NewMetrics] over an sdkmetric ManualReader; the binary uses
// [InitProvider], which bridges the same instruments to a Prometheus
// registry served by [Server].
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/olivier-w/tftviz/internal/timing"
)

// meterName is the instrumentation scope for every tftviz metric.
const meterName = "github.com/olivier-w/tftviz"

// Metrics holds the instruments. It implements display.Recorder and
// visualizer.Recorder.
type Metrics struct {
	// FramesRendered counts frames handed to the surface, by outcome
	// (empty, fresh, held).
	FramesRendered metric.Int64Counter

	// FramesDropped counts frames skipped because a transfer was in flight.
	FramesDropped metric.Int64Counter

	// TransferDuration tracks how long one surface draw takes.
	TransferDuration metric.Float64Histogram

	// TransferErrors counts failed surface draws.
	TransferErrors metric.Int64Counter

	// RingEvictions counts history frames discarded, by reason
	// (overflow, expired).
	RingEvictions metric.Int64Counter

	// SourceReopens counts source restarts, by reason.
	SourceReopens metric.Int64Counter

	// Underruns counts hops skipped before the analysis window filled.
	Underruns metric.Int64Counter

	// Streaming is 1 while audio is flowing and 0 while idle.
	Streaming metric.Int64UpDownCounter
}

// transferBuckets are in seconds. A full 240x240 frame at 48 MHz takes
// roughly 20ms.
var transferBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.04, 0.08, 0.16,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesRendered, err = m.Int64Counter("tftviz.frames.rendered",
		metric.WithDescription("Frames handed to the drawing surface by selection outcome."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("tftviz.frames.dropped",
		metric.WithDescription("Frames dropped because the previous transfer was still running."),
	); err != nil {
		return nil, err
	}
	if met.TransferDuration, err = m.Float64Histogram("tftviz.transfer.duration",
		metric.WithDescription("Latency of one drawing surface transfer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(transferBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TransferErrors, err = m.Int64Counter("tftviz.transfer.errors",
		metric.WithDescription("Failed drawing surface transfers."),
	); err != nil {
		return nil, err
	}
	if met.RingEvictions, err = m.Int64Counter("tftviz.history.evictions",
		metric.WithDescription("Spectrum frames discarded from the history ring by reason."),
	); err != nil {
		return nil, err
	}
	if met.SourceReopens, err = m.Int64Counter("tftviz.source.reopens",
		metric.WithDescription("Audio source reopen attempts by reason."),
	); err != nil {
		return nil, err
	}
	if met.Underruns, err = m.Int64Counter("tftviz.analysis.underruns",
		metric.WithDescription("Hops skipped before the analysis window was full."),
	); err != nil {
		return nil, err
	}
	if met.Streaming, err = m.Int64UpDownCounter("tftviz.source.streaming",
		metric.WithDescription("1 while audio is streaming, 0 while idle."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// FrameRendered implements display.Recorder.
func (m *Metrics) FrameRendered(ctx context.Context, outcome timing.Outcome) {
	m.FramesRendered.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome.String())))
}

// FrameDropped implements display.Recorder.
func (m *Metrics) FrameDropped(ctx context.Context) {
	m.FramesDropped.Add(ctx, 1)
}

// TransferDone implements display.Recorder.
func (m *Metrics) TransferDone(ctx context.Context, d time.Duration, err error) {
	m.TransferDuration.Record(ctx, d.Seconds())
	if err != nil {
		m.TransferErrors.Add(ctx, 1)
	}
}

// FramesEvicted records frames the history ring discarded on push.
func (m *Metrics) FramesEvicted(ctx context.Context, ev timing.Evicted) {
	if ev.Overflow > 0 {
		m.RingEvictions.Add(ctx, int64(ev.Overflow),
			metric.WithAttributes(attribute.String("reason", "overflow")))
	}
	if ev.Expired > 0 {
		m.RingEvictions.Add(ctx, int64(ev.Expired),
			metric.WithAttributes(attribute.String("reason", "expired")))
	}
}

// SourceReopened records a reopen, reason being a short label such as
// "unavailable", "io" or "closed".
func (m *Metrics) SourceReopened(ctx context.Context, reason string) {
	m.SourceReopens.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// Underrun records a skipped hop.
func (m *Metrics) Underrun(ctx context.Context) {
	m.Underruns.Add(ctx, 1)
}

// StreamingChanged records an Idle/Streaming transition. Callers report
// transitions only, so the counter stays at 0 or 1.
func (m *Metrics) StreamingChanged(ctx context.Context, streaming bool) {
	if streaming {
		m.Streaming.Add(ctx, 1)
		return
	}
	m.Streaming.Add(ctx, -1)
}

package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/olivier-w/tftviz/internal/timing"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumByAttr returns the int64 sum points of name keyed by the value of
// attribute key ("" for points without it).
func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name, key string) map[string]int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key(key))
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestFramesRenderedByOutcome(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FrameRendered(ctx, timing.OutcomeFresh)
	m.FrameRendered(ctx, timing.OutcomeFresh)
	m.FrameRendered(ctx, timing.OutcomeHeld)
	m.FrameDropped(ctx)

	rm := collect(t, reader)
	got := sumByAttr(t, rm, "tftviz.frames.rendered", "outcome")
	if got["fresh"] != 2 || got["held"] != 1 {
		t.Fatalf("expected fresh=2 held=1, got %v", got)
	}
	if dropped := sumByAttr(t, rm, "tftviz.frames.dropped", "")[""]; dropped != 1 {
		t.Fatalf("expected 1 dropped frame, got %d", dropped)
	}
}

func TestTransferDone(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.TransferDone(ctx, 12*time.Millisecond, nil)
	m.TransferDone(ctx, 30*time.Millisecond, errors.New("spi"))

	rm := collect(t, reader)
	met := findMetric(rm, "tftviz.transfer.duration")
	if met == nil {
		t.Fatal("transfer duration not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("transfer duration is not a histogram")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Fatalf("expected 2 observations, got %d", got)
	}
	if errs := sumByAttr(t, rm, "tftviz.transfer.errors", "")[""]; errs != 1 {
		t.Fatalf("expected 1 transfer error, got %d", errs)
	}
}

func TestFramesEvictedByReason(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FramesEvicted(ctx, timing.Evicted{Overflow: 1})
	m.FramesEvicted(ctx, timing.Evicted{Expired: 3})
	m.FramesEvicted(ctx, timing.Evicted{})

	got := sumByAttr(t, collect(t, reader), "tftviz.history.evictions", "reason")
	if got["overflow"] != 1 || got["expired"] != 3 {
		t.Fatalf("expected overflow=1 expired=3, got %v", got)
	}
}

func TestSourceCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SourceReopened(ctx, "closed")
	m.SourceReopened(ctx, "unavailable")
	m.SourceReopened(ctx, "unavailable")
	m.Underrun(ctx)
	m.StreamingChanged(ctx, true)
	m.StreamingChanged(ctx, false)
	m.StreamingChanged(ctx, true)

	rm := collect(t, reader)
	reopens := sumByAttr(t, rm, "tftviz.source.reopens", "reason")
	if reopens["closed"] != 1 || reopens["unavailable"] != 2 {
		t.Fatalf("unexpected reopens %v", reopens)
	}
	if got := sumByAttr(t, rm, "tftviz.analysis.underruns", "")[""]; got != 1 {
		t.Fatalf("expected 1 underrun, got %d", got)
	}
	if got := sumByAttr(t, rm, "tftviz.source.streaming", "")[""]; got != 1 {
		t.Fatalf("expected streaming=1, got %d", got)
	}
}

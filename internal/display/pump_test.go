package display

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/display/displaytest"

	"github.com/olivier-w/tftviz/internal/clock"
	"github.com/olivier-w/tftviz/internal/render"
	"github.com/olivier-w/tftviz/internal/rgb565"
	"github.com/olivier-w/tftviz/internal/spectrum"
	"github.com/olivier-w/tftviz/internal/timing"
)

func testRenderer(t *testing.T) *render.Renderer {
	t.Helper()
	r, err := render.New(render.Options{
		Width:   16,
		Height:  8,
		Bars:    4,
		Falloff: 1,
		Palette: render.PaletteSolid,
		Color:   "#ffffff",
	})
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	return r
}

// fixedSelector returns the same frame and outcome on every tick.
type fixedSelector struct {
	frame   spectrum.Frame
	outcome timing.Outcome
}

func (s fixedSelector) Select(time.Time) (spectrum.Frame, timing.Outcome) {
	return s.frame, s.outcome
}

type countingRecorder struct {
	mu        sync.Mutex
	outcomes  map[timing.Outcome]int
	dropped   int
	transfers int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{outcomes: make(map[timing.Outcome]int)}
}

func (r *countingRecorder) FrameRendered(_ context.Context, o timing.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[o]++
}

func (r *countingRecorder) FrameDropped(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped++
}

func (r *countingRecorder) TransferDone(context.Context, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers++
}

// blockingSurface holds every Draw until release is closed.
type blockingSurface struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSurface) Draw(image.Rectangle, image.Image, image.Point) error {
	s.entered <- struct{}{}
	<-s.release
	return nil
}

type failingSurface struct{ err error }

func (s failingSurface) Draw(image.Rectangle, image.Image, image.Point) error { return s.err }

func newDrawer() *displaytest.Drawer {
	return &displaytest.Drawer{Img: image.NewNRGBA(image.Rect(0, 0, 240, 240))}
}

// waitIdle blocks until the transfer goroutine has finished its frame.
func waitIdle(t *testing.T, p *Pump) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for p.busy.Load() {
		if time.Now().After(deadline) {
			t.Fatal("transfer did not finish")
		}
		time.Sleep(time.Millisecond)
	}
}

func full(n int) spectrum.Frame {
	f := spectrum.Frame{Levels: make([]float64, n)}
	for i := range f.Levels {
		f.Levels[i] = 1
	}
	return f
}

func TestTickDrawsAtOrigin(t *testing.T) {
	drawer := newDrawer()
	sel := fixedSelector{frame: full(4), outcome: timing.OutcomeFresh}
	p := New(drawer, sel, testRenderer(t), 20*time.Millisecond, image.Pt(100, 50))

	ctx := context.Background()
	p.start(ctx)
	if err := p.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	p.stop()

	white := color.NRGBA{0xff, 0xff, 0xff, 0xff}
	if got := drawer.Img.NRGBAAt(100, 50); got != white {
		t.Fatalf("expected a white pixel at the region origin, got %v", got)
	}
	if got := drawer.Img.NRGBAAt(99, 50); got.A != 0 {
		t.Fatalf("expected nothing drawn outside the region, got %v", got)
	}
}

func TestBackpressureDropsFrame(t *testing.T) {
	surface := &blockingSurface{entered: make(chan struct{}, 4), release: make(chan struct{})}
	rec := newCountingRecorder()
	sel := fixedSelector{frame: full(4), outcome: timing.OutcomeFresh}
	p := New(surface, sel, testRenderer(t), 20*time.Millisecond, image.Point{}, WithRecorder(rec))

	ctx := context.Background()
	p.start(ctx)
	if err := p.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	<-surface.entered
	for range 3 {
		if err := p.tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	close(surface.release)
	p.stop()

	if rec.dropped != 3 {
		t.Fatalf("expected 3 dropped frames, got %d", rec.dropped)
	}
	if rec.transfers != 1 {
		t.Fatalf("expected 1 transfer, got %d", rec.transfers)
	}
}

func TestBlankFramesAreNotRepeated(t *testing.T) {
	rec := newCountingRecorder()
	p := New(newDrawer(), fixedSelector{}, testRenderer(t), 20*time.Millisecond, image.Point{}, WithRecorder(rec))

	ctx := context.Background()
	p.start(ctx)
	for range 5 {
		if err := p.tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
		waitIdle(t, p)
	}
	p.stop()

	if rec.transfers != 1 {
		t.Fatalf("expected a single blank transfer, got %d", rec.transfers)
	}
	if rec.outcomes[timing.OutcomeEmpty] != 1 {
		t.Fatalf("expected one empty frame rendered, got %v", rec.outcomes)
	}
}

func TestStarvationRepeatsLastFrame(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	ring := timing.NewRing(16, time.Second)
	frame := full(4)
	frame.Captured = clk.Now()
	ring.Push(frame)
	comp := timing.NewCompensator(ring, 0)

	drawer := newDrawer()
	rec := newCountingRecorder()
	p := New(drawer, comp, testRenderer(t), 20*time.Millisecond, image.Point{},
		WithClock(clk), WithRecorder(rec))

	ctx := context.Background()
	p.start(ctx)
	// 1.2s of ticks with no new audio.
	for range 60 {
		clk.Advance(20 * time.Millisecond)
		if err := p.tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
		waitIdle(t, p)
	}
	p.stop()

	if rec.outcomes[timing.OutcomeFresh] != 1 || rec.outcomes[timing.OutcomeHeld] != 59 {
		t.Fatalf("expected 1 fresh and 59 held frames, got %v", rec.outcomes)
	}
	if rec.transfers != 60 {
		t.Fatalf("expected a transfer on every tick, got %d", rec.transfers)
	}
	if got := drawer.Img.NRGBAAt(0, 7); got.R != 0xff {
		t.Fatalf("expected the held bars still drawn, got %v", got)
	}
}

func TestFatalTransportEndsRun(t *testing.T) {
	boom := errors.New("spi: bus fault")
	sel := fixedSelector{frame: full(4), outcome: timing.OutcomeFresh}
	p := New(failingSurface{err: boom}, sel, testRenderer(t), time.Millisecond, image.Point{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.Run(ctx)
	if !errors.Is(err, ErrFatalTransport) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrFatalTransport wrapping the bus fault, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	drawer := newDrawer()
	sel := fixedSelector{frame: full(4), outcome: timing.OutcomeFresh}
	p := New(drawer, sel, testRenderer(t), 5*time.Millisecond, image.Point{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected Run to stop promptly, took %v", elapsed)
	}
	if got := drawer.Img.NRGBAAt(0, 7); got.R != 0xff {
		t.Fatalf("expected frames drawn before cancellation, got %v", got)
	}
}

func TestClear(t *testing.T) {
	drawer := newDrawer()
	if err := Clear(drawer, drawer.Bounds(), rgb565.RGB(0, 0, 0xff)); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := drawer.Img.NRGBAAt(239, 239); got != (color.NRGBA{0, 0, 0xff, 0xff}) {
		t.Fatalf("expected blue, got %v", got)
	}

	err := Clear(failingSurface{err: errors.New("gone")}, drawer.Bounds(), 0)
	if !errors.Is(err, ErrFatalTransport) {
		t.Fatalf("expected ErrFatalTransport, got %v", err)
	}
}

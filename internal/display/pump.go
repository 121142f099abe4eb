// Package display runs the fixed-rate render loop and hands finished frames
// to a drawing surface without ever blocking on the transfer.
package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olivier-w/tftviz/internal/clock"
	"github.com/olivier-w/tftviz/internal/render"
	"github.com/olivier-w/tftviz/internal/rgb565"
	"github.com/olivier-w/tftviz/internal/spectrum"
	"github.com/olivier-w/tftviz/internal/timing"
)

var (
	// ErrBackpressure reports that the previous transfer is still running;
	// the frame is dropped.
	ErrBackpressure = errors.New("display: transfer still in progress")

	// ErrFatalTransport wraps surface errors. The display state is unknown
	// afterwards, so the caller should exit.
	ErrFatalTransport = errors.New("display: fatal transport error")
)

// Surface accepts finished frames. periph's display.Drawer satisfies it.
type Surface interface {
	Draw(dst image.Rectangle, src image.Image, sp image.Point) error
}

// Selector yields the frame to show at a given instant.
type Selector interface {
	Select(now time.Time) (spectrum.Frame, timing.Outcome)
}

// Recorder receives pump events. All methods must be cheap and safe for
// concurrent use.
type Recorder interface {
	FrameRendered(ctx context.Context, outcome timing.Outcome)
	FrameDropped(ctx context.Context)
	TransferDone(ctx context.Context, d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) FrameRendered(context.Context, timing.Outcome)       {}
func (nopRecorder) FrameDropped(context.Context)                        {}
func (nopRecorder) TransferDone(context.Context, time.Duration, error) {}

// Option configures a Pump.
type Option func(*Pump)

// WithClock overrides the time source used for frame selection.
func WithClock(c clock.Clock) Option {
	return func(p *Pump) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pump) { p.log = l }
}

// WithRecorder sets the event recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pump) { p.rec = r }
}

// Pump ticks at a fixed interval, renders the selected frame and transfers
// it on a separate goroutine. At most one transfer is in flight; frames
// produced meanwhile are dropped.
type Pump struct {
	surface  Surface
	sel      Selector
	renderer *render.Renderer
	state    *render.BarState
	interval time.Duration
	dst      image.Rectangle

	clock clock.Clock
	log   *slog.Logger
	rec   Recorder

	work      chan *rgb565.Image
	fatal     chan error
	busy      atomic.Bool
	wg        sync.WaitGroup
	lastBlank bool
}

// New returns a Pump drawing renderer output at origin on s every interval.
func New(s Surface, sel Selector, r *render.Renderer, interval time.Duration, origin image.Point, opts ...Option) *Pump {
	p := &Pump{
		surface:  s,
		sel:      sel,
		renderer: r,
		state:    r.NewState(),
		interval: interval,
		dst:      r.Bounds().Add(origin),
		clock:    clock.System{},
		log:      slog.Default(),
		rec:      nopRecorder{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run drives the loop until ctx is cancelled or the surface fails. It waits
// for an in-flight transfer before returning.
func (p *Pump) Run(ctx context.Context) error {
	p.start(ctx)
	defer p.stop()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-p.fatal:
			return err
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (p *Pump) start(ctx context.Context) {
	p.work = make(chan *rgb565.Image, 1)
	p.fatal = make(chan error, 1)
	p.busy.Store(false)
	p.lastBlank = false
	p.wg.Add(1)
	go p.transfer(ctx)
}

func (p *Pump) stop() {
	close(p.work)
	p.wg.Wait()
}

// tick runs one render step.
func (p *Pump) tick(ctx context.Context) error {
	select {
	case err := <-p.fatal:
		return err
	default:
	}

	frame, outcome := p.sel.Select(p.clock.Now())
	var fp *spectrum.Frame
	if outcome != timing.OutcomeEmpty {
		fp = &frame
	}
	p.renderer.Step(fp, p.state)

	blank := p.state.Idle()
	if blank && p.lastBlank {
		return nil
	}
	img := p.renderer.Draw(p.state)
	if err := p.submit(img); err != nil {
		p.rec.FrameDropped(ctx)
		p.log.Debug("frame dropped", "err", err)
		return nil
	}
	p.lastBlank = blank
	p.rec.FrameRendered(ctx, outcome)
	return nil
}

func (p *Pump) submit(img *rgb565.Image) error {
	if !p.busy.CompareAndSwap(false, true) {
		return ErrBackpressure
	}
	// The transfer goroutine is idle, so the slot is free.
	p.work <- img
	return nil
}

func (p *Pump) transfer(ctx context.Context) {
	defer p.wg.Done()
	for img := range p.work {
		start := time.Now()
		err := p.surface.Draw(p.dst, img, img.Bounds().Min)
		p.rec.TransferDone(ctx, time.Since(start), err)
		if err != nil {
			// busy stays set so no further frames are queued.
			p.fatal <- fmt.Errorf("%w: %w", ErrFatalTransport, err)
			for range p.work {
			}
			return
		}
		p.busy.Store(false)
	}
}

// Clear paints r on s with a single color.
func Clear(s Surface, r image.Rectangle, c rgb565.Color) error {
	img := rgb565.NewImage(r)
	img.Fill(c)
	if err := s.Draw(r, img, r.Min); err != nil {
		return fmt.Errorf("%w: %w", ErrFatalTransport, err)
	}
	return nil
}

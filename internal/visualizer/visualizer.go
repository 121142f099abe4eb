// Package visualizer wires audio acquisition to the display pump.
//
// Acquisition reads hops from an audio source, keeps an overlapping
// analysis window, analyzes it and pushes the resulting spectrum frames
// into the history ring. The pump, on its own goroutine, selects frames
// from that ring with the configured offset and draws them. The two share
// nothing else.
package visualizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olivier-w/tftviz/internal/audio"
	"github.com/olivier-w/tftviz/internal/clock"
	"github.com/olivier-w/tftviz/internal/display"
	"github.com/olivier-w/tftviz/internal/render"
	"github.com/olivier-w/tftviz/internal/spectrum"
	"github.com/olivier-w/tftviz/internal/timing"
)

// errIdle is reported by Ready while no audio is flowing.
var errIdle = errors.New("visualizer: no audio stream")

// State is the acquisition state.
type State int32

const (
	StateIdle State = iota
	StateStreaming
)

func (s State) String() string {
	if s == StateStreaming {
		return "streaming"
	}
	return "idle"
}

// Recorder receives pipeline events in addition to the pump's.
type Recorder interface {
	display.Recorder
	FramesEvicted(ctx context.Context, ev timing.Evicted)
	SourceReopened(ctx context.Context, reason string)
	Underrun(ctx context.Context)
	StreamingChanged(ctx context.Context, streaming bool)
}

type nopRecorder struct{}

func (nopRecorder) FrameRendered(context.Context, timing.Outcome)      {}
func (nopRecorder) FrameDropped(context.Context)                       {}
func (nopRecorder) TransferDone(context.Context, time.Duration, error) {}
func (nopRecorder) FramesEvicted(context.Context, timing.Evicted)      {}
func (nopRecorder) SourceReopened(context.Context, string)             {}
func (nopRecorder) Underrun(context.Context)                           {}
func (nopRecorder) StreamingChanged(context.Context, bool)             {}

// Option configures a Visualizer.
type Option func(*Visualizer)

// WithClock overrides the time source for frame selection.
func WithClock(c clock.Clock) Option {
	return func(v *Visualizer) { v.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Visualizer) { v.log = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(v *Visualizer) { v.rec = r }
}

// Visualizer runs acquisition and rendering until cancelled.
type Visualizer struct {
	cfg    Config
	opener audio.Opener

	analyzer *spectrum.Analyzer
	acc      *spectrum.Accumulator
	ring     *timing.Ring
	comp     *timing.Compensator
	renderer *render.Renderer
	pump     *display.Pump

	clock clock.Clock
	log   *slog.Logger
	rec   Recorder

	state atomic.Int32
}

// New builds the pipeline. Frames are drawn on s at cfg.Origin.
func New(cfg Config, opener audio.Opener, s display.Surface, opts ...Option) (*Visualizer, error) {
	if cfg.Hop <= 0 {
		return nil, fmt.Errorf("visualizer: hop must be positive, got %d", cfg.Hop)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("visualizer: interval must be positive, got %v", cfg.Interval)
	}
	analyzer, err := spectrum.NewAnalyzer(cfg.Spectrum)
	if err != nil {
		return nil, err
	}
	cfg.Render.Tick = cfg.Interval
	renderer, err := render.New(cfg.Render)
	if err != nil {
		return nil, err
	}

	v := &Visualizer{
		cfg:      cfg,
		opener:   opener,
		analyzer: analyzer,
		acc:      spectrum.NewAccumulator(cfg.Spectrum.WindowSize),
		renderer: renderer,
		clock:    clock.System{},
		log:      slog.Default(),
		rec:      nopRecorder{},
	}
	for _, o := range opts {
		o(v)
	}

	horizon := cfg.Offset + cfg.History
	hop := time.Duration(cfg.Hop) * time.Second / time.Duration(cfg.Spectrum.SampleRate)
	v.ring = timing.NewRing(timing.CapacityFor(horizon, hop), horizon)
	v.comp = timing.NewCompensator(v.ring, cfg.Offset)
	v.pump = display.New(s, v.comp, renderer, cfg.Interval, cfg.Origin,
		display.WithClock(v.clock),
		display.WithLogger(v.log),
		display.WithRecorder(v.rec),
	)
	return v, nil
}

// State reports whether audio is currently flowing.
func (v *Visualizer) State() State { return State(v.state.Load()) }

// Ready returns nil while streaming. It fits observe.Checker.
func (v *Visualizer) Ready(context.Context) error {
	if v.State() != StateStreaming {
		return errIdle
	}
	return nil
}

// Run blocks until ctx is cancelled, returning nil, or until the drawing
// surface fails, returning an error wrapping display.ErrFatalTransport.
// The audio source is closed before Run returns.
func (v *Visualizer) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return v.acquire(gctx) })
	g.Go(func() error { return v.pump.Run(gctx) })

	err := g.Wait()
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// acquire opens the source and streams from it, reopening on failure,
// until ctx is done.
func (v *Visualizer) acquire(ctx context.Context) error {
	backoff := v.cfg.BackoffInitial
	retry := func(reason string, err error) error {
		v.log.Warn("audio source failed", "reason", reason, "err", err, "retry_in", backoff)
		v.rec.SourceReopened(ctx, reason)
		wait := backoff
		backoff = min(backoff*2, v.cfg.BackoffMax)
		return sleep(ctx, wait)
	}

	for {
		src, err := v.opener.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			reason := "io"
			if errors.Is(err, audio.ErrSourceUnavailable) {
				reason = "unavailable"
			}
			if err := retry(reason, err); err != nil {
				return err
			}
			continue
		}

		streamed, err := v.stream(ctx, src)
		if cerr := src.Close(); cerr != nil {
			v.log.Debug("closing audio source", "err", cerr)
		}
		v.acc.Reset()
		v.setState(ctx, StateIdle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if streamed {
			backoff = v.cfg.BackoffInitial
		}

		if errors.Is(err, audio.ErrSourceDone) {
			// Nothing more will come; let the bars decay and wait.
			v.ring.Clear()
			v.log.Info("audio source finished")
			<-ctx.Done()
			return ctx.Err()
		}
		if errors.Is(err, audio.ErrStreamClosed) {
			// Blank the display until the writer comes back.
			v.ring.Clear()
			if streamed {
				v.log.Info("audio stream closed", "reopen_in", v.cfg.ReopenInterval)
			}
			v.rec.SourceReopened(ctx, "closed")
			if err := sleep(ctx, v.cfg.ReopenInterval); err != nil {
				return err
			}
			continue
		}
		if err := retry("io", err); err != nil {
			return err
		}
	}
}

// stream reads hops from src until it fails. The bool reports whether any
// audio was received.
func (v *Visualizer) stream(ctx context.Context, src audio.Source) (bool, error) {
	if err := v.matchRate(src.Format().SampleRate); err != nil {
		return false, err
	}
	streamed := false
	for {
		f, err := src.ReadFrame(ctx, v.cfg.Hop)
		switch {
		case err == nil:
		case errors.Is(err, audio.ErrNoData):
			continue
		default:
			return streamed, err
		}
		streamed = true
		v.setState(ctx, StateStreaming)

		v.acc.Push(f.Samples)
		window, err := v.acc.Window()
		if errors.Is(err, spectrum.ErrUnderrun) {
			v.rec.Underrun(ctx)
			continue
		}
		frame, err := v.analyzer.Analyze(audio.Frame{
			Samples:    window,
			SampleRate: f.SampleRate,
			Captured:   f.Captured,
		})
		if err != nil {
			return streamed, fmt.Errorf("%w: %w", audio.ErrSourceIO, err)
		}
		if _, ev := v.ring.Push(frame); ev.Overflow > 0 || ev.Expired > 0 {
			v.rec.FramesEvicted(ctx, ev)
		}
	}
}

// matchRate rebuilds the analyzer when a source reports a different sample
// rate, which happens with replay files. The configured band range is kept;
// a high edge above the new Nyquist frequency is clamped to it.
func (v *Visualizer) matchRate(rate int) error {
	current := v.analyzer.Config().SampleRate
	if rate <= 0 || rate == current {
		return nil
	}
	cfg := v.cfg.Spectrum
	cfg.SampleRate = rate
	a, err := spectrum.NewAnalyzer(cfg)
	if err != nil {
		return fmt.Errorf("%w: sample rate %d: %w", audio.ErrSourceIO, rate, err)
	}
	v.log.Info("analyzer sample rate changed", "from", current, "to", rate)
	v.analyzer = a
	return nil
}

func (v *Visualizer) setState(ctx context.Context, s State) {
	if State(v.state.Swap(int32(s))) == s {
		return
	}
	v.log.Info("visualizer state", "state", s.String())
	v.rec.StreamingChanged(ctx, s == StateStreaming)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

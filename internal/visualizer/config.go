package visualizer

import (
	"image"
	"time"

	"github.com/olivier-w/tftviz/internal/audio"
	"github.com/olivier-w/tftviz/internal/clock"
	"github.com/olivier-w/tftviz/internal/config"
	"github.com/olivier-w/tftviz/internal/render"
	"github.com/olivier-w/tftviz/internal/spectrum"
)

// Config is the pipeline's view of the configuration.
type Config struct {
	// Hop is the number of samples read per acquisition step.
	Hop int

	ReopenInterval time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// Offset delays rendering behind capture; History is kept beyond it.
	Offset  time.Duration
	History time.Duration

	// Interval is the render tick. Origin places the bar graph on the panel.
	Interval time.Duration
	Origin   image.Point

	Spectrum spectrum.Config
	Render   render.Options
}

// FromConfig maps a validated config.Config.
func FromConfig(c config.Config) Config {
	s, r := c.Spectrum, c.Render
	return Config{
		Hop:            c.Audio.Hop,
		ReopenInterval: c.Audio.ReopenInterval,
		BackoffInitial: c.Audio.BackoffInitial,
		BackoffMax:     c.Audio.BackoffMax,
		Offset:         c.Visualizer.Offset,
		History:        c.Timing.History,
		Interval:       c.Display.Interval,
		Origin:         image.Pt(r.X, r.Y),
		Spectrum: spectrum.Config{
			SampleRate: c.Audio.SampleRate,
			FFTSize:    s.FFTSize,
			WindowSize: s.WindowSize,
			Window:     string(s.Window),
			Backend:    string(s.FFT),
			Bars:       s.Bars,
			LowHz:      s.LowHz,
			HighHz:     s.HighHz,
			FloorDB:    s.FloorDB,
			CeilingDB:  s.CeilingDB,
			GainDB:     s.GainDB,
		},
		Render: render.Options{
			Width:         r.Width,
			Height:        r.Height,
			Bars:          s.Bars,
			Gap:           r.Gap,
			Falloff:       r.Falloff,
			SegmentHeight: r.SegmentHeight,
			SegmentGap:    r.SegmentGap,
			Palette:       string(r.Palette),
			Color:         r.Color,
			Background:    r.Background,
			Peaks: render.PeakOptions{
				Enabled:   r.Peaks.Enabled,
				Hold:      r.Peaks.Hold,
				Frequency: r.Peaks.Frequency,
				Damping:   r.Peaks.Damping,
				Color:     r.Peaks.Color,
			},
			Tick: c.Display.Interval,
		},
	}
}

// NewOpener returns the replay opener when a replay file is configured and
// the FIFO opener otherwise.
func NewOpener(c config.AudioConfig, clk clock.Clock) audio.Opener {
	if c.Replay != "" {
		return audio.ReplayOpener{
			Path:     c.Replay,
			Loop:     c.ReplayLoop,
			Realtime: true,
			Clock:    clk,
		}
	}
	return audio.FIFOOpener{
		Path: c.FIFO,
		Format: audio.Format{
			SampleRate: c.SampleRate,
			Channels:   c.Channels,
			BitDepth:   c.BitDepth,
		},
		ReadTimeout: c.ReadTimeout,
		Clock:       clk,
	}
}

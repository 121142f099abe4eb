// Package spectrum turns mono PCM frames into per-band bar levels: window,
// FFT, logarithmic banding and dB scaling.
package spectrum

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"github.com/olivier-w/tftviz/internal/audio"
)

// ErrUnderrun reports that there are not enough samples to analyze.
var ErrUnderrun = errors.New("spectrum: not enough samples for an analysis window")

// Frame is one analysis result: a level in [0, 1] per band.
type Frame struct {
	Levels   []float64
	Captured time.Time

	// Seq is assigned by the history ring and increases with every push.
	Seq uint64
}

// Blank reports whether every level is zero.
func (f Frame) Blank() bool {
	for _, v := range f.Levels {
		if v != 0 {
			return false
		}
	}
	return true
}

// Config fixes the analysis parameters for one stream format.
type Config struct {
	SampleRate int
	FFTSize    int
	WindowSize int
	Window     string
	Backend    string
	Bars       int
	LowHz      float64
	// HighHz of zero means the Nyquist frequency.
	HighHz    float64
	FloorDB   float64
	CeilingDB float64
	GainDB    float64
}

// Analyzer computes SpectrumFrames. Scratch buffers are reused between
// calls, so an Analyzer must not be shared between goroutines.
type Analyzer struct {
	cfg    Config
	fft    Transformer
	tapers *taperCache
	edges  []float64
	bands  []binRange

	seq    []float64
	coeffs []complex128
}

// NewAnalyzer validates cfg and precomputes band layout and FFT plans.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("spectrum: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = cfg.FFTSize
	}
	if cfg.WindowSize > cfg.FFTSize {
		return nil, fmt.Errorf("spectrum: window size %d exceeds fft size %d", cfg.WindowSize, cfg.FFTSize)
	}
	if cfg.Bars < 1 {
		return nil, fmt.Errorf("spectrum: bar count %d must be at least 1", cfg.Bars)
	}
	nyquist := float64(cfg.SampleRate) / 2
	if cfg.HighHz == 0 || cfg.HighHz > nyquist {
		cfg.HighHz = nyquist
	}
	if cfg.LowHz <= 0 || cfg.LowHz >= cfg.HighHz {
		return nil, fmt.Errorf("spectrum: band range [%g, %g) Hz is invalid", cfg.LowHz, cfg.HighHz)
	}
	if cfg.CeilingDB <= cfg.FloorDB {
		return nil, fmt.Errorf("spectrum: ceiling %g dB must exceed floor %g dB", cfg.CeilingDB, cfg.FloorDB)
	}

	fft, err := NewTransformer(cfg.Backend, cfg.FFTSize)
	if err != nil {
		return nil, err
	}
	fn, err := windowFunc(cfg.Window)
	if err != nil {
		return nil, err
	}

	edges := bandEdges(cfg.LowHz, cfg.HighHz, cfg.Bars)
	binHz := float64(cfg.SampleRate) / float64(cfg.FFTSize)
	return &Analyzer{
		cfg:    cfg,
		fft:    fft,
		tapers: newTaperCache(fn),
		edges:  edges,
		bands:  assignBins(edges, binHz, cfg.FFTSize/2+1),
		seq:    make([]float64, cfg.FFTSize),
	}, nil
}

// Config returns the effective configuration, with HighHz resolved.
func (a *Analyzer) Config() Config { return a.cfg }

// Edges returns the Bars+1 band edge frequencies in Hz.
func (a *Analyzer) Edges() []float64 { return a.edges }

// Analyze computes band levels for the most recent WindowSize samples of f.
// Shorter frames are zero-padded.
func (a *Analyzer) Analyze(f audio.Frame) (Frame, error) {
	samples := f.Samples
	if len(samples) == 0 {
		return Frame{}, ErrUnderrun
	}
	if f.SampleRate != 0 && f.SampleRate != a.cfg.SampleRate {
		return Frame{}, fmt.Errorf("spectrum: frame sample rate %d does not match analyzer rate %d",
			f.SampleRate, a.cfg.SampleRate)
	}
	if len(samples) > a.cfg.WindowSize {
		samples = samples[len(samples)-a.cfg.WindowSize:]
	}

	t := a.tapers.get(len(samples))
	clear(a.seq)
	for i, s := range samples {
		a.seq[i] = s * t.coef[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.seq)

	levels := make([]float64, len(a.bands))
	if t.energy > 0 {
		// Sine-equivalent amplitude: A² = 4·Σ|X|² / (N·Σw²).
		norm := 4 / (float64(a.cfg.FFTSize) * t.energy)
		for k, b := range a.bands {
			var power float64
			for _, c := range a.coeffs[b.start:b.end] {
				m := cmplx.Abs(c)
				power += m * m
			}
			levels[k] = levelFromAmplitude(math.Sqrt(power*norm), a.cfg.FloorDB, a.cfg.CeilingDB, a.cfg.GainDB)
		}
	}
	return Frame{Levels: levels, Captured: f.Captured}, nil
}

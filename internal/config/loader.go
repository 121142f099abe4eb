package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

// MaxOffset is the largest accepted visualizer offset.
const MaxOffset = time.Second

// Load reads the YAML configuration file at path on top of [Default] and
// returns a validated [Config].
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Keys missing from the document keep their default values; an empty
// document yields [Default].
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Visualizer
	if cfg.Visualizer.Offset < 0 || cfg.Visualizer.Offset > MaxOffset {
		errs = append(errs, fmt.Errorf("visualizer.offset %v is out of range [0s, %v]", cfg.Visualizer.Offset, MaxOffset))
	}

	// Audio
	a := cfg.Audio
	if a.FIFO == "" && a.Replay == "" {
		errs = append(errs, errors.New("audio.fifo is required unless audio.replay is set"))
	}
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 192000]", a.SampleRate))
	}
	switch a.BitDepth {
	case 8, 16, 24, 32:
	default:
		errs = append(errs, fmt.Errorf("audio.bit_depth %d is invalid; valid values: 8, 16, 24, 32", a.BitDepth))
	}
	if a.Channels < 1 || a.Channels > 8 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [1, 8]", a.Channels))
	}
	if a.Hop <= 0 {
		errs = append(errs, fmt.Errorf("audio.hop %d must be positive", a.Hop))
	}
	if a.ReadTimeout <= 0 {
		errs = append(errs, errors.New("audio.read_timeout must be positive"))
	}
	if a.ReopenInterval <= 0 {
		errs = append(errs, errors.New("audio.reopen_interval must be positive"))
	}
	if a.BackoffInitial <= 0 || a.BackoffMax < a.BackoffInitial {
		errs = append(errs, fmt.Errorf("audio.backoff_initial %v and backoff_max %v must satisfy 0 < initial <= max", a.BackoffInitial, a.BackoffMax))
	}

	// Spectrum
	s := cfg.Spectrum
	if !s.FFT.IsValid() {
		errs = append(errs, fmt.Errorf("spectrum.fft %q is invalid; valid values: gonum, go-dsp, radix2", s.FFT))
	}
	if s.FFTSize < 16 || s.FFTSize&(s.FFTSize-1) != 0 {
		errs = append(errs, fmt.Errorf("spectrum.fft_size %d must be a power of two >= 16", s.FFTSize))
	}
	if s.WindowSize <= 0 || s.WindowSize > s.FFTSize {
		errs = append(errs, fmt.Errorf("spectrum.window_size %d must be in [1, fft_size]", s.WindowSize))
	}
	if a.Hop > s.WindowSize {
		errs = append(errs, fmt.Errorf("audio.hop %d must not exceed spectrum.window_size %d", a.Hop, s.WindowSize))
	}
	if !s.Window.IsValid() {
		errs = append(errs, fmt.Errorf("spectrum.window %q is invalid; valid values: hann, hamming, blackman, bartlett, flattop, rectangular", s.Window))
	}
	if s.Bars < 1 {
		errs = append(errs, fmt.Errorf("spectrum.bars %d must be at least 1", s.Bars))
	}
	nyquist := float64(a.SampleRate) / 2
	high := s.HighHz
	if high == 0 {
		high = nyquist
	}
	if s.LowHz <= 0 || s.LowHz >= high || high > nyquist {
		errs = append(errs, fmt.Errorf("spectrum.low_hz %.1f and high_hz %.1f must satisfy 0 < low < high <= %.1f", s.LowHz, s.HighHz, nyquist))
	}
	if s.CeilingDB <= s.FloorDB {
		errs = append(errs, fmt.Errorf("spectrum.ceiling_db %.1f must be above floor_db %.1f", s.CeilingDB, s.FloorDB))
	}

	// Timing
	if cfg.Timing.History <= 0 {
		errs = append(errs, errors.New("timing.history must be positive"))
	}

	// Render
	r := cfg.Render
	if r.Width <= 0 || r.Height <= 0 {
		errs = append(errs, fmt.Errorf("render.width %d and render.height %d must be positive", r.Width, r.Height))
	}
	if s.Bars > 0 && r.Width < s.Bars {
		errs = append(errs, fmt.Errorf("render.width %d is narrower than spectrum.bars %d", r.Width, s.Bars))
	}
	if r.X < 0 || r.Y < 0 || r.X+r.Width > cfg.Display.Width || r.Y+r.Height > cfg.Display.Height {
		errs = append(errs, fmt.Errorf("render region %dx%d at (%d,%d) does not fit the %dx%d display",
			r.Width, r.Height, r.X, r.Y, cfg.Display.Width, cfg.Display.Height))
	}
	if r.Gap < 0 || r.SegmentHeight < 0 || r.SegmentGap < 0 {
		errs = append(errs, errors.New("render.gap, segment_height and segment_gap must not be negative"))
	}
	if r.Falloff <= 0 {
		errs = append(errs, fmt.Errorf("render.falloff %.2f must be positive", r.Falloff))
	}
	if !r.Palette.IsValid() {
		errs = append(errs, fmt.Errorf("render.palette %q is invalid; valid values: heat, solid", r.Palette))
	}
	for name, hex := range map[string]string{
		"render.color":       r.Color,
		"render.background":  r.Background,
		"render.peaks.color": r.Peaks.Color,
	} {
		if _, err := colorful.Hex(hex); err != nil {
			errs = append(errs, fmt.Errorf("%s %q is not a #rrggbb colour", name, hex))
		}
	}
	if r.Peaks.Enabled {
		if r.Peaks.Hold < 0 {
			errs = append(errs, errors.New("render.peaks.hold must not be negative"))
		}
		if r.Peaks.Frequency <= 0 || r.Peaks.Damping <= 0 {
			errs = append(errs, errors.New("render.peaks.frequency and damping must be positive"))
		}
	}

	// Display
	d := cfg.Display
	if !d.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("display.driver %q is invalid; valid values: st7789, terminal", d.Driver))
	}
	if d.Interval < 5*time.Millisecond || d.Interval > time.Second {
		errs = append(errs, fmt.Errorf("display.interval %v is out of range [5ms, 1s]", d.Interval))
	}
	if d.Width <= 0 || d.Height <= 0 {
		errs = append(errs, fmt.Errorf("display.width %d and display.height %d must be positive", d.Width, d.Height))
	}
	switch d.Rotation {
	case 0, 90, 180, 270:
	default:
		errs = append(errs, fmt.Errorf("display.rotation %d is invalid; valid values: 0, 90, 180, 270", d.Rotation))
	}
	if d.Driver == DriverST7789 {
		if d.DC == "" {
			errs = append(errs, errors.New("display.dc is required for the st7789 driver"))
		}
		if d.SpeedHz <= 0 {
			errs = append(errs, fmt.Errorf("display.speed_hz %d must be positive", d.SpeedHz))
		}
	}

	return errors.Join(errs...)
}

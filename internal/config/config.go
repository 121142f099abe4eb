// Package config provides the configuration schema and loader for tftviz.
//
// A Config is built once at startup, optionally overridden by command-line
// flags, and then passed by value into the pipeline. Nothing in the core
// reads configuration from globals.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// FFTBackend selects the FFT implementation used by the analyzer.
type FFTBackend string

const (
	FFTGonum  FFTBackend = "gonum"
	FFTGoDSP  FFTBackend = "go-dsp"
	FFTRadix2 FFTBackend = "radix2"
)

// IsValid reports whether b is a recognised backend.
func (b FFTBackend) IsValid() bool {
	switch b {
	case FFTGonum, FFTGoDSP, FFTRadix2:
		return true
	}
	return false
}

// Window names a window function applied before the FFT.
type Window string

const (
	WindowHann        Window = "hann"
	WindowHamming     Window = "hamming"
	WindowBlackman    Window = "blackman"
	WindowBartlett    Window = "bartlett"
	WindowFlatTop     Window = "flattop"
	WindowRectangular Window = "rectangular"
)

// IsValid reports whether w is a recognised window.
func (w Window) IsValid() bool {
	switch w {
	case WindowHann, WindowHamming, WindowBlackman, WindowBartlett, WindowFlatTop, WindowRectangular:
		return true
	}
	return false
}

// Palette selects how bar pixels are coloured.
type Palette string

const (
	// PaletteHeat colours each row on a cool-to-warm gradient keyed to its height.
	PaletteHeat Palette = "heat"

	// PaletteSolid paints every lit pixel with Render.Color.
	PaletteSolid Palette = "solid"
)

// IsValid reports whether p is a recognised palette.
func (p Palette) IsValid() bool {
	return p == PaletteHeat || p == PaletteSolid
}

// Driver selects the drawing surface.
type Driver string

const (
	// DriverST7789 pushes frames to an ST7789 panel over SPI.
	DriverST7789 Driver = "st7789"

	// DriverTerminal previews frames in the terminal.
	DriverTerminal Driver = "terminal"
)

// IsValid reports whether d is a recognised driver.
func (d Driver) IsValid() bool {
	return d == DriverST7789 || d == DriverTerminal
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel   LogLevel         `yaml:"log_level"`
	Visualizer VisualizerConfig `yaml:"visualizer"`
	Audio      AudioConfig      `yaml:"audio"`
	Spectrum   SpectrumConfig   `yaml:"spectrum"`
	Timing     TimingConfig     `yaml:"timing"`
	Render     RenderConfig     `yaml:"render"`
	Display    DisplayConfig    `yaml:"display"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// VisualizerConfig holds the two settings the player integration exposes.
type VisualizerConfig struct {
	// Enabled turns the spectrum visualizer on. When off the panel is
	// cleared and left idle.
	Enabled bool `yaml:"enabled"`

	// Offset is the delay between capturing audio at the FIFO and hearing
	// it. Range 0 to 1s.
	Offset time.Duration `yaml:"offset"`
}

// AudioConfig describes the PCM input.
type AudioConfig struct {
	// FIFO is the named pipe written by the audio server.
	FIFO string `yaml:"fifo"`

	SampleRate int `yaml:"sample_rate"`
	BitDepth   int `yaml:"bit_depth"`
	Channels   int `yaml:"channels"`

	// Hop is the number of samples read per acquisition step.
	Hop int `yaml:"hop"`

	// ReadTimeout bounds a single blocking read on the FIFO.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// ReopenInterval is the pause after the writer closes the FIFO.
	ReopenInterval time.Duration `yaml:"reopen_interval"`

	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`

	// Replay, when set, reads this audio file instead of the FIFO. Without
	// ReplayLoop the file plays once and the panel then stays blank.
	Replay     string `yaml:"replay"`
	ReplayLoop bool   `yaml:"replay_loop"`
}

// SpectrumConfig tunes the analyzer.
type SpectrumConfig struct {
	FFT        FFTBackend `yaml:"fft"`
	FFTSize    int        `yaml:"fft_size"`
	WindowSize int        `yaml:"window_size"`
	Window     Window     `yaml:"window"`
	Bars       int        `yaml:"bars"`

	// LowHz and HighHz bound the banded range. HighHz 0 means Nyquist.
	LowHz  float64 `yaml:"low_hz"`
	HighHz float64 `yaml:"high_hz"`

	FloorDB   float64 `yaml:"floor_db"`
	CeilingDB float64 `yaml:"ceiling_db"`
	GainDB    float64 `yaml:"gain_db"`
}

// TimingConfig tunes the history ring.
type TimingConfig struct {
	// History is how long frames are kept beyond the offset.
	History time.Duration `yaml:"history"`
}

// RenderConfig places and styles the bar graph.
type RenderConfig struct {
	// X, Y, Width and Height locate the visualizer region on the panel.
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	Gap int `yaml:"gap"`

	// Falloff is the maximum drop of a bar per tick, in pixels.
	Falloff float64 `yaml:"falloff"`

	// SegmentHeight > 0 draws LED style blocks instead of solid bars.
	SegmentHeight int `yaml:"segment_height"`
	SegmentGap    int `yaml:"segment_gap"`

	Palette    Palette     `yaml:"palette"`
	Color      string      `yaml:"color"`
	Background string      `yaml:"background"`
	Peaks      PeaksConfig `yaml:"peaks"`
}

// PeaksConfig controls the peak caps drawn above each bar.
type PeaksConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Hold      time.Duration `yaml:"hold"`
	Frequency float64       `yaml:"frequency"`
	Damping   float64       `yaml:"damping"`
	Color     string        `yaml:"color"`
}

// DisplayConfig selects and wires the drawing surface.
type DisplayConfig struct {
	Driver   Driver        `yaml:"driver"`
	Interval time.Duration `yaml:"interval"`

	// SPI is the periph port name, e.g. "SPI0.0". Empty picks the first port.
	SPI     string `yaml:"spi"`
	SpeedHz int64  `yaml:"speed_hz"`

	DC        string `yaml:"dc"`
	RST       string `yaml:"rst"`
	Backlight string `yaml:"backlight"`

	Width    int  `yaml:"width"`
	Height   int  `yaml:"height"`
	Rotation int  `yaml:"rotation"`
	Invert   bool `yaml:"invert"`
}

// MetricsConfig controls the optional metrics listener.
type MetricsConfig struct {
	// Listen is the TCP address for /metrics, /healthz and /readyz.
	// Empty disables the listener.
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given. The values
// match a 240x240 ST7789 fed by a 44.1 kHz mono 16-bit snapcast FIFO.
func Default() Config {
	return Config{
		LogLevel: LogInfo,
		Visualizer: VisualizerConfig{
			Enabled: true,
			Offset:  500 * time.Millisecond,
		},
		Audio: AudioConfig{
			FIFO:           "/tmp/snapfifo",
			SampleRate:     44100,
			BitDepth:       16,
			Channels:       1,
			Hop:            512,
			ReadTimeout:    100 * time.Millisecond,
			ReopenInterval: 250 * time.Millisecond,
			BackoffInitial: time.Second,
			BackoffMax:     30 * time.Second,
			ReplayLoop:     true,
		},
		Spectrum: SpectrumConfig{
			FFT:        FFTGonum,
			FFTSize:    1024,
			WindowSize: 1024,
			Window:     WindowHann,
			Bars:       16,
			LowHz:      50,
			HighHz:     20000,
			FloorDB:    -60,
			CeilingDB:  0,
		},
		Timing: TimingConfig{
			History: 250 * time.Millisecond,
		},
		Render: RenderConfig{
			X:          138,
			Y:          116,
			Width:      96,
			Height:     48,
			Gap:        1,
			Falloff:    2,
			SegmentGap: 1,
			Palette:    PaletteHeat,
			Color:      "#00ff78",
			Background: "#000000",
			Peaks: PeaksConfig{
				Enabled:   true,
				Hold:      300 * time.Millisecond,
				Frequency: 6,
				Damping:   1,
				Color:     "#fffcd2",
			},
		},
		Display: DisplayConfig{
			Driver:    DriverST7789,
			Interval:  20 * time.Millisecond,
			SpeedHz:   48_000_000,
			DC:        "GPIO25",
			RST:       "GPIO27",
			Backlight: "GPIO24",
			Width:     240,
			Height:    240,
			Rotation:  180,
			Invert:    true,
		},
	}
}

// Horizon is how far behind the newest frame the history ring keeps frames.
func (c Config) Horizon() time.Duration {
	return c.Visualizer.Offset + c.Timing.History
}

// HopDuration is the audio time covered by one acquisition step.
func (c Config) HopDuration() time.Duration {
	if c.Audio.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Audio.Hop) * time.Second / time.Duration(c.Audio.SampleRate)
}

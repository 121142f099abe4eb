// Package render turns spectrum frames into bar-graph images.
package render

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/charmbracelet/harmonica"

	"github.com/olivier-w/tftviz/internal/rgb565"
	"github.com/olivier-w/tftviz/internal/spectrum"
)

// peakSnap is the distance below which a falling cap lands on its bar.
const peakSnap = 0.05

// Options describes the bar graph.
type Options struct {
	Width, Height int
	Bars          int
	Gap           int

	// Falloff is the most a bar may drop per tick, in pixels.
	Falloff float64

	// SegmentHeight > 0 draws LED-style segments of that many rows
	// separated by SegmentGap dark rows.
	SegmentHeight int
	SegmentGap    int

	Palette    string
	Color      string
	Background string

	Peaks PeakOptions

	// Tick is the render interval, used to step the peak spring.
	Tick time.Duration
}

// PeakOptions configures peak caps.
type PeakOptions struct {
	Enabled   bool
	Hold      time.Duration
	Frequency float64
	Damping   float64
	Color     string
}

type column struct {
	x, width int
}

// Renderer draws bars with attack/decay dynamics. Options are fixed at
// construction.
type Renderer struct {
	opts      Options
	columns   []column
	rows      []rgb565.Color
	bg        rgb565.Color
	peakColor rgb565.Color
	spring    harmonica.Spring
	holdTicks int
}

// New validates opts and precomputes the column layout and colors.
func New(opts Options) (*Renderer, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("render: invalid size %dx%d", opts.Width, opts.Height)
	}
	if opts.Bars < 1 || opts.Bars > opts.Width {
		return nil, fmt.Errorf("render: %d bars do not fit %d px", opts.Bars, opts.Width)
	}
	if opts.Falloff <= 0 {
		return nil, fmt.Errorf("render: falloff must be positive, got %g", opts.Falloff)
	}
	if opts.Gap < 0 || opts.SegmentHeight < 0 || opts.SegmentGap < 0 {
		return nil, fmt.Errorf("render: gaps and segment sizes must not be negative")
	}
	if opts.Tick <= 0 {
		opts.Tick = 20 * time.Millisecond
	}
	if opts.Background == "" {
		opts.Background = "#000000"
	}

	rows, err := rowColors(opts.Palette, opts.Color, opts.Height)
	if err != nil {
		return nil, err
	}
	bg, err := ParseColor(opts.Background)
	if err != nil {
		return nil, err
	}
	r := &Renderer{
		opts:    opts,
		columns: layoutColumns(opts.Width, opts.Bars),
		rows:    rows,
		bg:      bg,
	}

	if opts.Peaks.Enabled {
		if r.peakColor, err = ParseColor(opts.Peaks.Color); err != nil {
			return nil, err
		}
		fps := max(1, int(math.Round(float64(time.Second)/float64(opts.Tick))))
		r.spring = harmonica.NewSpring(harmonica.FPS(fps), opts.Peaks.Frequency, opts.Peaks.Damping)
		r.holdTicks = int((opts.Peaks.Hold + opts.Tick - 1) / opts.Tick)
	}
	return r, nil
}

// layoutColumns splits width into n columns; the last one takes the
// remainder.
func layoutColumns(width, n int) []column {
	base := width / n
	cols := make([]column, n)
	for i := range cols {
		cols[i] = column{x: i * base, width: base}
	}
	cols[n-1].width += width % n
	return cols
}

// Bounds returns the image bounds produced by Render.
func (r *Renderer) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.opts.Width, r.opts.Height)
}

// Background returns the background color.
func (r *Renderer) Background() rgb565.Color { return r.bg }

// NewState returns a zeroed BarState sized for this renderer.
func (r *Renderer) NewState() *BarState { return NewState(r.opts.Bars) }

// Blank returns an image with no bars.
func (r *Renderer) Blank() *rgb565.Image {
	img := rgb565.NewImage(r.Bounds())
	img.Fill(r.bg)
	return img
}

// Render advances st by one tick toward frame and draws the result into a
// new image. A nil frame drives every bar toward zero.
func (r *Renderer) Render(frame *spectrum.Frame, st *BarState) *rgb565.Image {
	r.Step(frame, st)
	return r.Draw(st)
}

// Step applies one tick of attack/decay and peak dynamics.
func (r *Renderer) Step(frame *spectrum.Frame, st *BarState) {
	maxH := float64(r.opts.Height)
	for i := range st.Heights {
		target := 0.0
		if frame != nil && i < len(frame.Levels) {
			target = clamp01(frame.Levels[i]) * maxH
		}
		h := st.Heights[i]
		if target >= h {
			h = target
		} else {
			h = math.Max(target, h-r.opts.Falloff)
		}
		st.Heights[i] = math.Min(math.Max(h, 0), maxH)

		if r.opts.Peaks.Enabled {
			r.stepPeak(&st.peaks[i], st.Heights[i], maxH)
		}
	}
}

func (r *Renderer) stepPeak(p *peak, height, maxH float64) {
	if height >= p.pos {
		p.pos, p.vel, p.hold = height, 0, r.holdTicks
		return
	}
	if p.hold > 0 {
		p.hold--
		return
	}
	p.pos, p.vel = r.spring.Update(p.pos, p.vel, height)
	if p.pos-height < peakSnap {
		p.pos, p.vel = height, 0
	}
	p.pos = math.Min(p.pos, maxH)
}

// Draw paints st without changing it.
func (r *Renderer) Draw(st *BarState) *rgb565.Image {
	img := r.Blank()
	h := r.opts.Height
	for i, col := range r.columns {
		width := col.width
		if width > r.opts.Gap {
			width -= r.opts.Gap
		}

		px := int(math.Round(st.Heights[i]))
		for row := range px {
			if !r.lit(row) {
				continue
			}
			y := h - 1 - row
			img.FillRect(image.Rect(col.x, y, col.x+width, y+1), r.rows[row])
		}

		if r.opts.Peaks.Enabled {
			if top := int(math.Round(st.peaks[i].pos)); top > 0 {
				y := h - top
				img.FillRect(image.Rect(col.x, y, col.x+width, y+1), r.peakColor)
			}
		}
	}
	return img
}

// lit reports whether a bar row (0 = bottom) is drawn, leaving the dark
// rows between segments.
func (r *Renderer) lit(row int) bool {
	if r.opts.SegmentHeight <= 0 {
		return true
	}
	return row%(r.opts.SegmentHeight+r.opts.SegmentGap) < r.opts.SegmentHeight
}

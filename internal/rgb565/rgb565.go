// Package rgb565 provides a 16-bit RGB image in the byte order ST7789-class
// panels expect on the wire.
//
// Each pixel is two bytes, big-endian: 5 bits red, 6 bits green, 5 bits
// blue. Rows are stored top to bottom with no padding, so a full-width
// region can be streamed to the panel straight from Pix.
package rgb565

import (
	"image"
	"image/color"
)

// Color is a packed RGB565 value.
type Color uint16

// RGB packs 8-bit channels, dropping the low bits.
func RGB(r, g, b uint8) Color {
	return Color(uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3))
}

// RGBA implements color.Color. Channels are widened by bit replication so
// full intensity maps to 0xFFFF.
func (c Color) RGBA() (r, g, b, a uint32) {
	r5 := uint32(c>>11) & 0x1F
	g6 := uint32(c>>5) & 0x3F
	b5 := uint32(c) & 0x1F
	r8 := r5<<3 | r5>>2
	g8 := g6<<2 | g6>>4
	b8 := b5<<3 | b5>>2
	return r8 * 0x101, g8 * 0x101, b8 * 0x101, 0xFFFF
}

func toRGB565(c color.Color) color.Color {
	if v, ok := c.(Color); ok {
		return v
	}
	r, g, b, _ := c.RGBA()
	return RGB(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// Model converts colors to Color. Alpha is ignored.
var Model = color.ModelFunc(toRGB565)

// Image is an RGB565 image.
type Image struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
}

// NewImage returns a black image with bounds r.
func NewImage(r image.Rectangle) *Image {
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return &Image{Rect: r}
	}
	return &Image{
		Pix:    make([]byte, 2*w*h),
		Stride: 2 * w,
		Rect:   r,
	}
}

// ColorModel implements image.Image.
func (p *Image) ColorModel() color.Model { return Model }

// Bounds implements image.Image.
func (p *Image) Bounds() image.Rectangle { return p.Rect }

// At implements image.Image.
func (p *Image) At(x, y int) color.Color { return p.RGB565At(x, y) }

// RGB565At returns the pixel at (x, y), or black outside the bounds.
func (p *Image) RGB565At(x, y int) Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return 0
	}
	i := p.PixOffset(x, y)
	return Color(p.Pix[i])<<8 | Color(p.Pix[i+1])
}

// Set implements draw.Image.
func (p *Image) Set(x, y int, c color.Color) {
	p.SetRGB565(x, y, Model.Convert(c).(Color))
}

// SetRGB565 sets the pixel at (x, y) without color conversion.
func (p *Image) SetRGB565(x, y int, c Color) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	p.Pix[i] = byte(c >> 8)
	p.Pix[i+1] = byte(c)
}

// PixOffset returns the index of the first byte of pixel (x, y) in Pix.
func (p *Image) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*2
}

// FillRect paints r, clipped to the image bounds.
func (p *Image) FillRect(r image.Rectangle, c Color) {
	r = r.Intersect(p.Rect)
	if r.Empty() {
		return
	}
	hi, lo := byte(c>>8), byte(c)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := p.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			p.Pix[i] = hi
			p.Pix[i+1] = lo
			i += 2
		}
	}
}

// Fill paints the whole image.
func (p *Image) Fill(c Color) { p.FillRect(p.Rect, c) }

// Uniform reports whether every pixel equals c.
func (p *Image) Uniform(c Color) bool {
	hi, lo := byte(c>>8), byte(c)
	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		i := p.PixOffset(p.Rect.Min.X, y)
		row := p.Pix[i : i+2*p.Rect.Dx()]
		for j := 0; j < len(row); j += 2 {
			if row[j] != hi || row[j+1] != lo {
				return false
			}
		}
	}
	return true
}

// SubImage returns the part of p visible through r, sharing pixels.
func (p *Image) SubImage(r image.Rectangle) image.Image {
	r = r.Intersect(p.Rect)
	if r.Empty() {
		return &Image{}
	}
	i := p.PixOffset(r.Min.X, r.Min.Y)
	return &Image{
		Pix:    p.Pix[i:],
		Stride: p.Stride,
		Rect:   r,
	}
}

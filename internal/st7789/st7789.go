// Package st7789 controls an ST7789 TFT panel over SPI.
//
// The panel is driven in 16-bit RGB565 mode. Draw accepts any image but is
// fastest with *rgb565.Image, whose pixel bytes go to the panel unchanged.
package st7789

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/olivier-w/tftviz/internal/rgb565"
)

// Command set used by this driver.
const (
	cmdSWRESET = 0x01
	cmdSLPOUT  = 0x11
	cmdNORON   = 0x13
	cmdINVOFF  = 0x20
	cmdINVON   = 0x21
	cmdDISPOFF = 0x28
	cmdDISPON  = 0x29
	cmdCASET   = 0x2A
	cmdRASET   = 0x2B
	cmdRAMWR   = 0x2C
	cmdVSCRDEF = 0x33
	cmdMADCTL  = 0x36
	cmdCOLMOD  = 0x3A
)

// colmod16 selects 65k colors at 16 bits per pixel.
const colmod16 = 0x55

// defaultChunk bounds a single SPI transfer when the port reports no limit.
const defaultChunk = 4096

var errHalted = errors.New("st7789: halted")

// sleep is swapped out by tests.
var sleep = time.Sleep

// Opts is the configuration for the panel.
type Opts struct {
	W int // Width (default 240)
	H int // Height (default 240)

	// Rotation in degrees: 0, 90, 180 or 270.
	Rotation int

	// Invert enables color inversion, which most IPS modules need for
	// correct colors.
	Invert bool

	// Speed is the SPI clock (default 48 MHz).
	Speed physic.Frequency

	// Optional pins, nil if not wired.
	RST       gpio.PinOut
	Backlight gpio.PinOut
}

// Dev is a handle to an initialized panel.
type Dev struct {
	c         conn.Conn
	dc        gpio.PinOut
	rst       gpio.PinOut
	backlight gpio.PinOut

	rect   image.Rectangle
	x0, y0 int
	chunk  int

	scratch *rgb565.Image
	halted  bool
}

// NewSPI connects to the panel in SPI mode 3 and runs the power-on
// sequence. opts can be nil for a 240x240 panel.
func NewSPI(p spi.Port, dc gpio.PinOut, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &Opts{W: 240, H: 240, Invert: true}
	}
	if opts.W <= 0 || opts.W > 240 || opts.H <= 0 || opts.H > 320 {
		return nil, fmt.Errorf("st7789: unsupported size %dx%d", opts.W, opts.H)
	}
	madctl, err := madctlFor(opts.Rotation)
	if err != nil {
		return nil, err
	}
	if (opts.Rotation == 90 || opts.Rotation == 270) && opts.W != opts.H {
		return nil, fmt.Errorf("st7789: rotation %d needs a square panel", opts.Rotation)
	}
	speed := opts.Speed
	if speed <= 0 {
		speed = 48 * physic.MegaHertz
	}

	c, err := p.Connect(speed, spi.Mode3, 8)
	if err != nil {
		return nil, fmt.Errorf("st7789: connect: %w", err)
	}

	d := &Dev{
		c:         c,
		dc:        dc,
		rst:       opts.RST,
		backlight: opts.Backlight,
		rect:      image.Rect(0, 0, opts.W, opts.H),
		chunk:     defaultChunk,
	}
	if l, ok := c.(conn.Limits); ok && l.MaxTxSize() > 0 {
		d.chunk = l.MaxTxSize()
	}
	d.x0, d.y0 = ramOffset(opts.W, opts.H, opts.Rotation)

	if err := d.init(madctl, opts.Invert); err != nil {
		return nil, err
	}
	return d, nil
}

func madctlFor(rotation int) (byte, error) {
	switch rotation {
	case 0:
		return 0x00, nil
	case 90:
		return 0x60, nil
	case 180:
		return 0xC0, nil
	case 270:
		return 0xA0, nil
	default:
		return 0, fmt.Errorf("st7789: unsupported rotation %d", rotation)
	}
}

// ramOffset returns where the visible area starts in the 240x320 frame
// memory for a given orientation.
func ramOffset(w, h, rotation int) (x, y int) {
	var rowOff, colOff int
	if w >= 240 {
		rowOff = 320 - h
		colOff = 240 - w
	}
	switch rotation {
	case 90:
		return rowOff, colOff
	case 180:
		return colOff, rowOff
	default:
		return 0, 0
	}
}

func (d *Dev) init(madctl byte, invert bool) error {
	if d.backlight != nil {
		if err := d.backlight.Out(gpio.Low); err != nil {
			return fmt.Errorf("st7789: backlight: %w", err)
		}
		sleep(10 * time.Millisecond)
		if err := d.backlight.Out(gpio.High); err != nil {
			return fmt.Errorf("st7789: backlight: %w", err)
		}
	}
	if d.rst != nil {
		for _, l := range []gpio.Level{gpio.High, gpio.Low, gpio.High} {
			if err := d.rst.Out(l); err != nil {
				return fmt.Errorf("st7789: reset: %w", err)
			}
			sleep(time.Millisecond)
		}
	}

	inv := byte(cmdINVOFF)
	if invert {
		inv = cmdINVON
	}
	steps := []struct {
		cmd   byte
		data  []byte
		delay time.Duration
	}{
		{cmd: cmdSWRESET, delay: 200 * time.Millisecond},
		{cmd: cmdSLPOUT, delay: 200 * time.Millisecond},
		// 0 top fixed, 320 scrolling, 0 bottom fixed lines.
		{cmd: cmdVSCRDEF, data: []byte{0x00, 0x00, 0x14, 0x00, 0x00, 0x00}},
		{cmd: cmdNORON, delay: 10 * time.Millisecond},
		{cmd: inv},
		{cmd: cmdMADCTL, data: []byte{madctl}},
		{cmd: cmdCOLMOD, data: []byte{colmod16}},
		{cmd: cmdDISPON, delay: 200 * time.Millisecond},
	}
	for _, s := range steps {
		if err := d.sendCommand(s.cmd); err != nil {
			return err
		}
		if s.data != nil {
			if err := d.sendData(s.data); err != nil {
				return err
			}
		}
		if s.delay > 0 {
			sleep(s.delay)
		}
	}
	return nil
}

func (d *Dev) sendCommand(cmd byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("st7789: dc: %w", err)
	}
	if err := d.c.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("st7789: command %#02x: %w", cmd, err)
	}
	return nil
}

// sendData writes data in chunks no larger than the port allows.
func (d *Dev) sendData(data []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("st7789: dc: %w", err)
	}
	for len(data) > 0 {
		n := min(len(data), d.chunk)
		if err := d.c.Tx(data[:n], nil); err != nil {
			return fmt.Errorf("st7789: data: %w", err)
		}
		data = data[n:]
	}
	return nil
}

// setWindow selects the inclusive RAM rectangle for the next RAMWR.
func (d *Dev) setWindow(r image.Rectangle) error {
	x0, x1 := d.x0+r.Min.X, d.x0+r.Max.X-1
	y0, y1 := d.y0+r.Min.Y, d.y0+r.Max.Y-1
	if err := d.sendCommand(cmdCASET); err != nil {
		return err
	}
	if err := d.sendData([]byte{byte(x0 >> 8), byte(x0), byte(x1 >> 8), byte(x1)}); err != nil {
		return err
	}
	if err := d.sendCommand(cmdRASET); err != nil {
		return err
	}
	return d.sendData([]byte{byte(y0 >> 8), byte(y0), byte(y1 >> 8), byte(y1)})
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model { return rgb565.Model }

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle { return d.rect }

// Draw writes src to the dst region of the panel. sp is the point in src
// aligned with dst.Min.
func (d *Dev) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	if d.halted {
		return errHalted
	}
	clipped := dst.Intersect(d.rect)
	if clipped.Empty() {
		return nil
	}
	sp = sp.Add(clipped.Min.Sub(dst.Min))

	if err := d.setWindow(clipped); err != nil {
		return err
	}
	if err := d.sendCommand(cmdRAMWR); err != nil {
		return err
	}
	return d.sendData(d.pixels(clipped.Size(), src, sp))
}

// pixels returns size worth of RGB565 bytes from src starting at sp.
func (d *Dev) pixels(size image.Point, src image.Image, sp image.Point) []byte {
	area := image.Rectangle{Min: sp, Max: sp.Add(size)}
	if img, ok := src.(*rgb565.Image); ok && area.In(img.Rect) {
		if 2*size.X == img.Stride {
			i := img.PixOffset(sp.X, sp.Y)
			return img.Pix[i : i+size.Y*img.Stride]
		}
		out := make([]byte, 0, 2*size.X*size.Y)
		for y := area.Min.Y; y < area.Max.Y; y++ {
			i := img.PixOffset(area.Min.X, y)
			out = append(out, img.Pix[i:i+2*size.X]...)
		}
		return out
	}

	if d.scratch == nil || d.scratch.Rect.Size() != size {
		d.scratch = rgb565.NewImage(image.Rectangle{Max: size})
	}
	draw.Draw(d.scratch, d.scratch.Rect, src, sp, draw.Src)
	return d.scratch.Pix
}

// Halt turns the display and backlight off. Further draws fail.
func (d *Dev) Halt() error {
	if d.halted {
		return nil
	}
	d.halted = true
	err := d.sendCommand(cmdDISPOFF)
	if d.backlight != nil {
		if blErr := d.backlight.Out(gpio.Low); blErr != nil && err == nil {
			err = fmt.Errorf("st7789: backlight: %w", blErr)
		}
	}
	return err
}

// String implements conn.Resource.
func (d *Dev) String() string {
	return fmt.Sprintf("st7789.Dev{%dx%d}", d.rect.Dx(), d.rect.Dy())
}

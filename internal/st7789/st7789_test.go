package st7789

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/olivier-w/tftviz/internal/rgb565"
)

// op is one SPI transfer tagged with the DC level at the time.
type op struct {
	Data bool
	W    []byte
}

// panelPort records transfers through spitest.Record and tags each with
// the DC pin level.
type panelPort struct {
	*spitest.Record
	dc     *gpiotest.Pin
	levels []gpio.Level
	speed  physic.Frequency
	mode   spi.Mode
}

func (p *panelPort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.speed, p.mode = f, mode
	c, err := p.Record.Connect(f, mode, bits)
	if err != nil {
		return nil, err
	}
	return &panelConn{Conn: c, p: p}, nil
}

type panelConn struct {
	spi.Conn
	p *panelPort
}

func (c *panelConn) Tx(w, r []byte) error {
	c.p.levels = append(c.p.levels, c.p.dc.Read())
	return c.Conn.Tx(w, r)
}

func (p *panelPort) ops() []op {
	out := make([]op, len(p.Ops))
	for i, io := range p.Ops {
		out[i] = op{Data: p.levels[i] == gpio.High, W: io.W}
	}
	return out
}

func (p *panelPort) reset() {
	p.Ops = nil
	p.levels = nil
}

func cmd(b byte) op { return op{W: []byte{b}} }

func data(b ...byte) op { return op{Data: true, W: b} }

func noSleep(time.Duration) {}

func newTestDev(t *testing.T, opts *Opts) (*Dev, *panelPort) {
	t.Helper()
	orig := sleep
	sleep = noSleep
	t.Cleanup(func() { sleep = orig })

	port := &panelPort{Record: &spitest.Record{}, dc: &gpiotest.Pin{N: "DC"}}
	dev, err := NewSPI(port, port.dc, opts)
	if err != nil {
		t.Fatalf("NewSPI: %v", err)
	}
	return dev, port
}

func TestInitSequence(t *testing.T) {
	rst := &gpiotest.Pin{N: "RST"}
	bl := &gpiotest.Pin{N: "BL"}
	_, port := newTestDev(t, &Opts{W: 240, H: 240, Rotation: 180, Invert: true, RST: rst, Backlight: bl})

	if port.speed != 48*physic.MegaHertz || port.mode != spi.Mode3 {
		t.Fatalf("expected 48MHz mode 3, got %v mode %v", port.speed, port.mode)
	}
	want := []op{
		cmd(cmdSWRESET),
		cmd(cmdSLPOUT),
		cmd(cmdVSCRDEF), data(0x00, 0x00, 0x14, 0x00, 0x00, 0x00),
		cmd(cmdNORON),
		cmd(cmdINVON),
		cmd(cmdMADCTL), data(0xC0),
		cmd(cmdCOLMOD), data(0x55),
		cmd(cmdDISPON),
	}
	if diff := cmp.Diff(want, port.ops()); diff != "" {
		t.Fatalf("init sequence mismatch (-want +got):\n%s", diff)
	}
	if rst.Read() != gpio.High || bl.Read() != gpio.High {
		t.Fatalf("expected RST and backlight high after init, got %v and %v", rst.Read(), bl.Read())
	}
}

func TestInitSleepsBetweenSteps(t *testing.T) {
	var slept []time.Duration
	orig := sleep
	sleep = func(d time.Duration) { slept = append(slept, d) }
	defer func() { sleep = orig }()

	port := &panelPort{Record: &spitest.Record{}, dc: &gpiotest.Pin{N: "DC"}}
	if _, err := NewSPI(port, port.dc, &Opts{W: 240, H: 240, Invert: false}); err != nil {
		t.Fatalf("NewSPI: %v", err)
	}
	want := []time.Duration{200 * time.Millisecond, 200 * time.Millisecond, 10 * time.Millisecond, 200 * time.Millisecond}
	if diff := cmp.Diff(want, slept); diff != "" {
		t.Fatalf("sleep mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Equal(port.Ops[5].W, []byte{cmdINVOFF}) {
		t.Fatalf("expected INVOFF without inversion, got % x", port.Ops[5].W)
	}
}

func TestMadctlAndOffsets(t *testing.T) {
	tests := []struct {
		rotation int
		madctl   byte
		x0, y0   int
	}{
		{0, 0x00, 0, 0},
		{90, 0x60, 80, 0},
		{180, 0xC0, 0, 80},
		{270, 0xA0, 0, 0},
	}
	for _, tt := range tests {
		m, err := madctlFor(tt.rotation)
		if err != nil || m != tt.madctl {
			t.Fatalf("rotation %d: expected MADCTL %#02x, got %#02x (%v)", tt.rotation, tt.madctl, m, err)
		}
		x, y := ramOffset(240, 240, tt.rotation)
		if x != tt.x0 || y != tt.y0 {
			t.Fatalf("rotation %d: expected offset (%d,%d), got (%d,%d)", tt.rotation, tt.x0, tt.y0, x, y)
		}
	}
	if _, err := madctlFor(45); err == nil {
		t.Fatal("expected an error for rotation 45")
	}
}

func TestNewSPIRejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts *Opts
	}{
		{"zero width", &Opts{W: 0, H: 240}},
		{"too tall", &Opts{W: 240, H: 400}},
		{"odd rotation", &Opts{W: 240, H: 240, Rotation: 45}},
		{"rotated rectangle", &Opts{W: 240, H: 320, Rotation: 90}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &panelPort{Record: &spitest.Record{}, dc: &gpiotest.Pin{}}
			if _, err := NewSPI(port, port.dc, tt.opts); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestDrawRegionWithOffset(t *testing.T) {
	dev, port := newTestDev(t, &Opts{W: 240, H: 240, Rotation: 180})
	port.reset()

	img := rgb565.NewImage(image.Rect(0, 0, 2, 2))
	img.SetRGB565(0, 0, 0x1234)
	img.SetRGB565(1, 1, 0xABCD)
	if err := dev.Draw(image.Rect(10, 20, 12, 22), img, image.Point{}); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	// Rotation 180 on a 240x240 panel starts 80 rows into RAM.
	want := []op{
		cmd(cmdCASET), data(0, 10, 0, 11),
		cmd(cmdRASET), data(0, 100, 0, 101),
		cmd(cmdRAMWR), data(0x12, 0x34, 0, 0, 0, 0, 0xAB, 0xCD),
	}
	if diff := cmp.Diff(want, port.ops()); diff != "" {
		t.Fatalf("draw mismatch (-want +got):\n%s", diff)
	}
}

func TestDrawClipsAndConverts(t *testing.T) {
	dev, port := newTestDev(t, &Opts{W: 240, H: 240})
	port.reset()

	src := image.NewUniform(color.RGBA{0xFF, 0, 0, 0xFF})
	if err := dev.Draw(image.Rect(238, 239, 250, 250), src, image.Point{}); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	want := []op{
		cmd(cmdCASET), data(0, 238, 0, 239),
		cmd(cmdRASET), data(0, 239, 0, 239),
		cmd(cmdRAMWR), data(0xF8, 0x00, 0xF8, 0x00),
	}
	if diff := cmp.Diff(want, port.ops()); diff != "" {
		t.Fatalf("draw mismatch (-want +got):\n%s", diff)
	}

	port.reset()
	if err := dev.Draw(image.Rect(300, 300, 310, 310), src, image.Point{}); err != nil {
		t.Fatalf("Draw outside bounds: %v", err)
	}
	if len(port.Ops) != 0 {
		t.Fatalf("expected no transfers for an off-panel draw, got %d", len(port.Ops))
	}
}

func TestDrawChunksLargeTransfers(t *testing.T) {
	dev, port := newTestDev(t, nil)
	port.reset()

	img := rgb565.NewImage(dev.Bounds())
	if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	// 240*240*2 bytes in 4096-byte chunks after the five setup transfers.
	ops := port.ops()
	chunks := ops[5:]
	if len(chunks) != 29 {
		t.Fatalf("expected 29 data chunks, got %d", len(chunks))
	}
	total := 0
	for i, c := range chunks {
		if !c.Data || len(c.W) > defaultChunk {
			t.Fatalf("chunk %d: data=%v len=%d", i, c.Data, len(c.W))
		}
		total += len(c.W)
	}
	if total != 240*240*2 {
		t.Fatalf("expected %d bytes, got %d", 240*240*2, total)
	}
}

func TestHaltRejectsDraws(t *testing.T) {
	bl := &gpiotest.Pin{N: "BL"}
	dev, port := newTestDev(t, &Opts{W: 240, H: 240, Backlight: bl})
	port.reset()

	if err := dev.Halt(); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	if diff := cmp.Diff([]op{cmd(cmdDISPOFF)}, port.ops()); diff != "" {
		t.Fatalf("halt mismatch (-want +got):\n%s", diff)
	}
	if bl.Read() != gpio.Low {
		t.Fatal("expected backlight off after Halt")
	}
	err := dev.Draw(dev.Bounds(), rgb565.NewImage(dev.Bounds()), image.Point{})
	if !errors.Is(err, errHalted) {
		t.Fatalf("expected errHalted, got %v", err)
	}
	if got := dev.String(); got != "st7789.Dev{240x240}" {
		t.Fatalf("unexpected String() %q", got)
	}
}

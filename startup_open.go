package main

import (
	"context"
	"errors"
	"fmt"
	"image"

	tea "github.com/charmbracelet/bubbletea"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/olivier-w/tftviz/internal/config"
	"github.com/olivier-w/tftviz/internal/display"
	"github.com/olivier-w/tftviz/internal/st7789"
	"github.com/olivier-w/tftviz/internal/termview"
)

// panel is a drawing surface the process owns for its lifetime.
type panel interface {
	display.Surface
	Bounds() image.Rectangle
	Halt() error
	String() string
}

// openedPanel bundles a panel with its lifecycle hooks.
type openedPanel struct {
	panel

	// run drives surfaces with their own event loop until ctx is done or
	// the surface goes away. Nil for hardware.
	run func(ctx context.Context) error

	// close releases the surface after Halt.
	close func() error
}

func openPanel(cfg config.Config) (*openedPanel, error) {
	switch cfg.Display.Driver {
	case config.DriverTerminal:
		return openTerminal(cfg), nil
	default:
		return openST7789(cfg.Display)
	}
}

func openST7789(c config.DisplayConfig) (*openedPanel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	port, err := spireg.Open(c.SPI)
	if err != nil {
		return nil, fmt.Errorf("open SPI port %q: %w", c.SPI, err)
	}

	dc, err := pinByName(c.DC)
	if err == nil && dc == nil {
		err = errors.New("display.dc must name a GPIO pin")
	}
	var rst, backlight gpio.PinIO
	if err == nil {
		rst, err = pinByName(c.RST)
	}
	if err == nil {
		backlight, err = pinByName(c.Backlight)
	}
	if err != nil {
		port.Close()
		return nil, err
	}

	opts := &st7789.Opts{
		W:        c.Width,
		H:        c.Height,
		Rotation: c.Rotation,
		Invert:   c.Invert,
		Speed:    physic.Frequency(c.SpeedHz) * physic.Hertz,

		RST:       rst,
		Backlight: backlight,
	}
	dev, err := st7789.NewSPI(port, dc, opts)
	if err != nil {
		port.Close()
		return nil, err
	}
	return &openedPanel{panel: dev, close: port.Close}, nil
}

// pinByName resolves a GPIO by name. An empty name means not wired.
func pinByName(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown GPIO pin %q", name)
	}
	return p, nil
}

func openTerminal(cfg config.Config) *openedPanel {
	r := cfg.Render
	bounds := image.Rect(0, 0, cfg.Display.Width, cfg.Display.Height)
	viewport := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
	view := termview.New(bounds, viewport, tea.WithAltScreen())

	run := func(ctx context.Context) error {
		stop := context.AfterFunc(ctx, func() { view.Halt() })
		defer stop()
		if err := view.Run(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		return termview.ErrClosed
	}
	return &openedPanel{panel: view, run: run, close: func() error { return nil }}
}

package termview

import (
	"errors"
	"image"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/olivier-w/tftviz/internal/rgb565"
)

func TestModelAppliesFrames(t *testing.T) {
	m := newModel(image.Rect(0, 0, 240, 240), image.Rect(10, 10, 14, 15))

	img := rgb565.NewImage(image.Rect(10, 10, 12, 12))
	img.Fill(rgb565.RGB(0xff, 0, 0))
	next, cmd := m.Update(frameMsg{img: img})
	if cmd != nil {
		t.Fatal("expected no command for a frame")
	}
	m = next.(model)

	if got := m.canvas.RGB565At(11, 11); got != rgb565.RGB(0xff, 0, 0) {
		t.Fatalf("expected red at (11,11), got %#04x", got)
	}
	if got := m.canvas.RGB565At(12, 11); got != 0 {
		t.Fatalf("expected black outside the frame, got %#04x", got)
	}

	lines := strings.Split(m.View(), "\n")
	// Five pixel rows need three cell rows, then the help line.
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	for i, l := range lines[:3] {
		if n := strings.Count(l, halfBlock); n != 4 {
			t.Fatalf("line %d: expected 4 cells, got %d", i, n)
		}
	}
	// Red over red and black over black; the unpaired last row reuses black.
	if len(m.cells) != 2 {
		t.Fatalf("expected 2 distinct cells, got %d", len(m.cells))
	}
}

func TestQuitKeys(t *testing.T) {
	m := newModel(image.Rect(0, 0, 8, 8), image.Rect(0, 0, 8, 8))
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := m.Update(key)
		if cmd == nil {
			t.Fatalf("%s: expected a quit command", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%s: expected tea.QuitMsg, got %T", key, cmd())
		}
	}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}); cmd != nil {
		t.Fatal("expected other keys to be ignored")
	}
}

func TestHexMatchesPanelColor(t *testing.T) {
	if got := hex(rgb565.RGB(0xff, 0xff, 0xff)); got != "#ffffff" {
		t.Fatalf("expected #ffffff, got %s", got)
	}
	if got := hex(rgb565.RGB(0xf8, 0, 0)); got != "#ff0000" {
		t.Fatalf("expected #ff0000, got %s", got)
	}
}

func TestDrawAfterHaltFails(t *testing.T) {
	panel := image.Rect(0, 0, 240, 240)
	v := New(panel, image.Rect(0, 0, 16, 8),
		tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutSignalHandler())

	done := make(chan error, 1)
	go func() { done <- v.Run() }()

	src := rgb565.NewImage(image.Rect(0, 0, 16, 8))
	if err := v.Draw(image.Rect(0, 0, 16, 8), src, image.Point{}); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if err := v.Halt(); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("preview did not exit")
	}
	if !v.Closed() {
		t.Fatal("expected the view to report closed")
	}
	if err := v.Draw(panel, src, image.Point{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if got := v.String(); got != "termview.View{240x240}" {
		t.Fatalf("unexpected String() %q", got)
	}
}

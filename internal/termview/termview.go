// Package termview previews the panel in a terminal.
//
// Each character cell shows two stacked pixels using an upper half block,
// foreground for the top pixel and background for the bottom one. Only the
// viewport is printed; the rest of the panel is tracked but not shown.
package termview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/olivier-w/tftviz/internal/rgb565"
)

// ErrClosed is returned by Draw once the preview has exited.
var ErrClosed = errors.New("termview: preview closed")

const halfBlock = "▀"

var helpStyle = lipgloss.NewStyle().
	Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"})

// View is a display surface backed by a bubbletea program.
type View struct {
	prog   *tea.Program
	panel  image.Rectangle
	closed atomic.Bool
}

// New returns a preview of a panel with the given bounds that prints the
// viewport part of it. Run must be called for frames to be shown.
func New(panel, viewport image.Rectangle, opts ...tea.ProgramOption) *View {
	v := &View{panel: panel}
	v.prog = tea.NewProgram(newModel(panel, viewport.Intersect(panel)), opts...)
	return v
}

// Run blocks until the user quits or Halt is called.
func (v *View) Run() error {
	defer v.closed.Store(true)
	if _, err := v.prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("termview: %w", err)
	}
	return nil
}

// Closed reports whether the preview has exited.
func (v *View) Closed() bool { return v.closed.Load() }

// ColorModel implements display.Drawer.
func (v *View) ColorModel() color.Model { return rgb565.Model }

// Bounds implements display.Drawer.
func (v *View) Bounds() image.Rectangle { return v.panel }

// Draw copies the dst region of src and hands it to the program. It blocks
// until the program has accepted the frame.
func (v *View) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	if v.closed.Load() {
		return ErrClosed
	}
	r := dst.Intersect(v.panel)
	if r.Empty() {
		return nil
	}
	img := rgb565.NewImage(r)
	draw.Draw(img, r, src, sp.Add(r.Min.Sub(dst.Min)), draw.Src)
	v.prog.Send(frameMsg{img: img})
	if v.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Halt stops the program. Draws after it return ErrClosed.
func (v *View) Halt() error {
	v.prog.Quit()
	return nil
}

// String implements conn.Resource.
func (v *View) String() string {
	return fmt.Sprintf("termview.View{%dx%d}", v.panel.Dx(), v.panel.Dy())
}

type frameMsg struct {
	img *rgb565.Image
}

type model struct {
	canvas   *rgb565.Image
	viewport image.Rectangle
	cells    map[[2]rgb565.Color]string
}

func newModel(panel, viewport image.Rectangle) model {
	return model{
		canvas:   rgb565.NewImage(panel),
		viewport: viewport,
		cells:    make(map[[2]rgb565.Color]string),
	}
}

func isQuit(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return true
	}
	return false
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if isQuit(msg) {
			return m, tea.Quit
		}
	case frameMsg:
		r := msg.img.Bounds()
		draw.Draw(m.canvas, r, msg.img, r.Min, draw.Src)
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	for y := m.viewport.Min.Y; y < m.viewport.Max.Y; y += 2 {
		for x := m.viewport.Min.X; x < m.viewport.Max.X; x++ {
			top := m.canvas.RGB565At(x, y)
			var bottom rgb565.Color
			if y+1 < m.viewport.Max.Y {
				bottom = m.canvas.RGB565At(x, y+1)
			}
			b.WriteString(m.cell(top, bottom))
		}
		b.WriteByte('\n')
	}
	b.WriteString(helpStyle.Render("q quit"))
	return b.String()
}

// cell renders one half-block, memoized per color pair.
func (m model) cell(top, bottom rgb565.Color) string {
	key := [2]rgb565.Color{top, bottom}
	if s, ok := m.cells[key]; ok {
		return s
	}
	s := lipgloss.NewStyle().
		Foreground(lipgloss.Color(hex(top))).
		Background(lipgloss.Color(hex(bottom))).
		Render(halfBlock)
	m.cells[key] = s
	return s
}

func hex(c rgb565.Color) string {
	cc, _ := colorful.MakeColor(c)
	return cc.Hex()
}

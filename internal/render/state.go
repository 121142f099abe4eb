package render

// BarState carries bar heights between render ticks. It belongs to the
// render loop and is not safe for concurrent use.
type BarState struct {
	// Heights are in pixels, 0 ≤ h ≤ the renderer's height.
	Heights []float64

	peaks []peak
}

// peak is a floating cap marking a bar's recent maximum.
type peak struct {
	pos  float64
	vel  float64
	hold int
}

// NewState returns a zeroed state for n bars.
func NewState(n int) *BarState {
	return &BarState{
		Heights: make([]float64, n),
		peaks:   make([]peak, n),
	}
}

// Idle reports whether every bar and cap has settled at zero, so another
// render would produce a blank image.
func (s *BarState) Idle() bool {
	for _, h := range s.Heights {
		if h != 0 {
			return false
		}
	}
	for _, p := range s.peaks {
		if p.pos != 0 {
			return false
		}
	}
	return true
}

// Reset drops every bar and cap to zero.
func (s *BarState) Reset() {
	clear(s.Heights)
	clear(s.peaks)
}

// PeakHeight returns the cap position of bar i in pixels.
func (s *BarState) PeakHeight(i int) float64 { return s.peaks[i].pos }

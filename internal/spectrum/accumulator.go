package spectrum

// Accumulator keeps the most recent window of samples across hops so that
// successive analysis windows overlap.
type Accumulator struct {
	buf    []float64
	filled int
}

// NewAccumulator returns an Accumulator holding size samples.
func NewAccumulator(size int) *Accumulator {
	return &Accumulator{buf: make([]float64, size)}
}

// Push appends samples, discarding the oldest ones beyond the window.
func (a *Accumulator) Push(samples []float64) {
	size := len(a.buf)
	if len(samples) >= size {
		copy(a.buf, samples[len(samples)-size:])
		a.filled = size
		return
	}
	copy(a.buf, a.buf[len(samples):])
	copy(a.buf[size-len(samples):], samples)
	a.filled = min(a.filled+len(samples), size)
}

// Window returns the current window, oldest sample first. The slice is
// only valid until the next Push. It returns ErrUnderrun until a full
// window has been pushed since the last Reset.
func (a *Accumulator) Window() ([]float64, error) {
	if a.filled < len(a.buf) {
		return nil, ErrUnderrun
	}
	return a.buf, nil
}

// Reset forgets all samples, typically after the stream was reopened.
func (a *Accumulator) Reset() {
	clear(a.buf)
	a.filled = 0
}

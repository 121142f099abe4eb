package timing

import (
	"time"

	"github.com/olivier-w/tftviz/internal/spectrum"
)

// Outcome describes what Select returned.
type Outcome int

const (
	// OutcomeEmpty means there is nothing to show; the bars should decay.
	OutcomeEmpty Outcome = iota
	// OutcomeFresh is a frame not returned before.
	OutcomeFresh
	// OutcomeHeld repeats the previous frame.
	OutcomeHeld
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFresh:
		return "fresh"
	case OutcomeHeld:
		return "held"
	default:
		return "empty"
	}
}

// Compensator picks, on each render tick, the frame captured closest to
// now minus the configured offset. It is owned by the render loop.
type Compensator struct {
	ring   *Ring
	offset time.Duration

	last    spectrum.Frame
	hasLast bool
	gen     uint64
}

// NewCompensator returns a Compensator reading from ring.
func NewCompensator(ring *Ring, offset time.Duration) *Compensator {
	return &Compensator{ring: ring, offset: offset, gen: ring.Generation()}
}

// Offset returns the configured render delay.
func (c *Compensator) Offset() time.Duration { return c.offset }

// Select returns the frame to render at now. It never returns a frame
// captured after now and never steps back to a frame older than the one
// it returned last.
//
// Until some frame is at least offset old, the newest frame seen on the
// first call is shown and held unchanged.
func (c *Compensator) Select(now time.Time) (spectrum.Frame, Outcome) {
	frame, ok, oldEnough, gen := c.ring.closest(now.Add(-c.offset), now)
	if gen != c.gen {
		c.gen = gen
		c.last = spectrum.Frame{}
		c.hasLast = false
	}
	if !ok {
		if c.hasLast {
			return c.last, OutcomeHeld
		}
		return spectrum.Frame{}, OutcomeEmpty
	}
	if c.hasLast && (!oldEnough || frame.Seq <= c.last.Seq) {
		return c.last, OutcomeHeld
	}
	c.last = frame
	c.hasLast = true
	return frame, OutcomeFresh
}

// Reset forgets the held frame.
func (c *Compensator) Reset() {
	c.last = spectrum.Frame{}
	c.hasLast = false
}

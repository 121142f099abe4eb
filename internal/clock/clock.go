// Package clock abstracts the monotonic time source shared by the audio
// capture path and the render loop so both can be driven by hand in tests.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time. Values returned by System carry a
// monotonic reading, so comparisons between them are immune to wall clock
// adjustments.
type Clock interface {
	Now() time.Time
}

// System is the process clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Manual is a Clock that only moves when told to.
type Manual struct {
	mu sync.Mutex
	t  time.Time
}

// NewManual returns a Manual clock reading t.
func NewManual(t time.Time) *Manual {
	return &Manual{t: t}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

// Advance moves the clock forward by d and returns the new reading.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = m.t.Add(d)
	return m.t
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.t = t
	m.mu.Unlock()
}

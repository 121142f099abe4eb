// Package timing delays spectrum frames by a fixed offset so the display
// tracks what is audible rather than what was just captured.
package timing

import (
	"sync"
	"time"

	"github.com/olivier-w/tftviz/internal/spectrum"
)

// ringSlack is extra capacity beyond horizon/hop to absorb capture jitter.
const ringSlack = 8

// CapacityFor returns a ring capacity that holds horizon worth of frames
// produced every hop.
func CapacityFor(horizon, hop time.Duration) int {
	if hop <= 0 {
		return ringSlack
	}
	return int(horizon/hop) + ringSlack
}

// Evicted counts frames dropped by a Push.
type Evicted struct {
	// Overflow frames were overwritten because the ring was full.
	Overflow int
	// Expired frames fell behind the horizon.
	Expired int
}

// Ring is a fixed-capacity history of spectrum frames in push order. It is
// safe for one producer and one consumer.
type Ring struct {
	mu      sync.Mutex
	frames  []spectrum.Frame
	head    int
	n       int
	horizon time.Duration
	seq     uint64
	gen     uint64
}

// NewRing returns a Ring holding at most capacity frames, none older than
// horizon behind the newest.
func NewRing(capacity int, horizon time.Duration) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		frames:  make([]spectrum.Frame, capacity),
		horizon: horizon,
	}
}

func (r *Ring) at(i int) *spectrum.Frame {
	return &r.frames[(r.head+i)%len(r.frames)]
}

// Push appends f, assigning its sequence number.
func (r *Ring) Push(f spectrum.Frame) (uint64, Evicted) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ev Evicted
	r.seq++
	f.Seq = r.seq
	if r.n == len(r.frames) {
		r.frames[r.head] = spectrum.Frame{}
		r.head = (r.head + 1) % len(r.frames)
		r.n--
		ev.Overflow++
	}
	*r.at(r.n) = f
	r.n++

	if r.horizon > 0 {
		cutoff := f.Captured.Add(-r.horizon)
		for r.n > 1 && r.at(0).Captured.Before(cutoff) {
			*r.at(0) = spectrum.Frame{}
			r.head = (r.head + 1) % len(r.frames)
			r.n--
			ev.Expired++
		}
	}
	return f.Seq, ev
}

// Clear drops every frame and starts a new generation, which makes the
// compensator forget the frame it was holding.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.frames)
	r.head = 0
	r.n = 0
	r.gen++
}

// Len returns the number of frames held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.frames) }

// Generation returns the number of Clear calls so far.
func (r *Ring) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// closest returns the frame captured nearest to target among frames
// captured no later than now. Ties go to the newer frame. When every such
// frame is newer than target, the newest one is returned and oldEnough is
// false.
func (r *Ring) closest(target, now time.Time) (f spectrum.Frame, ok, oldEnough bool, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	best, newest := -1, -1
	var bestDist time.Duration
	for i := range r.n {
		fr := r.at(i)
		if fr.Captured.After(now) {
			continue
		}
		newest = i
		if !fr.Captured.After(target) {
			oldEnough = true
		}
		d := fr.Captured.Sub(target)
		if d < 0 {
			d = -d
		}
		if best < 0 || d <= bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return spectrum.Frame{}, false, false, r.gen
	}
	if !oldEnough {
		best = newest
	}
	return *r.at(best), true, oldEnough, r.gen
}

package spectrum

import (
	"fmt"

	"github.com/mjibson/go-dsp/window"
)

// Window function names accepted in Config.Window.
const (
	WindowHann        = "hann"
	WindowHamming     = "hamming"
	WindowBlackman    = "blackman"
	WindowBartlett    = "bartlett"
	WindowFlatTop     = "flattop"
	WindowRectangular = "rectangular"
)

func windowFunc(name string) (func(int) []float64, error) {
	switch name {
	case WindowHann, "":
		return window.Hann, nil
	case WindowHamming:
		return window.Hamming, nil
	case WindowBlackman:
		return window.Blackman, nil
	case WindowBartlett:
		return window.Bartlett, nil
	case WindowFlatTop:
		return window.FlatTop, nil
	case WindowRectangular:
		return window.Rectangular, nil
	default:
		return nil, fmt.Errorf("spectrum: unknown window %q", name)
	}
}

// taper is a window of one length together with its energy Σw².
type taper struct {
	coef   []float64
	energy float64
}

const maxCachedTapers = 8

// taperCache memoizes window coefficients by length. Frames are normally
// a single fixed length, so this holds one or two entries.
type taperCache struct {
	fn    func(int) []float64
	byLen map[int]taper
}

func newTaperCache(fn func(int) []float64) *taperCache {
	return &taperCache{fn: fn, byLen: make(map[int]taper)}
}

func (c *taperCache) get(n int) taper {
	if t, ok := c.byLen[n]; ok {
		return t
	}
	if len(c.byLen) >= maxCachedTapers {
		clear(c.byLen)
	}
	coef := c.fn(n)
	var energy float64
	for _, w := range coef {
		energy += w * w
	}
	t := taper{coef: coef, energy: energy}
	c.byLen[n] = t
	return t
}

package spectrum

import "math"

// binRange is a half-open run of FFT bin indices [start, end).
type binRange struct {
	start, end int
}

// bandEdges returns n+1 logarithmically spaced frequencies from low to high.
func bandEdges(low, high float64, n int) []float64 {
	edges := make([]float64, n+1)
	ratio := high / low
	for k := range edges {
		edges[k] = low * math.Pow(ratio, float64(k)/float64(n))
	}
	// Pin the endpoints so rounding never leaks outside [low, high].
	edges[0] = low
	edges[n] = high
	return edges
}

// assignBins maps each band [edges[k], edges[k+1]) to the bins whose centre
// frequency i·binHz falls inside it. A band too narrow to hold a bin centre
// borrows the single bin nearest its geometric centre.
func assignBins(edges []float64, binHz float64, numBins int) []binRange {
	bands := make([]binRange, len(edges)-1)
	last := numBins - 1
	for k := range bands {
		start := clampBin(int(math.Ceil(edges[k]/binHz)), 0, numBins)
		end := clampBin(int(math.Ceil(edges[k+1]/binHz)), 0, numBins)
		if end <= start {
			centre := math.Sqrt(edges[k] * edges[k+1])
			b := clampBin(int(math.Round(centre/binHz)), 1, last)
			start, end = b, b+1
		}
		bands[k] = binRange{start: start, end: end}
	}
	return bands
}

func clampBin(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

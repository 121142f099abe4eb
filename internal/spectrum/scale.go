package spectrum

import "math"

// silenceAmplitude is treated as exact silence; its log would be far below
// any usable floor.
const silenceAmplitude = 1e-12

// levelFromAmplitude converts a linear sine-equivalent amplitude into a 0–1
// bar level on a dB scale between floorDB and ceilingDB.
func levelFromAmplitude(amp, floorDB, ceilingDB, gainDB float64) float64 {
	if amp < silenceAmplitude || math.IsNaN(amp) {
		return 0
	}
	db := 20*math.Log10(amp) + gainDB
	level := (db - floorDB) / (ceilingDB - floorDB)
	switch {
	case level < 0:
		return 0
	case level > 1:
		return 1
	default:
		return level
	}
}

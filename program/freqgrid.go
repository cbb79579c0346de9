package program

import "math"

// GridStepMHz is the resolution of the synthesizer's fractional-N tuner:
// the smallest frequency increment it can exactly generate. The exact
// value is implementation-defined hardware detail (spec §1 Non-goals does
// not standardize device internals); what matters for the invariants in
// spec §8 is that every legal frequency is an exact multiple of it.
const GridStepMHz = 0.01

// NearestLegalFreq rounds freq to the nearest value exactly representable
// by the synthesizer (spec §4.3 step 1, utilNearestLegalFreq).
func NearestLegalFreq(freq float64) float64 {
	return math.Round(freq/GridStepMHz) * GridStepMHz
}

// FixLinearSweepLimits adjusts start and end so that n evenly spaced
// points all land on exactly generatable frequencies (spec §4.3 step 1,
// utilFixLinearSweepLimits). Unequal spacing induces doppler artifacts in
// downstream signal processing, so the snapped spacing — not just the
// endpoints — must be grid-aligned.
//
// When n is 0 or 1, or start == end, each endpoint is snapped
// independently (spec §4.3).
func FixLinearSweepLimits(start, end float64, n int) (snappedStart, snappedEnd float64) {
	if n <= 1 || start == end {
		return NearestLegalFreq(start), NearestLegalFreq(end)
	}

	snappedStart = NearestLegalFreq(start)
	rawSpacing := (end - start) / float64(n-1)
	snappedSpacing := math.Round(rawSpacing/GridStepMHz) * GridStepMHz
	if snappedSpacing == 0 {
		if rawSpacing >= 0 {
			snappedSpacing = GridStepMHz
		} else {
			snappedSpacing = -GridStepMHz
		}
	}
	snappedEnd = snappedStart + snappedSpacing*float64(n-1)
	return snappedStart, snappedEnd
}

// LinearSweep generates n frequencies evenly spaced between the grid-
// snapped start and end (used by utilGenerateLinearSweep, spec §4.9).
func LinearSweep(start, end float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	snappedStart, snappedEnd := FixLinearSweepLimits(start, end, n)
	if n == 1 {
		return []float64{snappedStart}
	}
	spacing := (snappedEnd - snappedStart) / float64(n-1)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = snappedStart + spacing*float64(i)
	}
	return out
}

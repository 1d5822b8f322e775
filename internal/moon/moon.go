// Package moon computes lunar phase for event enrichment.
//
// The calculation is a synodic-month approximation anchored at a known
// new moon epoch. It is pure and deterministic: the same instant always
// yields the same phase fraction and name, which the dimensional layer
// depends on for reproducible rebuilds. Accuracy is within a few hours
// of the astronomical phase, which is ample for bucketing events into
// eight named phases.
package moon

import "time"

// epoch is the new moon of 2000-01-06 18:14 UTC.
var epoch = time.Date(2000, time.January, 6, 18, 14, 0, 0, time.UTC)

// synodicMonth is the mean lunation period in days.
const synodicMonth = 29.530588853

// Phase names in cycle order.
const (
	NewMoon        = "New Moon"
	WaxingCrescent = "Waxing Crescent"
	FirstQuarter   = "First Quarter"
	WaxingGibbous  = "Waxing Gibbous"
	FullMoon       = "Full Moon"
	WaningGibbous  = "Waning Gibbous"
	LastQuarter    = "Last Quarter"
	WaningCrescent = "Waning Crescent"
)

// Phase returns the moon phase fraction for t, in [0, 1): 0 is new
// moon, 0.5 is full moon.
func Phase(t time.Time) float64 {
	days := t.UTC().Sub(epoch).Seconds() / 86400.0
	frac := days / synodicMonth
	frac -= float64(int64(frac))
	if frac < 0 {
		frac += 1
	}
	return frac
}

// PhaseName categorizes a phase fraction into one of the eight named
// phases. Boundaries are offset by 1/16 so that each name is centered
// on its exact phase point.
func PhaseName(phase float64) string {
	switch {
	case phase < 0.0625 || phase >= 0.9375:
		return NewMoon
	case phase < 0.1875:
		return WaxingCrescent
	case phase < 0.3125:
		return FirstQuarter
	case phase < 0.4375:
		return WaxingGibbous
	case phase < 0.5625:
		return FullMoon
	case phase < 0.6875:
		return WaningGibbous
	case phase < 0.8125:
		return LastQuarter
	default:
		return WaningCrescent
	}
}

// At returns both the phase fraction and its name for t.
func At(t time.Time) (float64, string) {
	p := Phase(t)
	return p, PhaseName(p)
}

package prediction

import (
	"math"
	"time"

	"github.com/mrcode/loop-engine/internal/models"
)

// MomentumInterval is the expected spacing of continuous readings
const MomentumInterval = 5 * time.Minute

// LinearMomentum projects the recent glucose trend forward for duration.
// Readings older than window before the last one are ignored. It returns
// nil when the readings are too few, not continuous, include calibrations,
// come from more than one source, or give a degenerate slope.
func LinearMomentum(samples []models.GlucoseSample, window, duration, delta time.Duration) []models.EffectPoint {
	if len(samples) == 0 || delta <= 0 {
		return nil
	}

	last := samples[len(samples)-1]
	var recent []models.GlucoseSample
	for _, s := range samples {
		if !s.Time.Before(last.Time.Add(-window)) {
			recent = append(recent, s)
		}
	}

	if len(recent) <= 2 || !momentumEligible(recent) {
		return nil
	}

	slope := Slope(recent) // mg/dL per second
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return nil
	}

	var points []models.EffectPoint
	end := models.CeilTime(last.Time.Add(duration), delta)
	for t := models.FloorTime(last.Time, delta); !t.After(end); t = t.Add(delta) {
		elapsed := max(0, t.Sub(last.Time).Seconds())
		points = append(points, models.EffectPoint{Time: t, Value: elapsed * slope})
	}
	return points
}

func momentumEligible(samples []models.GlucoseSample) bool {
	first, last := samples[0], samples[len(samples)-1]
	span := last.Time.Sub(first.Time)
	if span < 0 {
		span = -span
	}
	if span >= MomentumInterval*time.Duration(len(samples)) {
		return false
	}

	for _, s := range samples {
		if s.IsCalibration || s.Provenance != first.Provenance {
			return false
		}
	}
	return true
}

// Slope returns the least-squares slope of the readings in mg/dL per
// second. Readings that share one timestamp yield NaN.
func Slope(samples []models.GlucoseSample) float64 {
	if len(samples) < 2 {
		return math.NaN()
	}

	// Linear regression for trend
	var sumX, sumY, sumXY, sumX2 float64
	base := samples[0].Time

	for _, s := range samples {
		x := s.Time.Sub(base).Seconds()
		y := s.Value
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	n := float64(len(samples))
	return (n*sumXY - sumX*sumY) / (n*sumX2 - sumX*sumX)
}

package prediction

import (
	"time"

	"github.com/mrcode/loop-engine/internal/models"
)

// MinCounteractionInterval is the shortest pair of readings that yields a velocity
const MinCounteractionInterval = 4 * time.Minute

// Counteraction returns the glucose velocity not explained by the modeled
// effects. Samples must be sorted by time, effects laid out on a grid.
func Counteraction(samples []models.GlucoseSample, effects []models.EffectPoint) []models.Velocity {
	if len(samples) < 2 || len(effects) == 0 {
		return nil
	}

	var velocities []models.Velocity
	ref := samples[0]
	cursor := 0

	for _, current := range samples[1:] {
		elapsed := current.Time.Sub(ref.Time)
		if elapsed < MinCounteractionInterval {
			continue
		}
		if !continuous(ref, current) {
			ref = current
			continue
		}

		startIdx := firstAtOrAfter(effects, cursor, ref.Time)
		if startIdx < 0 {
			break
		}
		endIdx := firstAtOrAfter(effects, startIdx+1, current.Time)
		if endIdx < 0 {
			break
		}
		cursor = endIdx

		glucoseChange := current.Value - ref.Value
		effectChange := effects[endIdx].Value - effects[startIdx].Value
		velocities = append(velocities, models.Velocity{
			Start: ref.Time,
			End:   current.Time,
			Value: (glucoseChange - effectChange) / elapsed.Seconds() * 60,
		})
		ref = current
	}

	return velocities
}

// continuous reports whether two readings can be compared directly
func continuous(a, b models.GlucoseSample) bool {
	return a.Provenance == b.Provenance && a.IsCalibration == b.IsCalibration
}

func firstAtOrAfter(points []models.EffectPoint, from int, t time.Time) int {
	for i := from; i < len(points); i++ {
		if !points[i].Time.Before(t) {
			return i
		}
	}
	return -1
}

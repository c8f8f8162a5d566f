package prediction

import (
	"time"

	"github.com/mrcode/loop-engine/internal/models"
)

// groupingSlack widens the grouping interval so a bin of exactly that
// width still collects its oldest change
const groupingSlack = 1.01

// Discrepancy is an observed glucose change the carb model did not explain
type Discrepancy struct {
	Start time.Time
	End   time.Time
	Value float64 // mg/dL
}

// Retrospective corrects the prediction for the recent discrepancy between
// observed counteraction and modeled carb absorption
type Retrospective struct {
	Recency        time.Duration // Discrepancies ending earlier than now minus this are stale
	Grouping       time.Duration // Width of the summed bin
	EffectDuration time.Duration // Decay horizon of the correction
	Delta          time.Duration // Grid step
}

// NewRetrospective creates a corrector from the engine settings
func NewRetrospective(s models.Settings) *Retrospective {
	return &Retrospective{
		Recency:        s.RecencyInterval,
		Grouping:       s.RetrospectiveGroupingInterval,
		EffectDuration: s.RetrospectiveEffectDuration,
		Delta:          s.Delta,
	}
}

// Discrepancies subtracts the carb effect change over each velocity
// interval from the observed change
func Discrepancies(counteraction []models.Velocity, carbEffects []models.EffectPoint) []Discrepancy {
	out := make([]Discrepancy, 0, len(counteraction))
	for _, v := range counteraction {
		start, _ := models.ValueAt(carbEffects, v.Start)
		end, _ := models.ValueAt(carbEffects, v.End)
		out = append(out, Discrepancy{
			Start: v.Start,
			End:   v.End,
			Value: v.EffectChange() - (end - start),
		})
	}
	return out
}

// Summed returns the newest discrepancy combined with every older one that
// ended within the grouping interval of it
func (r *Retrospective) Summed(discrepancies []Discrepancy) (Discrepancy, bool) {
	if len(discrepancies) == 0 {
		return Discrepancy{}, false
	}

	grouping := time.Duration(float64(r.Grouping) * groupingSlack)
	newest := discrepancies[len(discrepancies)-1]
	sum := newest
	for i := len(discrepancies) - 2; i >= 0; i-- {
		d := discrepancies[i]
		if newest.End.After(d.End.Add(grouping)) {
			break
		}
		sum.Value += d.Value
		if d.Start.Before(sum.Start) {
			sum.Start = d.Start
		}
	}
	return sum, true
}

// Effect returns the decaying correction starting at glucose, or nil when
// there is no recent discrepancy
func (r *Retrospective) Effect(glucose models.GlucoseSample, counteraction []models.Velocity, carbEffects []models.EffectPoint, now time.Time) []models.EffectPoint {
	sum, ok := r.Summed(Discrepancies(counteraction, carbEffects))
	if !ok || sum.End.Before(now.Add(-r.Recency)) {
		return nil
	}

	span := max(sum.End.Sub(sum.Start), r.Delta)
	if span <= 0 {
		return nil
	}
	velocity := sum.Value / span.Minutes()
	return DecayEffect(glucose, velocity, r.EffectDuration, r.Delta)
}

// DecayEffect projects a glucose effect starting at glucose whose rate
// (mg/dL per minute) decays linearly to zero over duration
func DecayEffect(glucose models.GlucoseSample, rate float64, duration, delta time.Duration) []models.EffectPoint {
	if delta <= 0 {
		return nil
	}

	start := models.FloorTime(glucose.Time, delta)
	end := models.CeilTime(start.Add(duration), delta)
	points := []models.EffectPoint{{Time: start, Value: glucose.Value}}
	if duration <= delta {
		return points
	}

	// An off-grid start gets one more step, a plateau at the end
	last := end
	if start.Equal(glucose.Time) {
		last = end.Add(-delta)
	}

	decayStart := start.Add(delta)
	slope := -rate / (duration - delta).Minutes()
	value := glucose.Value
	for t := decayStart; !t.After(last); t = t.Add(delta) {
		current := rate + slope*t.Sub(decayStart).Minutes()
		if rate > 0 {
			current = max(0, current)
		} else {
			current = min(0, current)
		}
		value += current * delta.Minutes()
		points = append(points, models.EffectPoint{Time: t, Value: value})
	}
	return points
}

package insulin

import (
	"math"
	"time"

	"github.com/mrcode/loop-engine/internal/models"
	"github.com/mrcode/loop-engine/internal/schedule"
)

// momentaryFactor decides when a dose is short enough to be treated as instantaneous
const momentaryFactor = 1.05

// Projector projects a dose timeline through an activity model
type Projector struct {
	Model Model
	Delay time.Duration // Absorption lag before the curve starts
	Delta time.Duration // Grid step
}

// NewProjector creates a projector with the given model and timing
func NewProjector(model Model, delay, delta time.Duration) *Projector {
	return &Projector{Model: model, Delay: delay, Delta: delta}
}

// EffectDuration returns how long after delivery a dose still matters
func (p *Projector) EffectDuration() time.Duration {
	return p.Model.Duration() + p.Delay
}

// Window bounds a projection. Zero times mean "derive from the doses".
type Window struct {
	Start time.Time
	End   time.Time
}

// OnBoard returns the insulin-on-board series for doses
func (p *Projector) OnBoard(doses []models.Dose, w Window) []models.EffectPoint {
	start, end, ok := p.window(doses, w)
	if !ok {
		return nil
	}

	var points []models.EffectPoint
	for t := start; !t.After(end); t = t.Add(p.Delta) {
		var value float64
		for _, d := range doses {
			value += NetUnits(d) * p.remaining(d, t)
		}
		points = append(points, models.EffectPoint{Time: t, Value: value})
	}
	return points
}

// GlucoseEffects returns the cumulative glucose effect (mg/dL) of doses,
// using the sensitivity in effect at each dose's start
func (p *Projector) GlucoseEffects(doses []models.Dose, sensitivity *schedule.Schedule[float64], w Window) []models.EffectPoint {
	start, end, ok := p.window(doses, w)
	if !ok {
		return nil
	}

	isf := make([]float64, len(doses))
	for i, d := range doses {
		isf[i] = sensitivity.ValueAt(d.Start)
	}

	var points []models.EffectPoint
	for t := start; !t.After(end); t = t.Add(p.Delta) {
		var value float64
		for i, d := range doses {
			value += -isf[i] * NetUnits(d) * p.activated(d, t)
		}
		points = append(points, models.EffectPoint{Time: t, Value: value})
	}
	return points
}

// remaining is the fraction of d's net units still on board at t
func (p *Projector) remaining(d models.Dose, t time.Time) float64 {
	elapsed := t.Sub(d.Start)
	if elapsed < 0 {
		return 0
	}
	if p.isMomentary(d) {
		return p.Model.PercentRemaining(elapsed - p.Delay)
	}
	return p.continuous(d, elapsed, p.Model.PercentRemaining)
}

// activated is the fraction of d's net units that has acted by t
func (p *Projector) activated(d models.Dose, t time.Time) float64 {
	elapsed := t.Sub(d.Start)
	if elapsed < 0 {
		return 0
	}
	activated := func(e time.Duration) float64 { return PercentActivated(p.Model, e) }
	if p.isMomentary(d) {
		return activated(elapsed - p.Delay)
	}
	return p.continuous(d, elapsed, activated)
}

func (p *Projector) isMomentary(d models.Dose) bool {
	return float64(d.Duration()) <= momentaryFactor*float64(p.Delta)
}

// continuous treats a long dose as a train of grid-step boluses, each
// weighted by its share of the dose duration, and sums curve over them
func (p *Projector) continuous(d models.Dose, elapsed time.Duration, curve func(time.Duration) float64) float64 {
	duration := d.Duration()
	limit := min(floorTo(elapsed+p.Delay, p.Delta), duration)

	var total float64
	for offset := time.Duration(0); offset <= limit; offset += p.Delta {
		segment := 1.0
		if duration > 0 {
			segment = float64(max(0, min(offset+p.Delta, duration)-offset)) / float64(duration)
		}
		total += segment * curve(elapsed-p.Delay-offset)
	}
	return total
}

// window derives the simulation range from the doses and clamps it to w
func (p *Projector) window(doses []models.Dose, w Window) (time.Time, time.Time, bool) {
	if p.Delta <= 0 {
		return time.Time{}, time.Time{}, false
	}

	var start, end time.Time
	for i, d := range doses {
		if i == 0 || d.Start.Before(start) {
			start = d.Start
		}
		if i == 0 || d.End.After(end) {
			end = d.End
		}
	}
	if len(doses) > 0 {
		start = start.Add(-p.Model.Duration())
		end = end.Add(p.EffectDuration())
	}

	if !w.Start.IsZero() && (start.IsZero() || w.Start.After(start)) {
		start = w.Start
	}
	if !w.End.IsZero() && (end.IsZero() || w.End.Before(end)) {
		end = w.End
	}
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, false
	}

	start = models.FloorTime(start, p.Delta)
	end = models.CeilTime(end, p.Delta)
	if end.Before(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func floorTo(d, step time.Duration) time.Duration {
	return time.Duration(math.Floor(float64(d)/float64(step))) * step
}

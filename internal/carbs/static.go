package carbs

import (
	"time"

	"github.com/mrcode/loop-engine/internal/models"
	"github.com/mrcode/loop-engine/internal/schedule"
)

// Absorbed returns the grams of c absorbed by t according to the model alone
func (e *Engine) Absorbed(c models.CarbEntry, t time.Time) float64 {
	elapsed := t.Sub(c.Start)
	if elapsed < 0 {
		return 0
	}
	return c.Grams * ParabolicPercentAbsorbed(elapsed-e.Delay, e.absorptionTime(c))
}

// Unabsorbed returns the carbs of c still on board at t according to the model alone
func (e *Engine) Unabsorbed(c models.CarbEntry, t time.Time) float64 {
	if t.Before(c.Start) {
		return 0
	}
	return c.Grams - e.Absorbed(c, t)
}

// OnBoard returns the static carbs-on-board series
func (e *Engine) OnBoard(entries []models.CarbEntry, w Window) []models.EffectPoint {
	times := e.grid(entries, e.absorptionTime, w)
	points := make([]models.EffectPoint, 0, len(times))
	for _, t := range times {
		var value float64
		for _, c := range entries {
			value += e.Unabsorbed(c, t)
		}
		points = append(points, models.EffectPoint{Time: t, Value: value})
	}
	return points
}

// GlucoseEffects returns the static carb glucose effect series (mg/dL)
func (e *Engine) GlucoseEffects(entries []models.CarbEntry, isf, carbRatio *schedule.Schedule[float64], w Window) []models.EffectPoint {
	csf := make([]float64, len(entries))
	for i, c := range entries {
		csf[i] = Sensitivity(isf, carbRatio, c.Start)
	}

	times := e.grid(entries, e.absorptionTime, w)
	points := make([]models.EffectPoint, 0, len(times))
	for _, t := range times {
		var value float64
		for i, c := range entries {
			value += csf[i] * e.Absorbed(c, t)
		}
		points = append(points, models.EffectPoint{Time: t, Value: value})
	}
	return points
}

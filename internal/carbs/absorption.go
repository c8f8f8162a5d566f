// Package carbs projects carbohydrate entries into carbs-on-board and
// glucose effect series, either from the absorption model alone or
// informed by observed glucose counteraction.
package carbs

import (
	"time"

	"github.com/mrcode/loop-engine/internal/models"
	"github.com/mrcode/loop-engine/internal/schedule"
)

// ParabolicPercentAbsorbed is the absorption curve of the static model: a
// quadratic rise to half way, mirrored down to full absorption
func ParabolicPercentAbsorbed(elapsed, absorptionTime time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	if absorptionTime <= 0 {
		return 1
	}
	t := elapsed.Minutes()
	T := absorptionTime.Minutes()

	switch {
	case t <= T/2:
		return 2 * t * t / (T * T)
	case t < T:
		return -1 + 4/T*(t-t*t/(2*T))
	default:
		return 1
	}
}

// LinearPercentAbsorbed absorbs at a constant rate over absorptionTime
func LinearPercentAbsorbed(elapsed, absorptionTime time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	if absorptionTime <= 0 || elapsed >= absorptionTime {
		return 1
	}
	return float64(elapsed) / float64(absorptionTime)
}

// Engine computes carb absorption on a fixed grid
type Engine struct {
	Delay                 time.Duration // Lag before absorption starts
	Delta                 time.Duration // Grid step
	DefaultAbsorptionTime time.Duration // Used for entries without their own
	AbsorptionTimeOverrun float64       // Stretch applied to absorption time in dynamic mode
}

// NewEngine creates an engine from the engine settings
func NewEngine(s models.Settings) *Engine {
	return &Engine{
		Delay:                 s.CarbDelay,
		Delta:                 s.Delta,
		DefaultAbsorptionTime: s.DefaultAbsorptionTime(),
		AbsorptionTimeOverrun: s.AbsorptionTimeOverrun,
	}
}

// Window bounds a projection. Zero times mean "derive from the entries".
type Window struct {
	Start time.Time
	End   time.Time
}

// Sensitivity returns the carb sensitivity factor (mg/dL per gram) at t
func Sensitivity(isf, carbRatio *schedule.Schedule[float64], t time.Time) float64 {
	cr := carbRatio.ValueAt(t)
	if cr <= 0 {
		return 0
	}
	return isf.ValueAt(t) / cr
}

func (e *Engine) absorptionTime(c models.CarbEntry) time.Duration {
	return c.Absorption(e.DefaultAbsorptionTime)
}

func (e *Engine) maxAbsorptionTime(c models.CarbEntry) time.Duration {
	overrun := e.AbsorptionTimeOverrun
	if overrun <= 0 {
		overrun = 1
	}
	return time.Duration(float64(e.absorptionTime(c)) * overrun)
}

// grid returns the timestamps of a projection of entries, each absorbing
// for at most span(entry)
func (e *Engine) grid(entries []models.CarbEntry, span func(models.CarbEntry) time.Duration, w Window) []time.Time {
	if e.Delta <= 0 {
		return nil
	}

	var start, end time.Time
	for i, c := range entries {
		if i == 0 || c.Start.Before(start) {
			start = c.Start
		}
		if last := c.Start.Add(span(c) + e.Delay); i == 0 || last.After(end) {
			end = last
		}
	}

	if !w.Start.IsZero() && (start.IsZero() || w.Start.After(start)) {
		start = w.Start
	}
	if !w.End.IsZero() && (end.IsZero() || w.End.Before(end)) {
		end = w.End
	}
	if start.IsZero() || end.IsZero() {
		return nil
	}

	var times []time.Time
	for t := models.FloorTime(start, e.Delta); !t.After(models.CeilTime(end, e.Delta)); t = t.Add(e.Delta) {
		times = append(times, t)
	}
	return times
}

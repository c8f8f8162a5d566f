package carbs

import (
	"math"
	"time"

	"github.com/mrcode/loop-engine/internal/models"
	"github.com/mrcode/loop-engine/internal/schedule"
)

// epsilon is the tolerance for treating an entry's effect as fully observed
const epsilon = float64(math.SmallestNonzeroFloat32) + 1.1920929e-07

// Segment is a slice of observed absorption
type Segment struct {
	Start time.Time
	End   time.Time
	Grams float64
}

// Absorption summarizes what was observed of an entry and what is left
type Absorption struct {
	Total     float64 // Grams entered
	Observed  float64 // Grams attributed from counteraction
	Clamped   float64 // Observed, raised to the minimum model and capped at Total
	Remaining float64 // Total - Clamped

	TimeToAbsorbObserved   time.Duration
	EstimatedTimeRemaining time.Duration

	// Timeline holds the observed slices until the entry was fully
	// observed. It is nil when observation fell behind the minimum
	// absorption rate, in which case absorption is extrapolated, and empty
	// when observation kept pace but nothing was attributed yet.
	Timeline []Segment
	// ObservationEnd is where the timeline stops and the remainder is
	// projected. Zero when Timeline is nil.
	ObservationEnd time.Time
	// Completed is when the full effect had been observed
	Completed *time.Time
}

// Status is a carb entry with its dynamic absorption
type Status struct {
	Entry       models.CarbEntry
	Sensitivity float64 // mg/dL per gram
	MaxTime     time.Duration
	Absorption  *Absorption // nil without observations
}

type builder struct {
	entry         models.CarbEntry
	csf           float64
	maxTime       time.Duration
	minRate       float64 // Grams per minute
	totalEffect   float64 // mg/dL
	observed      float64 // mg/dL
	timeline      []Segment
	completedDate *time.Time
}

func (b *builder) remainingEffect() float64 {
	return max(0, b.totalEffect-b.observed)
}

// effectRate is the minimum absorption rate in mg/dL per minute
func (b *builder) effectRate() float64 {
	return b.csf * b.minRate
}

func (b *builder) add(effect float64, start, end time.Time) {
	if start.Before(b.entry.Start) {
		return
	}
	b.observed += effect
	if b.completedDate != nil {
		return
	}
	b.timeline = append(b.timeline, Segment{Start: start, End: end, Grams: effect / b.csf})
	if b.observed+epsilon >= b.totalEffect {
		end := end
		b.completedDate = &end
	}
}

// MapAbsorption attributes observed counteraction to the entries that were
// absorbing at the time. Each velocity's effect is split across active
// entries in proportion to their minimum effect rates, so the grams credited
// follow the minimum absorption rates.
func (e *Engine) MapAbsorption(entries []models.CarbEntry, velocities []models.Velocity, isf, carbRatio *schedule.Schedule[float64]) []Status {
	builders := make([]*builder, len(entries))
	for i, c := range entries {
		maxTime := e.maxAbsorptionTime(c)
		csf := Sensitivity(isf, carbRatio, c.Start)
		b := &builder{entry: c, csf: csf, maxTime: maxTime, totalEffect: c.Grams * csf}
		if maxTime > 0 {
			b.minRate = c.Grams / maxTime.Minutes()
		}
		builders[i] = b
	}

	var lastEffect time.Time
	for _, v := range velocities {
		if v.End.After(lastEffect) {
			lastEffect = v.End
		}

		var active []*builder
		var totalRate float64
		for _, b := range builders {
			if b.csf <= 0 || b.minRate <= 0 || b.completedDate != nil {
				continue
			}
			if v.Start.Before(b.entry.Start) || !v.Start.Before(b.entry.Start.Add(b.maxTime+e.Delay)) {
				continue
			}
			active = append(active, b)
			totalRate += b.effectRate()
		}
		if len(active) == 0 {
			continue
		}

		effect := max(0, v.EffectChange())
		for _, b := range active {
			rate := b.effectRate()
			share := min(b.remainingEffect(), rate/totalRate*effect)
			totalRate -= rate
			effect -= share
			b.add(share, v.Start, v.End)
		}
		if effect > epsilon {
			active[len(active)-1].add(effect, v.Start, v.End)
		}
	}

	statuses := make([]Status, len(builders))
	for i, b := range builders {
		statuses[i] = Status{Entry: b.entry, Sensitivity: b.csf, MaxTime: b.maxTime}
		if len(velocities) == 0 || b.csf <= 0 {
			continue
		}
		statuses[i].Absorption = e.summarize(b, lastEffect)
	}
	return statuses
}

func (e *Engine) summarize(b *builder, lastEffect time.Time) *Absorption {
	total := b.entry.Grams
	observed := b.observed / b.csf

	elapsed := lastEffect.Sub(b.entry.Start) - e.Delay
	minPredicted := total * LinearPercentAbsorbed(elapsed, b.maxTime)
	clamped := min(total, max(observed, minPredicted))
	remaining := total - clamped

	toAbsorbObserved := min(max(elapsed, 0), b.maxTime)
	estimated := max(0, b.maxTime-toAbsorbObserved)
	if b.minRate > 0 {
		estimated = min(estimated, time.Duration(remaining/b.minRate*float64(time.Minute)))
	}

	a := &Absorption{
		Total:                  total,
		Observed:               observed,
		Clamped:                clamped,
		Remaining:              remaining,
		TimeToAbsorbObserved:   toAbsorbObserved,
		EstimatedTimeRemaining: estimated,
		Completed:              b.completedDate,
	}
	if observed >= minPredicted {
		a.Timeline = b.timeline
		if a.Timeline == nil {
			a.Timeline = []Segment{}
		}
		a.ObservationEnd = b.entry.Start.Add(e.Delay + toAbsorbObserved)
		if n := len(a.Timeline); n > 0 {
			a.ObservationEnd = a.Timeline[n-1].End
		}
	}
	return a
}

// DynamicAbsorbed returns the grams of s absorbed by t
func (e *Engine) DynamicAbsorbed(s Status, t time.Time) float64 {
	a := s.Absorption
	if a == nil || t.Before(s.Entry.Start.Add(-e.Delta)) {
		return e.Absorbed(s.Entry, t)
	}

	if a.Timeline == nil {
		// Observation fell behind the minimum rate: absorb linearly over the estimated duration
		duration := a.TimeToAbsorbObserved + a.EstimatedTimeRemaining
		return a.Total * LinearPercentAbsorbed(t.Sub(s.Entry.Start)-e.Delay, duration)
	}

	if t.After(a.ObservationEnd) {
		// Past the observations the remainder absorbs linearly
		unabsorbed := a.Remaining * (1 - LinearPercentAbsorbed(t.Sub(a.ObservationEnd), a.EstimatedTimeRemaining))
		return a.Total - unabsorbed
	}

	var sum float64
	for _, seg := range a.Timeline {
		if !seg.Start.Before(t) {
			break
		}
		span := seg.End.Sub(seg.Start)
		fraction := 1.0
		if span > 0 && t.Before(seg.End) {
			fraction = float64(t.Sub(seg.Start)) / float64(span)
		}
		sum += seg.Grams * fraction
	}
	return min(sum, a.Total)
}

// DynamicUnabsorbed returns the carbs of s still on board at t
func (e *Engine) DynamicUnabsorbed(s Status, t time.Time) float64 {
	if t.Before(s.Entry.Start) {
		return 0
	}
	return max(0, s.Entry.Grams-e.DynamicAbsorbed(s, t))
}

func (e *Engine) dynamicSpan(c models.CarbEntry) time.Duration {
	return e.maxAbsorptionTime(c)
}

// DynamicOnBoard returns the carbs-on-board series informed by observation
func (e *Engine) DynamicOnBoard(statuses []Status, w Window) []models.EffectPoint {
	times := e.grid(entriesOf(statuses), e.dynamicSpan, w)
	points := make([]models.EffectPoint, 0, len(times))
	for _, t := range times {
		var value float64
		for _, s := range statuses {
			value += e.DynamicUnabsorbed(s, t)
		}
		points = append(points, models.EffectPoint{Time: t, Value: value})
	}
	return points
}

// DynamicGlucoseEffects returns the carb glucose effect series informed by observation
func (e *Engine) DynamicGlucoseEffects(statuses []Status, w Window) []models.EffectPoint {
	times := e.grid(entriesOf(statuses), e.dynamicSpan, w)
	points := make([]models.EffectPoint, 0, len(times))
	for _, t := range times {
		var value float64
		for _, s := range statuses {
			value += s.Sensitivity * e.DynamicAbsorbed(s, t)
		}
		points = append(points, models.EffectPoint{Time: t, Value: value})
	}
	return points
}

func entriesOf(statuses []Status) []models.CarbEntry {
	entries := make([]models.CarbEntry, len(statuses))
	for i, s := range statuses {
		entries[i] = s.Entry
	}
	return entries
}

// Package prediction combines glucose effects into a glucose forecast and
// derives the observed effects (counteraction, momentum and retrospective
// correction) that feed it
package prediction

import (
	"slices"
	"time"

	"github.com/mrcode/loop-engine/internal/models"
)

// Predict forecasts glucose from start by adding the change of every effect
// series at each timestamp after start. Momentum, when given, is blended in
// from full weight at start to none at its last point. The forecast is
// padded with its final value up to start plus horizon.
func Predict(start models.GlucoseSample, horizon time.Duration, momentum []models.EffectPoint, effects ...[]models.EffectPoint) []models.PredictedPoint {
	changes := newChangeSet()

	for _, series := range effects {
		var previous float64
		for _, e := range series {
			changes.add(e.Time, e.Value-previous)
			previous = e.Value
		}
	}

	if len(momentum) > 2 {
		blendMomentum(changes, start.Time, momentum)
	}

	predicted := make([]models.PredictedPoint, 0, len(changes.values)+2)
	predicted = append(predicted, models.PredictedPoint{Time: start.Time, Value: start.Value})
	value := start.Value
	for _, t := range changes.sortedAfter(start.Time) {
		value += changes.get(t)
		predicted = append(predicted, models.PredictedPoint{Time: t, Value: value})
	}

	if end := start.Time.Add(horizon); predicted[len(predicted)-1].Time.Before(end) {
		predicted = append(predicted, models.PredictedPoint{Time: end, Value: value})
	}
	return predicted
}

// changeSet accumulates glucose changes per instant. Instants are keyed by
// Unix nanoseconds so equal instants in different locations share a key.
type changeSet struct {
	values map[int64]float64
	times  map[int64]time.Time
}

func newChangeSet() *changeSet {
	return &changeSet{values: make(map[int64]float64), times: make(map[int64]time.Time)}
}

func (c *changeSet) add(t time.Time, v float64) {
	c.set(t, c.get(t)+v)
}

func (c *changeSet) get(t time.Time) float64 {
	return c.values[t.UnixNano()]
}

func (c *changeSet) set(t time.Time, v float64) {
	k := t.UnixNano()
	c.values[k] = v
	if _, ok := c.times[k]; !ok {
		c.times[k] = t
	}
}

func (c *changeSet) sortedAfter(start time.Time) []time.Time {
	out := make([]time.Time, 0, len(c.times))
	for _, t := range c.times {
		if t.After(start) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}

// blendMomentum mixes momentum changes into changes. The momentum series
// must start on or before the starting glucose.
func blendMomentum(changes *changeSet, startTime time.Time, momentum []models.EffectPoint) {
	blendCount := float64(len(momentum) - 2)
	step := momentum[1].Time.Sub(momentum[0].Time)
	if step <= 0 {
		return
	}
	blendSlope := 1 / blendCount
	blendOffset := startTime.Sub(momentum[0].Time).Seconds() / step.Seconds() * blendSlope

	previous := momentum[0].Value
	for i, m := range momentum {
		split := min(1, max(0, float64(len(momentum)-i)/blendCount-blendSlope+blendOffset))
		change := m.Value - previous
		changes.set(m.Time, (1-split)*changes.get(m.Time)+split*change)
		previous = m.Value
	}
}

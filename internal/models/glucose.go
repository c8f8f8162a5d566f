// Package models contains data structures used throughout the engine
package models

import "time"

// GlucoseSample represents a single glucose reading
type GlucoseSample struct {
	Time          time.Time `json:"time" yaml:"time"`
	Value         float64   `json:"value" yaml:"value"`                                       // mg/dL
	IsCalibration bool      `json:"isCalibration,omitempty" yaml:"isCalibration,omitempty"` // Fingerstick / display-only entry
	Provenance    string    `json:"provenance,omitempty" yaml:"provenance,omitempty"`       // Source device identifier
}

// EffectPoint is one value of a glucose effect (mg/dL), insulin-on-board (U)
// or carbs-on-board (g) series. Series are laid out on a fixed grid.
type EffectPoint struct {
	Time  time.Time `json:"time" yaml:"time"`
	Value float64   `json:"value" yaml:"value"`
}

// Velocity is an observed rate of glucose change over an interval
type Velocity struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
	Value float64   `json:"value" yaml:"value"` // mg/dL per minute
}

// Duration returns the length of the velocity interval
func (v Velocity) Duration() time.Duration {
	return v.End.Sub(v.Start)
}

// EffectChange returns the total glucose change implied by the velocity
func (v Velocity) EffectChange() float64 {
	return v.Value * v.Duration().Minutes()
}

// PredictedPoint represents a single predicted glucose value
type PredictedPoint struct {
	Time  time.Time `json:"time" yaml:"time"`
	Value float64   `json:"value" yaml:"value"` // mg/dL
}

// TargetRange is a correction band in mg/dL
type TargetRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Average returns the midpoint of the band
func (r TargetRange) Average() float64 {
	return (r.Min + r.Max) / 2
}

// LastValue returns the final value of a series, or 0 when the series is empty
func LastValue(points []EffectPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	return points[len(points)-1].Value
}

// ValueAt returns the value of the latest point at or before t
func ValueAt(points []EffectPoint, t time.Time) (float64, bool) {
	found := false
	var value float64
	for _, p := range points {
		if p.Time.After(t) {
			break
		}
		value = p.Value
		found = true
	}
	return value, found
}

// FloorTime rounds t down to the grid
func FloorTime(t time.Time, step time.Duration) time.Time {
	return t.Truncate(step)
}

// CeilTime rounds t up to the grid
func CeilTime(t time.Time, step time.Duration) time.Time {
	f := t.Truncate(step)
	if f.Equal(t) {
		return t
	}
	return f.Add(step)
}


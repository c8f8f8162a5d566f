package models

import (
	"fmt"
	"time"
)

// Insulin model kinds
const (
	ModelWalsh       = "walsh"
	ModelExponential = "exponential"
)

// ModelParams selects and parameterizes the insulin activity curve
type ModelParams struct {
	Kind          string  `json:"kind" yaml:"kind"`                                       // "walsh" or "exponential"
	DurationHours float64 `json:"durationHours,omitempty" yaml:"durationHours,omitempty"` // Walsh
	Duration      float64 `json:"duration,omitempty" yaml:"duration,omitempty"`           // Exponential, minutes
	Peak          float64 `json:"peak,omitempty" yaml:"peak,omitempty"`                   // Exponential, minutes
}

// ScheduleDoc is the wire form of a repeating daily schedule. Start and end
// times are clock strings ("06:30" or "06:30:00"). EndTimes may be omitted,
// in which case each entry runs until the next one starts.
type ScheduleDoc struct {
	StartTimes []string  `json:"startTimes" yaml:"startTimes"`
	EndTimes   []string  `json:"endTimes,omitempty" yaml:"endTimes,omitempty"`
	Values     []float64 `json:"values" yaml:"values"`
}

// Len returns the number of entries
func (d ScheduleDoc) Len() int {
	return len(d.StartTimes)
}

// RangeScheduleDoc is the wire form of a correction range schedule
type RangeScheduleDoc struct {
	StartTimes []string  `json:"startTimes" yaml:"startTimes"`
	EndTimes   []string  `json:"endTimes,omitempty" yaml:"endTimes,omitempty"`
	MinValues  []float64 `json:"minValues" yaml:"minValues"`
	MaxValues  []float64 `json:"maxValues" yaml:"maxValues"`
}

// Len returns the number of entries
func (d RangeScheduleDoc) Len() int {
	return len(d.StartTimes)
}

// Request is the input document of one engine invocation
type Request struct {
	Now      time.Time `json:"now" yaml:"now"`
	TimeZone string    `json:"timeZone,omitempty" yaml:"timeZone,omitempty"` // IANA name, schedules are interpreted in it

	Glucose []GlucoseSample `json:"glucose" yaml:"glucose"`
	Doses   []Dose          `json:"doses" yaml:"doses"`
	Carbs   []CarbEntry     `json:"carbs" yaml:"carbs"`

	BasalSchedule       ScheduleDoc      `json:"basalSchedule" yaml:"basalSchedule"`
	SensitivitySchedule ScheduleDoc      `json:"sensitivitySchedule" yaml:"sensitivitySchedule"`
	CarbRatioSchedule   ScheduleDoc      `json:"carbRatioSchedule" yaml:"carbRatioSchedule"`
	TargetSchedule      RangeScheduleDoc `json:"targetSchedule" yaml:"targetSchedule"`

	Model    ModelParams `json:"model" yaml:"model"`
	Settings *Tunables   `json:"settings,omitempty" yaml:"settings,omitempty"`

	LastTempBasal *TempBasal `json:"lastTempBasal,omitempty" yaml:"lastTempBasal,omitempty"`
	PendingBolus  float64    `json:"pendingBolus,omitempty" yaml:"pendingBolus,omitempty"` // Units not yet delivered

	// Precomputed effects are used verbatim instead of being recomputed
	Precomputed *Effects `json:"precomputed,omitempty" yaml:"precomputed,omitempty"`
	// CacheKey names this request's effects in the host effect cache
	CacheKey string `json:"cacheKey,omitempty" yaml:"cacheKey,omitempty"`
}

// ShapeError reports parallel arrays whose lengths disagree
type ShapeError struct {
	Field string
	Want  int
	Got   int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape mismatch in %s: want %d entries, got %d", e.Field, e.Want, e.Got)
}

// Validate checks that every parallel array in the request is consistent
// and that dose kinds are known. It does not judge plausibility.
func (r *Request) Validate() error {
	docs := []struct {
		name string
		doc  ScheduleDoc
	}{
		{"basalSchedule", r.BasalSchedule},
		{"sensitivitySchedule", r.SensitivitySchedule},
		{"carbRatioSchedule", r.CarbRatioSchedule},
	}
	for _, d := range docs {
		if err := checkShape(d.name, d.doc.StartTimes, d.doc.EndTimes, len(d.doc.Values)); err != nil {
			return err
		}
	}

	t := r.TargetSchedule
	if err := checkShape("targetSchedule", t.StartTimes, t.EndTimes, len(t.MinValues)); err != nil {
		return err
	}
	if len(t.MaxValues) != len(t.MinValues) {
		return &ShapeError{Field: "targetSchedule.maxValues", Want: len(t.MinValues), Got: len(t.MaxValues)}
	}

	for i, d := range r.Doses {
		if !d.Kind.Valid() {
			return fmt.Errorf("dose %d: unknown kind %q", i, string(d.Kind))
		}
		if d.End.Before(d.Start) {
			return fmt.Errorf("dose %d: end %s before start %s", i, d.End.Format(time.RFC3339), d.Start.Format(time.RFC3339))
		}
	}
	for i, c := range r.Carbs {
		if c.Grams < 0 {
			return fmt.Errorf("carb entry %d: negative grams", i)
		}
	}
	return nil
}

func checkShape(name string, starts, ends []string, values int) error {
	if values != len(starts) {
		return &ShapeError{Field: name + ".values", Want: len(starts), Got: values}
	}
	if len(ends) != 0 && len(ends) != len(starts) {
		return &ShapeError{Field: name + ".endTimes", Want: len(starts), Got: len(ends)}
	}
	return nil
}

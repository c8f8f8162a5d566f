// Package models contains data structures used throughout the engine
package models

import "time"

// Effects bundles every effect series computed during one invocation.
// The same structure is accepted as a precomputed shortcut.
type Effects struct {
	Momentum      []EffectPoint `json:"momentum,omitempty" yaml:"momentum,omitempty"`
	Insulin       []EffectPoint `json:"insulin,omitempty" yaml:"insulin,omitempty"`
	Counteraction []Velocity    `json:"counteraction,omitempty" yaml:"counteraction,omitempty"`
	Carbs         []EffectPoint `json:"carbs,omitempty" yaml:"carbs,omitempty"`
	Retrospective []EffectPoint `json:"retrospective,omitempty" yaml:"retrospective,omitempty"`
}

// IsEmpty returns true if no series is present
func (e *Effects) IsEmpty() bool {
	if e == nil {
		return true
	}
	return len(e.Momentum) == 0 && len(e.Insulin) == 0 && len(e.Counteraction) == 0 &&
		len(e.Carbs) == 0 && len(e.Retrospective) == 0
}

// Present returns the names of the non-empty series
func (e *Effects) Present() []string {
	if e == nil {
		return nil
	}
	var names []string
	for _, s := range []struct {
		name string
		n    int
	}{
		{"momentum", len(e.Momentum)},
		{"insulin", len(e.Insulin)},
		{"counteraction", len(e.Counteraction)},
		{"carbs", len(e.Carbs)},
		{"retrospective", len(e.Retrospective)},
	} {
		if s.n > 0 {
			names = append(names, s.name)
		}
	}
	return names
}

// Merged returns a copy of e in which every empty series is taken from other
func (e *Effects) Merged(other *Effects) *Effects {
	var out Effects
	if e != nil {
		out = *e
	}
	if other == nil {
		return &out
	}
	if len(out.Momentum) == 0 {
		out.Momentum = other.Momentum
	}
	if len(out.Insulin) == 0 {
		out.Insulin = other.Insulin
	}
	if len(out.Counteraction) == 0 {
		out.Counteraction = other.Counteraction
	}
	if len(out.Carbs) == 0 {
		out.Carbs = other.Carbs
	}
	if len(out.Retrospective) == 0 {
		out.Retrospective = other.Retrospective
	}
	return &out
}

// NoticeKind identifies why a bolus recommendation carries a warning
type NoticeKind string

// Notice kinds
const (
	NoticeBelowSuspendThreshold NoticeKind = "belowSuspendThreshold"
	NoticePredictedBelowTarget  NoticeKind = "predictedBelowTarget"
)

// Notice is a warning attached to a bolus recommendation
type Notice struct {
	Kind  NoticeKind `json:"kind" yaml:"kind"`
	Value float64    `json:"value" yaml:"value"` // mg/dL of the offending prediction
	Time  time.Time  `json:"time" yaml:"time"`
}

// TempBasalRecommendation is a rate to set for a duration.
// A zero rate with zero duration cancels the running temp basal.
type TempBasalRecommendation struct {
	Rate     float64 `json:"rate" yaml:"rate"`         // U/hr
	Duration float64 `json:"duration" yaml:"duration"` // Minutes
}

// CancelTempBasal returns the recommendation that stops a running temp basal
func CancelTempBasal() *TempBasalRecommendation {
	return &TempBasalRecommendation{}
}

// IsCancel returns true if the recommendation cancels the current temp basal
func (r *TempBasalRecommendation) IsCancel() bool {
	return r != nil && r.Rate == 0 && r.Duration == 0
}

// BolusRecommendation is a suggested manual bolus
type BolusRecommendation struct {
	Units          float64 `json:"units" yaml:"units"`
	PendingInsulin float64 `json:"pendingInsulin" yaml:"pendingInsulin"`
	Notice         *Notice `json:"notice,omitempty" yaml:"notice,omitempty"`
}

// Result is the output of one engine invocation
type Result struct {
	RunID      string           `json:"runId,omitempty" yaml:"runId,omitempty"`
	Predicted  []PredictedPoint `json:"predictedGlucose" yaml:"predictedGlucose"`
	Effects    Effects          `json:"effects" yaml:"effects"`
	COB        []EffectPoint    `json:"carbsOnBoard" yaml:"carbsOnBoard"`
	CurrentCOB float64          `json:"currentCOB" yaml:"currentCOB"` // Grams
	IOB        []EffectPoint    `json:"insulinOnBoard" yaml:"insulinOnBoard"`
	CurrentIOB float64          `json:"currentIOB" yaml:"currentIOB"` // Units

	TempBasal *TempBasalRecommendation `json:"tempBasal,omitempty" yaml:"tempBasal,omitempty"`
	Bolus     *BolusRecommendation     `json:"bolus,omitempty" yaml:"bolus,omitempty"`

	CalculatedAt time.Time `json:"calculatedAt" yaml:"calculatedAt"`
}

// IsEmpty returns true for the result produced when input was rejected
func (r *Result) IsEmpty() bool {
	return r == nil || (len(r.Predicted) == 0 && r.TempBasal == nil && r.Bolus == nil)
}

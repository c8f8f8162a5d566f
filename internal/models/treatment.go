// Package models contains data structures used throughout the engine
package models

import "time"

// DoseKind identifies what a dose event represents
type DoseKind string

// Dose kinds
const (
	DoseBasal     DoseKind = "basal"
	DoseTempBasal DoseKind = "tempBasal"
	DoseBolus     DoseKind = "bolus"
	DoseSuspend   DoseKind = "suspend"
	DoseResume    DoseKind = "resume"
	DoseMeal      DoseKind = "meal"
)

// Valid reports whether k is one of the known dose kinds
func (k DoseKind) Valid() bool {
	switch k {
	case DoseBasal, DoseTempBasal, DoseBolus, DoseSuspend, DoseResume, DoseMeal:
		return true
	}
	return false
}

// IsBasalLike returns true for kinds delivered as a rate over time
func (k DoseKind) IsBasalLike() bool {
	switch k {
	case DoseBasal, DoseTempBasal:
		return true
	case DoseBolus, DoseSuspend, DoseResume, DoseMeal:
		return false
	}
	return false
}

// String implements fmt.Stringer
func (k DoseKind) String() string {
	if k == "" {
		return "unknown"
	}
	return string(k)
}

// Dose represents a single insulin delivery event
type Dose struct {
	Kind  DoseKind  `json:"kind" yaml:"kind"`
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
	Value float64   `json:"value" yaml:"value"` // U for bolus, U/hr for basal-like

	// ScheduledRate is the basal schedule rate in effect during the dose (U/hr).
	// It is filled in by basal annotation.
	ScheduledRate float64 `json:"scheduledBasalRate,omitempty" yaml:"scheduledBasalRate,omitempty"`

	// DeliveredUnits is set when the pump reported a different amount than was programmed
	DeliveredUnits *float64 `json:"deliveredUnits,omitempty" yaml:"deliveredUnits,omitempty"`
}

// Duration returns how long the dose lasted
func (d Dose) Duration() time.Duration {
	return d.End.Sub(d.Start)
}

// Hours returns the dose duration in hours
func (d Dose) Hours() float64 {
	return d.Duration().Hours()
}

// Units returns the total insulin delivered by the dose
func (d Dose) Units() float64 {
	switch d.Kind {
	case DoseBolus:
		if d.DeliveredUnits != nil {
			return *d.DeliveredUnits
		}
		return d.Value
	case DoseBasal, DoseTempBasal:
		return d.Value * d.Hours()
	case DoseSuspend, DoseResume, DoseMeal:
		return 0
	}
	return 0
}

// Trimmed returns a copy of the dose clipped to [start, end]
func (d Dose) Trimmed(start, end time.Time) Dose {
	out := d
	if start.After(out.Start) {
		out.Start = start
	}
	if end.Before(out.End) {
		out.End = end
	}
	if out.End.Before(out.Start) {
		out.End = out.Start
	}
	return out
}

// CarbEntry represents a carbohydrate intake
type CarbEntry struct {
	Start          time.Time `json:"start" yaml:"start"`
	Grams          float64   `json:"grams" yaml:"grams"`
	AbsorptionTime float64   `json:"absorptionTime,omitempty" yaml:"absorptionTime,omitempty"` // Minutes, 0 = use default
}

// Absorption returns the entry's absorption time or the fallback
func (c CarbEntry) Absorption(fallback time.Duration) time.Duration {
	if c.AbsorptionTime > 0 {
		return time.Duration(c.AbsorptionTime * float64(time.Minute))
	}
	return fallback
}

// TempBasal describes a temporary basal rate that is (or was) running
type TempBasal struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
	Rate  float64   `json:"rate" yaml:"rate"` // U/hr
}

// Package models contains data structures used throughout the engine
package models

import "time"

// Absorption speed presets, used to index DefaultAbsorptionTimes
const (
	AbsorptionFast = iota
	AbsorptionMedium
	AbsorptionSlow
)

// Settings contains the engine tunables
type Settings struct {
	// Glucose momentum
	MomentumWindow   time.Duration // History used for the regression (default 15 min)
	MomentumDuration time.Duration // How far momentum is projected (default 30 min)

	// Safety
	SuspendThreshold *float64 // mg/dL; nil falls back to the correction range minimum
	MaxBasalRate     float64  // U/hr
	MaxBolus         float64  // U

	// Retrospective correction
	RecencyInterval               time.Duration // Discrepancies older than this are ignored
	RetrospectiveGroupingInterval time.Duration // Width of a discrepancy bin
	RetrospectiveEffectDuration   time.Duration // Horizon of the decaying correction

	// Carbs
	DefaultAbsorptionTimes [3]time.Duration // Fast, medium, slow
	AbsorptionTimeOverrun  float64          // Multiplier on absorption time in dynamic mode
	CarbDelay              time.Duration

	// Insulin
	InsulinDelay time.Duration

	// Delivery
	RateIncrement        float64       // Smallest deliverable basal step (U/hr)
	BolusIncrement       float64       // Smallest deliverable bolus step (U)
	TempBasalDuration    time.Duration // Duration of recommended temp basals
	ContinuationInterval time.Duration // Keep a matching temp basal with more than this remaining

	// Grid
	Delta time.Duration

	// Feature switches
	DynamicCarbAbsorption   bool
	RetrospectiveCorrection bool
	ParallelEffects         bool
}

// DefaultSettings returns settings with default values
func DefaultSettings() Settings {
	return Settings{
		MomentumWindow:   15 * time.Minute,
		MomentumDuration: 30 * time.Minute,

		MaxBasalRate: 35,
		MaxBolus:     30,

		RecencyInterval:               15 * time.Minute,
		RetrospectiveGroupingInterval: 30 * time.Minute,
		RetrospectiveEffectDuration:   60 * time.Minute,

		DefaultAbsorptionTimes: [3]time.Duration{120 * time.Minute, 180 * time.Minute, 240 * time.Minute},
		AbsorptionTimeOverrun:  1.5,
		CarbDelay:              10 * time.Minute,

		InsulinDelay: 10 * time.Minute,

		RateIncrement:        0.05,
		BolusIncrement:       0.05,
		TempBasalDuration:    30 * time.Minute,
		ContinuationInterval: 11 * time.Minute,

		Delta: 5 * time.Minute,

		DynamicCarbAbsorption:   true,
		RetrospectiveCorrection: true,
		ParallelEffects:         false,
	}
}

// DefaultAbsorptionTime returns the medium absorption preset
func (s Settings) DefaultAbsorptionTime() time.Duration {
	return s.DefaultAbsorptionTimes[AbsorptionMedium]
}

// Tunables is the wire form of Settings. Every field is optional; times are in minutes.
type Tunables struct {
	MomentumWindow                *float64  `json:"momentumWindow,omitempty" yaml:"momentumWindow,omitempty"`
	MomentumDuration              *float64  `json:"momentumDuration,omitempty" yaml:"momentumDuration,omitempty"`
	SuspendThreshold              *float64  `json:"suspendThreshold,omitempty" yaml:"suspendThreshold,omitempty"`
	RecencyInterval               *float64  `json:"recencyInterval,omitempty" yaml:"recencyInterval,omitempty"`
	RetrospectiveGroupingInterval *float64  `json:"retrospectiveGroupingInterval,omitempty" yaml:"retrospectiveGroupingInterval,omitempty"`
	RetrospectiveEffectDuration   *float64  `json:"retrospectiveEffectDuration,omitempty" yaml:"retrospectiveEffectDuration,omitempty"`
	DefaultAbsorptionTimes        []float64 `json:"defaultAbsorptionTimes,omitempty" yaml:"defaultAbsorptionTimes,omitempty"`
	AbsorptionTimeOverrun         *float64  `json:"absorptionTimeOverrun,omitempty" yaml:"absorptionTimeOverrun,omitempty"`
	MaxBasalRate                  *float64  `json:"maxBasalRate,omitempty" yaml:"maxBasalRate,omitempty"`
	MaxBolus                      *float64  `json:"maxBolus,omitempty" yaml:"maxBolus,omitempty"`
	RateIncrement                 *float64  `json:"rateIncrement,omitempty" yaml:"rateIncrement,omitempty"`
	BolusIncrement                *float64  `json:"bolusIncrement,omitempty" yaml:"bolusIncrement,omitempty"`
	InsulinDelay                  *float64  `json:"insulinDelay,omitempty" yaml:"insulinDelay,omitempty"`
	CarbDelay                     *float64  `json:"carbDelay,omitempty" yaml:"carbDelay,omitempty"`
	TempBasalDuration             *float64  `json:"tempBasalDuration,omitempty" yaml:"tempBasalDuration,omitempty"`
	ContinuationInterval          *float64  `json:"continuationInterval,omitempty" yaml:"continuationInterval,omitempty"`
	DynamicCarbAbsorption         *bool     `json:"dynamicCarbAbsorption,omitempty" yaml:"dynamicCarbAbsorption,omitempty"`
	RetrospectiveCorrection       *bool     `json:"retrospectiveCorrection,omitempty" yaml:"retrospectiveCorrection,omitempty"`
}

// Apply returns a copy of s with every field set in t overridden
func (s Settings) Apply(t *Tunables) Settings {
	if t == nil {
		return s
	}
	setMinutes(&s.MomentumWindow, t.MomentumWindow)
	setMinutes(&s.MomentumDuration, t.MomentumDuration)
	setMinutes(&s.RecencyInterval, t.RecencyInterval)
	setMinutes(&s.RetrospectiveGroupingInterval, t.RetrospectiveGroupingInterval)
	setMinutes(&s.RetrospectiveEffectDuration, t.RetrospectiveEffectDuration)
	setMinutes(&s.InsulinDelay, t.InsulinDelay)
	setMinutes(&s.CarbDelay, t.CarbDelay)
	setMinutes(&s.TempBasalDuration, t.TempBasalDuration)
	setMinutes(&s.ContinuationInterval, t.ContinuationInterval)

	if t.SuspendThreshold != nil {
		v := *t.SuspendThreshold
		s.SuspendThreshold = &v
	}
	for i, m := range t.DefaultAbsorptionTimes {
		if i >= len(s.DefaultAbsorptionTimes) {
			break
		}
		s.DefaultAbsorptionTimes[i] = Minutes(m)
	}
	setFloat(&s.AbsorptionTimeOverrun, t.AbsorptionTimeOverrun)
	setFloat(&s.MaxBasalRate, t.MaxBasalRate)
	setFloat(&s.MaxBolus, t.MaxBolus)
	setFloat(&s.RateIncrement, t.RateIncrement)
	setFloat(&s.BolusIncrement, t.BolusIncrement)

	if t.DynamicCarbAbsorption != nil {
		s.DynamicCarbAbsorption = *t.DynamicCarbAbsorption
	}
	if t.RetrospectiveCorrection != nil {
		s.RetrospectiveCorrection = *t.RetrospectiveCorrection
	}
	return s
}

// Minutes converts fractional minutes to a time.Duration
func Minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func setMinutes(dst *time.Duration, src *float64) {
	if src != nil {
		*dst = Minutes(*src)
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

// Package dosing turns a glucose prediction into a temp basal or bolus
// recommendation
package dosing

import "github.com/mrcode/loop-engine/internal/models"

// Correction is the outcome of comparing a prediction with the correction
// range. It is one of Suspend, InRange, AboveRange or EntirelyBelowRange.
type Correction interface {
	// Units is the insulin needed to correct, negative when insulin should be withheld
	Units() float64
	// Kind names the variant for logs and output
	Kind() string

	correction()
}

// Suspend means a predicted value fell below the suspend threshold
type Suspend struct {
	Min models.PredictedPoint // The first offending prediction
}

// InRange means no correction is needed
type InRange struct{}

// AboveRange means the eventual glucose is above the correction range
type AboveRange struct {
	Min        models.PredictedPoint
	Correcting models.PredictedPoint // Prediction that gave the smallest correction
	MinTarget  float64
	Dose       float64 // U
}

// EntirelyBelowRange means both the minimum and eventual glucose are below the range
type EntirelyBelowRange struct {
	Min       models.PredictedPoint
	MinTarget float64
	Dose      float64 // U, not positive
}

func (Suspend) Units() float64              { return 0 }
func (InRange) Units() float64              { return 0 }
func (c AboveRange) Units() float64         { return c.Dose }
func (c EntirelyBelowRange) Units() float64 { return c.Dose }

func (Suspend) Kind() string            { return "suspend" }
func (InRange) Kind() string            { return "inRange" }
func (AboveRange) Kind() string         { return "aboveRange" }
func (EntirelyBelowRange) Kind() string { return "entirelyBelowRange" }

func (Suspend) correction()            {}
func (InRange) correction()            {}
func (AboveRange) correction()         {}
func (EntirelyBelowRange) correction() {}

// Package insulin models insulin activity: the activity curves, the
// canonical dose timeline and its projection into insulin-on-board and
// glucose effect series.
package insulin

import (
	"fmt"
	"math"
	"time"

	"github.com/mrcode/loop-engine/internal/models"
)

// Model describes how much of a dose is still active after a given time
type Model interface {
	// PercentRemaining returns the fraction of a dose that is still active
	// after elapsed time. It is 1 at or before zero and 0 at or after the
	// model's duration.
	PercentRemaining(elapsed time.Duration) float64
	// Duration returns the total duration of insulin action
	Duration() time.Duration
}

// PercentActivated returns the fraction of a dose that has already acted
func PercentActivated(m Model, elapsed time.Duration) float64 {
	return 1 - m.PercentRemaining(elapsed)
}

// FromParams builds a model from its wire description
func FromParams(p models.ModelParams) (Model, error) {
	switch p.Kind {
	case models.ModelWalsh:
		return NewWalsh(time.Duration(p.DurationHours * float64(time.Hour)))
	case models.ModelExponential:
		return NewExponential(models.Minutes(p.Duration), models.Minutes(p.Peak))
	default:
		return nil, fmt.Errorf("unknown insulin model %q", p.Kind)
	}
}

// Exponential is an exponential activity curve with a configurable peak.
// See https://github.com/LoopKit/Loop/issues/388
type Exponential struct {
	actionDuration time.Duration
	peakActivity   time.Duration

	// Curve constants, in minutes
	tau float64
	a   float64
	s   float64
}

// NewExponential creates an exponential model. peak must be less than half the duration.
func NewExponential(duration, peak time.Duration) (*Exponential, error) {
	if duration <= 0 || peak <= 0 {
		return nil, fmt.Errorf("exponential model: duration and peak must be positive")
	}
	if peak >= duration {
		return nil, fmt.Errorf("exponential model: peak %s must be before duration %s", peak, duration)
	}

	td := duration.Minutes()
	tp := peak.Minutes()
	if 2*tp >= td {
		return nil, fmt.Errorf("exponential model: peak %s too late for duration %s", peak, duration)
	}

	tau := tp * (1 - tp/td) / (1 - 2*tp/td)
	a := 2 * tau / td
	s := 1 / (1 - a + (1+a)*math.Exp(-td/tau))

	return &Exponential{
		actionDuration: duration,
		peakActivity:   peak,
		tau:            tau,
		a:              a,
		s:              s,
	}, nil
}

// Duration implements Model
func (e *Exponential) Duration() time.Duration {
	return e.actionDuration
}

// Peak returns the time of peak activity
func (e *Exponential) Peak() time.Duration {
	return e.peakActivity
}

// PercentRemaining implements Model
func (e *Exponential) PercentRemaining(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 1
	}
	if elapsed >= e.actionDuration {
		return 0
	}

	t := elapsed.Minutes()
	td := e.actionDuration.Minutes()
	remaining := 1 - e.s*(1-e.a)*((t*t/(e.tau*td*(1-e.a))-t/e.tau-1)*math.Exp(-t/e.tau)+1)
	return clamp01(remaining)
}

// Walsh is the four-preset polynomial curve from Walsh, Using Insulin.
// Durations are snapped to the nearest preset between 3 and 6 hours and
// the elapsed time is scaled accordingly.
type Walsh struct {
	actionDuration time.Duration
	preset         int

	// hold is the elapsed minutes at which the preset polynomial stops
	// rising. Before it the curve is held at its value there, which keeps
	// the fraction non-increasing.
	hold float64
}

// Polynomial coefficients by preset, highest power first
var walshCoefficients = map[int][5]float64{
	3: {-3.2030e-9, 1.354e-6, -1.759e-4, 9.255e-4, 0.99951},
	4: {-3.310e-10, 2.530e-7, -5.510e-5, -9.086e-4, 0.99950},
	5: {-2.950e-10, 2.320e-7, -5.550e-5, 4.490e-4, 0.99300},
	6: {-1.493e-10, 1.413e-7, -4.095e-5, 6.365e-4, 0.99700},
}

// NewWalsh creates a Walsh model for the given duration of insulin action
func NewWalsh(duration time.Duration) (*Walsh, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("walsh model: duration must be positive")
	}

	preset := int(math.Round(duration.Hours()))
	preset = max(3, min(6, preset))

	return &Walsh{
		actionDuration: duration,
		preset:         preset,
		hold:           risingEdge(walshCoefficients[preset]),
	}, nil
}

// Duration implements Model
func (w *Walsh) Duration() time.Duration {
	return w.actionDuration
}

// PercentRemaining implements Model
func (w *Walsh) PercentRemaining(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 1
	}
	if elapsed >= w.actionDuration {
		return 0
	}

	// Scale into the preset's time frame
	minutes := elapsed.Minutes() * float64(w.preset) * 60 / w.actionDuration.Minutes()
	minutes = max(minutes, w.hold)

	return clamp01(polynomial(walshCoefficients[w.preset], minutes))
}

func polynomial(c [5]float64, m float64) float64 {
	return (((c[0]*m+c[1])*m+c[2])*m+c[3])*m + c[4]
}

// risingEdge finds where the polynomial's slope first turns negative
func risingEdge(c [5]float64) float64 {
	slope := func(m float64) float64 {
		return ((4*c[0]*m+3*c[1])*m+2*c[2])*m + c[3]
	}
	if slope(0) <= 0 {
		return 0
	}

	lo, hi := 0.0, 60.0
	for range 60 {
		mid := (lo + hi) / 2
		if slope(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

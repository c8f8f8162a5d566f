package dosing

import (
	"math"
	"time"

	"github.com/mrcode/loop-engine/internal/insulin"
	"github.com/mrcode/loop-engine/internal/models"
	"github.com/mrcode/loop-engine/internal/schedule"
)

// rateTolerance is how close two rates must be to count as the same
const rateTolerance = 1e-9

// minActivated stands in for the activated fraction right after now,
// where the model has not acted yet
const minActivated = 2.220446049250313e-16

// minTargetUntil is the fraction of the insulin duration during which the
// target stays at the range minimum
const minTargetUntil = 0.5

// Recommender converts predictions into dosing recommendations
type Recommender struct {
	Model insulin.Model
	Delay time.Duration

	SuspendThreshold *float64 // mg/dL; nil uses the range minimum

	MaxBasalRate   float64 // U/hr
	MaxBolus       float64 // U
	RateIncrement  float64 // U/hr
	BolusIncrement float64 // U

	TempBasalDuration    time.Duration
	ContinuationInterval time.Duration
}

// NewRecommender creates a recommender from the engine settings
func NewRecommender(model insulin.Model, s models.Settings) *Recommender {
	return &Recommender{
		Model:                model,
		Delay:                s.InsulinDelay,
		SuspendThreshold:     s.SuspendThreshold,
		MaxBasalRate:         s.MaxBasalRate,
		MaxBolus:             s.MaxBolus,
		RateIncrement:        s.RateIncrement,
		BolusIncrement:       s.BolusIncrement,
		TempBasalDuration:    s.TempBasalDuration,
		ContinuationInterval: s.ContinuationInterval,
	}
}

// InsulinCorrection classifies the prediction over the insulin action
// window starting at now
func (r *Recommender) InsulinCorrection(
	predicted []models.PredictedPoint,
	targets *schedule.Schedule[models.TargetRange],
	sensitivity *schedule.Schedule[float64],
	now time.Time,
) Correction {
	duration := r.Model.Duration() + r.Delay
	end := now.Add(duration)

	var (
		minGlucose, eventual, correcting *models.PredictedPoint
		minUnits                         float64
		found                            bool
	)

	for i := range predicted {
		p := &predicted[i]
		if p.Time.Before(now) || p.Time.After(end) {
			continue
		}

		target := targets.ValueAt(p.Time)
		threshold := target.Min
		if r.SuspendThreshold != nil {
			threshold = *r.SuspendThreshold
		}
		if p.Value < threshold {
			return Suspend{Min: *p}
		}

		eventual = p
		if minGlucose == nil || p.Value < minGlucose.Value {
			minGlucose = p
		}

		elapsed := p.Time.Sub(now)
		goal := targetValue(elapsed.Seconds()/duration.Seconds(), target.Min, target.Average())
		activated := insulin.PercentActivated(r.Model, elapsed-r.Delay)
		units, ok := correctionUnits(p.Value, goal, activated*sensitivity.ValueAt(p.Time))
		if ok && units > 0 && (!found || units < minUnits) {
			minUnits = units
			correcting = p
			found = true
		}
	}

	if minGlucose == nil {
		return InRange{}
	}

	minTargets := targets.ValueAt(minGlucose.Time)
	eventualTargets := targets.ValueAt(eventual.Time)

	switch {
	case minGlucose.Value < minTargets.Min && eventual.Value < eventualTargets.Min:
		elapsed := minGlucose.Time.Sub(now)
		activated := max(minActivated, insulin.PercentActivated(r.Model, elapsed-r.Delay))
		units, _ := correctionUnits(minGlucose.Value, minTargets.Average(), activated*sensitivity.ValueAt(minGlucose.Time))
		return EntirelyBelowRange{Min: *minGlucose, MinTarget: minTargets.Min, Dose: units}
	case eventual.Value > eventualTargets.Max && found:
		return AboveRange{Min: *minGlucose, Correcting: *correcting, MinTarget: eventualTargets.Min, Dose: minUnits}
	default:
		return InRange{}
	}
}

// targetValue is flat at lo for the first half of the action window, then
// rises linearly to hi
func targetValue(fraction, lo, hi float64) float64 {
	if fraction <= minTargetUntil {
		return lo
	}
	if fraction >= 1 {
		return hi
	}
	return lo + (hi-lo)/(1-minTargetUntil)*(fraction-minTargetUntil)
}

// correctionUnits returns the insulin that moves glucose from from to to
func correctionUnits(from, to, effectedSensitivity float64) (float64, bool) {
	if effectedSensitivity <= 0 || math.IsNaN(effectedSensitivity) || math.IsInf(effectedSensitivity, 0) {
		return 0, false
	}
	return (from - to) / effectedSensitivity, true
}

// TempBasal converts a correction into a temp basal at the given scheduled rate
func (r *Recommender) TempBasal(c Correction, scheduledRate float64) *models.TempBasalRecommendation {
	hours := r.TempBasalDuration.Hours()
	if hours <= 0 {
		return nil
	}

	var rate float64
	switch c := c.(type) {
	case Suspend:
		rate = 0
	case InRange:
		rate = scheduledRate
	case EntirelyBelowRange:
		rate = c.Dose/hours + scheduledRate
	case AboveRange:
		rate = c.Dose/hours + scheduledRate
		if c.Min.Value < c.MinTarget {
			rate = min(rate, scheduledRate)
		}
	default:
		return nil
	}

	rate = RoundDown(clamp(rate, 0, r.MaxBasalRate), r.RateIncrement)
	return &models.TempBasalRecommendation{Rate: rate, Duration: r.TempBasalDuration.Minutes()}
}

// IfNecessary drops a recommendation that would not change delivery. A
// recommendation matching the scheduled rate while a temp basal runs
// becomes a cancel.
func (r *Recommender) IfNecessary(rec *models.TempBasalRecommendation, scheduledRate float64, last *models.TempBasal, now time.Time) *models.TempBasalRecommendation {
	if rec == nil {
		return nil
	}

	if last != nil && last.End.After(now) {
		if sameRate(rec.Rate, last.Rate) && last.End.Sub(now) > r.ContinuationInterval {
			return nil
		}
		if sameRate(rec.Rate, scheduledRate) {
			return models.CancelTempBasal()
		}
		return rec
	}

	if sameRate(rec.Rate, scheduledRate) {
		return nil
	}
	return rec
}

func sameRate(a, b float64) bool {
	return math.Abs(a-b) < rateTolerance
}

// Bolus converts a correction into a bolus net of pending insulin
func (r *Recommender) Bolus(c Correction, pending float64) *models.BolusRecommendation {
	rec := &models.BolusRecommendation{PendingInsulin: pending}

	switch c := c.(type) {
	case Suspend:
		rec.Notice = &models.Notice{Kind: models.NoticeBelowSuspendThreshold, Value: c.Min.Value, Time: c.Min.Time}
	case EntirelyBelowRange:
		rec.Notice = &models.Notice{Kind: models.NoticePredictedBelowTarget, Value: c.Min.Value, Time: c.Min.Time}
	case AboveRange:
		if c.Min.Value < c.MinTarget {
			rec.Notice = &models.Notice{Kind: models.NoticePredictedBelowTarget, Value: c.Min.Value, Time: c.Min.Time}
		}
		rec.Units = r.netBolus(c, pending)
	case InRange:
		rec.Units = r.netBolus(c, pending)
	}
	return rec
}

func (r *Recommender) netBolus(c Correction, pending float64) float64 {
	return RoundDown(clamp(c.Units()-pending, 0, r.MaxBolus), r.BolusIncrement)
}

// PendingInsulin returns the insulin committed but not yet delivered: the
// remainder of an above-schedule temp basal plus any pending bolus
func PendingInsulin(last *models.TempBasal, scheduledRate, pendingBolus float64, now time.Time) float64 {
	pending := pendingBolus
	if last != nil && last.End.After(now) {
		remaining := last.End.Sub(now).Hours()
		pending += max(0, (last.Rate-scheduledRate)*remaining)
	}
	return max(0, pending)
}

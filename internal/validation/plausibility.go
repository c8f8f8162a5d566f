// Package validation provides the default admission check run before a
// recommendation is computed.
package validation

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/mrcode/loop-engine/internal/loop"
	"github.com/mrcode/loop-engine/internal/models"
)

// Range is an inclusive interval of accepted values
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies in the range
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}

// Plausibility rejects requests whose readings or settings fall outside
// physiologically sensible bounds
type Plausibility struct {
	Glucose     Range // mg/dL
	Carbs       Range // g per entry
	Sensitivity Range // mg/dL per U
	CarbRatio   Range // g per U
	Basal       Range // U/hr
}

// DefaultPlausibility returns the standard bounds
func DefaultPlausibility() *Plausibility {
	return &Plausibility{
		Glucose:     Range{Min: 10, Max: 600},
		Carbs:       Range{Min: 0, Max: 250},
		Sensitivity: Range{Min: 10, Max: 500},
		CarbRatio:   Range{Min: 1, Max: 150},
		Basal:       Range{Min: 0, Max: 35},
	}
}

// Validate implements loop.Validator
func (p *Plausibility) Validate(_ context.Context, req *models.Request) loop.Decision {
	var reasons []string

	bad := lo.Filter(req.Glucose, func(g models.GlucoseSample, _ int) bool {
		return !p.Glucose.Contains(g.Value)
	})
	if len(bad) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d glucose readings outside %s mg/dL", len(bad), p.Glucose))
	}

	for i, c := range req.Carbs {
		if !p.Carbs.Contains(c.Grams) {
			reasons = append(reasons, fmt.Sprintf("carb entry %d: %g g outside %s", i, c.Grams, p.Carbs))
		}
	}

	reasons = append(reasons, p.checkSchedule("basalSchedule", req.BasalSchedule, p.Basal)...)
	reasons = append(reasons, p.checkSchedule("sensitivitySchedule", req.SensitivitySchedule, p.Sensitivity)...)
	reasons = append(reasons, p.checkSchedule("carbRatioSchedule", req.CarbRatioSchedule, p.CarbRatio)...)

	t := req.TargetSchedule
	if t.Len() == 0 {
		reasons = append(reasons, "targetSchedule is empty")
	}
	for i := range min(len(t.MinValues), len(t.MaxValues)) {
		if t.MinValues[i] > t.MaxValues[i] {
			reasons = append(reasons, fmt.Sprintf("targetSchedule entry %d: minimum above maximum", i))
		}
		if !p.Glucose.Contains(t.MinValues[i]) || !p.Glucose.Contains(t.MaxValues[i]) {
			reasons = append(reasons, fmt.Sprintf("targetSchedule entry %d outside %s mg/dL", i, p.Glucose))
		}
	}

	reasons = append(reasons, checkModel(req.Model)...)

	if len(reasons) > 0 {
		return loop.Reject(reasons...)
	}
	return loop.Accept()
}

func (p *Plausibility) checkSchedule(name string, doc models.ScheduleDoc, bounds Range) []string {
	if doc.Len() == 0 {
		return []string{name + " is empty"}
	}
	var reasons []string
	for i, v := range doc.Values {
		if !bounds.Contains(v) {
			reasons = append(reasons, fmt.Sprintf("%s entry %d: %g outside %s", name, i, v, bounds))
		}
	}
	return reasons
}

func checkModel(m models.ModelParams) []string {
	switch m.Kind {
	case models.ModelWalsh:
		if m.DurationHours <= 0 {
			return []string{"walsh model needs a positive duration"}
		}
	case models.ModelExponential:
		if m.Duration <= 0 || m.Peak <= 0 {
			return []string{"exponential model needs a positive duration and peak"}
		}
	default:
		return []string{fmt.Sprintf("unknown insulin model %q", m.Kind)}
	}
	return nil
}

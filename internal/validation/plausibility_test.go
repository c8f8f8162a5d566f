package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/loop-engine/internal/loop"
	"github.com/mrcode/loop-engine/internal/models"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func validRequest() *models.Request {
	constant := func(v float64) models.ScheduleDoc {
		return models.ScheduleDoc{StartTimes: []string{"00:00"}, Values: []float64{v}}
	}
	return &models.Request{
		Now: now,
		Glucose: []models.GlucoseSample{
			{Time: now.Add(-5 * time.Minute), Value: 120},
			{Time: now, Value: 125},
		},
		Carbs:               []models.CarbEntry{{Start: now, Grams: 40}},
		BasalSchedule:       constant(0.9),
		SensitivitySchedule: constant(45),
		CarbRatioSchedule:   constant(12),
		TargetSchedule: models.RangeScheduleDoc{
			StartTimes: []string{"00:00"},
			MinValues:  []float64{100},
			MaxValues:  []float64{110},
		},
		Model: models.ModelParams{Kind: models.ModelWalsh, DurationHours: 4},
	}
}

func TestPlausibility_Accepts(t *testing.T) {
	d := DefaultPlausibility().Validate(context.Background(), validRequest())
	assert.True(t, d.Accepted)
	assert.Empty(t, d.Reasons)
}

func TestPlausibility_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Request)
		reason string
	}{
		{
			name:   "Glucose too high",
			mutate: func(r *models.Request) { r.Glucose[1].Value = 650 },
			reason: "1 glucose readings outside [10, 600] mg/dL",
		},
		{
			name:   "Glucose too low",
			mutate: func(r *models.Request) { r.Glucose[0].Value = 5 },
			reason: "1 glucose readings outside [10, 600] mg/dL",
		},
		{
			name:   "Huge meal",
			mutate: func(r *models.Request) { r.Carbs[0].Grams = 300 },
			reason: "carb entry 0: 300 g outside [0, 250]",
		},
		{
			name:   "Sensitivity out of range",
			mutate: func(r *models.Request) { r.SensitivitySchedule.Values[0] = 5 },
			reason: "sensitivitySchedule entry 0: 5 outside [10, 500]",
		},
		{
			name:   "Carb ratio out of range",
			mutate: func(r *models.Request) { r.CarbRatioSchedule.Values[0] = 0.5 },
			reason: "carbRatioSchedule entry 0: 0.5 outside [1, 150]",
		},
		{
			name:   "Basal out of range",
			mutate: func(r *models.Request) { r.BasalSchedule.Values[0] = 40 },
			reason: "basalSchedule entry 0: 40 outside [0, 35]",
		},
		{
			name:   "Missing basal schedule",
			mutate: func(r *models.Request) { r.BasalSchedule = models.ScheduleDoc{} },
			reason: "basalSchedule is empty",
		},
		{
			name:   "Missing target schedule",
			mutate: func(r *models.Request) { r.TargetSchedule = models.RangeScheduleDoc{} },
			reason: "targetSchedule is empty",
		},
		{
			name:   "Inverted target",
			mutate: func(r *models.Request) { r.TargetSchedule.MinValues[0] = 130 },
			reason: "targetSchedule entry 0: minimum above maximum",
		},
		{
			name:   "Walsh without duration",
			mutate: func(r *models.Request) { r.Model.DurationHours = 0 },
			reason: "walsh model needs a positive duration",
		},
		{
			name:   "Exponential without peak",
			mutate: func(r *models.Request) { r.Model = models.ModelParams{Kind: models.ModelExponential, Duration: 360} },
			reason: "exponential model needs a positive duration and peak",
		},
		{
			name:   "Unknown model",
			mutate: func(r *models.Request) { r.Model.Kind = "fiasp" },
			reason: `unknown insulin model "fiasp"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			d := DefaultPlausibility().Validate(context.Background(), req)
			assert.False(t, d.Accepted)
			assert.Contains(t, d.Reasons, tt.reason)
		})
	}
}

func TestPlausibility_CollectsEveryReason(t *testing.T) {
	req := validRequest()
	req.Glucose[0].Value = 700
	req.Carbs[0].Grams = -1
	req.Model.Kind = ""

	d := DefaultPlausibility().Validate(context.Background(), req)
	assert.False(t, d.Accepted)
	assert.Len(t, d.Reasons, 3)
}

func TestPlausibility_RejectsThroughEngine(t *testing.T) {
	req := validRequest()
	req.Glucose[1].Value = 900

	e := loop.NewEngine(models.DefaultSettings(), loop.WithValidator(DefaultPlausibility()))
	result, err := e.Run(context.Background(), req)

	require.ErrorIs(t, err, loop.ErrRejected)
	assert.True(t, result.IsEmpty())
}

func TestRange_Contains(t *testing.T) {
	r := Range{Min: 1, Max: 2}
	assert.True(t, r.Contains(1))
	assert.True(t, r.Contains(2))
	assert.False(t, r.Contains(0.999))
	assert.False(t, r.Contains(2.001))
}

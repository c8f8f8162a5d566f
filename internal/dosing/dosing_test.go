package dosing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/loop-engine/internal/insulin"
	"github.com/mrcode/loop-engine/internal/models"
	"github.com/mrcode/loop-engine/internal/schedule"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return now.Add(time.Duration(minutes) * time.Minute)
}

func newRecommender(t *testing.T, threshold *float64) *Recommender {
	t.Helper()
	model, err := insulin.NewExponential(360*time.Minute, 75*time.Minute)
	require.NoError(t, err)

	s := models.DefaultSettings()
	s.SuspendThreshold = threshold
	return NewRecommender(model, s)
}

func flat(value float64) []models.PredictedPoint {
	var out []models.PredictedPoint
	for m := 0; m <= 370; m += 5 {
		out = append(out, models.PredictedPoint{Time: at(m), Value: value})
	}
	return out
}

func ptr(v float64) *float64 {
	return &v
}

var (
	targets     = schedule.Constant(models.TargetRange{Min: 90, Max: 120})
	sensitivity = schedule.Constant(40.0)
)

func TestInsulinCorrection_AboveRange(t *testing.T) {
	r := newRecommender(t, ptr(70))

	c := r.InsulinCorrection(flat(150), targets, sensitivity, now)

	above, ok := c.(AboveRange)
	require.True(t, ok, "got %s", c.Kind())
	assert.Greater(t, above.Units(), 0.0)
	// Smallest correction is at the end of the window: (150-105)/40
	assert.InDelta(t, 1.125, above.Units(), 1e-9)
	assert.Equal(t, at(370), above.Correcting.Time)

	rec := r.TempBasal(c, 1.0)
	require.NotNil(t, rec)
	assert.InDelta(t, 3.25, rec.Rate, 1e-9)
	assert.Equal(t, 30.0, rec.Duration)

	bolus := r.Bolus(c, 0.5)
	assert.InDelta(t, 0.6, bolus.Units, 1e-9)
	assert.Equal(t, 0.5, bolus.PendingInsulin)
	assert.Nil(t, bolus.Notice)
}

func TestInsulinCorrection_SuspendWins(t *testing.T) {
	r := newRecommender(t, ptr(70))

	for _, idx := range []int{0, 1, 30, 74} {
		predicted := flat(250)
		predicted[idx].Value = 65

		c := r.InsulinCorrection(predicted, targets, sensitivity, now)
		suspend, ok := c.(Suspend)
		require.True(t, ok, "index %d: got %s", idx, c.Kind())
		assert.Equal(t, 65.0, suspend.Min.Value)
		assert.Equal(t, predicted[idx].Time, suspend.Min.Time)

		rec := r.TempBasal(c, 1.2)
		assert.Equal(t, 0.0, rec.Rate)

		bolus := r.Bolus(c, 0)
		assert.Equal(t, 0.0, bolus.Units)
		require.NotNil(t, bolus.Notice)
		assert.Equal(t, models.NoticeBelowSuspendThreshold, bolus.Notice.Kind)
		assert.Equal(t, 65.0, bolus.Notice.Value)
	}
}

func TestInsulinCorrection_DefaultThresholdIsRangeMinimum(t *testing.T) {
	r := newRecommender(t, nil)

	predicted := flat(100)
	predicted[10].Value = 85

	_, ok := r.InsulinCorrection(predicted, targets, sensitivity, now).(Suspend)
	assert.True(t, ok)
}

func TestInsulinCorrection_EntirelyBelowRange(t *testing.T) {
	r := newRecommender(t, ptr(70))

	c := r.InsulinCorrection(flat(80), targets, sensitivity, now)

	below, ok := c.(EntirelyBelowRange)
	require.True(t, ok, "got %s", c.Kind())
	assert.Less(t, below.Units(), 0.0)
	assert.False(t, math.IsInf(below.Units(), 0))
	assert.Equal(t, 80.0, below.Min.Value)

	rec := r.TempBasal(c, 1.0)
	assert.Equal(t, 0.0, rec.Rate)

	bolus := r.Bolus(c, 0)
	assert.Equal(t, 0.0, bolus.Units)
	require.NotNil(t, bolus.Notice)
	assert.Equal(t, models.NoticePredictedBelowTarget, bolus.Notice.Kind)
	assert.Equal(t, 80.0, bolus.Notice.Value)
}

func TestInsulinCorrection_InvalidSensitivity(t *testing.T) {
	r := newRecommender(t, ptr(70))
	zero := schedule.Constant(0.0)

	_, ok := r.InsulinCorrection(flat(150), targets, zero, now).(InRange)
	assert.True(t, ok, "no usable correction means no action")

	below, ok := r.InsulinCorrection(flat(80), targets, zero, now).(EntirelyBelowRange)
	require.True(t, ok)
	assert.Equal(t, 0.0, below.Units())
}

func TestInsulinCorrection_InRange(t *testing.T) {
	r := newRecommender(t, ptr(70))

	c := r.InsulinCorrection(flat(100), targets, sensitivity, now)
	_, ok := c.(InRange)
	require.True(t, ok, "got %s", c.Kind())

	rec := r.TempBasal(c, 0.85)
	assert.InDelta(t, 0.85, rec.Rate, 1e-9)
	assert.Nil(t, r.IfNecessary(rec, 0.85, nil, now))

	_, ok = r.InsulinCorrection(nil, targets, sensitivity, now).(InRange)
	assert.True(t, ok)
}

func TestTempBasal_LowMinimumCapsAtScheduledRate(t *testing.T) {
	r := newRecommender(t, ptr(70))
	predicted := flat(150)
	predicted[12].Value = 85

	c := r.InsulinCorrection(predicted, targets, sensitivity, now)
	above, ok := c.(AboveRange)
	require.True(t, ok, "got %s", c.Kind())
	assert.Equal(t, 85.0, above.Min.Value)

	rec := r.TempBasal(c, 1.0)
	assert.InDelta(t, 1.0, rec.Rate, 1e-9)
}

func TestBolus_AboveRangeWithLowMinimumWarns(t *testing.T) {
	r := newRecommender(t, ptr(70))
	c := AboveRange{
		Min:       models.PredictedPoint{Time: at(60), Value: 80},
		MinTarget: 90,
		Dose:      2,
	}

	bolus := r.Bolus(c, 0)
	assert.InDelta(t, 2, bolus.Units, 1e-9)
	require.NotNil(t, bolus.Notice)
	assert.Equal(t, models.NoticePredictedBelowTarget, bolus.Notice.Kind)
	assert.Equal(t, 80.0, bolus.Notice.Value)
	assert.Equal(t, at(60), bolus.Notice.Time)

	c.Min.Value = 95
	assert.Nil(t, r.Bolus(c, 0).Notice)
}

func TestInsulinCorrection_TargetRampSpansEffectDuration(t *testing.T) {
	r := newRecommender(t, ptr(70))
	r.Delay = 10 * time.Minute
	predicted := []models.PredictedPoint{
		{Time: now, Value: 150},
		{Time: at(185), Value: 150},
	}

	c := r.InsulinCorrection(predicted, targets, sensitivity, now)
	above, ok := c.(AboveRange)
	require.True(t, ok, "got %s", c.Kind())

	// 185 of 370 minutes is still the flat half, so the goal is the range minimum
	activated := insulin.PercentActivated(r.Model, 175*time.Minute)
	assert.Equal(t, at(185), above.Correcting.Time)
	assert.InDelta(t, (150-90)/(activated*40), above.Units(), 1e-9)
}

func TestTempBasal_ClampsToMaximum(t *testing.T) {
	r := newRecommender(t, ptr(70))
	r.MaxBasalRate = 2

	rec := r.TempBasal(AboveRange{Dose: 10}, 1.0)
	assert.Equal(t, 2.0, rec.Rate)
}

func TestIfNecessary(t *testing.T) {
	r := newRecommender(t, ptr(70))

	tests := []struct {
		name      string
		rate      float64
		scheduled float64
		last      *models.TempBasal
		expected  *models.TempBasalRecommendation
	}{
		{
			name:      "Matching temp with time left is kept",
			rate:      1.0,
			scheduled: 0.8,
			last:      &models.TempBasal{Start: at(-10), End: at(20), Rate: 1.0},
			expected:  nil,
		},
		{
			name:      "Matching temp about to end is renewed",
			rate:      1.0,
			scheduled: 0.8,
			last:      &models.TempBasal{Start: at(-25), End: at(5), Rate: 1.0},
			expected:  &models.TempBasalRecommendation{Rate: 1.0, Duration: 30},
		},
		{
			name:      "Scheduled rate while a temp runs cancels it",
			rate:      1.0,
			scheduled: 1.0,
			last:      &models.TempBasal{Start: at(-10), End: at(20), Rate: 2.0},
			expected:  models.CancelTempBasal(),
		},
		{
			name:      "Scheduled rate without a temp does nothing",
			rate:      1.0,
			scheduled: 1.0,
			expected:  nil,
		},
		{
			name:      "Expired temp counts as none",
			rate:      1.0,
			scheduled: 1.0,
			last:      &models.TempBasal{Start: at(-40), End: at(-10), Rate: 2.0},
			expected:  nil,
		},
		{
			name:      "New rate is set",
			rate:      1.5,
			scheduled: 1.0,
			expected:  &models.TempBasalRecommendation{Rate: 1.5, Duration: 30},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &models.TempBasalRecommendation{Rate: tt.rate, Duration: 30}
			got := r.IfNecessary(rec, tt.scheduled, tt.last, now)
			assert.Equal(t, tt.expected, got)
		})
	}

	assert.True(t, r.IfNecessary(&models.TempBasalRecommendation{Rate: 1, Duration: 30}, 1, &models.TempBasal{End: at(20), Rate: 2}, now).IsCancel())
}

func TestRoundDown(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		increment float64
		expected  float64
	}{
		{"Exact multiple", 0.15, 0.05, 0.15},
		{"Floors", 1.37, 0.05, 1.35},
		{"Coarse increment", 2.99, 0.5, 2.5},
		{"Zero", 0, 0.05, 0},
		{"No increment", 1.234, 0, 1.234},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, RoundDown(tt.value, tt.increment), 1e-12)
		})
	}
}

func TestRoundDown_WholeIncrements(t *testing.T) {
	for _, inc := range []float64{0.01, 0.025, 0.05, 0.1, 0.5, 1} {
		for v := 0.0; v < 10; v += 0.0137 {
			rounded := RoundDown(v, inc)
			steps := rounded / inc
			assert.InDelta(t, math.Round(steps), steps, 1e-9, "value %v increment %v", v, inc)
			assert.LessOrEqual(t, rounded, v+1e-12)
			assert.Less(t, v-rounded, inc+1e-12)
		}
	}
}

func TestPendingInsulin(t *testing.T) {
	tests := []struct {
		name     string
		last     *models.TempBasal
		bolus    float64
		expected float64
	}{
		{"Nothing pending", nil, 0, 0},
		{"Pending bolus only", nil, 1.5, 1.5},
		{"High temp remainder", &models.TempBasal{Start: at(-10), End: at(30), Rate: 3}, 0, 0.75},
		{"Low temp adds nothing", &models.TempBasal{Start: at(-10), End: at(30), Rate: 0}, 0.4, 0.4},
		{"Expired temp", &models.TempBasal{Start: at(-40), End: at(-10), Rate: 3}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, PendingInsulin(tt.last, 1.5, tt.bolus, now), 1e-12)
		})
	}
}

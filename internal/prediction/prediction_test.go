package prediction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/loop-engine/internal/models"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(minutes float64) time.Time {
	return t0.Add(models.Minutes(minutes))
}

func reading(minutes, value float64) models.GlucoseSample {
	return models.GlucoseSample{Time: at(minutes), Value: value}
}

func grid(from, to, step int, value func(m int) float64) []models.EffectPoint {
	var out []models.EffectPoint
	for m := from; m <= to; m += step {
		out = append(out, models.EffectPoint{Time: at(float64(m)), Value: value(m)})
	}
	return out
}

func TestCounteraction(t *testing.T) {
	// Insulin pulls glucose down 1 mg/dL every 5 minutes
	insulin := grid(-30, 30, 5, func(m int) float64 { return -float64(m+30) / 5 })

	tests := []struct {
		name     string
		samples  []models.GlucoseSample
		expected []models.Velocity
	}{
		{
			name:    "Rising against insulin",
			samples: []models.GlucoseSample{reading(0, 100), reading(5, 102), reading(10, 104)},
			expected: []models.Velocity{
				{Start: at(0), End: at(5), Value: 0.6},
				{Start: at(5), End: at(10), Value: 0.6},
			},
		},
		{
			name:    "Readings too close keep the reference",
			samples: []models.GlucoseSample{reading(0, 100), reading(2, 101), reading(5, 102)},
			expected: []models.Velocity{
				{Start: at(0), End: at(5), Value: 0.6},
			},
		},
		{
			name: "Source change resets the reference",
			samples: []models.GlucoseSample{
				reading(0, 100),
				{Time: at(5), Value: 150, Provenance: "meter"},
				{Time: at(10), Value: 152, Provenance: "meter"},
			},
			expected: []models.Velocity{
				{Start: at(5), End: at(10), Value: 0.6},
			},
		},
		{
			name:    "Readings past the modeled effect stop the walk",
			samples: []models.GlucoseSample{reading(20, 100), reading(25, 100), reading(35, 100)},
			expected: []models.Velocity{
				{Start: at(20), End: at(25), Value: 0.2},
			},
		},
		{
			name:    "Single reading",
			samples: []models.GlucoseSample{reading(0, 100)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Counteraction(tt.samples, insulin)
			require.Len(t, got, len(tt.expected))
			for i := range tt.expected {
				assert.Equal(t, tt.expected[i].Start, got[i].Start)
				assert.Equal(t, tt.expected[i].End, got[i].End)
				assert.InDelta(t, tt.expected[i].Value, got[i].Value, 1e-9)
			}
		})
	}
}

func TestLinearMomentum(t *testing.T) {
	rising := []models.GlucoseSample{reading(0, 100), reading(5, 105), reading(10, 110), reading(15, 115)}

	effect := LinearMomentum(rising, 15*time.Minute, 30*time.Minute, 5*time.Minute)
	require.Len(t, effect, 7)
	assert.Equal(t, at(15), effect[0].Time)
	assert.Equal(t, 0.0, effect[0].Value)
	assert.Equal(t, at(45), effect[6].Time)
	assert.InDelta(t, 30, effect[6].Value, 1e-9)

	// An off-grid last reading starts the effect at zero on the floored grid point
	offGrid := []models.GlucoseSample{reading(1, 100), reading(6, 105), reading(11, 110)}
	effect = LinearMomentum(offGrid, 15*time.Minute, 30*time.Minute, 5*time.Minute)
	require.NotEmpty(t, effect)
	assert.Equal(t, at(10), effect[0].Time)
	assert.Equal(t, 0.0, effect[0].Value)
	assert.Equal(t, at(45), effect[len(effect)-1].Time)
	assert.InDelta(t, 34, effect[len(effect)-1].Value, 1e-9)
}

func TestLinearMomentum_Ineligible(t *testing.T) {
	calibrated := []models.GlucoseSample{reading(0, 100), reading(5, 105), reading(10, 110)}
	calibrated[1].IsCalibration = true

	mixed := []models.GlucoseSample{reading(0, 100), reading(5, 105), reading(10, 110)}
	mixed[2].Provenance = "meter"

	tests := []struct {
		name    string
		samples []models.GlucoseSample
	}{
		{"No readings", nil},
		{"Two readings", []models.GlucoseSample{reading(0, 100), reading(5, 105)}},
		{"Gap in readings", []models.GlucoseSample{reading(0, 100), reading(5, 105), reading(15, 115)}},
		{"Calibration", calibrated},
		{"Mixed sources", mixed},
		{"Degenerate slope", []models.GlucoseSample{reading(10, 100), reading(10, 105), reading(10, 110)}},
		{"Readings outside the window", []models.GlucoseSample{reading(-40, 90), reading(-35, 95), reading(0, 100)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, LinearMomentum(tt.samples, 15*time.Minute, 30*time.Minute, 5*time.Minute))
		})
	}
}

func TestSlope(t *testing.T) {
	flat := []models.GlucoseSample{reading(0, 120), reading(5, 120), reading(10, 120)}
	assert.Equal(t, 0.0, Slope(flat))

	falling := []models.GlucoseSample{reading(0, 120), reading(5, 110), reading(10, 100)}
	assert.InDelta(t, -2.0/60, Slope(falling), 1e-12)
}

func TestRetrospective_Effect(t *testing.T) {
	r := &Retrospective{
		Recency:        15 * time.Minute,
		Grouping:       30 * time.Minute,
		EffectDuration: 60 * time.Minute,
		Delta:          5 * time.Minute,
	}

	var counteraction []models.Velocity
	for m := -30; m < 0; m += 5 {
		counteraction = append(counteraction, models.Velocity{Start: at(float64(m)), End: at(float64(m + 5)), Value: 1})
	}
	glucose := reading(0, 100)

	effect := r.Effect(glucose, counteraction, nil, at(0))
	require.Len(t, effect, 12)
	assert.Equal(t, 100.0, effect[0].Value)
	assert.InDelta(t, 105, effect[1].Value, 1e-9)
	assert.Equal(t, at(55), effect[11].Time)
	assert.InDelta(t, 130, effect[11].Value, 1e-9)

	for i := 1; i < len(effect); i++ {
		assert.GreaterOrEqual(t, effect[i].Value, effect[i-1].Value)
	}

	assert.Nil(t, r.Effect(glucose, counteraction, nil, at(30)))
	assert.Nil(t, r.Effect(glucose, nil, nil, at(0)))
}

func TestRetrospective_CarbsExplainCounteraction(t *testing.T) {
	r := &Retrospective{Recency: 15 * time.Minute, Grouping: 30 * time.Minute, EffectDuration: 60 * time.Minute, Delta: 5 * time.Minute}

	counteraction := []models.Velocity{
		{Start: at(-10), End: at(-5), Value: 2},
		{Start: at(-5), End: at(0), Value: 2},
	}
	carbs := grid(-10, 0, 5, func(m int) float64 { return float64(m+10) * 2 })

	d := Discrepancies(counteraction, carbs)
	require.Len(t, d, 2)
	assert.InDelta(t, 0, d[0].Value, 1e-9)
	assert.InDelta(t, 0, d[1].Value, 1e-9)

	effect := r.Effect(reading(0, 100), counteraction, carbs, at(0))
	require.NotEmpty(t, effect)
	for _, e := range effect {
		assert.InDelta(t, 100, e.Value, 1e-9)
	}
}

func TestRetrospective_SummedGrouping(t *testing.T) {
	r := &Retrospective{Grouping: 10 * time.Minute}

	sum, ok := r.Summed([]Discrepancy{
		{Start: at(-30), End: at(-25), Value: 100},
		{Start: at(-15), End: at(-10), Value: 3},
		{Start: at(-5), End: at(0), Value: 4},
	})
	require.True(t, ok)
	assert.Equal(t, at(-15), sum.Start)
	assert.Equal(t, at(0), sum.End)
	assert.Equal(t, 7.0, sum.Value)

	_, ok = r.Summed(nil)
	assert.False(t, ok)
}

func TestDecayEffect_PlateauOnlyOffGrid(t *testing.T) {
	aligned := DecayEffect(reading(0, 100), 1, 60*time.Minute, 5*time.Minute)
	require.Len(t, aligned, 12)
	assert.Equal(t, at(55), aligned[11].Time)
	assert.Greater(t, aligned[11].Value, aligned[10].Value)

	offGrid := DecayEffect(reading(2, 100), 1, 60*time.Minute, 5*time.Minute)
	require.Len(t, offGrid, 13)
	assert.Equal(t, at(0), offGrid[0].Time)
	assert.Equal(t, at(60), offGrid[12].Time)
	assert.InDelta(t, offGrid[11].Value, offGrid[12].Value, 1e-9)
	assert.InDelta(t, 130, offGrid[12].Value, 1e-9)
}

func TestDecayEffect_NegativeRate(t *testing.T) {
	effect := DecayEffect(reading(2, 150), -2, 30*time.Minute, 5*time.Minute)

	require.NotEmpty(t, effect)
	assert.Equal(t, at(0), effect[0].Time)
	assert.Equal(t, 150.0, effect[0].Value)
	for i := 1; i < len(effect); i++ {
		assert.LessOrEqual(t, effect[i].Value, effect[i-1].Value)
	}
	last := len(effect) - 1
	assert.InDelta(t, effect[last-1].Value, effect[last].Value, 1e-9)
}

func TestPredict(t *testing.T) {
	start := reading(0, 100)
	insulin := grid(0, 10, 5, func(m int) float64 { return -float64(m) })
	carbs := []models.EffectPoint{
		{Time: at(5), Value: 3},
		{Time: at(10), Value: 6},
	}

	predicted := Predict(start, 30*time.Minute, nil, insulin, carbs)

	require.Len(t, predicted, 4)
	assert.Equal(t, models.PredictedPoint{Time: at(0), Value: 100}, predicted[0])
	assert.InDelta(t, 98, predicted[1].Value, 1e-9)
	assert.InDelta(t, 96, predicted[2].Value, 1e-9)
	assert.Equal(t, at(30), predicted[3].Time)
	assert.InDelta(t, 96, predicted[3].Value, 1e-9)
}

func TestPredict_IgnoresChangesBeforeStart(t *testing.T) {
	start := reading(0, 120)
	insulin := grid(-20, 10, 5, func(m int) float64 { return -float64(m + 20) })

	predicted := Predict(start, 10*time.Minute, nil, insulin)

	require.Len(t, predicted, 3)
	assert.InDelta(t, 115, predicted[1].Value, 1e-9)
	assert.InDelta(t, 110, predicted[2].Value, 1e-9)
}

func TestPredict_BlendsMomentum(t *testing.T) {
	start := reading(0, 100)
	momentum := grid(0, 15, 5, func(m int) float64 { return float64(m) })

	predicted := Predict(start, 0, momentum)

	require.Len(t, predicted, 4)
	assert.InDelta(t, 105, predicted[1].Value, 1e-9)
	assert.InDelta(t, 107.5, predicted[2].Value, 1e-9)
	assert.InDelta(t, 107.5, predicted[3].Value, 1e-9)
}

func TestPredict_NoEffects(t *testing.T) {
	predicted := Predict(reading(0, 140), time.Hour, nil)

	require.Len(t, predicted, 2)
	assert.Equal(t, 140.0, predicted[1].Value)
	assert.Equal(t, at(60), predicted[1].Time)
}

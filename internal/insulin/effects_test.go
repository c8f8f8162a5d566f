package insulin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/loop-engine/internal/models"
	"github.com/mrcode/loop-engine/internal/schedule"
)

func pointAt(t *testing.T, points []models.EffectPoint, when time.Time) float64 {
	t.Helper()
	for _, p := range points {
		if p.Time.Equal(when) {
			return p.Value
		}
	}
	t.Fatalf("no point at %s", when)
	return 0
}

func TestOnBoard_SingleBolusWalsh(t *testing.T) {
	model, err := NewWalsh(4 * time.Hour)
	require.NoError(t, err)
	p := NewProjector(model, 0, 5*time.Minute)

	doses := []models.Dose{dose(models.DoseBolus, 0, 0, 5)}
	iob := p.OnBoard(doses, Window{})

	require.NotEmpty(t, iob)
	assert.Equal(t, 5.0, pointAt(t, iob, at(0)))
	assert.Equal(t, 0.0, pointAt(t, iob, at(240)))
	assert.Equal(t, 0.0, pointAt(t, iob, at(-5)))
	assert.Equal(t, at(240), iob[len(iob)-1].Time)

	for _, pt := range iob {
		if !pt.Time.Before(at(240)) {
			assert.Equal(t, 0.0, pt.Value)
		}
	}
}

func TestGlucoseEffects_SingleBolus(t *testing.T) {
	model, err := NewWalsh(4 * time.Hour)
	require.NoError(t, err)
	p := NewProjector(model, 0, 5*time.Minute)
	isf := schedule.Constant(40.0)

	effects := p.GlucoseEffects([]models.Dose{dose(models.DoseBolus, 0, 0, 5)}, isf, Window{})

	assert.Equal(t, 0.0, pointAt(t, effects, at(0)))
	assert.InDelta(t, -200, pointAt(t, effects, at(240)), 1e-9)

	prev := 0.0
	for _, e := range effects {
		assert.LessOrEqual(t, e.Value, prev+1e-12)
		prev = e.Value
	}
}

func TestGlucoseEffects_DelayShiftsCurve(t *testing.T) {
	model, err := NewExponential(360*time.Minute, 75*time.Minute)
	require.NoError(t, err)
	isf := schedule.Constant(50.0)
	doses := []models.Dose{dose(models.DoseBolus, 0, 0, 1)}

	undelayed := NewProjector(model, 0, 5*time.Minute).GlucoseEffects(doses, isf, Window{})
	delayed := NewProjector(model, 10*time.Minute, 5*time.Minute).GlucoseEffects(doses, isf, Window{})

	assert.Equal(t, 0.0, pointAt(t, delayed, at(10)))
	assert.InDelta(t, pointAt(t, undelayed, at(60)), pointAt(t, delayed, at(70)), 1e-12)
	assert.InDelta(t, -50, pointAt(t, delayed, at(370)), 1e-9)
}

func TestGlucoseEffects_ContinuousTempBasal(t *testing.T) {
	model, err := NewExponential(360*time.Minute, 75*time.Minute)
	require.NoError(t, err)
	p := NewProjector(model, 10*time.Minute, 5*time.Minute)
	isf := schedule.Constant(40.0)

	temp := models.Dose{Kind: models.DoseTempBasal, Start: at(0), End: at(60), Value: 2, ScheduledRate: 1}
	effects := p.GlucoseEffects([]models.Dose{temp}, isf, Window{})

	// One net unit, fully absorbed once the last slice has run its course
	assert.InDelta(t, -40, models.LastValue(effects), 1e-9)
	assert.Equal(t, 0.0, pointAt(t, effects, at(0)))

	iob := p.OnBoard([]models.Dose{temp}, Window{})
	assert.InDelta(t, 0, models.LastValue(iob), 1e-9)
	assert.Greater(t, pointAt(t, iob, at(60)), 0.5)
}

func TestProjector_ShortDoseIsMomentary(t *testing.T) {
	model, err := NewWalsh(4 * time.Hour)
	require.NoError(t, err)
	p := NewProjector(model, 0, 5*time.Minute)

	short := models.Dose{Kind: models.DoseTempBasal, Start: at(0), End: at(5), Value: 13, ScheduledRate: 1}
	bolus := dose(models.DoseBolus, 0, 0, 1)

	a := p.OnBoard([]models.Dose{short}, Window{})
	b := p.OnBoard([]models.Dose{bolus}, Window{})
	assert.InDelta(t, pointAt(t, b, at(60)), pointAt(t, a, at(60)), 1e-12)
}

func TestProjector_WindowClamp(t *testing.T) {
	model, err := NewWalsh(4 * time.Hour)
	require.NoError(t, err)
	p := NewProjector(model, 0, 5*time.Minute)

	doses := []models.Dose{dose(models.DoseBolus, 0, 0, 5)}
	iob := p.OnBoard(doses, Window{Start: at(-2), End: at(62)})

	require.NotEmpty(t, iob)
	assert.Equal(t, at(-5), iob[0].Time)
	assert.Equal(t, at(65), iob[len(iob)-1].Time)

	assert.Nil(t, p.OnBoard(nil, Window{}))
	empty := p.OnBoard(nil, Window{Start: at(0), End: at(10)})
	assert.Len(t, empty, 3)
}

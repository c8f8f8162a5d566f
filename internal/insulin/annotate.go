package insulin

import (
	"github.com/mrcode/loop-engine/internal/models"
	"github.com/mrcode/loop-engine/internal/schedule"
)

// Annotate splits basal-like and suspend doses at basal schedule
// boundaries and stamps each piece with the scheduled rate it replaced.
// Boluses and other doses pass through untouched.
func Annotate(doses []models.Dose, basal *schedule.Schedule[float64]) []models.Dose {
	out := make([]models.Dose, 0, len(doses))
	for _, d := range doses {
		switch d.Kind {
		case models.DoseBasal, models.DoseTempBasal, models.DoseSuspend:
			out = append(out, annotateOne(d, basal)...)
		case models.DoseBolus, models.DoseResume, models.DoseMeal:
			out = append(out, d)
		}
	}
	return out
}

func annotateOne(d models.Dose, basal *schedule.Schedule[float64]) []models.Dose {
	entries := basal.Between(d.Start, d.End)
	if len(entries) == 0 {
		d.ScheduledRate = basal.ValueAt(d.Start)
		return []models.Dose{d}
	}

	pieces := make([]models.Dose, 0, len(entries))
	for _, e := range entries {
		piece := d.Trimmed(e.Start, e.End)
		piece.ScheduledRate = e.Value
		pieces = append(pieces, piece)
	}
	return pieces
}

// NetUnits returns the insulin a dose delivered beyond the scheduled basal.
// Suspends count as negative insulin.
func NetUnits(d models.Dose) float64 {
	switch d.Kind {
	case models.DoseBolus:
		return d.Units()
	case models.DoseBasal, models.DoseTempBasal:
		return (d.Value - d.ScheduledRate) * d.Hours()
	case models.DoseSuspend:
		return -d.ScheduledRate * d.Hours()
	case models.DoseResume, models.DoseMeal:
		return 0
	}
	return 0
}

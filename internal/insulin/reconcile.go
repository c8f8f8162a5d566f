package insulin

import (
	"sort"
	"time"

	"github.com/mrcode/loop-engine/internal/models"
)

// Reconcile turns a chronological stream of delivery events into
// non-overlapping dose intervals. A basal is cut short by whatever
// replaces it, a suspend/resume pair collapses into one suspend interval,
// and a basal interrupted by a suspend is re-opened after the resume.
//
// Output is in processing order; use SortByStart before projecting.
func Reconcile(doses []models.Dose) []models.Dose {
	r := reconciler{out: make([]models.Dose, 0, len(doses))}
	for _, d := range doses {
		r.next(d)
	}
	return r.finish()
}

type reconciler struct {
	out     []models.Dose
	basal   *models.Dose // pending basal, not yet emitted
	suspend *models.Dose // pending zero-width suspend awaiting its resume
}

func (r *reconciler) next(d models.Dose) {
	switch d.Kind {
	case models.DoseBolus, models.DoseMeal:
		r.out = append(r.out, d)

	case models.DoseBasal, models.DoseTempBasal:
		if r.basal != nil && r.suspend == nil {
			r.flushBasal(d.Start)
		}
		pending := d
		r.basal = &pending

	case models.DoseSuspend:
		if r.basal != nil && r.suspend == nil {
			r.flushBasal(d.Start)
			r.reopenBasal(d.Start)
		}
		if d.End.Equal(d.Start) {
			// A repeated marker extends the suspend already pending
			if r.suspend == nil {
				pending := d
				r.suspend = &pending
			}
			return
		}
		r.out = append(r.out, d)
		// Whatever of the basal survives the suspend picks up after it
		r.reopenBasal(d.End)

	case models.DoseResume:
		if r.suspend == nil {
			return
		}
		suspend := *r.suspend
		suspend.End = d.End
		r.out = append(r.out, suspend)
		r.suspend = nil
		r.reopenBasal(d.End)
	}
}

// flushBasal emits the pending basal trimmed to end at until
func (r *reconciler) flushBasal(until time.Time) {
	end := r.basal.End
	if until.Before(end) {
		end = until
	}
	if r.basal.Start.Before(end) {
		r.out = append(r.out, r.basal.Trimmed(r.basal.Start, end))
	}
}

// reopenBasal moves the pending basal's start to from, or drops it if it has expired
func (r *reconciler) reopenBasal(from time.Time) {
	if r.basal == nil {
		return
	}
	if !r.basal.End.After(from) {
		r.basal = nil
		return
	}
	if r.basal.Start.Before(from) {
		r.basal.Start = from
	}
}

func (r *reconciler) finish() []models.Dose {
	switch {
	case r.suspend != nil:
		r.out = append(r.out, *r.suspend)
	case r.basal != nil && r.basal.End.After(r.basal.Start):
		r.out = append(r.out, *r.basal)
	}
	return r.out
}

// SortByStart orders doses by start time, keeping the order of equal starts
func SortByStart(doses []models.Dose) {
	sort.SliceStable(doses, func(i, j int) bool {
		return doses[i].Start.Before(doses[j].Start)
	})
}

package loop

import (
	"fmt"
	"time"

	"github.com/mrcode/loop-engine/internal/models"
	"github.com/mrcode/loop-engine/internal/schedule"
)

// Schedules are the request's therapy schedules resolved in its time zone
type Schedules struct {
	Basal       *schedule.Schedule[float64]
	Sensitivity *schedule.Schedule[float64]
	CarbRatio   *schedule.Schedule[float64]
	Targets     *schedule.Schedule[models.TargetRange]
}

// DecodeSchedules builds the therapy schedules of req. An empty schedule
// yields ErrMissingSchedule.
func DecodeSchedules(req *models.Request) (*Schedules, error) {
	loc := time.UTC
	if req.TimeZone != "" {
		l, err := time.LoadLocation(req.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("time zone: %w", err)
		}
		loc = l
	}
	opt := schedule.WithLocation(loc)

	var (
		s   Schedules
		err error
	)
	if s.Basal, err = decode("basalSchedule", req.BasalSchedule, opt); err != nil {
		return nil, err
	}
	if s.Sensitivity, err = decode("sensitivitySchedule", req.SensitivitySchedule, opt); err != nil {
		return nil, err
	}
	if s.CarbRatio, err = decode("carbRatioSchedule", req.CarbRatioSchedule, opt); err != nil {
		return nil, err
	}

	t := req.TargetSchedule
	if t.Len() == 0 {
		return nil, fmt.Errorf("%w: targetSchedule", ErrMissingSchedule)
	}
	if len(t.MaxValues) != len(t.MinValues) {
		return nil, &models.ShapeError{Field: "targetSchedule.maxValues", Want: len(t.MinValues), Got: len(t.MaxValues)}
	}
	ranges := make([]models.TargetRange, len(t.MinValues))
	for i := range t.MinValues {
		ranges[i] = models.TargetRange{Min: t.MinValues[i], Max: t.MaxValues[i]}
	}
	if s.Targets, err = schedule.FromClock(t.StartTimes, t.EndTimes, ranges, opt); err != nil {
		return nil, fmt.Errorf("targetSchedule: %w", err)
	}

	return &s, nil
}

func decode(name string, doc models.ScheduleDoc, opt schedule.Option) (*schedule.Schedule[float64], error) {
	if doc.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingSchedule, name)
	}
	s, err := schedule.FromClock(doc.StartTimes, doc.EndTimes, doc.Values, opt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return s, nil
}

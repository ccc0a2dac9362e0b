package scheduler

import (
	"fmt"
	"time"

	"voicetimer/internal/models"
	"voicetimer/pkg/utils"
)

// NextOccurrence computes when a recurring schedule fires next: the
// original admin-entered civil datetime advanced by whole periods until
// strictly after now. Deriving from the original spec, not the previous
// execution, keeps monthly schedules anchored to their day-of-month.
func NextOccurrence(originalSpec string, rec models.Recurrence, now time.Time, loc *time.Location) (time.Time, error) {
	base, err := utils.ParseCivilTime(originalSpec, loc)
	if err != nil {
		return time.Time{}, err
	}

	var advance func(time.Time) time.Time
	switch rec {
	case models.RecurrenceDaily:
		advance = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case models.RecurrenceWeekly:
		advance = func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
	case models.RecurrenceMonthly:
		advance = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	default:
		return time.Time{}, fmt.Errorf("recurrence %q does not repeat", rec)
	}

	next := advance(base)
	for !next.After(now) {
		next = advance(next)
	}
	return next, nil
}

package task

import "time"

// NextDue advances from by one period of rule.
//
// Monthly recurrence keeps the day of month when the target month has it and
// clamps to the target month's last day otherwise (Jan 31 -> Feb 29 in a leap
// year, Feb 28 otherwise).
func NextDue(rule Recurrence, from time.Time) time.Time {
	switch rule {
	case RecurrenceDaily:
		return from.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		return from.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		return addMonthClamped(from)
	default:
		return from
	}
}

func addMonthClamped(from time.Time) time.Time {
	y, m, d := from.Date()
	last := daysIn(y, m+1, from.Location())
	if d > last {
		d = last
	}
	hh, mm, ss := from.Clock()
	return time.Date(y, m+1, d, hh, mm, ss, from.Nanosecond(), from.Location())
}

// daysIn returns the number of days in month m of year y; m may overflow.
func daysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}

// NextInstance derives the successor of a just-completed recurring task. The
// successor starts incomplete and is due one period after done's due time, or
// one period after now when done had none.
func NextInstance(done Task, id string, now time.Time) (Task, bool) {
	if done.Recurrence == RecurrenceNone {
		return Task{}, false
	}
	base := now
	if done.DueAt != nil {
		base = *done.DueAt
	}
	due := NextDue(done.Recurrence, base).UTC()
	return Task{
		ID:          id,
		Title:       done.Title,
		Description: done.Description,
		Priority:    done.Priority,
		Completed:   false,
		DueAt:       &due,
		CreatorID:   done.CreatorID,
		AssigneeID:  done.AssigneeID,
		Recurrence:  done.Recurrence,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, true
}

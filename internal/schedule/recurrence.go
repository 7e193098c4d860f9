// Package schedule implements the recurring generation schedule: the
// recurrence calculator, the orchestrator that establishes a client's job
// chain, the handler fired when a job's timer elapses, and the
// reconciliation scheduler that recovers timers lost across restarts.
package schedule

import "time"

// NextOccurrence returns the earliest instant strictly after from whose
// calendar day equals dayOfMonth, preserving from's clock time and location.
// A month shorter than dayOfMonth clamps to its final day, so day 31 lands
// on Feb 28/29, Apr 30 and so on. Pure and deterministic.
func NextOccurrence(from time.Time, dayOfMonth int) time.Time {
	year, month := from.Year(), from.Month()

	candidate := occurrenceIn(from, year, month, dayOfMonth)
	// The clamped-day comparison guards against a clamped candidate looking
	// unvisited while falling before today in the same month.
	if !candidate.After(from) || candidate.Day() < from.Day() {
		month++
		if month > time.December {
			month = time.January
			year++
		}
		candidate = occurrenceIn(from, year, month, dayOfMonth)
	}
	return candidate
}

// occurrenceIn places dayOfMonth in the given month at from's clock time,
// clamped to the month's last day.
func occurrenceIn(from time.Time, year int, month time.Month, dayOfMonth int) time.Time {
	day := dayOfMonth
	if last := lastDayOfMonth(year, month, from.Location()); day > last {
		day = last
	}
	return time.Date(year, month, day,
		from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
}

func lastDayOfMonth(year int, month time.Month, loc *time.Location) int {
	// Day zero of the following month normalizes to this month's last day.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

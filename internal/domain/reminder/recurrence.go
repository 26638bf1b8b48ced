package reminder

import "time"

// FirstOccurrence returns today's hour:minute in loc, advanced by one
// recurrence step when it is not after now.
func FirstOccurrence(now time.Time, hour, minute int, freq Frequency, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(now) {
		candidate = Step(candidate, freq, candidate.Day())
	}
	return candidate
}

// NextAfter computes the occurrence following prev. The wall clock is rebuilt
// in loc on prev's local date, so a timezone change between fires is honoured.
// It keeps stepping until the result is after both prev and now, which covers
// deliveries that arrive late.
func NextAfter(prev, now time.Time, hour, minute int, freq Frequency, anchorDay int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	p := prev.In(loc)
	if anchorDay <= 0 {
		anchorDay = p.Day()
	}
	candidate := time.Date(p.Year(), p.Month(), p.Day(), hour, minute, 0, 0, loc)
	for !candidate.After(prev) || !candidate.After(now) {
		candidate = Step(candidate, freq, anchorDay)
	}
	return candidate
}

// Step advances t by one calendar step. Days are calendar days, not 24h, so
// the wall clock survives DST transitions. Monthly steps clamp to the last day
// of a short month and return to anchorDay when the month allows it.
func Step(t time.Time, freq Frequency, anchorDay int) time.Time {
	switch freq {
	case FrequencyWeekly:
		return time.Date(t.Year(), t.Month(), t.Day()+7, t.Hour(), t.Minute(), 0, 0, t.Location())
	case FrequencyMonthly:
		return addMonthClamped(t, anchorDay)
	default:
		return time.Date(t.Year(), t.Month(), t.Day()+1, t.Hour(), t.Minute(), 0, 0, t.Location())
	}
}

func addMonthClamped(t time.Time, anchorDay int) time.Time {
	if anchorDay <= 0 {
		anchorDay = t.Day()
	}
	// day 1 keeps time.Date from normalising into the month after
	first := time.Date(t.Year(), t.Month()+1, 1, t.Hour(), t.Minute(), 0, 0, t.Location())
	day := anchorDay
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), 0, 0, t.Location())
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

package rule

import "time"

// FirstOccurrence computes a rule's initial due date: the anchor date moved
// forward to the nearest day whose weekday matches targetWeekday (zero days
// when the anchor already matches), at the rule's execution time. All
// results are UTC.
func FirstOccurrence(anchor time.Time, targetWeekday int, at ExecutionTime) time.Time {
	d := anchor.UTC()
	offset := (targetWeekday - int(d.Weekday()) + 7) % 7
	d = d.AddDate(0, 0, offset)
	return time.Date(d.Year(), d.Month(), d.Day(), at.Hour, at.Minute, 0, 0, time.UTC)
}

// NextAfterRun computes the due date following a completed run. A full
// period is always added before weekday alignment, so the result is strictly
// after the completion instant even when that instant already falls on the
// target weekday. The invariant "advancement never yields the same instant
// twice" depends on this.
func NextAfterRun(completedAt time.Time, targetWeekday int, at ExecutionTime, period Period) time.Time {
	d := completedAt.UTC().AddDate(0, 0, period.Days())
	offset := (targetWeekday - int(d.Weekday()) + 7) % 7
	d = d.AddDate(0, 0, offset)
	return time.Date(d.Year(), d.Month(), d.Day(), at.Hour, at.Minute, 0, 0, time.UTC)
}

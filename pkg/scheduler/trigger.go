// Package scheduler runs recurring jobs on interval and daily wall-clock
// triggers, guaranteeing at most one execution of a job at a time.
package scheduler

import "time"

// TriggerKind identifies how a job's due times are computed.
type TriggerKind string

const (
	// TriggerInterval fires every fixed duration starting at process start.
	TriggerInterval TriggerKind = "interval"

	// TriggerDaily fires once per day at a fixed wall-clock time.
	TriggerDaily TriggerKind = "daily-at"
)

// Trigger computes the due times of a job. Implementations are pure:
// the same inputs always produce the same due time.
type Trigger interface {
	Kind() TriggerKind

	// First returns the first due time for a process started at start.
	// A result at or before start means the job is due immediately.
	First(start time.Time) time.Time

	// Next returns the due time following a fire, strictly after now.
	// after is the due time that just fired (or was skipped); missed
	// occurrences are never queued up, so the result is always in the
	// future relative to now.
	Next(after, now time.Time) time.Time
}

// IntervalTrigger fires every Every, anchored at the first due time.
type IntervalTrigger struct {
	Every time.Duration
}

// Kind implements Trigger.
func (t IntervalTrigger) Kind() TriggerKind { return TriggerInterval }

// First implements Trigger. Interval jobs fire once immediately at start.
func (t IntervalTrigger) First(start time.Time) time.Time {
	return start
}

// Next implements Trigger. The schedule stays anchored to the original
// grid: next = after + k*Every for the smallest k that lands after now.
func (t IntervalTrigger) Next(after, now time.Time) time.Time {
	next := after.Add(t.Every)
	if next.After(now) {
		return next
	}
	steps := now.Sub(after)/t.Every + 1
	return after.Add(steps * t.Every)
}

// DailyTrigger fires once per calendar day at Hour:Minute in Location.
type DailyTrigger struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// Kind implements Trigger.
func (t DailyTrigger) Kind() TriggerKind { return TriggerDaily }

func (t DailyTrigger) location() *time.Location {
	if t.Location == nil {
		return time.UTC
	}
	return t.Location
}

// First implements Trigger. The first due time is today's occurrence of
// the wall-clock time; if the process started after it, the job is due
// immediately, once, with no backlog for earlier missed days.
func (t DailyTrigger) First(start time.Time) time.Time {
	loc := t.location()
	s := start.In(loc)
	return time.Date(s.Year(), s.Month(), s.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// Next implements Trigger. Returns the next occurrence strictly after
// now, regardless of how many occurrences were skipped.
func (t DailyTrigger) Next(_, now time.Time) time.Time {
	loc := t.location()
	n := now.In(loc)
	next := time.Date(n.Year(), n.Month(), n.Day(), t.Hour, t.Minute, 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Package availability computes the open intervals for a provider over a
// date range: recurring working-hour windows minus active appointments minus
// blackout periods. Results are always sorted, non-overlapping and merged.
// The index is derived on every call and never cached across requests.
package availability

import (
	"time"

	"github.com/clinicore/scheduling/internal/timeslot"
)

// WorkingWindow is a recurring weekly block of bookable time, expressed as
// minutes since midnight UTC on a given weekday.
type WorkingWindow struct {
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
}

// Schedule is a provider's bookable-time definition.
type Schedule struct {
	Granularity time.Duration
	Windows     []WorkingWindow
}

// Compute returns the open intervals for the schedule within [from, to),
// after removing busy intervals (appointments and blackouts alike).
// A schedule with no working windows yields no availability.
func Compute(sched Schedule, from, to time.Time, busy []timeslot.Interval) []timeslot.Interval {
	if len(sched.Windows) == 0 || !from.Before(to) {
		return nil
	}

	from = from.UTC()
	to = to.UTC()
	bounds := timeslot.Interval{Start: from, End: to}

	windows := expandWindows(sched.Windows, from, to)
	if len(windows) == 0 {
		return nil
	}

	merged := timeslot.Merge(busy)

	var open []timeslot.Interval
	for _, w := range windows {
		clamped := w.Clamp(bounds)
		if clamped.IsZero() {
			continue
		}
		open = append(open, timeslot.Subtract(clamped, merged)...)
	}

	// Windows from distinct days never touch, but explicit windows may abut
	// within a day; one final merge keeps the output canonical.
	return timeslot.Merge(open)
}

// expandWindows materializes the recurring windows for every UTC day that
// intersects [from, to).
func expandWindows(windows []WorkingWindow, from, to time.Time) []timeslot.Interval {
	byWeekday := make(map[time.Weekday][]WorkingWindow)
	for _, w := range windows {
		if w.EndMinute <= w.StartMinute {
			continue
		}
		byWeekday[w.Weekday] = append(byWeekday[w.Weekday], w)
	}

	var out []timeslot.Interval
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for day.Before(to) {
		for _, w := range byWeekday[day.Weekday()] {
			out = append(out, timeslot.Interval{
				Start: day.Add(time.Duration(w.StartMinute) * time.Minute),
				End:   day.Add(time.Duration(w.EndMinute) * time.Minute),
			})
		}
		day = day.AddDate(0, 0, 1)
	}

	return out
}

// FirstFit returns the earliest open interval that can hold an appointment of
// the given duration, snapped to the schedule granularity. The second return
// is false when nothing fits.
func FirstFit(open []timeslot.Interval, d time.Duration, granularity time.Duration) (timeslot.Interval, bool) {
	if d <= 0 {
		return timeslot.Interval{}, false
	}
	for _, o := range open {
		start := timeslot.Snap(o.Start, granularity)
		if start.Before(o.Start) {
			start = start.Add(granularity)
		}
		if !start.Add(d).After(o.End) {
			return timeslot.Interval{Start: start, End: start.Add(d)}, true
		}
	}
	return timeslot.Interval{}, false
}

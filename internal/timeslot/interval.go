package timeslot

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrInvalidDuration = errors.New("interval duration must be positive")

// Interval is a half-open time range [Start, End) in UTC.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval builds an interval from a start time and duration.
// Zero or negative durations are rejected.
func NewInterval(start time.Time, d time.Duration) (Interval, error) {
	if d <= 0 {
		return Interval{}, ErrInvalidDuration
	}
	start = start.UTC()
	return Interval{Start: start, End: start.Add(d)}, nil
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

func (iv Interval) IsZero() bool {
	return iv.Start.IsZero() && iv.End.IsZero()
}

// Overlaps reports whether two half-open intervals intersect.
// Adjacent intervals (a.End == b.Start) do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether t falls inside the interval.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Covers reports whether other lies entirely within iv.
func (iv Interval) Covers(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
}

// Snap rounds t down to the nearest slot boundary, counted from UTC midnight.
func Snap(t time.Time, granularity time.Duration) time.Time {
	if granularity <= 0 {
		return t.UTC()
	}
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(t.Sub(midnight).Truncate(granularity))
}

// Aligned reports whether t sits exactly on a slot boundary.
func Aligned(t time.Time, granularity time.Duration) bool {
	return Snap(t, granularity).Equal(t.UTC())
}

// Merge sorts intervals and coalesces overlapping or adjacent ones.
// The input slice is not modified. Zero-length intervals are dropped.
func Merge(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}

	sorted := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.End.After(iv.Start) {
			sorted = append(sorted, iv)
		}
	}
	if len(sorted) == 0 {
		return nil
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}

	return merged
}

// Subtract removes every busy interval from window, returning the uncovered
// sub-intervals in order. busy must be sorted and non-overlapping (see Merge).
func Subtract(window Interval, busy []Interval) []Interval {
	var open []Interval
	cursor := window.Start

	for _, b := range busy {
		if !b.Overlaps(window) {
			continue
		}
		if b.Start.After(cursor) {
			open = append(open, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}

	if cursor.Before(window.End) {
		open = append(open, Interval{Start: cursor, End: window.End})
	}

	return open
}

// Clamp trims the interval to the bounds, returning a zero interval when the
// two do not intersect.
func (iv Interval) Clamp(bounds Interval) Interval {
	if !iv.Overlaps(bounds) {
		return Interval{}
	}
	out := iv
	if out.Start.Before(bounds.Start) {
		out.Start = bounds.Start
	}
	if out.End.After(bounds.End) {
		out.End = bounds.End
	}
	return out
}

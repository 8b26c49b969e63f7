package availability

import (
	"testing"
	"time"

	"github.com/clinicore/scheduling/internal/timeslot"
)

// 2024-03-11 is a Monday.
func monday(hour, min int) time.Time {
	return time.Date(2024, 3, 11, hour, min, 0, 0, time.UTC)
}

func mondayMorning() Schedule {
	return Schedule{
		Granularity: 30 * time.Minute,
		Windows: []WorkingWindow{
			{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60},
		},
	}
}

func assertIntervals(t *testing.T, got, want []timeslot.Interval) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d intervals, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Errorf("interval %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCompute_NoAppointments(t *testing.T) {
	got := Compute(mondayMorning(), monday(0, 0), monday(23, 59), nil)
	assertIntervals(t, got, []timeslot.Interval{
		{Start: monday(9, 0), End: monday(12, 0)},
	})
}

func TestCompute_SubtractsBooking(t *testing.T) {
	busy := []timeslot.Interval{{Start: monday(9, 30), End: monday(10, 0)}}

	got := Compute(mondayMorning(), monday(0, 0), monday(23, 59), busy)
	assertIntervals(t, got, []timeslot.Interval{
		{Start: monday(9, 0), End: monday(9, 30)},
		{Start: monday(10, 0), End: monday(12, 0)},
	})
}

func TestCompute_MergesAdjacentBusy(t *testing.T) {
	busy := []timeslot.Interval{
		{Start: monday(10, 0), End: monday(10, 30)},
		{Start: monday(10, 30), End: monday(11, 0)},
		{Start: monday(9, 0), End: monday(9, 30)},
	}

	got := Compute(mondayMorning(), monday(0, 0), monday(23, 59), busy)
	assertIntervals(t, got, []timeslot.Interval{
		{Start: monday(9, 30), End: monday(10, 0)},
		{Start: monday(11, 0), End: monday(12, 0)},
	})
}

func TestCompute_NoWorkingHoursMeansNoAvailability(t *testing.T) {
	sched := Schedule{Granularity: 30 * time.Minute}
	if got := Compute(sched, monday(0, 0), monday(23, 59), nil); len(got) != 0 {
		t.Errorf("provider without working hours must have empty availability, got %v", got)
	}
}

func TestCompute_WeekdayWithoutWindowIsClosed(t *testing.T) {
	tuesday := monday(0, 0).AddDate(0, 0, 1)
	got := Compute(mondayMorning(), tuesday, tuesday.Add(24*time.Hour), nil)
	if len(got) != 0 {
		t.Errorf("tuesday has no window, expected empty, got %v", got)
	}
}

func TestCompute_MultiDayRange(t *testing.T) {
	sched := Schedule{
		Granularity: 30 * time.Minute,
		Windows: []WorkingWindow{
			{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 10 * 60},
			{Weekday: time.Tuesday, StartMinute: 14 * 60, EndMinute: 15 * 60},
		},
	}

	got := Compute(sched, monday(0, 0), monday(0, 0).AddDate(0, 0, 2), nil)
	tuesday := monday(0, 0).AddDate(0, 0, 1)
	assertIntervals(t, got, []timeslot.Interval{
		{Start: monday(9, 0), End: monday(10, 0)},
		{Start: tuesday.Add(14 * time.Hour), End: tuesday.Add(15 * time.Hour)},
	})
}

func TestCompute_ClampsToRange(t *testing.T) {
	got := Compute(mondayMorning(), monday(9, 30), monday(10, 30), nil)
	assertIntervals(t, got, []timeslot.Interval{
		{Start: monday(9, 30), End: monday(10, 30)},
	})
}

func TestCompute_BlackoutTreatedAsBusy(t *testing.T) {
	busy := []timeslot.Interval{
		{Start: monday(9, 0), End: monday(9, 30)},   // appointment
		{Start: monday(11, 0), End: monday(12, 0)},  // blackout
	}

	got := Compute(mondayMorning(), monday(0, 0), monday(23, 59), busy)
	assertIntervals(t, got, []timeslot.Interval{
		{Start: monday(9, 30), End: monday(11, 0)},
	})
}

func TestCompute_OutputIdempotentUnderRemerge(t *testing.T) {
	busy := []timeslot.Interval{
		{Start: monday(9, 15), End: monday(9, 45)},
		{Start: monday(10, 0), End: monday(10, 30)},
	}
	got := Compute(mondayMorning(), monday(0, 0), monday(23, 59), busy)
	remerged := timeslot.Merge(got)
	assertIntervals(t, remerged, got)
}

func TestFirstFit(t *testing.T) {
	open := []timeslot.Interval{
		{Start: monday(9, 0), End: monday(9, 15)},  // too small for 30m
		{Start: monday(10, 0), End: monday(11, 0)},
	}

	fit, ok := FirstFit(open, 30*time.Minute, 30*time.Minute)
	if !ok {
		t.Fatal("expected a fitting interval")
	}
	if !fit.Start.Equal(monday(10, 0)) || !fit.End.Equal(monday(10, 30)) {
		t.Errorf("FirstFit = %s, want [10:00, 10:30)", fit)
	}

	if _, ok := FirstFit(open, 2*time.Hour, 30*time.Minute); ok {
		t.Error("no interval fits 2h, expected ok=false")
	}
}

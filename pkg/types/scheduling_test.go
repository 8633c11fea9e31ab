package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clinova/clinic-scheduling/pkg/timeutil"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to AppointmentStatus }{
		{StatusScheduled, StatusConfirmed},
		{StatusScheduled, StatusInProgress},
		{StatusScheduled, StatusCancelled},
		{StatusScheduled, StatusNoShow},
		{StatusConfirmed, StatusInProgress},
		{StatusConfirmed, StatusCancelled},
		{StatusConfirmed, StatusNoShow},
		{StatusInProgress, StatusCompleted},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to AppointmentStatus }{
		{StatusConfirmed, StatusScheduled},
		{StatusInProgress, StatusCancelled},
		{StatusCompleted, StatusScheduled},
		{StatusCancelled, StatusScheduled},
		{StatusNoShow, StatusConfirmed},
		{StatusScheduled, StatusCompleted},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAppointmentIsLate(t *testing.T) {
	apt := &Appointment{
		Date:   "2026-09-07",
		Start:  timeutil.MustClock("10:00"),
		End:    timeutil.MustClock("10:30"),
		Status: StatusScheduled,
	}

	before := time.Date(2026, 9, 7, 9, 59, 0, 0, time.UTC)
	after := time.Date(2026, 9, 7, 10, 1, 0, 0, time.UTC)

	assert.False(t, apt.IsLate(before))
	assert.True(t, apt.IsLate(after))

	apt.Status = StatusInProgress
	assert.False(t, apt.IsLate(after))

	apt.Status = StatusCancelled
	assert.False(t, apt.IsLate(after))
}

func TestAppointmentOverlaps(t *testing.T) {
	a := &Appointment{Date: "2026-09-07", Start: timeutil.MustClock("09:00"), End: timeutil.MustClock("10:00")}
	b := &Appointment{Date: "2026-09-07", Start: timeutil.MustClock("09:30"), End: timeutil.MustClock("10:30")}
	c := &Appointment{Date: "2026-09-07", Start: timeutil.MustClock("10:00"), End: timeutil.MustClock("11:00")}
	d := &Appointment{Date: "2026-09-08", Start: timeutil.MustClock("09:00"), End: timeutil.MustClock("10:00")}

	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c), "touching windows do not overlap")
	assert.False(t, a.Overlaps(d), "different days never overlap")
}

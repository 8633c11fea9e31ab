package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

func weekdaySchedule() *types.ClinicSchedule {
	return &types.ClinicSchedule{
		Hours: map[time.Weekday]types.DayHours{
			time.Monday:    {Enabled: true, Open: timeutil.MustClock("08:00"), Close: timeutil.MustClock("18:00")},
			time.Tuesday:   {Enabled: true, Open: timeutil.MustClock("08:00"), Close: timeutil.MustClock("18:00")},
			time.Wednesday: {Enabled: true, Open: timeutil.MustClock("08:00"), Close: timeutil.MustClock("18:00")},
			time.Thursday:  {Enabled: true, Open: timeutil.MustClock("08:00"), Close: timeutil.MustClock("18:00")},
			time.Friday:    {Enabled: true, Open: timeutil.MustClock("08:00"), Close: timeutil.MustClock("18:00")},
			time.Saturday:  {Enabled: false},
		},
		ClosedDates: []types.ClosedDate{
			{Date: "2026-12-25", Reason: "holiday"},
		},
		SlotDuration:  30,
		BufferMinutes: 5,
	}
}

func TestClinicCalendarIsOpen(t *testing.T) {
	calendar := NewClinicCalendar(weekdaySchedule())

	// 2026-09-07 is a Monday.
	assert.True(t, calendar.IsOpen("2026-09-07"))

	// Saturday exists in the map but is disabled.
	assert.False(t, calendar.IsOpen("2026-09-12"))

	// Sunday has no hours at all.
	assert.False(t, calendar.IsOpen("2026-09-13"))

	// 2026-12-25 is a Friday but in the closed-dates list.
	assert.False(t, calendar.IsOpen("2026-12-25"))

	assert.False(t, calendar.IsOpen("not-a-date"))
}

func TestClinicCalendarIsOpenAt(t *testing.T) {
	calendar := NewClinicCalendar(weekdaySchedule())

	assert.True(t, calendar.IsOpenAt("2026-09-07", timeutil.MustClock("08:00")))
	assert.True(t, calendar.IsOpenAt("2026-09-07", timeutil.MustClock("17:59")))

	// Close boundary is exclusive.
	assert.False(t, calendar.IsOpenAt("2026-09-07", timeutil.MustClock("18:00")))
	assert.False(t, calendar.IsOpenAt("2026-09-07", timeutil.MustClock("07:59")))
}

func TestWindowsForWeekdayClipping(t *testing.T) {
	hours := types.DayHours{Enabled: true, Open: timeutil.MustClock("08:00"), Close: timeutil.MustClock("18:00")}
	windows := []types.AvailabilityWindow{
		{Weekday: time.Monday, Start: timeutil.MustClock("07:00"), End: timeutil.MustClock("12:00")},
		{Weekday: time.Monday, Start: timeutil.MustClock("13:00"), End: timeutil.MustClock("19:00")},
		{Weekday: time.Tuesday, Start: timeutil.MustClock("09:00"), End: timeutil.MustClock("17:00")},
		{Weekday: time.Monday, Start: timeutil.MustClock("06:00"), End: timeutil.MustClock("07:30")},
	}

	clipped := windowsForWeekday(windows, time.Monday, hours)

	assert.Len(t, clipped, 2)
	assert.Equal(t, timeutil.MustClock("08:00"), clipped[0].Start)
	assert.Equal(t, timeutil.MustClock("12:00"), clipped[0].End)
	assert.Equal(t, timeutil.MustClock("13:00"), clipped[1].Start)
	assert.Equal(t, timeutil.MustClock("18:00"), clipped[1].End)
}

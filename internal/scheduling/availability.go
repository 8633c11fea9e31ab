package scheduling

import (
	"time"

	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

// ClinicCalendar answers whether the clinic is open for a given date
// and time of day, combining weekday operating hours with the
// closed-dates list.
type ClinicCalendar struct {
	schedule *types.ClinicSchedule
	closed   map[string]struct{}
}

// NewClinicCalendar builds a calendar from the clinic schedule.
func NewClinicCalendar(schedule *types.ClinicSchedule) *ClinicCalendar {
	closed := make(map[string]struct{}, len(schedule.ClosedDates))
	for _, cd := range schedule.ClosedDates {
		closed[cd.Date] = struct{}{}
	}
	return &ClinicCalendar{schedule: schedule, closed: closed}
}

// IsOpen reports whether the clinic is open at all on the given date:
// the weekday must have enabled hours and the date must not be in the
// closed-dates list.
func (c *ClinicCalendar) IsOpen(date string) bool {
	day, err := timeutil.ParseDate(date)
	if err != nil {
		return false
	}
	if _, found := c.closed[date]; found {
		return false
	}
	hours, ok := c.schedule.Hours[day.Weekday()]
	return ok && hours.Enabled
}

// IsOpenAt reports whether the clinic is open at the given time of day,
// checked against the weekday's [open, close) window.
func (c *ClinicCalendar) IsOpenAt(date string, at timeutil.ClockTime) bool {
	if !c.IsOpen(date) {
		return false
	}
	day, _ := timeutil.ParseDate(date)
	hours := c.schedule.Hours[day.Weekday()]
	return at >= hours.Open && at < hours.Close
}

// Hours returns the operating window for the date's weekday. The second
// return value is false when the clinic is closed that day.
func (c *ClinicCalendar) Hours(date string) (types.DayHours, bool) {
	if !c.IsOpen(date) {
		return types.DayHours{}, false
	}
	day, _ := timeutil.ParseDate(date)
	return c.schedule.Hours[day.Weekday()], true
}

// windowsForWeekday filters availability windows down to one weekday,
// clipped to the clinic's operating hours for that day.
func windowsForWeekday(windows []types.AvailabilityWindow, weekday time.Weekday, hours types.DayHours) []types.AvailabilityWindow {
	var out []types.AvailabilityWindow
	for _, w := range windows {
		if w.Weekday != weekday {
			continue
		}
		start, end := w.Start, w.End
		if start < hours.Open {
			start = hours.Open
		}
		if end > hours.Close {
			end = hours.Close
		}
		if start < end {
			out = append(out, types.AvailabilityWindow{Weekday: weekday, Start: start, End: end})
		}
	}
	return out
}

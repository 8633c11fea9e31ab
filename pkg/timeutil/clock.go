package timeutil

import (
	"encoding/json"
	"fmt"
	"time"
)

// ClockTime is a time of day expressed as minutes since midnight.
// It marshals to and from "HH:MM" strings on the wire.
type ClockTime int

// ParseClock converts an "HH:MM" string to minutes since midnight.
// Empty input yields 0, matching the behavior of the stores this
// service replaces.
func ParseClock(s string) (ClockTime, error) {
	if s == "" {
		return 0, nil
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time %q: out of range", s)
	}
	return ClockTime(h*60 + m), nil
}

// MustClock is ParseClock for literals; it panics on malformed input.
func MustClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String formats the clock time as zero-padded "HH:MM".
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns the clock time shifted by the given number of minutes.
func (c ClockTime) Add(minutes int) ClockTime {
	return c + ClockTime(minutes)
}

// At anchors the clock time onto a calendar day.
func (c ClockTime) At(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(c)/60, int(c)%60, 0, 0, day.Location())
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("clock time must be a string: %w", err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// location is the clinic's time zone. Dates and clock times on the
// wire carry no zone; every conversion to a wall-clock instant goes
// through this one location so comparisons against time.Now() hold on
// hosts running in a different zone.
var location = time.UTC

// SetLocation sets the clinic time zone. Call once at startup, before
// any scheduling work runs.
func SetLocation(loc *time.Location) {
	if loc != nil {
		location = loc
	}
}

// Location returns the clinic time zone.
func Location() *time.Location {
	return location
}

// ParseDate parses a calendar day in "2006-01-02" form, anchored in
// the clinic time zone.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", s, location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %w", err)
	}
	return d, nil
}

// FormatDate renders the instant's calendar day in the clinic time
// zone, in "2006-01-02" form.
func FormatDate(t time.Time) string {
	return t.In(location).Format("2006-01-02")
}

// Overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd ClockTime) bool {
	return aStart < bEnd && bStart < aEnd
}

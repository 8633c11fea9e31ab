package timeutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	testCases := []struct {
		input    string
		expected ClockTime
	}{
		{"00:00", 0},
		{"08:00", 480},
		{"09:35", 575},
		{"18:00", 1080},
		{"23:59", 1439},
		{"", 0},
	}

	for _, tc := range testCases {
		c, err := ParseClock(tc.input)
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.expected, c)
	}
}

func TestParseClock_Invalid(t *testing.T) {
	for _, input := range []string{"25:00", "12:75", "noon"} {
		_, err := ParseClock(input)
		assert.Error(t, err, input)
	}
}

func TestClockTime_String(t *testing.T) {
	assert.Equal(t, "08:05", ClockTime(485).String())
	assert.Equal(t, "00:00", ClockTime(0).String())
	assert.Equal(t, "10:35", MustClock("10:00").Add(35).String())
}

func TestClockTime_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(MustClock("14:30"))
	require.NoError(t, err)
	assert.Equal(t, `"14:30"`, string(data))

	var c ClockTime
	require.NoError(t, json.Unmarshal([]byte(`"09:15"`), &c))
	assert.Equal(t, MustClock("09:15"), c)

	assert.Error(t, json.Unmarshal([]byte(`915`), &c))
}

func TestParseDateUsesClinicLocation(t *testing.T) {
	SetLocation(time.FixedZone("clinic", -5*3600))
	defer SetLocation(time.UTC)

	day, err := ParseDate("2026-09-07")
	require.NoError(t, err)

	// Local midnight in a UTC-5 clinic is 05:00 UTC.
	assert.Equal(t, time.Date(2026, 9, 7, 5, 0, 0, 0, time.UTC), day.UTC())

	// A clock time anchored on that day keeps the clinic offset.
	at := MustClock("09:00").At(day)
	assert.Equal(t, time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC), at.UTC())

	// 02:00 UTC on the 8th is still the evening of the 7th at the clinic.
	assert.Equal(t, "2026-09-07", FormatDate(time.Date(2026, 9, 8, 2, 0, 0, 0, time.UTC)))
}

func TestOverlaps(t *testing.T) {
	// Touching intervals do not overlap.
	assert.False(t, Overlaps(MustClock("09:00"), MustClock("09:30"), MustClock("09:30"), MustClock("10:00")))
	assert.True(t, Overlaps(MustClock("09:00"), MustClock("09:31"), MustClock("09:30"), MustClock("10:00")))
	assert.True(t, Overlaps(MustClock("09:00"), MustClock("12:00"), MustClock("10:00"), MustClock("10:30")))
	assert.False(t, Overlaps(MustClock("09:00"), MustClock("10:00"), MustClock("10:00"), MustClock("10:30")))
}

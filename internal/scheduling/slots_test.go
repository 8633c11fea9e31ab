package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinova/clinic-scheduling/pkg/logger"
	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

const testMonday = "2026-09-07"

func testLogger() *logger.Logger {
	return logger.New("error")
}

func newTestRepo() *MemoryRepository {
	repo := NewMemoryRepository(weekdaySchedule())
	repo.AddPractitioner(
		&types.Practitioner{ID: "prac-1", Name: "Dr. Vogel", Role: "doctor", IsActive: true},
		[]types.AvailabilityWindow{
			{Weekday: time.Monday, Start: timeutil.MustClock("09:00"), End: timeutil.MustClock("12:00")},
		},
	)
	repo.AddMachine(&types.Machine{ID: "machine-1", Name: "Laser A", IsActive: true})
	repo.AddMachine(&types.Machine{ID: "machine-2", Name: "Laser B", IsActive: true})
	return repo
}

func TestGenerateSlotsClosedDay(t *testing.T) {
	engine := NewSlotEngine(newTestRepo(), testLogger())

	// Sunday has no clinic hours.
	slots, err := engine.GenerateSlots("2026-09-13", types.CategoryConsultation, "prac-1", 30)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerateSlotsStepsWithBuffer(t *testing.T) {
	engine := NewSlotEngine(newTestRepo(), testLogger())

	slots, err := engine.GenerateSlots(testMonday, types.CategoryConsultation, "prac-1", 30)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	// 09:00-12:00 window, 30 min duration, 5 min buffer: starts every 35 min.
	assert.Equal(t, timeutil.MustClock("09:00"), slots[0].Start)
	assert.Equal(t, timeutil.MustClock("09:30"), slots[0].End)
	assert.Equal(t, timeutil.MustClock("09:35"), slots[1].Start)

	for _, slot := range slots {
		assert.Equal(t, slot.Start.Add(30), slot.End)
		assert.True(t, slot.End <= timeutil.MustClock("12:00"))
	}
}

func TestGenerateSlotsSkipsBusyWindows(t *testing.T) {
	repo := newTestRepo()
	require.NoError(t, repo.CreateAppointment(&types.Appointment{
		PatientID:      "pat-1",
		PractitionerID: "prac-1",
		Category:       types.CategoryConsultation,
		Date:           testMonday,
		Start:          timeutil.MustClock("09:30"),
		End:            timeutil.MustClock("10:00"),
		Duration:       30,
	}))
	engine := NewSlotEngine(repo, testLogger())

	slots, err := engine.GenerateSlots(testMonday, types.CategoryConsultation, "prac-1", 30)
	require.NoError(t, err)

	for _, slot := range slots {
		overlapsBusy := timeutil.Overlaps(slot.Start, slot.End,
			timeutil.MustClock("09:30"), timeutil.MustClock("10:00"))
		assert.False(t, overlapsBusy, "slot %s overlaps existing appointment", slot.Start)
	}

	// The walk resumes after the blocker plus buffer.
	assert.Equal(t, timeutil.MustClock("09:00"), slots[0].Start)
	assert.Equal(t, timeutil.MustClock("10:05"), slots[1].Start)
}

func TestGenerateSlotsIgnoresCancelled(t *testing.T) {
	repo := newTestRepo()
	require.NoError(t, repo.CreateAppointment(&types.Appointment{
		ID:             "apt-cancelled",
		PatientID:      "pat-1",
		PractitionerID: "prac-1",
		Category:       types.CategoryConsultation,
		Date:           testMonday,
		Start:          timeutil.MustClock("09:00"),
		End:            timeutil.MustClock("09:30"),
		Duration:       30,
	}))
	require.NoError(t, repo.CancelAppointment("apt-cancelled"))
	engine := NewSlotEngine(repo, testLogger())

	slots, err := engine.GenerateSlots(testMonday, types.CategoryConsultation, "prac-1", 30)
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, timeutil.MustClock("09:00"), slots[0].Start)
}

func TestGenerateMultiTreatmentSlotsAssignsLowestMachine(t *testing.T) {
	repo := newTestRepo()
	engine := NewSlotEngine(repo, testLogger())

	treatments := []types.TreatmentRequest{
		{TreatmentID: "laser", Duration: 30},
		{TreatmentID: "peel", Duration: 15},
	}
	slots, err := engine.GenerateMultiTreatmentSlots(testMonday, "prac-1", treatments)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	first := slots[0]
	require.Len(t, first.Segments, 2)
	assert.Equal(t, first.Start, first.Segments[0].Start)
	assert.Equal(t, first.Segments[0].End, first.Segments[1].Start)
	assert.Equal(t, first.End, first.Segments[1].End)

	// Both machines are free; the lowest identifier wins.
	assert.Equal(t, "machine-1", first.Segments[0].MachineID)
	assert.Equal(t, "machine-1", first.Segments[1].MachineID)
}

func TestGenerateMultiTreatmentSlotsFallsBackToFreeMachine(t *testing.T) {
	repo := newTestRepo()
	// machine-1 occupied all morning.
	require.NoError(t, repo.CreateAppointment(&types.Appointment{
		PatientID:      "pat-9",
		PractitionerID: "prac-2",
		MachineID:      "machine-1",
		Category:       types.CategoryTreatment,
		Date:           testMonday,
		Start:          timeutil.MustClock("08:00"),
		End:            timeutil.MustClock("12:00"),
		Duration:       240,
	}))
	engine := NewSlotEngine(repo, testLogger())

	slots, err := engine.GenerateMultiTreatmentSlots(testMonday, "prac-1", []types.TreatmentRequest{
		{TreatmentID: "laser", Duration: 30},
	})
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, "machine-2", slots[0].Segments[0].MachineID)
}

func TestGenerateMultiTreatmentSlotsRejectsZeroDuration(t *testing.T) {
	engine := NewSlotEngine(newTestRepo(), testLogger())

	_, err := engine.GenerateMultiTreatmentSlots(testMonday, "prac-1", []types.TreatmentRequest{
		{TreatmentID: "laser", Duration: 0},
	})
	require.Error(t, err)

	_, err = engine.GenerateMultiTreatmentSlots(testMonday, "prac-1", nil)
	require.Error(t, err)
}

func TestWalkWindowsAscendingUnique(t *testing.T) {
	windows := []types.AvailabilityWindow{
		{Start: timeutil.MustClock("13:00"), End: timeutil.MustClock("15:00")},
		{Start: timeutil.MustClock("09:00"), End: timeutil.MustClock("11:00")},
	}
	slots := walkWindows(windows, nil, 30, 0)

	seen := make(map[timeutil.ClockTime]bool)
	for i, slot := range slots {
		assert.False(t, seen[slot.Start], "duplicate slot start %s", slot.Start)
		seen[slot.Start] = true
		if i > 0 {
			assert.True(t, slots[i-1].Start < slot.Start)
		}
	}
}

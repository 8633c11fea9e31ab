package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

// seedGroup creates a three-segment linked visit: 09:00-09:30,
// 10:00-10:30, 10:30-11:15.
func seedGroup(t *testing.T, repo *MemoryRepository) []*types.Appointment {
	t.Helper()
	segments := []struct {
		id       string
		start    string
		end      string
		duration int
	}{
		{"seg-1", "09:00", "09:30", 30},
		{"seg-2", "10:00", "10:30", 30},
		{"seg-3", "10:30", "11:15", 45},
	}
	var created []*types.Appointment
	for i, seg := range segments {
		apt := &types.Appointment{
			ID:             seg.id,
			PatientID:      "pat-1",
			PractitionerID: "prac-1",
			MachineID:      "machine-1",
			Category:       types.CategoryTreatment,
			Date:           testMonday,
			Start:          timeutil.MustClock(seg.start),
			End:            timeutil.MustClock(seg.end),
			Duration:       seg.duration,
			GroupID:        "grp-1",
			GroupSequence:  i + 1,
		}
		require.NoError(t, repo.CreateAppointment(apt))
		created = append(created, apt)
	}
	return created
}

func TestGetGroupOrderedBySequence(t *testing.T) {
	repo := newTestRepo()
	seedGroup(t, repo)
	manager := NewGroupManager(repo, testLogger())

	group, err := manager.Get("grp-1")
	require.NoError(t, err)
	require.Len(t, group, 3)
	for i, segment := range group {
		assert.Equal(t, i+1, segment.GroupSequence)
	}

	_, err = manager.Get("missing")
	require.Error(t, err)
}

func TestPropagateEditSkipsCompleted(t *testing.T) {
	repo := newTestRepo()
	seedGroup(t, repo)
	completed := types.StatusCompleted
	require.NoError(t, repo.UpdateAppointment("seg-1", &types.AppointmentUpdates{Status: &completed}))
	manager := NewGroupManager(repo, testLogger())

	newPractitioner := "prac-2"
	notes := "updated plan"
	group, err := manager.PropagateEdit("grp-1", &types.AppointmentUpdates{
		PractitionerID: &newPractitioner,
		Notes:          &notes,
	}, "operator-1")
	require.NoError(t, err)

	for _, segment := range group {
		if segment.ID == "seg-1" {
			assert.Equal(t, "prac-1", segment.PractitionerID)
			continue
		}
		assert.Equal(t, "prac-2", segment.PractitionerID)
		assert.Equal(t, "updated plan", segment.Notes)
	}
}

func TestCancelSegmentKeepGap(t *testing.T) {
	repo := newTestRepo()
	seedGroup(t, repo)
	manager := NewGroupManager(repo, testLogger())

	group, err := manager.CancelSegment("seg-2", false, "operator-1")
	require.NoError(t, err)

	byID := indexByID(group)
	assert.Equal(t, types.StatusCancelled, byID["seg-2"].Status)
	// Later segment keeps its time.
	assert.Equal(t, timeutil.MustClock("10:30"), byID["seg-3"].Start)
	assert.Equal(t, timeutil.MustClock("11:15"), byID["seg-3"].End)
}

func TestCancelSegmentRecalculateShiftsLaterSegments(t *testing.T) {
	repo := newTestRepo()
	seedGroup(t, repo)
	manager := NewGroupManager(repo, testLogger())

	group, err := manager.CancelSegment("seg-2", true, "operator-1")
	require.NoError(t, err)

	byID := indexByID(group)
	assert.Equal(t, types.StatusCancelled, byID["seg-2"].Status)
	// seg-3 shifts earlier by the cancelled 30 minutes: 10:00-10:45.
	assert.Equal(t, timeutil.MustClock("10:00"), byID["seg-3"].Start)
	assert.Equal(t, timeutil.MustClock("10:45"), byID["seg-3"].End)
	// Earlier segment is untouched.
	assert.Equal(t, timeutil.MustClock("09:00"), byID["seg-1"].Start)
}

func TestCancelSegmentRejectsCompleted(t *testing.T) {
	repo := newTestRepo()
	seedGroup(t, repo)
	completed := types.StatusCompleted
	require.NoError(t, repo.UpdateAppointment("seg-2", &types.AppointmentUpdates{Status: &completed}))
	manager := NewGroupManager(repo, testLogger())

	_, err := manager.CancelSegment("seg-2", true, "operator-1")
	require.Error(t, err)
}

func TestCancelSegmentRejectsInProgress(t *testing.T) {
	repo := newTestRepo()
	seedGroup(t, repo)
	inProgress := types.StatusInProgress
	require.NoError(t, repo.UpdateAppointment("seg-2", &types.AppointmentUpdates{Status: &inProgress}))
	manager := NewGroupManager(repo, testLogger())

	_, err := manager.CancelSegment("seg-2", true, "operator-1")
	require.Error(t, err)

	apt, err := repo.GetAppointmentByID("seg-2")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, apt.Status)
}

func TestCancelSegmentRequiresGroup(t *testing.T) {
	repo := newTestRepo()
	addAppointment(t, repo, &types.Appointment{
		ID: "solo", PatientID: "pat-1", PractitionerID: "prac-1", Category: types.CategoryConsultation,
		Date: testMonday, Start: timeutil.MustClock("09:00"), End: timeutil.MustClock("09:30"), Duration: 30,
	})
	manager := NewGroupManager(repo, testLogger())

	_, err := manager.CancelSegment("solo", true, "operator-1")
	require.Error(t, err)
}

func TestCancelGroupKeepsCompletedAndRunning(t *testing.T) {
	repo := newTestRepo()
	seedGroup(t, repo)
	completed := types.StatusCompleted
	require.NoError(t, repo.UpdateAppointment("seg-1", &types.AppointmentUpdates{Status: &completed}))
	inProgress := types.StatusInProgress
	require.NoError(t, repo.UpdateAppointment("seg-2", &types.AppointmentUpdates{Status: &inProgress}))
	manager := NewGroupManager(repo, testLogger())

	require.NoError(t, manager.CancelGroup("grp-1", "operator-1"))

	group, err := manager.Get("grp-1")
	require.NoError(t, err)
	byID := indexByID(group)
	assert.Equal(t, types.StatusCompleted, byID["seg-1"].Status)
	assert.Equal(t, types.StatusInProgress, byID["seg-2"].Status)
	assert.Equal(t, types.StatusCancelled, byID["seg-3"].Status)
}

func TestCancelAllFutureSkipsPastAndClosed(t *testing.T) {
	repo := newTestRepo()
	now := time.Date(2026, 9, 7, 9, 45, 0, 0, time.UTC)

	// Already started this morning.
	addAppointment(t, repo, &types.Appointment{
		ID: "past", PatientID: "pat-1", PractitionerID: "prac-1", Category: types.CategoryConsultation,
		Date: testMonday, Start: timeutil.MustClock("09:00"), End: timeutil.MustClock("09:30"), Duration: 30,
	})
	// Later today.
	addAppointment(t, repo, &types.Appointment{
		ID: "today", PatientID: "pat-1", PractitionerID: "prac-1", Category: types.CategoryConsultation,
		Date: testMonday, Start: timeutil.MustClock("15:00"), End: timeutil.MustClock("15:30"), Duration: 30,
	})
	// Next week.
	addAppointment(t, repo, &types.Appointment{
		ID: "next-week", PatientID: "pat-1", PractitionerID: "prac-1", Category: types.CategoryConsultation,
		Date: "2026-09-14", Start: timeutil.MustClock("09:00"), End: timeutil.MustClock("09:30"), Duration: 30,
	})
	// Future but completed stays.
	addAppointment(t, repo, &types.Appointment{
		ID: "done", PatientID: "pat-1", PractitionerID: "prac-1", Category: types.CategoryConsultation,
		Date: "2026-09-14", Start: timeutil.MustClock("10:00"), End: timeutil.MustClock("10:30"), Duration: 30,
		Status: types.StatusCompleted,
	})
	// Future but already under way stays.
	addAppointment(t, repo, &types.Appointment{
		ID: "running", PatientID: "pat-1", PractitionerID: "prac-1", Category: types.CategoryConsultation,
		Date: "2026-09-14", Start: timeutil.MustClock("12:00"), End: timeutil.MustClock("12:30"), Duration: 30,
		Status: types.StatusInProgress,
	})
	// Different patient untouched.
	addAppointment(t, repo, &types.Appointment{
		ID: "other", PatientID: "pat-2", PractitionerID: "prac-1", Category: types.CategoryConsultation,
		Date: "2026-09-14", Start: timeutil.MustClock("11:00"), End: timeutil.MustClock("11:30"), Duration: 30,
	})

	manager := NewGroupManager(repo, testLogger())
	cancelled, err := manager.CancelAllFuture("pat-1", "operator-1", now)
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)

	for id, want := range map[string]types.AppointmentStatus{
		"past":      types.StatusScheduled,
		"today":     types.StatusCancelled,
		"next-week": types.StatusCancelled,
		"done":      types.StatusCompleted,
		"running":   types.StatusInProgress,
		"other":     types.StatusScheduled,
	} {
		apt, err := repo.GetAppointmentByID(id)
		require.NoError(t, err)
		assert.Equal(t, want, apt.Status, "appointment %s", id)
	}
}

func indexByID(appointments []*types.Appointment) map[string]*types.Appointment {
	byID := make(map[string]*types.Appointment, len(appointments))
	for _, apt := range appointments {
		byID[apt.ID] = apt
	}
	return byID
}

package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinova/clinic-scheduling/pkg/config"
	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

func newTestService(repo *MemoryRepository) *Service {
	cfg := &config.Config{
		Clinic: config.ClinicConfig{SlotDuration: 30, BufferMinutes: 5},
	}
	return NewService(cfg, repo, NoopLocker{}, nil, testLogger())
}

func consultationAt(start, end string) *types.Appointment {
	return &types.Appointment{
		PatientID:      "pat-1",
		PractitionerID: "prac-1",
		Category:       types.CategoryConsultation,
		Date:           testMonday,
		Start:          timeutil.MustClock(start),
		End:            timeutil.MustClock(end),
	}
}

func TestCreateAppointmentPersistsAndAudits(t *testing.T) {
	service := newTestService(newTestRepo())

	created, err := service.CreateAppointment(consultationAt("09:00", "09:30"), "operator-1", false)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, types.StatusScheduled, created.Status)
	assert.Equal(t, 30, created.Duration)
	require.NotEmpty(t, created.AccessLog)
	assert.Equal(t, "create", created.AccessLog[0].Action)
	assert.Equal(t, "operator-1", created.AccessLog[0].Actor)
}

func TestCreateAppointmentValidation(t *testing.T) {
	service := newTestService(newTestRepo())

	cases := []struct {
		name string
		apt  *types.Appointment
	}{
		{"missing patient", &types.Appointment{PractitionerID: "prac-1", Category: types.CategoryConsultation, Date: testMonday, Start: 540, End: 570}},
		{"bad category", &types.Appointment{PatientID: "pat-1", PractitionerID: "prac-1", Category: "surgery", Date: testMonday, Start: 540, End: 570}},
		{"treatment without machine", &types.Appointment{PatientID: "pat-1", PractitionerID: "prac-1", Category: types.CategoryTreatment, Date: testMonday, Start: 540, End: 570}},
		{"inverted window", consultationAt("10:00", "09:00")},
		{"bad date", &types.Appointment{PatientID: "pat-1", PractitionerID: "prac-1", Category: types.CategoryConsultation, Date: "07.09.2026", Start: 540, End: 570}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.CreateAppointment(tc.apt, "operator-1", false)
			require.Error(t, err)
			var schedErr *types.SchedulingError
			require.ErrorAs(t, err, &schedErr)
			assert.Equal(t, types.ErrorTypeValidation, schedErr.Type)
		})
	}
}

func TestCreateAppointmentClosedDay(t *testing.T) {
	service := newTestService(newTestRepo())

	apt := consultationAt("09:00", "09:30")
	apt.Date = "2026-09-13" // Sunday
	_, err := service.CreateAppointment(apt, "operator-1", false)

	var schedErr *types.SchedulingError
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, types.ErrCodeClinicClosed, schedErr.Code)
}

func TestCreateAppointmentResourceConflictBlocks(t *testing.T) {
	service := newTestService(newTestRepo())

	_, err := service.CreateAppointment(consultationAt("09:00", "09:30"), "operator-1", false)
	require.NoError(t, err)

	second := consultationAt("09:15", "09:45")
	second.PatientID = "pat-2"
	_, err = service.CreateAppointment(second, "operator-1", false)

	var schedErr *types.SchedulingError
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, types.ErrCodeResourceConflict, schedErr.Code)

	// The resource conflict is not skippable through the patient flag.
	_, err = service.CreateAppointment(second, "operator-1", true)
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, types.ErrCodeResourceConflict, schedErr.Code)
}

func TestCreateAppointmentPatientConflictAdvisory(t *testing.T) {
	service := newTestService(newTestRepo())

	_, err := service.CreateAppointment(consultationAt("09:00", "09:30"), "operator-1", false)
	require.NoError(t, err)

	// Same patient, different practitioner, overlapping window.
	second := consultationAt("09:15", "09:45")
	second.PractitionerID = "prac-2"
	_, err = service.CreateAppointment(second, "operator-1", false)

	var schedErr *types.SchedulingError
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, types.ErrCodePatientConflict, schedErr.Code)

	// Force-save with the skip flag records the override.
	created, err := service.CreateAppointment(second, "operator-1", true)
	require.NoError(t, err)
	actions := make([]string, 0, len(created.AccessLog))
	for _, entry := range created.AccessLog {
		actions = append(actions, entry.Action)
	}
	assert.Contains(t, actions, "patient_conflict_override")
}

func TestSkipFlagRequiresOperator(t *testing.T) {
	service := newTestService(newTestRepo())

	_, err := service.CreateAppointment(consultationAt("09:00", "09:30"), "", true)
	require.Error(t, err)
}

func TestUpdateAppointmentRerunsConflicts(t *testing.T) {
	service := newTestService(newTestRepo())

	_, err := service.CreateAppointment(consultationAt("09:00", "09:30"), "operator-1", false)
	require.NoError(t, err)

	second := consultationAt("10:00", "10:30")
	second.PatientID = "pat-2"
	moved, err := service.CreateAppointment(second, "operator-1", false)
	require.NoError(t, err)

	// Moving the second onto the first collides.
	start := timeutil.MustClock("09:15")
	end := timeutil.MustClock("09:45")
	_, err = service.UpdateAppointment(moved.ID, &types.AppointmentUpdates{Start: &start, End: &end}, "operator-1", false)
	var schedErr *types.SchedulingError
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, types.ErrCodeResourceConflict, schedErr.Code)

	// Moving into free time works, and keeping its own window does not
	// conflict with itself.
	start = timeutil.MustClock("11:00")
	end = timeutil.MustClock("11:30")
	updated, err := service.UpdateAppointment(moved.ID, &types.AppointmentUpdates{Start: &start, End: &end}, "operator-1", false)
	require.NoError(t, err)
	assert.Equal(t, timeutil.MustClock("11:00"), updated.Start)
	assert.Equal(t, 30, updated.Duration)
}

func TestTransitionStatusStateMachine(t *testing.T) {
	service := newTestService(newTestRepo())
	created, err := service.CreateAppointment(consultationAt("09:00", "09:30"), "operator-1", false)
	require.NoError(t, err)

	apt, err := service.TransitionStatus(created.ID, types.StatusConfirmed, "operator-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, apt.Status)

	apt, err = service.TransitionStatus(created.ID, types.StatusInProgress, "operator-1")
	require.NoError(t, err)
	apt, err = service.TransitionStatus(created.ID, types.StatusCompleted, "operator-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, apt.Status)

	// Completed is terminal.
	_, err = service.TransitionStatus(created.ID, types.StatusScheduled, "operator-1")
	var schedErr *types.SchedulingError
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, types.ErrCodeInvalidTransition, schedErr.Code)
}

func TestTransitionStatusNoBackward(t *testing.T) {
	service := newTestService(newTestRepo())
	created, err := service.CreateAppointment(consultationAt("09:00", "09:30"), "operator-1", false)
	require.NoError(t, err)

	_, err = service.TransitionStatus(created.ID, types.StatusConfirmed, "operator-1")
	require.NoError(t, err)
	_, err = service.TransitionStatus(created.ID, types.StatusScheduled, "operator-1")
	require.Error(t, err)
}

func TestCancelAppointment(t *testing.T) {
	service := newTestService(newTestRepo())
	created, err := service.CreateAppointment(consultationAt("09:00", "09:30"), "operator-1", false)
	require.NoError(t, err)

	require.NoError(t, service.CancelAppointment(created.ID, "operator-1"))

	apt, err := service.repo.GetAppointmentByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, apt.Status)

	// Cancelling again is a no-op.
	require.NoError(t, service.CancelAppointment(created.ID, "operator-1"))
}

func TestCancelAppointmentFollowsStatusMachine(t *testing.T) {
	service := newTestService(newTestRepo())

	inProgress, err := service.CreateAppointment(consultationAt("09:00", "09:30"), "operator-1", false)
	require.NoError(t, err)
	_, err = service.TransitionStatus(inProgress.ID, types.StatusConfirmed, "operator-1")
	require.NoError(t, err)
	_, err = service.TransitionStatus(inProgress.ID, types.StatusInProgress, "operator-1")
	require.NoError(t, err)

	// An appointment under way can only complete.
	err = service.CancelAppointment(inProgress.ID, "operator-1")
	var schedErr *types.SchedulingError
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, types.ErrCodeInvalidTransition, schedErr.Code)

	apt, err := service.repo.GetAppointmentByID(inProgress.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, apt.Status)

	noShow, err := service.CreateAppointment(consultationAt("10:00", "10:30"), "operator-1", false)
	require.NoError(t, err)
	_, err = service.TransitionStatus(noShow.ID, types.StatusNoShow, "operator-1")
	require.NoError(t, err)

	err = service.CancelAppointment(noShow.ID, "operator-1")
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, types.ErrCodeInvalidTransition, schedErr.Code)
}

func TestUpdateAppointmentSkipFlagRequiresOperator(t *testing.T) {
	service := newTestService(newTestRepo())
	created, err := service.CreateAppointment(consultationAt("09:00", "09:30"), "operator-1", false)
	require.NoError(t, err)

	start := timeutil.MustClock("10:00")
	end := timeutil.MustClock("10:30")
	_, err = service.UpdateAppointment(created.ID, &types.AppointmentUpdates{Start: &start, End: &end}, "", true)
	var schedErr *types.SchedulingError
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, types.ErrCodeInvalidInput, schedErr.Code)
}

func TestCreateAppointmentOutsideOperatingHours(t *testing.T) {
	service := newTestService(newTestRepo())

	cases := []struct {
		name       string
		start, end string
	}{
		{"before opening", "07:00", "07:30"},
		{"after closing", "22:00", "22:30"},
		{"runs past closing", "17:45", "18:15"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.CreateAppointment(consultationAt(tc.start, tc.end), "operator-1", false)
			var schedErr *types.SchedulingError
			require.ErrorAs(t, err, &schedErr)
			assert.Equal(t, types.ErrCodeClinicClosed, schedErr.Code)
		})
	}
}

func TestCreateMultiTreatmentAppointmentContiguous(t *testing.T) {
	service := newTestService(newTestRepo())

	created, err := service.CreateMultiTreatmentAppointment(&types.GroupCreateRequest{
		PatientID:      "pat-1",
		PractitionerID: "prac-1",
		Date:           testMonday,
		Start:          timeutil.MustClock("09:00"),
		Segments: []types.GroupSegmentSpec{
			{TreatmentID: "laser", Duration: 30},
			{TreatmentID: "peel", Duration: 45},
		},
	}, "operator-1")
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, created[0].GroupID, created[1].GroupID)
	assert.Equal(t, 1, created[0].GroupSequence)
	assert.Equal(t, 2, created[1].GroupSequence)
	assert.Equal(t, created[0].End, created[1].Start)
	assert.Equal(t, timeutil.MustClock("09:00"), created[0].Start)
	assert.Equal(t, timeutil.MustClock("10:15"), created[1].End)
	assert.NotEmpty(t, created[0].MachineID)
}

func TestCreateMultiTreatmentAppointmentPractitionerConflict(t *testing.T) {
	service := newTestService(newTestRepo())

	_, err := service.CreateAppointment(consultationAt("09:30", "10:00"), "operator-1", false)
	require.NoError(t, err)

	_, err = service.CreateMultiTreatmentAppointment(&types.GroupCreateRequest{
		PatientID:      "pat-2",
		PractitionerID: "prac-1",
		Date:           testMonday,
		Start:          timeutil.MustClock("09:00"),
		Segments: []types.GroupSegmentSpec{
			{TreatmentID: "laser", Duration: 60},
		},
	}, "operator-1")

	var schedErr *types.SchedulingError
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, types.ErrCodeResourceConflict, schedErr.Code)
}

func TestGetCalendarFilters(t *testing.T) {
	service := newTestService(newTestRepo())
	_, err := service.CreateAppointment(consultationAt("09:00", "09:30"), "operator-1", false)
	require.NoError(t, err)

	appointments, err := service.GetCalendar(&types.AppointmentFilters{
		PractitionerID: "prac-1",
		FromDate:       testMonday,
		ToDate:         testMonday,
	})
	require.NoError(t, err)
	assert.Len(t, appointments, 1)

	appointments, err = service.GetCalendar(&types.AppointmentFilters{PractitionerID: "prac-9"})
	require.NoError(t, err)
	assert.Empty(t, appointments)
}

package scheduling

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/clinova/clinic-scheduling/pkg/config"
	"github.com/clinova/clinic-scheduling/pkg/interfaces"
	"github.com/clinova/clinic-scheduling/pkg/logger"
	"github.com/clinova/clinic-scheduling/pkg/monitoring"
	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

// Service implements the scheduling service: slot generation, conflict
// checks, appointment lifecycle, linked groups and the booking
// workflow, exposed over HTTP.
type Service struct {
	config    *config.Config
	repo      interfaces.SchedulingRepository
	locker    interfaces.ResourceLocker
	slots     *SlotEngine
	conflicts *ConflictChecker
	groups    *GroupManager
	bookings  *BookingManager
	logger    *logger.Logger
	router    *mux.Router
	server    *http.Server
	health    func() error
}

// NewService creates a new scheduling service
func NewService(cfg *config.Config, repo interfaces.SchedulingRepository, locker interfaces.ResourceLocker, health func() error, log *logger.Logger) *Service {
	s := &Service{
		config:    cfg,
		repo:      repo,
		locker:    locker,
		slots:     NewSlotEngine(repo, log),
		conflicts: NewConflictChecker(repo),
		groups:    NewGroupManager(repo, log),
		logger:    log,
		health:    health,
	}
	s.bookings = NewBookingManager(s, log)
	s.router = mux.NewRouter()
	s.setupRoutes()
	return s
}

// GetSlots returns free slots for one resource on one date.
func (s *Service) GetSlots(date string, category types.AppointmentCategory, resourceID string, duration int) ([]types.Slot, error) {
	return s.slots.GenerateSlots(date, category, resourceID, duration)
}

// GetMultiTreatmentSlots returns slots admitting a chained treatment
// sequence with machine assignment.
func (s *Service) GetMultiTreatmentSlots(date string, practitionerID string, treatments []types.TreatmentRequest) ([]types.Slot, error) {
	return s.slots.GenerateMultiTreatmentSlots(date, practitionerID, treatments)
}

// CheckPatientOverlap runs the advisory patient conflict check.
func (s *Service) CheckPatientOverlap(patientID, date string, segments []types.Slot, excludeIDs []string) (*types.ConflictReport, error) {
	report, err := s.conflicts.ForPatient(patientID, date, segments, excludeIDs)
	if err != nil {
		return nil, err
	}
	if report.HasConflict {
		monitoring.RecordConflict("patient")
	}
	return report, nil
}

// CheckPractitionerAvailability runs the blocking practitioner conflict
// check for a candidate window.
func (s *Service) CheckPractitionerAvailability(practitionerID, date string, window types.Slot, excludeID string) (*types.PractitionerConflictReport, error) {
	report, err := s.conflicts.ForPractitioner(practitionerID, date, window.Start, window.End, excludeID)
	if err != nil {
		return nil, err
	}
	if report.Count > 0 {
		monitoring.RecordConflict("practitioner")
	}
	return report, nil
}

// CreateAppointment validates and persists a single appointment. The
// conflict checks run under the per-resource lock so two concurrent
// bookings cannot both pass. Patient conflicts are advisory and may be
// skipped by an authenticated operator; resource conflicts never are.
func (s *Service) CreateAppointment(apt *types.Appointment, actor string, skipPatientCheck bool) (*types.Appointment, error) {
	if err := s.validateAppointment(apt); err != nil {
		return nil, err
	}
	if skipPatientCheck && actor == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			"skip_patient_check requires an authenticated operator", nil)
	}

	var overridden bool
	err := s.locker.WithResourceLock(context.Background(), apt.PractitionerID, apt.Date, func(context.Context) error {
		forced, err := s.checkBookingConflicts(apt, "", skipPatientCheck)
		if err != nil {
			return err
		}
		overridden = forced
		return s.repo.CreateAppointment(apt)
	})
	if err != nil {
		monitoring.RecordBooking(string(apt.Category), "rejected")
		return nil, err
	}

	s.audit(apt.ID, "create", actor)
	if overridden {
		s.audit(apt.ID, "patient_conflict_override", actor)
	}
	monitoring.RecordBooking(string(apt.Category), "created")
	return s.repo.GetAppointmentByID(apt.ID)
}

// UpdateAppointment applies a partial update after re-running the
// conflict checks for the resulting window, excluding the appointment
// itself (and its group siblings from the patient check).
func (s *Service) UpdateAppointment(id string, updates *types.AppointmentUpdates, actor string, skipPatientCheck bool) (*types.Appointment, error) {
	current, err := s.repo.GetAppointmentByID(id)
	if err != nil {
		return nil, err
	}
	if current.IsClosed() {
		return nil, types.NewConflictError(types.ErrCodeInvalidTransition,
			fmt.Sprintf("appointment in state %s cannot be edited", current.Status), nil)
	}
	if updates.Status != nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			"status changes go through the status transition operation", nil)
	}
	if skipPatientCheck && actor == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			"skip_patient_check requires an authenticated operator", nil)
	}

	projected := *current
	if updates.PractitionerID != nil {
		projected.PractitionerID = *updates.PractitionerID
	}
	if updates.MachineID != nil {
		projected.MachineID = *updates.MachineID
	}
	if updates.Date != nil {
		projected.Date = *updates.Date
	}
	if updates.Start != nil {
		projected.Start = *updates.Start
	}
	if updates.End != nil {
		projected.End = *updates.End
	}
	if err := s.validateAppointment(&projected); err != nil {
		return nil, err
	}

	err = s.locker.WithResourceLock(context.Background(), projected.PractitionerID, projected.Date, func(context.Context) error {
		if _, err := s.checkBookingConflicts(&projected, id, skipPatientCheck); err != nil {
			return err
		}
		return s.repo.UpdateAppointment(id, updates)
	})
	if err != nil {
		return nil, err
	}

	s.audit(id, "update", actor)
	return s.repo.GetAppointmentByID(id)
}

// CancelAppointment soft-deletes an appointment.
func (s *Service) CancelAppointment(id, actor string) error {
	apt, err := s.repo.GetAppointmentByID(id)
	if err != nil {
		return err
	}
	if apt.Status == types.StatusCancelled {
		return nil
	}
	if !types.CanTransition(apt.Status, types.StatusCancelled) {
		return types.NewConflictError(types.ErrCodeInvalidTransition,
			fmt.Sprintf("appointments in state %s cannot be cancelled", apt.Status), nil)
	}
	if err := s.repo.CancelAppointment(id); err != nil {
		return err
	}
	s.audit(id, "cancel", actor)
	monitoring.RecordBooking(string(apt.Category), "cancelled")
	return nil
}

// TransitionStatus moves an appointment through the one-directional
// status state machine. Each transition appends an audit entry; invalid
// transitions are conflict errors.
func (s *Service) TransitionStatus(id string, to types.AppointmentStatus, actor string) (*types.Appointment, error) {
	apt, err := s.repo.GetAppointmentByID(id)
	if err != nil {
		return nil, err
	}
	if !types.CanTransition(apt.Status, to) {
		return nil, types.NewConflictError(types.ErrCodeInvalidTransition,
			fmt.Sprintf("cannot transition from %s to %s", apt.Status, to), nil)
	}
	if err := s.repo.UpdateAppointment(id, &types.AppointmentUpdates{Status: &to}); err != nil {
		return nil, err
	}
	s.audit(id, fmt.Sprintf("status_%s", to), actor)
	return s.repo.GetAppointmentByID(id)
}

// CreateMultiTreatmentAppointment creates a linked group: contiguous
// segments for one patient starting at the requested time, each
// assigned a machine. Creation is atomic from the caller's view;
// already-created segments are cancelled when a later one fails.
func (s *Service) CreateMultiTreatmentAppointment(payload *types.GroupCreateRequest, actor string) ([]*types.Appointment, error) {
	if payload.PatientID == "" || payload.PractitionerID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "patient_id and practitioner_id are required", nil)
	}
	if len(payload.Segments) == 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "at least one segment is required", nil)
	}
	if payload.SkipPatientCheck && actor == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			"skip_patient_check requires an authenticated operator", nil)
	}

	schedule, err := s.repo.GetClinicSchedule()
	if err != nil {
		return nil, fmt.Errorf("failed to load clinic schedule: %w", err)
	}
	calendar := NewClinicCalendar(schedule)
	hours, open := calendar.Hours(payload.Date)
	if !open {
		return nil, types.NewConflictError(types.ErrCodeClinicClosed,
			fmt.Sprintf("clinic is closed on %s", payload.Date), nil)
	}

	appointments, err := s.buildGroupSegments(payload)
	if err != nil {
		return nil, err
	}
	groupStart := appointments[0].Start
	groupEnd := appointments[len(appointments)-1].End
	if groupStart < hours.Open || groupEnd > hours.Close {
		return nil, types.NewConflictError(types.ErrCodeClinicClosed,
			fmt.Sprintf("requested window falls outside clinic hours on %s", payload.Date), nil)
	}

	var created []*types.Appointment
	err = s.locker.WithResourceLock(context.Background(), payload.PractitionerID, payload.Date, func(context.Context) error {
		report, err := s.conflicts.ForPractitioner(payload.PractitionerID, payload.Date, groupStart, groupEnd, "")
		if err != nil {
			return err
		}
		if report.Count > 0 {
			monitoring.RecordConflict("practitioner")
			return types.NewConflictError(types.ErrCodeResourceConflict,
				"practitioner has conflicting appointments", map[string]interface{}{"conflicts": report.Conflicts})
		}

		for _, apt := range appointments {
			machineReport, err := s.conflicts.ForMachine(apt.MachineID, payload.Date, apt.Start, apt.End, "")
			if err != nil {
				return err
			}
			if machineReport.HasConflict {
				monitoring.RecordConflict("machine")
				return types.NewConflictError(types.ErrCodeResourceConflict,
					fmt.Sprintf("machine %s has conflicting appointments", apt.MachineID), nil)
			}
		}

		segments := make([]types.Slot, 0, len(appointments))
		for _, apt := range appointments {
			segments = append(segments, types.Slot{Start: apt.Start, End: apt.End})
		}
		patientReport, err := s.conflicts.ForPatient(payload.PatientID, payload.Date, segments, nil)
		if err != nil {
			return err
		}
		if patientReport.HasConflict && !payload.SkipPatientCheck {
			monitoring.RecordConflict("patient")
			return types.NewConflictError(types.ErrCodePatientConflict,
				"patient has overlapping appointments", map[string]interface{}{
					"advisory":  true,
					"conflicts": patientReport.Conflicts,
				})
		}

		for _, apt := range appointments {
			if err := s.repo.CreateAppointment(apt); err != nil {
				s.rollbackSegments(created, actor)
				return fmt.Errorf("failed to create group segment: %w", err)
			}
			created = append(created, apt)
		}
		return nil
	})
	if err != nil {
		monitoring.RecordBooking(string(types.CategoryTreatment), "rejected")
		return nil, err
	}

	for _, apt := range created {
		s.audit(apt.ID, "create_group", actor)
	}
	monitoring.RecordBooking(string(types.CategoryTreatment), "created")
	return s.groups.Get(created[0].GroupID)
}

// buildGroupSegments expands the request into contiguous appointment
// segments, assigning a machine to each segment that has none.
func (s *Service) buildGroupSegments(payload *types.GroupCreateRequest) ([]*types.Appointment, error) {
	treatments := make([]types.TreatmentRequest, 0, len(payload.Segments))
	for _, seg := range payload.Segments {
		if seg.Duration <= 0 {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput,
				fmt.Sprintf("segment %s has no duration", seg.TreatmentID), nil)
		}
		treatments = append(treatments, types.TreatmentRequest{TreatmentID: seg.TreatmentID, Duration: seg.Duration})
	}

	machines, err := s.repo.GetMachines()
	if err != nil {
		return nil, fmt.Errorf("failed to load machines: %w", err)
	}
	machineBusy := make(map[string][]busyWindow, len(machines))
	for _, m := range machines {
		if !m.IsActive {
			continue
		}
		busy, err := s.slots.machineBusyWindows(payload.Date, m.ID)
		if err != nil {
			return nil, err
		}
		machineBusy[m.ID] = busy
	}

	assigned, ok := assignMachines(payload.Start, treatments, machines, machineBusy)
	if !ok {
		return nil, types.NewConflictError(types.ErrCodeSlotTaken,
			"no machine assignment admits the requested start time", nil)
	}

	groupID := uuid.New().String()
	appointments := make([]*types.Appointment, 0, len(assigned))
	for i, seg := range assigned {
		machineID := seg.MachineID
		if payload.Segments[i].MachineID != "" {
			machineID = payload.Segments[i].MachineID
		}
		appointments = append(appointments, &types.Appointment{
			PatientID:      payload.PatientID,
			PractitionerID: payload.PractitionerID,
			AssistantID:    payload.AssistantID,
			MachineID:      machineID,
			Category:       types.CategoryTreatment,
			Date:           payload.Date,
			Start:          seg.Start,
			End:            seg.End,
			Duration:       int(seg.End) - int(seg.Start),
			Priority:       payload.Priority,
			GroupID:        groupID,
			GroupSequence:  i + 1,
			Notes:          payload.Notes,
			Reminders:      payload.Reminders,
		})
	}
	return appointments, nil
}

// rollbackSegments compensates a partial group creation.
func (s *Service) rollbackSegments(created []*types.Appointment, actor string) {
	for _, apt := range created {
		if err := s.repo.CancelAppointment(apt.ID); err != nil {
			s.logger.WithError(err).WithField("appointment_id", apt.ID).Error("Failed to roll back group segment")
			continue
		}
		s.audit(apt.ID, "rollback_group", actor)
	}
}

// GetAppointmentGroup returns the group ordered by sequence.
func (s *Service) GetAppointmentGroup(groupID string) ([]*types.Appointment, error) {
	return s.groups.Get(groupID)
}

// UpdateAppointmentGroup propagates shared fields to all non-completed
// segments.
func (s *Service) UpdateAppointmentGroup(groupID string, updates *types.AppointmentUpdates, actor string) ([]*types.Appointment, error) {
	return s.groups.PropagateEdit(groupID, updates, actor)
}

// CancelAppointmentGroup cancels every open segment of the group.
func (s *Service) CancelAppointmentGroup(groupID, actor string) error {
	return s.groups.CancelGroup(groupID, actor)
}

// CancelGroupSegment cancels one segment, optionally shifting later
// segments earlier by its duration.
func (s *Service) CancelGroupSegment(appointmentID string, recalculate bool, actor string) ([]*types.Appointment, error) {
	return s.groups.CancelSegment(appointmentID, recalculate, actor)
}

// CancelAllFuture cancels every future open appointment of the patient.
func (s *Service) CancelAllFuture(patientID, actor string) (int, error) {
	return s.groups.CancelAllFuture(patientID, actor, time.Now())
}

// GetCalendar returns appointments for calendar rendering.
func (s *Service) GetCalendar(filters *types.AppointmentFilters) ([]*types.Appointment, error) {
	return s.repo.GetAppointments(filters)
}

// validateAppointment checks structural invariants and clinic hours.
func (s *Service) validateAppointment(apt *types.Appointment) error {
	if apt.PatientID == "" || apt.PractitionerID == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "patient_id and practitioner_id are required", nil)
	}
	if apt.Category != types.CategoryTreatment && apt.Category != types.CategoryConsultation {
		return types.NewValidationError(types.ErrCodeInvalidInput, "category must be treatment or consultation", nil)
	}
	if apt.Category == types.CategoryTreatment && apt.MachineID == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "machine_id is required for treatments", nil)
	}
	if _, err := timeutil.ParseDate(apt.Date); err != nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, err.Error(), nil)
	}
	if apt.Start >= apt.End {
		return types.NewValidationError(types.ErrCodeInvalidInput, "start_time must be before end_time", nil)
	}
	if apt.Duration <= 0 {
		apt.Duration = int(apt.End) - int(apt.Start)
	}

	schedule, err := s.repo.GetClinicSchedule()
	if err != nil {
		return fmt.Errorf("failed to load clinic schedule: %w", err)
	}
	calendar := NewClinicCalendar(schedule)
	if !calendar.IsOpen(apt.Date) {
		return types.NewConflictError(types.ErrCodeClinicClosed,
			fmt.Sprintf("clinic is closed on %s", apt.Date), nil)
	}
	if !calendar.IsOpenAt(apt.Date, apt.Start) {
		return types.NewConflictError(types.ErrCodeClinicClosed,
			fmt.Sprintf("clinic is closed at %s on %s", apt.Start, apt.Date), nil)
	}
	hours, _ := calendar.Hours(apt.Date)
	if apt.End > hours.Close {
		return types.NewConflictError(types.ErrCodeClinicClosed,
			fmt.Sprintf("appointment runs past closing time on %s", apt.Date), nil)
	}
	return nil
}

// checkBookingConflicts runs the resource and patient conflict checks
// for a candidate appointment. Reports whether an advisory patient
// conflict was skipped.
func (s *Service) checkBookingConflicts(apt *types.Appointment, excludeID string, skipPatientCheck bool) (bool, error) {
	if !apt.AllowOverlap {
		report, err := s.conflicts.ForPractitioner(apt.PractitionerID, apt.Date, apt.Start, apt.End, excludeID)
		if err != nil {
			return false, err
		}
		if report.Count > 0 {
			monitoring.RecordConflict("practitioner")
			return false, types.NewConflictError(types.ErrCodeResourceConflict,
				"practitioner has conflicting appointments", map[string]interface{}{"conflicts": report.Conflicts})
		}

		if apt.MachineID != "" {
			machineReport, err := s.conflicts.ForMachine(apt.MachineID, apt.Date, apt.Start, apt.End, excludeID)
			if err != nil {
				return false, err
			}
			if machineReport.HasConflict {
				monitoring.RecordConflict("machine")
				return false, types.NewConflictError(types.ErrCodeResourceConflict,
					fmt.Sprintf("machine %s has conflicting appointments", apt.MachineID), nil)
			}
		}
	}

	excludeIDs := []string{}
	if excludeID != "" {
		existing, err := s.repo.GetAppointmentByID(excludeID)
		if err != nil {
			return false, err
		}
		excludeIDs, err = s.conflicts.siblingIDs(existing)
		if err != nil {
			return false, err
		}
	}
	patientReport, err := s.conflicts.ForPatient(apt.PatientID, apt.Date,
		[]types.Slot{{Start: apt.Start, End: apt.End}}, excludeIDs)
	if err != nil {
		return false, err
	}
	if patientReport.HasConflict {
		monitoring.RecordConflict("patient")
		if !skipPatientCheck {
			return false, types.NewConflictError(types.ErrCodePatientConflict,
				"patient has overlapping appointments", map[string]interface{}{
					"advisory":  true,
					"conflicts": patientReport.Conflicts,
				})
		}
		return true, nil
	}
	return false, nil
}

func (s *Service) audit(appointmentID, action, actor string) {
	entry := types.AccessLogEntry{Action: action, Actor: actor, Timestamp: time.Now()}
	if err := s.repo.AppendAccessLog(appointmentID, entry); err != nil {
		s.logger.WithError(err).WithField("appointment_id", appointmentID).Warn("Failed to append access log entry")
	}
	s.logger.Audit(actor, action, fmt.Sprintf("appointment:%s", appointmentID), true, nil)
}

// Start begins serving HTTP on the given address.
func (s *Service) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}

	s.logger.WithField("addr", addr).Info("Scheduling service listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Service) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

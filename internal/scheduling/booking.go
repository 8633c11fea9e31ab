package scheduling

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinova/clinic-scheduling/pkg/logger"
	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

// BookingStep is one stage of the booking workflow.
type BookingStep string

const (
	StepCategory   BookingStep = "category"
	StepPatient    BookingStep = "patient"
	StepTreatments BookingStep = "treatments"
	StepSlot       BookingStep = "slot"
	StepStaff      BookingStep = "staff"
	StepConfirm    BookingStep = "confirm"
	StepCommitted  BookingStep = "committed"
)

// BookingSession is the server-side state of one in-progress booking.
// Nothing is persisted until commit; abandoning a session has no side
// effects.
type BookingSession struct {
	ID               string                    `json:"id"`
	Step             BookingStep               `json:"step"`
	Category         types.AppointmentCategory `json:"category,omitempty"`
	PatientID        string                    `json:"patient_id,omitempty"`
	Treatments       []types.TreatmentRequest  `json:"treatments,omitempty"`
	Duration         int                       `json:"duration,omitempty"`
	Date             string                    `json:"date,omitempty"`
	Start            timeutil.ClockTime        `json:"start_time,omitempty"`
	PractitionerID   string                    `json:"practitioner_id,omitempty"`
	AssistantID      string                    `json:"assistant_id,omitempty"`
	Priority         types.AppointmentPriority `json:"priority,omitempty"`
	Notes            string                    `json:"notes,omitempty"`
	Reminders        []types.ReminderRule      `json:"reminders,omitempty"`
	SkipPatientCheck bool                      `json:"skip_patient_check,omitempty"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

// BookingStepPayload carries the data for one workflow step.
type BookingStepPayload struct {
	Category         types.AppointmentCategory `json:"category,omitempty"`
	PatientID        string                    `json:"patient_id,omitempty"`
	Treatments       []types.TreatmentRequest  `json:"treatments,omitempty"`
	Duration         int                       `json:"duration,omitempty"`
	Date             string                    `json:"date,omitempty"`
	Start            *timeutil.ClockTime       `json:"start_time,omitempty"`
	PractitionerID   string                    `json:"practitioner_id,omitempty"`
	AssistantID      string                    `json:"assistant_id,omitempty"`
	Priority         types.AppointmentPriority `json:"priority,omitempty"`
	Notes            string                    `json:"notes,omitempty"`
	Reminders        []types.ReminderRule      `json:"reminders,omitempty"`
	SkipPatientCheck bool                      `json:"skip_patient_check,omitempty"`
}

// bookingCommitter persists a completed session. The service implements
// it; commits run their conflict checks under the resource lock there.
type bookingCommitter interface {
	CreateAppointment(apt *types.Appointment, actor string, skipPatientCheck bool) (*types.Appointment, error)
	CreateMultiTreatmentAppointment(payload *types.GroupCreateRequest, actor string) ([]*types.Appointment, error)
}

// BookingManager runs the booking workflow: sessions advance through
// category, patient, treatments, slot and staff before commit. Each
// step validates its prerequisites; consultations skip the treatments
// step. Sessions live in memory and expire when idle.
type BookingManager struct {
	mu        sync.Mutex
	sessions  map[string]*BookingSession
	committer bookingCommitter
	logger    *logger.Logger
	ttl       time.Duration
}

// NewBookingManager creates a booking manager committing through the service
func NewBookingManager(committer bookingCommitter, log *logger.Logger) *BookingManager {
	return &BookingManager{
		sessions:  make(map[string]*BookingSession),
		committer: committer,
		logger:    log,
		ttl:       30 * time.Minute,
	}
}

// Open starts a new workflow session at the category step.
func (b *BookingManager) Open() *BookingSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sweepLocked()

	now := time.Now()
	session := &BookingSession{
		ID:        uuid.New().String(),
		Step:      StepCategory,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.sessions[session.ID] = session
	return session
}

// Get returns the session by ID.
func (b *BookingManager) Get(id string) (*BookingSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getLocked(id)
}

func (b *BookingManager) getLocked(id string) (*BookingSession, error) {
	session, ok := b.sessions[id]
	if !ok || time.Since(session.UpdatedAt) > b.ttl {
		delete(b.sessions, id)
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("booking session not found: %s", id))
	}
	return session, nil
}

func (b *BookingManager) sweepLocked() {
	for id, session := range b.sessions {
		if time.Since(session.UpdatedAt) > b.ttl {
			delete(b.sessions, id)
		}
	}
}

// nextStep returns the step that follows current for the session's
// category. Consultations have no treatments step.
func nextStep(current BookingStep, category types.AppointmentCategory) BookingStep {
	switch current {
	case StepCategory:
		return StepPatient
	case StepPatient:
		if category == types.CategoryConsultation {
			return StepSlot
		}
		return StepTreatments
	case StepTreatments:
		return StepSlot
	case StepSlot:
		return StepStaff
	case StepStaff:
		return StepConfirm
	default:
		return StepConfirm
	}
}

// Advance applies one step's payload to the session. The step must be
// the session's current step; earlier steps may be replayed to revise a
// choice, which rewinds the workflow to that step before applying.
func (b *BookingManager) Advance(id string, step BookingStep, payload *BookingStepPayload) (*BookingSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, err := b.getLocked(id)
	if err != nil {
		return nil, err
	}
	if session.Step == StepCommitted {
		return nil, types.NewConflictError(types.ErrCodeInvalidTransition, "booking session already committed", nil)
	}
	if !b.stepReached(session, step) {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("step %s is not available yet (current step: %s)", step, session.Step), nil)
	}

	if err := b.applyStep(session, step, payload); err != nil {
		return nil, err
	}
	session.Step = nextStep(step, session.Category)
	session.UpdatedAt = time.Now()
	return session, nil
}

// stepReached reports whether the workflow has reached the step, so
// replays of completed steps are allowed but skipping ahead is not.
func (b *BookingManager) stepReached(session *BookingSession, step BookingStep) bool {
	order := []BookingStep{StepCategory, StepPatient, StepTreatments, StepSlot, StepStaff, StepConfirm}
	for _, s := range order {
		if s == step {
			return true
		}
		if s == session.Step {
			return false
		}
	}
	return false
}

func (b *BookingManager) applyStep(session *BookingSession, step BookingStep, payload *BookingStepPayload) error {
	switch step {
	case StepCategory:
		if payload.Category != types.CategoryTreatment && payload.Category != types.CategoryConsultation {
			return types.NewValidationError(types.ErrCodeInvalidInput, "category must be treatment or consultation", nil)
		}
		session.Category = payload.Category
	case StepPatient:
		if payload.PatientID == "" {
			return types.NewValidationError(types.ErrCodeInvalidInput, "patient_id is required", nil)
		}
		session.PatientID = payload.PatientID
	case StepTreatments:
		if session.Category != types.CategoryTreatment {
			return types.NewValidationError(types.ErrCodeInvalidInput, "treatments apply to treatment bookings only", nil)
		}
		if len(payload.Treatments) == 0 {
			return types.NewValidationError(types.ErrCodeInvalidInput, "at least one treatment is required", nil)
		}
		for _, t := range payload.Treatments {
			if t.Duration <= 0 {
				return types.NewValidationError(types.ErrCodeInvalidInput,
					fmt.Sprintf("treatment %s has no duration", t.TreatmentID), nil)
			}
		}
		session.Treatments = payload.Treatments
	case StepSlot:
		if payload.Date == "" || payload.Start == nil {
			return types.NewValidationError(types.ErrCodeInvalidInput, "date and start_time are required", nil)
		}
		if _, err := timeutil.ParseDate(payload.Date); err != nil {
			return types.NewValidationError(types.ErrCodeInvalidInput, err.Error(), nil)
		}
		if session.Category == types.CategoryConsultation && payload.Duration <= 0 {
			return types.NewValidationError(types.ErrCodeInvalidInput, "duration is required for consultations", nil)
		}
		session.Date = payload.Date
		session.Start = *payload.Start
		session.Duration = payload.Duration
	case StepStaff:
		if payload.PractitionerID == "" {
			return types.NewValidationError(types.ErrCodeInvalidInput, "practitioner_id is required", nil)
		}
		session.PractitionerID = payload.PractitionerID
		session.AssistantID = payload.AssistantID
	case StepConfirm:
		session.Priority = payload.Priority
		session.Notes = payload.Notes
		session.Reminders = payload.Reminders
		session.SkipPatientCheck = payload.SkipPatientCheck
	default:
		return types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("unknown step: %s", step), nil)
	}
	return nil
}

// Commit persists the session as a single appointment or a linked
// group. Conflict checks run again inside the committer, under the
// resource lock; a commit that fails leaves nothing behind.
func (b *BookingManager) Commit(id, actor string) ([]*types.Appointment, error) {
	b.mu.Lock()
	session, err := b.getLocked(id)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if session.Step != StepConfirm {
		b.mu.Unlock()
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("booking session is not ready to commit (current step: %s)", session.Step), nil)
	}
	// Snapshot before releasing the lock; the commit itself talks to
	// the database and must not hold the session map.
	snapshot := *session
	b.mu.Unlock()

	// Treatment sessions go through the group path regardless of
	// segment count: machine assignment lives there.
	var created []*types.Appointment
	if snapshot.Category == types.CategoryTreatment && len(snapshot.Treatments) > 0 {
		segments := make([]types.GroupSegmentSpec, 0, len(snapshot.Treatments))
		for _, t := range snapshot.Treatments {
			segments = append(segments, types.GroupSegmentSpec{TreatmentID: t.TreatmentID, Duration: t.Duration})
		}
		created, err = b.committer.CreateMultiTreatmentAppointment(&types.GroupCreateRequest{
			PatientID:        snapshot.PatientID,
			PractitionerID:   snapshot.PractitionerID,
			AssistantID:      snapshot.AssistantID,
			Date:             snapshot.Date,
			Start:            snapshot.Start,
			Segments:         segments,
			Priority:         snapshot.Priority,
			Notes:            snapshot.Notes,
			Reminders:        snapshot.Reminders,
			SkipPatientCheck: snapshot.SkipPatientCheck,
		}, actor)
	} else {
		duration := snapshot.Duration
		apt := &types.Appointment{
			PatientID:      snapshot.PatientID,
			PractitionerID: snapshot.PractitionerID,
			AssistantID:    snapshot.AssistantID,
			Category:       snapshot.Category,
			Date:           snapshot.Date,
			Start:          snapshot.Start,
			End:            snapshot.Start.Add(duration),
			Duration:       duration,
			Priority:       snapshot.Priority,
			Notes:          snapshot.Notes,
			Reminders:      snapshot.Reminders,
		}
		var single *types.Appointment
		single, err = b.committer.CreateAppointment(apt, actor, snapshot.SkipPatientCheck)
		if single != nil {
			created = []*types.Appointment{single}
		}
	}
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if current, ok := b.sessions[id]; ok {
		current.Step = StepCommitted
		current.UpdatedAt = time.Now()
	}
	b.mu.Unlock()

	b.logger.WithFields(map[string]interface{}{
		"session_id":   id,
		"appointments": len(created),
	}).Info("Booking session committed")
	return created, nil
}

// Abandon discards the session. Unknown sessions are not an error.
func (b *BookingManager) Abandon(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, id)
}

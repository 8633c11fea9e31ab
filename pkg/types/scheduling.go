package types

import (
	"time"

	"github.com/clinova/clinic-scheduling/pkg/timeutil"
)

// AppointmentCategory distinguishes the two booking kinds the clinic runs.
type AppointmentCategory string

const (
	CategoryTreatment    AppointmentCategory = "treatment"
	CategoryConsultation AppointmentCategory = "consultation"
)

// AppointmentStatus represents appointment status values
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// statusTransitions is the forward-only state machine. no_show and
// cancelled are absorbing, reachable from scheduled or confirmed.
var statusTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:  {StatusConfirmed, StatusInProgress, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AppointmentPriority represents appointment priority values
type AppointmentPriority string

const (
	PriorityLow    AppointmentPriority = "low"
	PriorityNormal AppointmentPriority = "normal"
	PriorityHigh   AppointmentPriority = "high"
	PriorityUrgent AppointmentPriority = "urgent"
)

// ReminderRecipient identifies who a reminder rule targets.
type ReminderRecipient string

const (
	RecipientPatient      ReminderRecipient = "patient"
	RecipientPractitioner ReminderRecipient = "practitioner"
)

// ReminderRule configures one reminder for one recipient.
type ReminderRule struct {
	Recipient   ReminderRecipient `json:"recipient"`
	Enabled     bool              `json:"enabled"`
	LeadMinutes int               `json:"lead_minutes"`
}

// AccessLogEntry records one action taken against an appointment.
type AccessLogEntry struct {
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

// Appointment represents a scheduled appointment. Appointments are soft
// deleted only: cancellation changes status but the record is retained
// for its audit history.
type Appointment struct {
	ID             string              `json:"id" db:"id"`
	PatientID      string              `json:"patient_id" db:"patient_id"`
	PractitionerID string              `json:"practitioner_id" db:"practitioner_id"`
	AssistantID    string              `json:"assistant_id,omitempty" db:"assistant_id"`
	MachineID      string              `json:"machine_id,omitempty" db:"machine_id"`
	Category       AppointmentCategory `json:"category" db:"category"`
	Date           string              `json:"date" db:"date"`
	Start          timeutil.ClockTime  `json:"start_time" db:"start_minute"`
	End            timeutil.ClockTime  `json:"end_time" db:"end_minute"`
	Duration       int                 `json:"duration" db:"duration"`
	Status         AppointmentStatus   `json:"status" db:"status"`
	Priority       AppointmentPriority `json:"priority" db:"priority"`
	GroupID        string              `json:"group_id,omitempty" db:"group_id"`
	GroupSequence  int                 `json:"group_sequence,omitempty" db:"group_sequence"`
	AllowOverlap   bool                `json:"allow_overlap,omitempty" db:"allow_overlap"`
	Notes          string              `json:"notes,omitempty" db:"notes"`
	Reminders      []ReminderRule      `json:"reminders,omitempty"`
	AccessLog      []AccessLogEntry    `json:"access_log,omitempty"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the appointment still occupies its time window.
func (a *Appointment) IsActive() bool {
	return a.Status != StatusCancelled
}

// IsClosed reports whether the appointment is in a final state.
func (a *Appointment) IsClosed() bool {
	return a.Status == StatusCompleted || a.Status == StatusCancelled || a.Status == StatusNoShow
}

// StartAt returns the appointment start as a wall-clock instant.
func (a *Appointment) StartAt() (time.Time, error) {
	day, err := timeutil.ParseDate(a.Date)
	if err != nil {
		return time.Time{}, err
	}
	return a.Start.At(day), nil
}

// IsLate reports whether the appointment start has passed while it is
// still waiting to begin. Late is derived, never persisted.
func (a *Appointment) IsLate(now time.Time) bool {
	if a.Status != StatusScheduled && a.Status != StatusConfirmed {
		return false
	}
	start, err := a.StartAt()
	if err != nil {
		return false
	}
	return now.After(start)
}

// Overlaps reports whether two appointments on the same date have
// intersecting time windows.
func (a *Appointment) Overlaps(other *Appointment) bool {
	if a.Date != other.Date {
		return false
	}
	return timeutil.Overlaps(a.Start, a.End, other.Start, other.End)
}

// TreatmentRequest is one segment of a multi-treatment booking request.
type TreatmentRequest struct {
	TreatmentID string `json:"treatment_id"`
	Name        string `json:"name,omitempty"`
	Duration    int    `json:"duration"`
}

// SlotSegment is one treatment's sub-interval inside a multi-treatment
// slot, with the machine chosen for it.
type SlotSegment struct {
	TreatmentID string             `json:"treatment_id"`
	MachineID   string             `json:"machine_id"`
	Start       timeutil.ClockTime `json:"start_time"`
	End         timeutil.ClockTime `json:"end_time"`
}

// Slot is a candidate booking window. Slots are derived, not stored.
type Slot struct {
	Start    timeutil.ClockTime `json:"start_time"`
	End      timeutil.ClockTime `json:"end_time"`
	Segments []SlotSegment      `json:"segments,omitempty"`
}

// ConflictReport summarizes the conflicts found for a candidate window.
// First is the earliest-starting conflict; Count covers all of them.
type ConflictReport struct {
	HasConflict bool           `json:"has_conflict"`
	Advisory    bool           `json:"advisory,omitempty"`
	Count       int            `json:"count"`
	First       *Appointment   `json:"first,omitempty"`
	Conflicts   []*Appointment `json:"conflicts,omitempty"`
}

// PractitionerConflictReport is the result of a practitioner
// availability check, split by the category of the conflicting
// appointments.
type PractitionerConflictReport struct {
	HasConsultationConflict bool           `json:"has_consultation_conflict"`
	HasTreatmentConflict    bool           `json:"has_treatment_conflict"`
	Count                   int            `json:"count"`
	First                   *Appointment   `json:"first,omitempty"`
	Conflicts               []*Appointment `json:"conflicts,omitempty"`
}

// AvailabilityWindow is one open time range for a practitioner on a weekday.
type AvailabilityWindow struct {
	Weekday time.Weekday       `json:"weekday"`
	Start   timeutil.ClockTime `json:"start_time"`
	End     timeutil.ClockTime `json:"end_time"`
}

// DayHours is the clinic's operating window for one weekday.
type DayHours struct {
	Enabled bool               `json:"enabled"`
	Open    timeutil.ClockTime `json:"open"`
	Close   timeutil.ClockTime `json:"close"`
}

// ClinicSchedule is the clinic-wide scheduling configuration.
type ClinicSchedule struct {
	Hours         map[time.Weekday]DayHours `json:"hours"`
	ClosedDates   []ClosedDate              `json:"closed_dates"`
	SlotDuration  int                       `json:"slot_duration"`
	BufferMinutes int                       `json:"buffer_minutes"`
}

// ClosedDate marks one calendar day as fully closed regardless of
// weekday hours.
type ClosedDate struct {
	Date   string `json:"date"`
	Reason string `json:"reason,omitempty"`
}

// Practitioner is a clinician whose time is a bookable resource.
type Practitioner struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Role      string    `json:"role" db:"role"`
	Specialty string    `json:"specialty,omitempty" db:"specialty"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Machine is a treatment device whose time is a bookable resource.
type Machine struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	IsActive bool   `json:"is_active" db:"is_active"`
}

// GroupSegmentSpec is one treatment segment in a linked-group create
// request. MachineID may be empty, in which case a machine is assigned
// during slot validation.
type GroupSegmentSpec struct {
	TreatmentID string `json:"treatment_id"`
	Duration    int    `json:"duration"`
	MachineID   string `json:"machine_id,omitempty"`
}

// GroupCreateRequest creates a linked multi-treatment group: contiguous
// segments for one patient, back to back starting at Start.
type GroupCreateRequest struct {
	PatientID        string              `json:"patient_id"`
	PractitionerID   string              `json:"practitioner_id"`
	AssistantID      string              `json:"assistant_id,omitempty"`
	Date             string              `json:"date"`
	Start            timeutil.ClockTime  `json:"start_time"`
	Segments         []GroupSegmentSpec  `json:"segments"`
	Priority         AppointmentPriority `json:"priority,omitempty"`
	Notes            string              `json:"notes,omitempty"`
	Reminders        []ReminderRule      `json:"reminders,omitempty"`
	SkipPatientCheck bool                `json:"skip_patient_check,omitempty"`
}

// AppointmentFilters represents filters for appointment queries
type AppointmentFilters struct {
	PatientID      string              `json:"patient_id,omitempty"`
	PractitionerID string              `json:"practitioner_id,omitempty"`
	MachineID      string              `json:"machine_id,omitempty"`
	GroupID        string              `json:"group_id,omitempty"`
	Status         AppointmentStatus   `json:"status,omitempty"`
	Category       AppointmentCategory `json:"category,omitempty"`
	FromDate       string              `json:"from_date,omitempty"`
	ToDate         string              `json:"to_date,omitempty"`
	Limit          int                 `json:"limit,omitempty"`
	Offset         int                 `json:"offset,omitempty"`
}

// AppointmentUpdates represents a partial update to an appointment.
type AppointmentUpdates struct {
	PractitionerID *string              `json:"practitioner_id,omitempty"`
	AssistantID    *string              `json:"assistant_id,omitempty"`
	MachineID      *string              `json:"machine_id,omitempty"`
	Date           *string              `json:"date,omitempty"`
	Start          *timeutil.ClockTime  `json:"start_time,omitempty"`
	End            *timeutil.ClockTime  `json:"end_time,omitempty"`
	Status         *AppointmentStatus   `json:"status,omitempty"`
	Priority       *AppointmentPriority `json:"priority,omitempty"`
	Notes          *string              `json:"notes,omitempty"`
}

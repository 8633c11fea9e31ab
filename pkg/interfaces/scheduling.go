package interfaces

import (
	"context"
	"time"

	"github.com/clinova/clinic-scheduling/pkg/types"
)

// SchedulingRepository defines the interface for scheduling data
// persistence. Appointments are soft-deleted only; cancellation keeps
// the row for its audit history.
type SchedulingRepository interface {
	// Appointments
	CreateAppointment(apt *types.Appointment) error
	GetAppointmentByID(id string) (*types.Appointment, error)
	UpdateAppointment(id string, updates *types.AppointmentUpdates) error
	CancelAppointment(id string) error
	GetAppointments(filters *types.AppointmentFilters) ([]*types.Appointment, error)
	AppendAccessLog(id string, entry types.AccessLogEntry) error

	// Linked groups, ordered by group sequence
	GetAppointmentGroup(groupID string) ([]*types.Appointment, error)

	// Resources
	GetPractitionerByID(id string) (*types.Practitioner, error)
	GetPractitionerAvailability(practitionerID string) ([]types.AvailabilityWindow, error)
	GetMachines() ([]*types.Machine, error)

	// Clinic configuration
	GetClinicSchedule() (*types.ClinicSchedule, error)
}

// SchedulingService defines the service surface exposed over HTTP
type SchedulingService interface {
	// Slot generation
	GetSlots(date string, category types.AppointmentCategory, resourceID string, duration int) ([]types.Slot, error)
	GetMultiTreatmentSlots(date string, practitionerID string, treatments []types.TreatmentRequest) ([]types.Slot, error)

	// Conflict checks
	CheckPatientOverlap(patientID, date string, segments []types.Slot, excludeIDs []string) (*types.ConflictReport, error)
	CheckPractitionerAvailability(practitionerID, date string, window types.Slot, excludeID string) (*types.PractitionerConflictReport, error)

	// Appointments
	CreateAppointment(apt *types.Appointment, actor string, skipPatientCheck bool) (*types.Appointment, error)
	UpdateAppointment(id string, updates *types.AppointmentUpdates, actor string, skipPatientCheck bool) (*types.Appointment, error)
	CancelAppointment(id, actor string) error
	TransitionStatus(id string, to types.AppointmentStatus, actor string) (*types.Appointment, error)

	// Linked groups
	CreateMultiTreatmentAppointment(payload *types.GroupCreateRequest, actor string) ([]*types.Appointment, error)
	GetAppointmentGroup(groupID string) ([]*types.Appointment, error)
	UpdateAppointmentGroup(groupID string, updates *types.AppointmentUpdates, actor string) ([]*types.Appointment, error)
	CancelAppointmentGroup(groupID, actor string) error
	CancelGroupSegment(appointmentID string, recalculate bool, actor string) ([]*types.Appointment, error)
	CancelAllFuture(patientID, actor string) (int, error)

	// Calendar
	GetCalendar(filters *types.AppointmentFilters) ([]*types.Appointment, error)

	// Service lifecycle
	Start(addr string) error
	Stop() error
}

// ReminderSentStore records which reminders have been emitted, keyed by
// (appointment, recipient, lead minutes). MarkSent is atomic: it
// returns false when the key was already present.
type ReminderSentStore interface {
	MarkSent(ctx context.Context, appointmentID string, recipient types.ReminderRecipient, leadMinutes int, at time.Time) (bool, error)
	WasSent(ctx context.Context, appointmentID string, recipient types.ReminderRecipient, leadMinutes int) (bool, error)
}

// Notifier delivers reminder notifications
type Notifier interface {
	SendReminder(apt *types.Appointment, recipient types.ReminderRecipient, leadMinutes int) error
}

// ResourceLocker guards the check-then-act window of a booking commit
// for one resource on one day
type ResourceLocker interface {
	WithResourceLock(ctx context.Context, resourceID, date string, fn func(ctx context.Context) error) error
}

package scheduling

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinova/clinic-scheduling/pkg/types"
)

// MemoryRepository is an in-memory SchedulingRepository used by tests
// and demo runs without Postgres. All methods copy on read so callers
// never share mutable state with the store.
type MemoryRepository struct {
	mu            sync.RWMutex
	appointments  map[string]*types.Appointment
	practitioners map[string]*types.Practitioner
	availability  map[string][]types.AvailabilityWindow
	machines      []*types.Machine
	schedule      *types.ClinicSchedule
}

// NewMemoryRepository creates an empty in-memory repository with the
// given clinic schedule
func NewMemoryRepository(schedule *types.ClinicSchedule) *MemoryRepository {
	return &MemoryRepository{
		appointments:  make(map[string]*types.Appointment),
		practitioners: make(map[string]*types.Practitioner),
		availability:  make(map[string][]types.AvailabilityWindow),
		schedule:      schedule,
	}
}

// AddPractitioner registers a practitioner with availability windows.
func (r *MemoryRepository) AddPractitioner(p *types.Practitioner, windows []types.AvailabilityWindow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.practitioners[p.ID] = p
	r.availability[p.ID] = windows
}

// AddMachine registers a machine.
func (r *MemoryRepository) AddMachine(m *types.Machine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.machines = append(r.machines, m)
}

// CreateAppointment stores a new appointment
func (r *MemoryRepository) CreateAppointment(apt *types.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if apt.ID == "" {
		apt.ID = uuid.New().String()
	}
	if apt.Status == "" {
		apt.Status = types.StatusScheduled
	}
	if apt.Priority == "" {
		apt.Priority = types.PriorityNormal
	}
	now := time.Now()
	apt.CreatedAt = now
	apt.UpdatedAt = now

	stored := *apt
	r.appointments[apt.ID] = &stored
	return nil
}

// GetAppointmentByID retrieves an appointment
func (r *MemoryRepository) GetAppointmentByID(id string) (*types.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	apt, ok := r.appointments[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment not found: %s", id))
	}
	clone := *apt
	return &clone, nil
}

// UpdateAppointment applies a partial update
func (r *MemoryRepository) UpdateAppointment(id string, updates *types.AppointmentUpdates) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	apt, ok := r.appointments[id]
	if !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment not found: %s", id))
	}

	if updates.PractitionerID != nil {
		apt.PractitionerID = *updates.PractitionerID
	}
	if updates.AssistantID != nil {
		apt.AssistantID = *updates.AssistantID
	}
	if updates.MachineID != nil {
		apt.MachineID = *updates.MachineID
	}
	if updates.Date != nil {
		apt.Date = *updates.Date
	}
	if updates.Start != nil {
		apt.Start = *updates.Start
	}
	if updates.End != nil {
		apt.End = *updates.End
	}
	if updates.Start != nil && updates.End != nil {
		apt.Duration = int(*updates.End) - int(*updates.Start)
	}
	if updates.Status != nil {
		apt.Status = *updates.Status
	}
	if updates.Priority != nil {
		apt.Priority = *updates.Priority
	}
	if updates.Notes != nil {
		apt.Notes = *updates.Notes
	}
	apt.UpdatedAt = time.Now()
	return nil
}

// CancelAppointment marks the appointment cancelled; the record is kept.
func (r *MemoryRepository) CancelAppointment(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	apt, ok := r.appointments[id]
	if !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment not found: %s", id))
	}
	apt.Status = types.StatusCancelled
	apt.UpdatedAt = time.Now()
	return nil
}

// GetAppointments returns appointments matching the filters, ordered by
// date, start time and group sequence
func (r *MemoryRepository) GetAppointments(filters *types.AppointmentFilters) ([]*types.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*types.Appointment
	for _, apt := range r.appointments {
		if !matchesFilters(apt, filters) {
			continue
		}
		clone := *apt
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.GroupSequence < b.GroupSequence
	})

	if filters != nil && filters.Limit > 0 {
		offset := filters.Offset
		if offset > len(result) {
			offset = len(result)
		}
		end := offset + filters.Limit
		if end > len(result) {
			end = len(result)
		}
		result = result[offset:end]
	}
	return result, nil
}

func matchesFilters(apt *types.Appointment, filters *types.AppointmentFilters) bool {
	if filters == nil {
		return true
	}
	if filters.PatientID != "" && apt.PatientID != filters.PatientID {
		return false
	}
	if filters.PractitionerID != "" && apt.PractitionerID != filters.PractitionerID {
		return false
	}
	if filters.MachineID != "" && apt.MachineID != filters.MachineID {
		return false
	}
	if filters.GroupID != "" && apt.GroupID != filters.GroupID {
		return false
	}
	if filters.Status != "" && apt.Status != filters.Status {
		return false
	}
	if filters.Category != "" && apt.Category != filters.Category {
		return false
	}
	if filters.FromDate != "" && apt.Date < filters.FromDate {
		return false
	}
	if filters.ToDate != "" && apt.Date > filters.ToDate {
		return false
	}
	return true
}

// AppendAccessLog appends an audit entry to the appointment
func (r *MemoryRepository) AppendAccessLog(id string, entry types.AccessLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	apt, ok := r.appointments[id]
	if !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment not found: %s", id))
	}
	apt.AccessLog = append(apt.AccessLog, entry)
	return nil
}

// GetAppointmentGroup returns the group's appointments ordered by sequence
func (r *MemoryRepository) GetAppointmentGroup(groupID string) ([]*types.Appointment, error) {
	return r.GetAppointments(&types.AppointmentFilters{GroupID: groupID})
}

// GetPractitionerByID retrieves a practitioner
func (r *MemoryRepository) GetPractitionerByID(id string) (*types.Practitioner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.practitioners[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("practitioner not found: %s", id))
	}
	clone := *p
	return &clone, nil
}

// GetPractitionerAvailability returns the practitioner's weekly windows
func (r *MemoryRepository) GetPractitionerAvailability(practitionerID string) ([]types.AvailabilityWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.AvailabilityWindow(nil), r.availability[practitionerID]...), nil
}

// GetMachines returns all machines ordered by identifier
func (r *MemoryRepository) GetMachines() ([]*types.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	machines := make([]*types.Machine, 0, len(r.machines))
	for _, m := range r.machines {
		clone := *m
		machines = append(machines, &clone)
	}
	sort.Slice(machines, func(i, j int) bool { return machines[i].ID < machines[j].ID })
	return machines, nil
}

// GetClinicSchedule returns the clinic schedule
func (r *MemoryRepository) GetClinicSchedule() (*types.ClinicSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schedule, nil
}

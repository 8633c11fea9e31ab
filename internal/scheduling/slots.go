package scheduling

import (
	"fmt"
	"sort"
	"time"

	"github.com/clinova/clinic-scheduling/pkg/interfaces"
	"github.com/clinova/clinic-scheduling/pkg/logger"
	"github.com/clinova/clinic-scheduling/pkg/monitoring"
	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

// SlotEngine produces candidate booking slots for a date. Slots are
// derived on every call and never stored.
type SlotEngine struct {
	repo   interfaces.SchedulingRepository
	logger *logger.Logger
}

// NewSlotEngine creates a slot engine over the repository
func NewSlotEngine(repo interfaces.SchedulingRepository, log *logger.Logger) *SlotEngine {
	return &SlotEngine{repo: repo, logger: log}
}

// GenerateSlots returns free slots for a single resource on one date.
// The resource is the practitioner for consultations and the machine
// for treatments. A closed clinic day yields no slots.
func (e *SlotEngine) GenerateSlots(date string, category types.AppointmentCategory, resourceID string, duration int) ([]types.Slot, error) {
	started := time.Now()
	defer func() { monitoring.RecordSlotQuery("single", time.Since(started)) }()

	schedule, err := e.repo.GetClinicSchedule()
	if err != nil {
		return nil, fmt.Errorf("failed to load clinic schedule: %w", err)
	}
	calendar := NewClinicCalendar(schedule)

	hours, open := calendar.Hours(date)
	if !open {
		return []types.Slot{}, nil
	}

	if duration <= 0 {
		duration = schedule.SlotDuration
	}

	windows, err := e.resourceWindows(date, category, resourceID, hours)
	if err != nil {
		return nil, err
	}

	busy, err := e.activeWindowsFor(date, category, resourceID)
	if err != nil {
		return nil, err
	}

	slots := walkWindows(windows, busy, duration, schedule.BufferMinutes)
	e.logger.WithFields(map[string]interface{}{
		"date":        date,
		"resource_id": resourceID,
		"duration":    duration,
		"slots":       len(slots),
	}).Debug("Generated slots")
	return slots, nil
}

// GenerateMultiTreatmentSlots returns slots admitting an ordered chain
// of treatments, each segment assigned a machine that is free for its
// sub-window. Segments are contiguous: segment i+1 starts exactly when
// segment i ends. Ties between valid machines break to the lowest
// machine identifier.
func (e *SlotEngine) GenerateMultiTreatmentSlots(date string, practitionerID string, treatments []types.TreatmentRequest) ([]types.Slot, error) {
	started := time.Now()
	defer func() { monitoring.RecordSlotQuery("multi_treatment", time.Since(started)) }()

	if len(treatments) == 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "at least one treatment is required", nil)
	}

	schedule, err := e.repo.GetClinicSchedule()
	if err != nil {
		return nil, fmt.Errorf("failed to load clinic schedule: %w", err)
	}
	calendar := NewClinicCalendar(schedule)

	hours, open := calendar.Hours(date)
	if !open {
		return []types.Slot{}, nil
	}

	total := 0
	for _, t := range treatments {
		if t.Duration <= 0 {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput,
				fmt.Sprintf("treatment %s has no duration", t.TreatmentID), nil)
		}
		total += t.Duration
	}

	// Candidate starts walk the practitioner's windows when one is
	// requested, otherwise the clinic's full operating window.
	windows := []types.AvailabilityWindow{{Start: hours.Open, End: hours.Close}}
	var practitionerBusy []busyWindow
	if practitionerID != "" {
		windows, err = e.practitionerWindows(date, practitionerID, hours)
		if err != nil {
			return nil, err
		}
		practitionerBusy, err = e.activeWindowsFor(date, types.CategoryConsultation, practitionerID)
		if err != nil {
			return nil, err
		}
	}

	machines, err := e.repo.GetMachines()
	if err != nil {
		return nil, fmt.Errorf("failed to load machines: %w", err)
	}
	sort.Slice(machines, func(i, j int) bool { return machines[i].ID < machines[j].ID })

	machineBusy := make(map[string][]busyWindow, len(machines))
	for _, m := range machines {
		if !m.IsActive {
			continue
		}
		busy, err := e.machineBusyWindows(date, m.ID)
		if err != nil {
			return nil, err
		}
		machineBusy[m.ID] = busy
	}

	var slots []types.Slot
	candidates := walkWindows(windows, practitionerBusy, total, schedule.BufferMinutes)
	for _, candidate := range candidates {
		segments, ok := assignMachines(candidate.Start, treatments, machines, machineBusy)
		if !ok {
			continue
		}
		slots = append(slots, types.Slot{
			Start:    candidate.Start,
			End:      candidate.End,
			Segments: segments,
		})
	}
	return slots, nil
}

// busyWindow is an occupied time range on one resource.
type busyWindow struct {
	start timeutil.ClockTime
	end   timeutil.ClockTime
}

// walkWindows generates candidate slots over the availability windows
// in duration+buffer steps. Candidates overlapping a busy window are
// rejected and the walk resumes at the busy window's end plus buffer.
// Results are ascending and unique.
func walkWindows(windows []types.AvailabilityWindow, busy []busyWindow, duration, buffer int) []types.Slot {
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })
	sort.Slice(busy, func(i, j int) bool { return busy[i].start < busy[j].start })

	var slots []types.Slot
	seen := make(map[timeutil.ClockTime]struct{})

	for _, w := range windows {
		start := w.Start
		for start.Add(duration) <= w.End {
			end := start.Add(duration)
			if blocker, blocked := firstOverlap(busy, start, end); blocked {
				// Resume after the occupying appointment.
				next := blocker.end.Add(buffer)
				if next <= start {
					next = start.Add(duration + buffer)
				}
				start = next
				continue
			}
			if _, dup := seen[start]; !dup {
				seen[start] = struct{}{}
				slots = append(slots, types.Slot{Start: start, End: end})
			}
			start = start.Add(duration + buffer)
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
	return slots
}

// firstOverlap returns the earliest busy window intersecting [start, end).
func firstOverlap(busy []busyWindow, start, end timeutil.ClockTime) (busyWindow, bool) {
	for _, b := range busy {
		if timeutil.Overlaps(start, end, b.start, b.end) {
			return b, true
		}
	}
	return busyWindow{}, false
}

// assignMachines finds a machine for every treatment segment of a chain
// starting at start. Returns false when any segment has no free machine.
func assignMachines(start timeutil.ClockTime, treatments []types.TreatmentRequest, machines []*types.Machine, machineBusy map[string][]busyWindow) ([]types.SlotSegment, bool) {
	segments := make([]types.SlotSegment, 0, len(treatments))
	segStart := start
	for _, treatment := range treatments {
		segEnd := segStart.Add(treatment.Duration)
		assigned := ""
		for _, m := range machines {
			busy, tracked := machineBusy[m.ID]
			if !tracked {
				continue
			}
			if _, blocked := firstOverlap(busy, segStart, segEnd); !blocked {
				assigned = m.ID
				break
			}
		}
		if assigned == "" {
			return nil, false
		}
		segments = append(segments, types.SlotSegment{
			TreatmentID: treatment.TreatmentID,
			MachineID:   assigned,
			Start:       segStart,
			End:         segEnd,
		})
		segStart = segEnd
	}
	return segments, true
}

// resourceWindows resolves the availability windows of the requested
// resource for the date.
func (e *SlotEngine) resourceWindows(date string, category types.AppointmentCategory, resourceID string, hours types.DayHours) ([]types.AvailabilityWindow, error) {
	if category == types.CategoryTreatment {
		// Machines are available for the clinic's full operating window.
		return []types.AvailabilityWindow{{Start: hours.Open, End: hours.Close}}, nil
	}
	return e.practitionerWindows(date, resourceID, hours)
}

func (e *SlotEngine) practitionerWindows(date, practitionerID string, hours types.DayHours) ([]types.AvailabilityWindow, error) {
	day, err := timeutil.ParseDate(date)
	if err != nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, err.Error(), nil)
	}
	windows, err := e.repo.GetPractitionerAvailability(practitionerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load practitioner availability: %w", err)
	}
	return windowsForWeekday(windows, day.Weekday(), hours), nil
}

// activeWindowsFor collects the occupied windows of a resource on a date.
func (e *SlotEngine) activeWindowsFor(date string, category types.AppointmentCategory, resourceID string) ([]busyWindow, error) {
	filters := &types.AppointmentFilters{FromDate: date, ToDate: date}
	if category == types.CategoryTreatment {
		filters.MachineID = resourceID
	} else {
		filters.PractitionerID = resourceID
	}
	appointments, err := e.repo.GetAppointments(filters)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}
	var busy []busyWindow
	for _, apt := range appointments {
		if apt.IsActive() {
			busy = append(busy, busyWindow{start: apt.Start, end: apt.End})
		}
	}
	return busy, nil
}

func (e *SlotEngine) machineBusyWindows(date, machineID string) ([]busyWindow, error) {
	return e.activeWindowsFor(date, types.CategoryTreatment, machineID)
}

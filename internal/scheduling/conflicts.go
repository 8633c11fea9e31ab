package scheduling

import (
	"fmt"
	"sort"

	"github.com/clinova/clinic-scheduling/pkg/interfaces"
	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

// ConflictChecker runs the pre-commit conflict checks. Resource
// conflicts (practitioner or machine double-booking) are blocking;
// patient conflicts are advisory and may be force-saved by the caller.
type ConflictChecker struct {
	repo interfaces.SchedulingRepository
}

// NewConflictChecker creates a conflict checker over the repository
func NewConflictChecker(repo interfaces.SchedulingRepository) *ConflictChecker {
	return &ConflictChecker{repo: repo}
}

// activeOnDate returns the non-cancelled appointments matching the filters.
func (c *ConflictChecker) activeOnDate(filters *types.AppointmentFilters) ([]*types.Appointment, error) {
	appointments, err := c.repo.GetAppointments(filters)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}
	active := appointments[:0]
	for _, apt := range appointments {
		if apt.IsActive() {
			active = append(active, apt)
		}
	}
	return active, nil
}

// sortByStart orders conflicts ascending by start time so the first
// entry is the representative conflict surfaced to the operator.
func sortByStart(conflicts []*types.Appointment) {
	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Start < conflicts[j].Start
	})
}

// ForPractitioner finds non-cancelled appointments of the practitioner
// on the date whose windows intersect [start, end). The appointment
// being edited is excluded from its own check.
func (c *ConflictChecker) ForPractitioner(practitionerID, date string, start, end timeutil.ClockTime, excludeID string) (*types.PractitionerConflictReport, error) {
	active, err := c.activeOnDate(&types.AppointmentFilters{
		PractitionerID: practitionerID,
		FromDate:       date,
		ToDate:         date,
	})
	if err != nil {
		return nil, err
	}

	report := &types.PractitionerConflictReport{}
	for _, apt := range active {
		if apt.ID == excludeID || apt.AllowOverlap {
			continue
		}
		if !timeutil.Overlaps(start, end, apt.Start, apt.End) {
			continue
		}
		report.Conflicts = append(report.Conflicts, apt)
		switch apt.Category {
		case types.CategoryConsultation:
			report.HasConsultationConflict = true
		case types.CategoryTreatment:
			report.HasTreatmentConflict = true
		}
	}

	sortByStart(report.Conflicts)
	report.Count = len(report.Conflicts)
	if report.Count > 0 {
		report.First = report.Conflicts[0]
	}
	return report, nil
}

// ForMachine finds non-cancelled appointments occupying the machine on
// the date whose windows intersect [start, end).
func (c *ConflictChecker) ForMachine(machineID, date string, start, end timeutil.ClockTime, excludeID string) (*types.ConflictReport, error) {
	active, err := c.activeOnDate(&types.AppointmentFilters{
		MachineID: machineID,
		FromDate:  date,
		ToDate:    date,
	})
	if err != nil {
		return nil, err
	}

	report := &types.ConflictReport{}
	for _, apt := range active {
		if apt.ID == excludeID || apt.AllowOverlap {
			continue
		}
		if timeutil.Overlaps(start, end, apt.Start, apt.End) {
			report.Conflicts = append(report.Conflicts, apt)
		}
	}

	sortByStart(report.Conflicts)
	report.Count = len(report.Conflicts)
	report.HasConflict = report.Count > 0
	if report.HasConflict {
		report.First = report.Conflicts[0]
	}
	return report, nil
}

// ForPatient finds non-cancelled appointments of the patient on the
// date intersecting any of the candidate segments, regardless of
// resource. Linked-group siblings of the appointment being edited are
// excluded via excludeIDs. Patient conflicts are advisory.
func (c *ConflictChecker) ForPatient(patientID, date string, segments []types.Slot, excludeIDs []string) (*types.ConflictReport, error) {
	active, err := c.activeOnDate(&types.AppointmentFilters{
		PatientID: patientID,
		FromDate:  date,
		ToDate:    date,
	})
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	report := &types.ConflictReport{Advisory: true}
	for _, apt := range active {
		if _, skip := excluded[apt.ID]; skip {
			continue
		}
		for _, seg := range segments {
			if timeutil.Overlaps(seg.Start, seg.End, apt.Start, apt.End) {
				report.Conflicts = append(report.Conflicts, apt)
				break
			}
		}
	}

	sortByStart(report.Conflicts)
	report.Count = len(report.Conflicts)
	report.HasConflict = report.Count > 0
	if report.HasConflict {
		report.First = report.Conflicts[0]
	}
	return report, nil
}

// siblingIDs returns the IDs of the appointment's linked-group members,
// including its own. Used to exclude siblings from patient checks.
func (c *ConflictChecker) siblingIDs(apt *types.Appointment) ([]string, error) {
	if apt.GroupID == "" {
		return []string{apt.ID}, nil
	}
	group, err := c.repo.GetAppointmentGroup(apt.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointment group: %w", err)
	}
	ids := make([]string, 0, len(group))
	for _, member := range group {
		ids = append(ids, member.ID)
	}
	return ids, nil
}

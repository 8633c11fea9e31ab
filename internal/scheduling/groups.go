package scheduling

import (
	"fmt"
	"time"

	"github.com/clinova/clinic-scheduling/pkg/interfaces"
	"github.com/clinova/clinic-scheduling/pkg/logger"
	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

// GroupManager implements the edit and cancel semantics of linked
// multi-treatment groups: a sequence of appointments sharing a group
// ID, ordered by group sequence, representing one patient's
// back-to-back visit.
type GroupManager struct {
	repo   interfaces.SchedulingRepository
	logger *logger.Logger
}

// NewGroupManager creates a group manager over the repository
func NewGroupManager(repo interfaces.SchedulingRepository, log *logger.Logger) *GroupManager {
	return &GroupManager{repo: repo, logger: log}
}

// Get returns the group's segments ordered by sequence.
func (g *GroupManager) Get(groupID string) ([]*types.Appointment, error) {
	group, err := g.repo.GetAppointmentGroup(groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointment group: %w", err)
	}
	if len(group) == 0 {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment group not found: %s", groupID))
	}
	return group, nil
}

// PropagateEdit applies the shared fields of a group edit (provider,
// assistant, notes, priority) to every non-completed segment. Completed
// segments are left untouched.
func (g *GroupManager) PropagateEdit(groupID string, updates *types.AppointmentUpdates, actor string) ([]*types.Appointment, error) {
	group, err := g.Get(groupID)
	if err != nil {
		return nil, err
	}

	shared := &types.AppointmentUpdates{
		PractitionerID: updates.PractitionerID,
		AssistantID:    updates.AssistantID,
		Notes:          updates.Notes,
		Priority:       updates.Priority,
	}

	for _, segment := range group {
		if segment.Status == types.StatusCompleted || segment.Status == types.StatusCancelled {
			continue
		}
		if err := g.repo.UpdateAppointment(segment.ID, shared); err != nil {
			return nil, fmt.Errorf("failed to update group segment %s: %w", segment.ID, err)
		}
		g.appendLog(segment.ID, "group_edit", actor)
	}

	return g.Get(groupID)
}

// CancelSegment cancels one segment of a group. With recalculate set,
// every later non-completed segment is shifted earlier by the cancelled
// segment's duration, walked in sequence order; otherwise later
// segments keep their times (keep-gap).
func (g *GroupManager) CancelSegment(appointmentID string, recalculate bool, actor string) ([]*types.Appointment, error) {
	apt, err := g.repo.GetAppointmentByID(appointmentID)
	if err != nil {
		return nil, err
	}
	if apt.GroupID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("appointment %s is not part of a group", appointmentID), nil)
	}
	if !types.CanTransition(apt.Status, types.StatusCancelled) {
		return nil, types.NewConflictError(types.ErrCodeInvalidTransition,
			fmt.Sprintf("segments in state %s cannot be cancelled", apt.Status), nil)
	}

	if err := g.repo.CancelAppointment(appointmentID); err != nil {
		return nil, fmt.Errorf("failed to cancel segment: %w", err)
	}
	g.appendLog(appointmentID, "cancel_segment", actor)

	if recalculate {
		if err := g.shiftLaterSegments(apt); err != nil {
			return nil, err
		}
	}

	return g.Get(apt.GroupID)
}

// shiftLaterSegments moves the segments after the cancelled one earlier
// by its duration, preserving their order and relative spacing.
// Completed segments stay where they are.
func (g *GroupManager) shiftLaterSegments(cancelled *types.Appointment) error {
	group, err := g.Get(cancelled.GroupID)
	if err != nil {
		return err
	}

	shift := cancelled.Duration
	for _, segment := range group {
		if segment.GroupSequence <= cancelled.GroupSequence {
			continue
		}
		if segment.Status == types.StatusCompleted || segment.Status == types.StatusCancelled {
			continue
		}
		newStart := segment.Start.Add(-shift)
		newEnd := newStart.Add(segment.Duration)
		updates := &types.AppointmentUpdates{Start: &newStart, End: &newEnd}
		if err := g.repo.UpdateAppointment(segment.ID, updates); err != nil {
			return fmt.Errorf("failed to shift group segment %s: %w", segment.ID, err)
		}
	}
	return nil
}

// CancelGroup cancels every segment of the group that the status
// machine still allows to cancel; segments already closed or in
// progress are left alone.
func (g *GroupManager) CancelGroup(groupID, actor string) error {
	group, err := g.Get(groupID)
	if err != nil {
		return err
	}
	for _, segment := range group {
		if !types.CanTransition(segment.Status, types.StatusCancelled) {
			continue
		}
		if err := g.repo.CancelAppointment(segment.ID); err != nil {
			return fmt.Errorf("failed to cancel group segment %s: %w", segment.ID, err)
		}
		g.appendLog(segment.ID, "cancel_group", actor)
	}
	return nil
}

// CancelAllFuture cancels every future appointment of the patient that
// the status machine allows to cancel, linked or not. Returns the
// number of appointments cancelled.
func (g *GroupManager) CancelAllFuture(patientID, actor string, now time.Time) (int, error) {
	appointments, err := g.repo.GetAppointments(&types.AppointmentFilters{
		PatientID: patientID,
		FromDate:  timeutil.FormatDate(now),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load patient appointments: %w", err)
	}

	cancelled := 0
	for _, apt := range appointments {
		if !types.CanTransition(apt.Status, types.StatusCancelled) {
			continue
		}
		start, err := apt.StartAt()
		if err != nil || !start.After(now) {
			continue
		}
		if err := g.repo.CancelAppointment(apt.ID); err != nil {
			return cancelled, fmt.Errorf("failed to cancel appointment %s: %w", apt.ID, err)
		}
		g.appendLog(apt.ID, "cancel_all_future", actor)
		cancelled++
	}
	return cancelled, nil
}

func (g *GroupManager) appendLog(appointmentID, action, actor string) {
	entry := types.AccessLogEntry{Action: action, Actor: actor, Timestamp: time.Now()}
	if err := g.repo.AppendAccessLog(appointmentID, entry); err != nil {
		g.logger.WithError(err).WithField("appointment_id", appointmentID).Warn("Failed to append access log entry")
	}
}

package scheduling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clinova/clinic-scheduling/pkg/interfaces"
	"github.com/clinova/clinic-scheduling/pkg/logger"
	"github.com/clinova/clinic-scheduling/pkg/monitoring"
	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

// DueReminder is one reminder whose trigger window contains now.
type DueReminder struct {
	Appointment *types.Appointment      `json:"appointment"`
	Recipient   types.ReminderRecipient `json:"recipient"`
	LeadMinutes int                     `json:"lead_minutes"`
	TriggerAt   time.Time               `json:"trigger_at"`
}

// ReminderEngine derives the due set from appointment start times and
// reminder rules. It is polled: every tick the caller asks for the due
// set and dispatches it. Sending is idempotent through the sent store.
type ReminderEngine struct {
	repo     interfaces.SchedulingRepository
	sent     interfaces.ReminderSentStore
	notifier interfaces.Notifier
	logger   *logger.Logger
}

// NewReminderEngine creates a reminder engine
func NewReminderEngine(repo interfaces.SchedulingRepository, sent interfaces.ReminderSentStore, notifier interfaces.Notifier, log *logger.Logger) *ReminderEngine {
	return &ReminderEngine{repo: repo, sent: sent, notifier: notifier, logger: log}
}

// Due returns the reminders whose trigger time has passed but whose
// appointment has not started, excluding those already marked sent.
// Calling Due twice without marking sent yields the same set.
func (e *ReminderEngine) Due(ctx context.Context, now time.Time) ([]DueReminder, error) {
	appointments, err := e.repo.GetAppointments(&types.AppointmentFilters{
		FromDate: timeutil.FormatDate(now),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}

	var due []DueReminder
	for _, apt := range appointments {
		if apt.Status == types.StatusCancelled || apt.Status == types.StatusCompleted {
			continue
		}
		start, err := apt.StartAt()
		if err != nil {
			continue
		}
		for _, rule := range apt.Reminders {
			if !rule.Enabled {
				continue
			}
			trigger := start.Add(-time.Duration(rule.LeadMinutes) * time.Minute)
			// Due inside [trigger, start).
			if now.Before(trigger) || !now.Before(start) {
				continue
			}
			alreadySent, err := e.sent.WasSent(ctx, apt.ID, rule.Recipient, rule.LeadMinutes)
			if err != nil {
				return nil, fmt.Errorf("failed to check sent store: %w", err)
			}
			if alreadySent {
				continue
			}
			due = append(due, DueReminder{
				Appointment: apt,
				Recipient:   rule.Recipient,
				LeadMinutes: rule.LeadMinutes,
				TriggerAt:   trigger,
			})
		}
	}
	return due, nil
}

// Dispatch sends every due reminder and marks it sent. MarkSent is
// checked atomically so a reminder is never emitted twice even when
// two workers poll concurrently.
func (e *ReminderEngine) Dispatch(ctx context.Context, now time.Time) (int, error) {
	due, err := e.Due(ctx, now)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, reminder := range due {
		fresh, err := e.sent.MarkSent(ctx, reminder.Appointment.ID, reminder.Recipient, reminder.LeadMinutes, now)
		if err != nil {
			return sent, fmt.Errorf("failed to mark reminder sent: %w", err)
		}
		if !fresh {
			continue
		}
		if err := e.notifier.SendReminder(reminder.Appointment, reminder.Recipient, reminder.LeadMinutes); err != nil {
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"appointment_id": reminder.Appointment.ID,
				"recipient":      reminder.Recipient,
			}).Error("Failed to send reminder")
			continue
		}
		monitoring.RecordReminderSent(string(reminder.Recipient))
		sent++
	}

	if sent > 0 {
		e.logger.WithField("count", sent).Info("Dispatched reminders")
	}
	return sent, nil
}

// Run polls the due set on the given interval until the context ends.
func (e *ReminderEngine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := e.Dispatch(ctx, now); err != nil {
				e.logger.WithError(err).Error("Reminder dispatch failed")
			}
		}
	}
}

// MemorySentStore is an in-process sent store for tests and single-node
// deployments without Redis.
type MemorySentStore struct {
	mu   sync.Mutex
	sent map[string]time.Time
}

// NewMemorySentStore creates an empty in-memory sent store
func NewMemorySentStore() *MemorySentStore {
	return &MemorySentStore{sent: make(map[string]time.Time)}
}

func sentKey(appointmentID string, recipient types.ReminderRecipient, leadMinutes int) string {
	return fmt.Sprintf("%s:%s:%d", appointmentID, recipient, leadMinutes)
}

// MarkSent records the reminder as sent; returns false if it already was.
func (s *MemorySentStore) MarkSent(_ context.Context, appointmentID string, recipient types.ReminderRecipient, leadMinutes int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sentKey(appointmentID, recipient, leadMinutes)
	if _, exists := s.sent[key]; exists {
		return false, nil
	}
	s.sent[key] = at
	return true, nil
}

// WasSent reports whether the reminder was already recorded as sent.
func (s *MemorySentStore) WasSent(_ context.Context, appointmentID string, recipient types.ReminderRecipient, leadMinutes int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.sent[sentKey(appointmentID, recipient, leadMinutes)]
	return exists, nil
}

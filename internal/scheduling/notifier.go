package scheduling

import (
	"github.com/sirupsen/logrus"

	"github.com/clinova/clinic-scheduling/pkg/logger"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

// LogNotifier emits reminders to the structured log. Delivery channels
// (SMS, email, push) plug in behind the Notifier interface.
type LogNotifier struct {
	logger *logrus.Entry
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.WithComponent("notifier")}
}

// SendReminder logs the reminder payload
func (n *LogNotifier) SendReminder(apt *types.Appointment, recipient types.ReminderRecipient, leadMinutes int) error {
	target := apt.PatientID
	if recipient == types.RecipientPractitioner {
		target = apt.PractitionerID
	}
	n.logger.WithFields(map[string]interface{}{
		"appointment_id": apt.ID,
		"recipient":      recipient,
		"target_id":      target,
		"lead_minutes":   leadMinutes,
		"date":           apt.Date,
		"start_time":     apt.Start.String(),
	}).Info("Appointment reminder")
	return nil
}

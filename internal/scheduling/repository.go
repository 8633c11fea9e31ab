package scheduling

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/clinova/clinic-scheduling/pkg/config"
	"github.com/clinova/clinic-scheduling/pkg/database"
	"github.com/clinova/clinic-scheduling/pkg/logger"
	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

// PostgresRepository implements SchedulingRepository backed by PostgreSQL
type PostgresRepository struct {
	db       *database.DB
	logger   *logger.Logger
	defaults config.ClinicConfig
}

// NewPostgresRepository creates a new PostgreSQL scheduling repository
func NewPostgresRepository(db *database.DB, defaults config.ClinicConfig, log *logger.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, defaults: defaults, logger: log}
}

const appointmentColumns = `id, patient_id, practitioner_id, assistant_id, machine_id, category,
	date, start_minute, end_minute, duration, status, priority,
	group_id, group_sequence, allow_overlap, notes, created_at, updated_at`

// CreateAppointment inserts a new appointment and its reminder rules
func (r *PostgresRepository) CreateAppointment(apt *types.Appointment) error {
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

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err = tx.Exec(query,
		apt.ID, apt.PatientID, apt.PractitionerID, nullString(apt.AssistantID), nullString(apt.MachineID),
		apt.Category, apt.Date, int(apt.Start), int(apt.End), apt.Duration, apt.Status, apt.Priority,
		nullString(apt.GroupID), apt.GroupSequence, apt.AllowOverlap, nullString(apt.Notes),
		apt.CreatedAt, apt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	for _, reminder := range apt.Reminders {
		_, err = tx.Exec(`
			INSERT INTO appointment_reminders (appointment_id, recipient, enabled, lead_minutes)
			VALUES ($1, $2, $3, $4)`,
			apt.ID, reminder.Recipient, reminder.Enabled, reminder.LeadMinutes)
		if err != nil {
			return fmt.Errorf("failed to create appointment reminder: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"appointment_id": apt.ID,
		"patient_id":     apt.PatientID,
		"date":           apt.Date,
	}).Info("Appointment created")
	return nil
}

// GetAppointmentByID retrieves an appointment with its reminders and
// access log
func (r *PostgresRepository) GetAppointmentByID(id string) (*types.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	apt, err := scanAppointment(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment not found: %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	if err := r.loadReminders([]*types.Appointment{apt}); err != nil {
		return nil, err
	}
	if err := r.loadAccessLog(apt); err != nil {
		return nil, err
	}
	return apt, nil
}

// UpdateAppointment applies a partial update. When both start and end
// change, duration is recomputed from the new window.
func (r *PostgresRepository) UpdateAppointment(id string, updates *types.AppointmentUpdates) error {
	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	addSet := func(column string, value interface{}) {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if updates.PractitionerID != nil {
		addSet("practitioner_id", *updates.PractitionerID)
	}
	if updates.AssistantID != nil {
		addSet("assistant_id", nullString(*updates.AssistantID))
	}
	if updates.MachineID != nil {
		addSet("machine_id", nullString(*updates.MachineID))
	}
	if updates.Date != nil {
		addSet("date", *updates.Date)
	}
	if updates.Start != nil {
		addSet("start_minute", int(*updates.Start))
	}
	if updates.End != nil {
		addSet("end_minute", int(*updates.End))
	}
	if updates.Start != nil && updates.End != nil {
		addSet("duration", int(*updates.End)-int(*updates.Start))
	}
	if updates.Status != nil {
		addSet("status", *updates.Status)
	}
	if updates.Priority != nil {
		addSet("priority", *updates.Priority)
	}
	if updates.Notes != nil {
		addSet("notes", nullString(*updates.Notes))
	}

	if len(setParts) == 0 {
		return nil
	}

	addSet("updated_at", time.Now())

	query := "UPDATE appointments SET "
	for i, part := range setParts {
		if i > 0 {
			query += ", "
		}
		query += part
	}
	query += fmt.Sprintf(" WHERE id = $%d", argIndex)
	args = append(args, id)

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment not found: %s", id))
	}
	return nil
}

// CancelAppointment soft-deletes an appointment by setting its status
// to cancelled. The row is never removed.
func (r *PostgresRepository) CancelAppointment(id string) error {
	result, err := r.db.Exec(`
		UPDATE appointments SET status = $1, updated_at = $2 WHERE id = $3`,
		types.StatusCancelled, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to cancel appointment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check cancel result: %w", err)
	}
	if rows == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment not found: %s", id))
	}
	return nil
}

// GetAppointments retrieves appointments matching the filters, ordered
// by date then start time
func (r *PostgresRepository) GetAppointments(filters *types.AppointmentFilters) ([]*types.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	addFilter := func(clause string, value interface{}) {
		query += fmt.Sprintf(" AND %s $%d", clause, argIndex)
		args = append(args, value)
		argIndex++
	}

	if filters != nil {
		if filters.PatientID != "" {
			addFilter("patient_id =", filters.PatientID)
		}
		if filters.PractitionerID != "" {
			addFilter("practitioner_id =", filters.PractitionerID)
		}
		if filters.MachineID != "" {
			addFilter("machine_id =", filters.MachineID)
		}
		if filters.GroupID != "" {
			addFilter("group_id =", filters.GroupID)
		}
		if filters.Status != "" {
			addFilter("status =", filters.Status)
		}
		if filters.Category != "" {
			addFilter("category =", filters.Category)
		}
		if filters.FromDate != "" {
			addFilter("date >=", filters.FromDate)
		}
		if filters.ToDate != "" {
			addFilter("date <=", filters.ToDate)
		}
	}

	query += " ORDER BY date, start_minute, group_sequence"

	if filters != nil && filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filters.Limit)
		argIndex++
		if filters.Offset > 0 {
			query += fmt.Sprintf(" OFFSET $%d", argIndex)
			args = append(args, filters.Offset)
		}
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var appointments []*types.Appointment
	for rows.Next() {
		apt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appointments = append(appointments, apt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}

	if err := r.loadReminders(appointments); err != nil {
		return nil, err
	}
	return appointments, nil
}

// AppendAccessLog records one action against an appointment
func (r *PostgresRepository) AppendAccessLog(id string, entry types.AccessLogEntry) error {
	_, err := r.db.Exec(`
		INSERT INTO appointment_access_log (appointment_id, action, actor, created_at)
		VALUES ($1, $2, $3, $4)`,
		id, entry.Action, entry.Actor, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append access log: %w", err)
	}
	return nil
}

// GetAppointmentGroup retrieves a linked group ordered by sequence
func (r *PostgresRepository) GetAppointmentGroup(groupID string) ([]*types.Appointment, error) {
	return r.GetAppointments(&types.AppointmentFilters{GroupID: groupID})
}

// GetPractitionerByID retrieves a practitioner
func (r *PostgresRepository) GetPractitionerByID(id string) (*types.Practitioner, error) {
	var p types.Practitioner
	var specialty sql.NullString
	err := r.db.QueryRow(`
		SELECT id, name, role, specialty, is_active, created_at, updated_at
		FROM practitioners WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Role, &specialty, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("practitioner not found: %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get practitioner: %w", err)
	}
	p.Specialty = specialty.String
	return &p, nil
}

// GetPractitionerAvailability retrieves the practitioner's weekly
// availability windows
func (r *PostgresRepository) GetPractitionerAvailability(practitionerID string) ([]types.AvailabilityWindow, error) {
	rows, err := r.db.Query(`
		SELECT weekday, start_minute, end_minute
		FROM practitioner_availability
		WHERE practitioner_id = $1
		ORDER BY weekday, start_minute`, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query availability: %w", err)
	}
	defer rows.Close()

	var windows []types.AvailabilityWindow
	for rows.Next() {
		var weekday, start, end int
		if err := rows.Scan(&weekday, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan availability window: %w", err)
		}
		windows = append(windows, types.AvailabilityWindow{
			Weekday: time.Weekday(weekday),
			Start:   timeutil.ClockTime(start),
			End:     timeutil.ClockTime(end),
		})
	}
	return windows, rows.Err()
}

// GetMachines retrieves all machines ordered by identifier
func (r *PostgresRepository) GetMachines() ([]*types.Machine, error) {
	rows, err := r.db.Query(`SELECT id, name, is_active FROM machines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query machines: %w", err)
	}
	defer rows.Close()

	var machines []*types.Machine
	for rows.Next() {
		var m types.Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}
		machines = append(machines, &m)
	}
	return machines, rows.Err()
}

// GetClinicSchedule builds the clinic schedule from operating hours and
// closed dates; slot duration and buffer come from configuration.
func (r *PostgresRepository) GetClinicSchedule() (*types.ClinicSchedule, error) {
	schedule := &types.ClinicSchedule{
		Hours:         make(map[time.Weekday]types.DayHours),
		SlotDuration:  r.defaults.SlotDuration,
		BufferMinutes: r.defaults.BufferMinutes,
	}

	rows, err := r.db.Query(`SELECT weekday, enabled, open_minute, close_minute FROM clinic_hours`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clinic hours: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var weekday, openMin, closeMin int
		var enabled bool
		if err := rows.Scan(&weekday, &enabled, &openMin, &closeMin); err != nil {
			return nil, fmt.Errorf("failed to scan clinic hours: %w", err)
		}
		schedule.Hours[time.Weekday(weekday)] = types.DayHours{
			Enabled: enabled,
			Open:    timeutil.ClockTime(openMin),
			Close:   timeutil.ClockTime(closeMin),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate clinic hours: %w", err)
	}

	closedRows, err := r.db.Query(`SELECT date, reason FROM closed_dates`)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed dates: %w", err)
	}
	defer closedRows.Close()

	for closedRows.Next() {
		var date time.Time
		var reason sql.NullString
		if err := closedRows.Scan(&date, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan closed date: %w", err)
		}
		schedule.ClosedDates = append(schedule.ClosedDates, types.ClosedDate{
			Date:   timeutil.FormatDate(date),
			Reason: reason.String,
		})
	}
	return schedule, closedRows.Err()
}

// loadReminders attaches reminder rules to the appointments in one query.
func (r *PostgresRepository) loadReminders(appointments []*types.Appointment) error {
	if len(appointments) == 0 {
		return nil
	}
	byID := make(map[string]*types.Appointment, len(appointments))
	ids := make([]string, 0, len(appointments))
	for _, apt := range appointments {
		byID[apt.ID] = apt
		ids = append(ids, apt.ID)
	}

	rows, err := r.db.Query(`
		SELECT appointment_id, recipient, enabled, lead_minutes
		FROM appointment_reminders
		WHERE appointment_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var aptID string
		var rule types.ReminderRule
		if err := rows.Scan(&aptID, &rule.Recipient, &rule.Enabled, &rule.LeadMinutes); err != nil {
			return fmt.Errorf("failed to scan reminder rule: %w", err)
		}
		if apt, ok := byID[aptID]; ok {
			apt.Reminders = append(apt.Reminders, rule)
		}
	}
	return rows.Err()
}

// loadAccessLog attaches the appointment's audit trail in insert order.
func (r *PostgresRepository) loadAccessLog(apt *types.Appointment) error {
	rows, err := r.db.Query(`
		SELECT action, actor, created_at
		FROM appointment_access_log
		WHERE appointment_id = $1
		ORDER BY created_at`, apt.ID)
	if err != nil {
		return fmt.Errorf("failed to query access log: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry types.AccessLogEntry
		if err := rows.Scan(&entry.Action, &entry.Actor, &entry.Timestamp); err != nil {
			return fmt.Errorf("failed to scan access log entry: %w", err)
		}
		apt.AccessLog = append(apt.AccessLog, entry)
	}
	return rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (*types.Appointment, error) {
	var apt types.Appointment
	var assistantID, machineID, groupID, notes sql.NullString
	var date time.Time
	var start, end int

	err := row.Scan(
		&apt.ID, &apt.PatientID, &apt.PractitionerID, &assistantID, &machineID, &apt.Category,
		&date, &start, &end, &apt.Duration, &apt.Status, &apt.Priority,
		&groupID, &apt.GroupSequence, &apt.AllowOverlap, &notes, &apt.CreatedAt, &apt.UpdatedAt)
	if err != nil {
		return nil, err
	}

	apt.AssistantID = assistantID.String
	apt.MachineID = machineID.String
	apt.GroupID = groupID.String
	apt.Notes = notes.String
	apt.Date = timeutil.FormatDate(date)
	apt.Start = timeutil.ClockTime(start)
	apt.End = timeutil.ClockTime(end)
	return &apt, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

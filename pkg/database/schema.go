package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the scheduling database schema
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	tables := []string{
		createPractitionersTable,
		createMachinesTable,
		createAvailabilityTable,
		createClinicHoursTable,
		createClosedDatesTable,
		createAppointmentsTable,
		createAccessLogTable,
		createRemindersTable,
		createReminderLogTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createAppointmentsIndexes,
		createAvailabilityIndexes,
		createReminderLogIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

const createPractitionersTable = `
CREATE TABLE IF NOT EXISTS practitioners (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'doctor',
	specialty TEXT,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createMachinesTable = `
CREATE TABLE IF NOT EXISTS machines (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);`

const createAvailabilityTable = `
CREATE TABLE IF NOT EXISTS practitioner_availability (
	practitioner_id UUID NOT NULL REFERENCES practitioners(id),
	weekday SMALLINT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
	start_minute SMALLINT NOT NULL,
	end_minute SMALLINT NOT NULL,
	CHECK (start_minute < end_minute)
);`

const createClinicHoursTable = `
CREATE TABLE IF NOT EXISTS clinic_hours (
	weekday SMALLINT PRIMARY KEY CHECK (weekday BETWEEN 0 AND 6),
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	open_minute SMALLINT NOT NULL,
	close_minute SMALLINT NOT NULL
);`

const createClosedDatesTable = `
CREATE TABLE IF NOT EXISTS closed_dates (
	date DATE PRIMARY KEY,
	reason TEXT
);`

const createAppointmentsTable = `
CREATE TABLE IF NOT EXISTS appointments (
	id UUID PRIMARY KEY,
	patient_id UUID NOT NULL,
	practitioner_id UUID NOT NULL,
	assistant_id UUID,
	machine_id UUID,
	category TEXT NOT NULL,
	date DATE NOT NULL,
	start_minute SMALLINT NOT NULL,
	end_minute SMALLINT NOT NULL,
	duration SMALLINT NOT NULL,
	status TEXT NOT NULL DEFAULT 'scheduled',
	priority TEXT NOT NULL DEFAULT 'normal',
	group_id UUID,
	group_sequence SMALLINT NOT NULL DEFAULT 0,
	allow_overlap BOOLEAN NOT NULL DEFAULT FALSE,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (start_minute < end_minute)
);`

const createAccessLogTable = `
CREATE TABLE IF NOT EXISTS appointment_access_log (
	appointment_id UUID NOT NULL REFERENCES appointments(id),
	action TEXT NOT NULL,
	actor TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createRemindersTable = `
CREATE TABLE IF NOT EXISTS appointment_reminders (
	appointment_id UUID NOT NULL REFERENCES appointments(id),
	recipient TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	lead_minutes SMALLINT NOT NULL,
	PRIMARY KEY (appointment_id, recipient, lead_minutes)
);`

const createReminderLogTable = `
CREATE TABLE IF NOT EXISTS reminder_log (
	appointment_id UUID NOT NULL,
	recipient TEXT NOT NULL,
	lead_minutes SMALLINT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (appointment_id, recipient, lead_minutes)
);`

const createAppointmentsIndexes = `
CREATE INDEX IF NOT EXISTS idx_appointments_practitioner_date ON appointments (practitioner_id, date);
CREATE INDEX IF NOT EXISTS idx_appointments_machine_date ON appointments (machine_id, date);
CREATE INDEX IF NOT EXISTS idx_appointments_patient_date ON appointments (patient_id, date);
CREATE INDEX IF NOT EXISTS idx_appointments_group ON appointments (group_id);`

const createAvailabilityIndexes = `
CREATE INDEX IF NOT EXISTS idx_availability_practitioner ON practitioner_availability (practitioner_id, weekday);`

const createReminderLogIndexes = `
CREATE INDEX IF NOT EXISTS idx_reminder_log_sent_at ON reminder_log (sent_at);`

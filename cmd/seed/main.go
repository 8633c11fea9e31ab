package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/clinova/clinic-scheduling/internal/scheduling"
	"github.com/clinova/clinic-scheduling/pkg/config"
	"github.com/clinova/clinic-scheduling/pkg/database"
	"github.com/clinova/clinic-scheduling/pkg/logger"
	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

const (
	practitionerCount = 6
	machineCount      = 4
	appointmentCount  = 40
)

// Seeds the database with demo practitioners, machines, clinic hours
// and a spread of appointments over the next two weeks.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("Seeding demo data...")

	loc, err := cfg.Clinic.Location()
	if err != nil {
		log.WithError(err).Fatal("Failed to load clinic timezone")
	}
	timeutil.SetLocation(loc)

	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.CreateSchema(ctx); err != nil {
		log.WithError(err).Fatal("Failed to create database schema")
	}

	gofakeit.Seed(0)

	seedClinicHours(db, log)
	practitioners := seedPractitioners(db, log)
	machines := seedMachines(db, log)
	seedAppointments(db, cfg, practitioners, machines, log)

	log.Info("Seed complete")
}

func seedClinicHours(db *database.DB, log *logger.Logger) {
	// Monday through Friday 08:00-18:00, Saturday 09:00-13:00.
	hours := map[int][3]int{
		1: {1, 480, 1080},
		2: {1, 480, 1080},
		3: {1, 480, 1080},
		4: {1, 480, 1080},
		5: {1, 480, 1080},
		6: {1, 540, 780},
		0: {0, 0, 0},
	}
	for weekday, h := range hours {
		_, err := db.Exec(`
			INSERT INTO clinic_hours (weekday, enabled, open_minute, close_minute)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (weekday) DO UPDATE SET enabled = $2, open_minute = $3, close_minute = $4`,
			weekday, h[0] == 1, h[1], h[2])
		if err != nil {
			log.WithError(err).Fatal("Failed to seed clinic hours")
		}
	}
}

func seedPractitioners(db *database.DB, log *logger.Logger) []string {
	roles := []string{"doctor", "doctor", "doctor", "therapist", "therapist", "assistant"}
	specialties := []string{"dermatology", "laser therapy", "general", "physiotherapy", "cosmetics", ""}

	ids := make([]string, 0, practitionerCount)
	for i := 0; i < practitionerCount; i++ {
		id := uuid.New().String()
		_, err := db.Exec(`
			INSERT INTO practitioners (id, name, role, specialty)
			VALUES ($1, $2, $3, $4)`,
			id, gofakeit.Name(), roles[i], specialties[i])
		if err != nil {
			log.WithError(err).Fatal("Failed to seed practitioner")
		}

		// Weekday availability inside clinic hours.
		for weekday := 1; weekday <= 5; weekday++ {
			start := 480 + gofakeit.Number(0, 2)*60
			end := 1080 - gofakeit.Number(0, 2)*60
			_, err := db.Exec(`
				INSERT INTO practitioner_availability (practitioner_id, weekday, start_minute, end_minute)
				VALUES ($1, $2, $3, $4)`,
				id, weekday, start, end)
			if err != nil {
				log.WithError(err).Fatal("Failed to seed availability")
			}
		}
		ids = append(ids, id)
	}
	log.WithField("count", len(ids)).Info("Seeded practitioners")
	return ids
}

func seedMachines(db *database.DB, log *logger.Logger) []string {
	names := []string{"Laser A", "Laser B", "IPL Unit", "RF Unit"}
	ids := make([]string, 0, machineCount)
	for i := 0; i < machineCount; i++ {
		id := uuid.New().String()
		_, err := db.Exec(`INSERT INTO machines (id, name) VALUES ($1, $2)`, id, names[i])
		if err != nil {
			log.WithError(err).Fatal("Failed to seed machine")
		}
		ids = append(ids, id)
	}
	log.WithField("count", len(ids)).Info("Seeded machines")
	return ids
}

func seedAppointments(db *database.DB, cfg *config.Config, practitioners, machines []string, log *logger.Logger) {
	repo := scheduling.NewPostgresRepository(db, cfg.Clinic, log)

	created := 0
	for i := 0; i < appointmentCount; i++ {
		day := time.Now().AddDate(0, 0, gofakeit.Number(1, 14))
		if day.Weekday() == time.Sunday {
			continue
		}
		start := timeutil.ClockTime(480 + gofakeit.Number(0, 16)*30)
		duration := []int{30, 45, 60}[gofakeit.Number(0, 2)]

		category := types.CategoryConsultation
		machineID := ""
		if gofakeit.Bool() {
			category = types.CategoryTreatment
			machineID = machines[gofakeit.Number(0, len(machines)-1)]
		}

		apt := &types.Appointment{
			PatientID:      uuid.New().String(),
			PractitionerID: practitioners[gofakeit.Number(0, len(practitioners)-1)],
			MachineID:      machineID,
			Category:       category,
			Date:           timeutil.FormatDate(day),
			Start:          start,
			End:            start.Add(duration),
			Duration:       duration,
			Priority:       types.PriorityNormal,
			Notes:          gofakeit.Sentence(6),
			Reminders: []types.ReminderRule{
				{Recipient: types.RecipientPatient, Enabled: true, LeadMinutes: 60},
			},
		}
		if err := repo.CreateAppointment(apt); err != nil {
			log.WithError(err).Warn("Skipped appointment seed")
			continue
		}
		created++
	}
	log.WithField("count", created).Info("Seeded appointments")
}

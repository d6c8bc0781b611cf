package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-availability/internal/appointment"
	"github.com/hackgods/clinic-availability/internal/config"
	"github.com/hackgods/clinic-availability/internal/db"
	"github.com/hackgods/clinic-availability/internal/logging"
)

var visitTypes = []appointment.VisitType{
	{Name: "Follow-Up", MaxPatientsPerSlot: 2, DefaultDurationMinutes: 15},
	{Name: "Consultation", MaxPatientsPerSlot: 1, DefaultDurationMinutes: 30},
	{Name: "New Patient", MaxPatientsPerSlot: 1, DefaultDurationMinutes: 60},
	{Name: "Annual Physical", MaxPatientsPerSlot: 1, DefaultDurationMinutes: 45},
}

var specialties = []string{
	"Internal Medicine",
	"Cardiology",
	"Family Medicine",
	"Dermatology",
	"Endocrinology",
	"Pediatrics",
}

var notes = []string{
	"Blood pressure review",
	"Medication refill",
	"Lab results discussion",
	"Annual check",
	"Follow-up on imaging",
	"",
}

func main() {
	providers := flag.Int("providers", 20, "number of providers")
	patients := flag.Int("patients", 2000, "number of patients")
	perProvider := flag.Int("appointments", 40, "scheduled appointments per provider")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New("info", "prod")
		fallback.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env)
	cfg.LogWarnings(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	s := &seeder{pool: pool, logger: logger}

	if err := s.visitTypes(ctx); err != nil {
		logger.Fatal().Err(err).Msg("seed visit types")
	}
	providerIDs, err := s.providers(ctx, *providers)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed providers")
	}
	patientIDs, err := s.patients(ctx, *patients)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := s.appointments(ctx, providerIDs, patientIDs, *perProvider); err != nil {
		logger.Fatal().Err(err).Msg("seed appointments")
	}

	logger.Info().Msg("seed complete")
}

type seeder struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger

	// Working windows per provider, used to place appointments inside hours.
	windows map[uuid.UUID][]appointment.WeeklyAvailability
}

func (s *seeder) visitTypes(ctx context.Context) error {
	batch := &pgx.Batch{}
	for _, v := range visitTypes {
		batch.Queue(`
			INSERT INTO visit_types (id, name, max_patients_per_slot, default_duration_minutes)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO NOTHING
		`, uuid.New(), v.Name, v.MaxPatientsPerSlot, v.DefaultDurationMinutes)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	s.logger.Info().Int("count", len(visitTypes)).Msg("visit types seeded")
	return nil
}

// providers inserts providers with a Monday to Friday schedule. Some get a
// split day with a lunch break, which yields two windows on one weekday.
func (s *seeder) providers(ctx context.Context, count int) ([]uuid.UUID, error) {
	s.windows = make(map[uuid.UUID][]appointment.WeeklyAvailability, count)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, full_name, specialty, role)
			VALUES ($1, $2, $3, 'physician')
		`, id, "Dr. "+gofakeit.Name(), specialties[gofakeit.Number(0, len(specialties)-1)])
		if err != nil {
			return nil, err
		}

		open := gofakeit.Number(8, 10)
		split := gofakeit.Bool()
		for weekday := 1; weekday <= 5; weekday++ {
			var windows []appointment.WeeklyAvailability
			if split {
				windows = append(windows,
					window(id, weekday, open, 0, 12, 0),
					window(id, weekday, 13, 0, 17, 0))
			} else {
				windows = append(windows, window(id, weekday, open, 0, open+6, 30))
			}
			for _, w := range windows {
				_, err := tx.Exec(ctx, `
					INSERT INTO availability (id, provider_id, weekday, start_time, end_time)
					VALUES ($1, $2, $3, $4, $5)
				`, w.ID, w.ProviderID, w.Weekday, w.StartTime.String(), w.EndTime.String())
				if err != nil {
					return nil, err
				}
			}
			s.windows[id] = append(s.windows[id], windows...)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.logger.Info().Int("count", count).Msg("providers seeded")
	return ids, nil
}

func window(provider uuid.UUID, weekday, fromH, fromM, toH, toM int) appointment.WeeklyAvailability {
	return appointment.WeeklyAvailability{
		ID:         uuid.New(),
		ProviderID: provider,
		Weekday:    weekday,
		StartTime:  appointment.NewTimeOfDay(fromH, fromM, 0),
		EndTime:    appointment.NewTimeOfDay(toH, toM, 0),
	}
}

func (s *seeder) patients(ctx context.Context, count int) ([]uuid.UUID, error) {
	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			id := uuid.New()
			dob := gofakeit.DateRange(
				time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC))
			batch.Queue(`
				INSERT INTO patients (id, full_name, email, phone, date_of_birth)
				VALUES ($1, $2, $3, $4, $5)
			`, id, gofakeit.Name(), gofakeit.Email(), gofakeit.Phone(), appointment.FormatDate(dob))
			ids = append(ids, id)
		}
		if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
			return nil, err
		}

		s.logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}
	return ids, nil
}

// appointments books slots on the 15 minute grid inside each provider's
// windows over the next four weeks. Slots may repeat, so some Follow-Ups
// share a start time.
func (s *seeder) appointments(ctx context.Context, providers, patients []uuid.UUID, perProvider int) error {
	today := appointment.StartOfDay(appointment.Naive(time.Now()))
	statuses := []appointment.AppointmentStatus{
		appointment.StatusScheduled, appointment.StatusScheduled, appointment.StatusScheduled,
		appointment.StatusCancelled, "completed",
	}

	batch := &pgx.Batch{}
	for _, pid := range providers {
		windows := s.windows[pid]
		for i := 0; i < perProvider; i++ {
			day := today.AddDate(0, 0, gofakeit.Number(1, 28))
			weekday := appointment.ISOWeekday(day)
			var todays []appointment.WeeklyAvailability
			for _, w := range windows {
				if w.Weekday == weekday {
					todays = append(todays, w)
				}
			}
			if len(todays) == 0 {
				continue
			}
			w := todays[gofakeit.Number(0, len(todays)-1)]
			vt := visitTypes[gofakeit.Number(0, len(visitTypes)-1)]
			dur := time.Duration(vt.DefaultDurationMinutes) * time.Minute

			slots := int((time.Duration(w.EndTime-w.StartTime) - dur) / (15 * time.Minute))
			if slots < 0 {
				continue
			}
			start := w.StartTime.Add(time.Duration(gofakeit.Number(0, slots)) * 15 * time.Minute).On(day)

			batch.Queue(`
				INSERT INTO appointments (id, provider_id, patient_id, type, status, appointment_time, duration_minutes, notes)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, uuid.New(), pid, patients[gofakeit.Number(0, len(patients)-1)], vt.Name,
				string(statuses[gofakeit.Number(0, len(statuses)-1)]), start, vt.DefaultDurationMinutes,
				notes[gofakeit.Number(0, len(notes)-1)])
		}
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert appointments: %w", err)
	}
	s.logger.Info().Int("count", batch.Len()).Msg("appointments seeded")
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-availability/internal/app"
	"github.com/hackgods/clinic-availability/internal/appointment"
	"github.com/hackgods/clinic-availability/internal/apperr"
	"github.com/hackgods/clinic-availability/internal/availability"
	"github.com/hackgods/clinic-availability/internal/config"
	"github.com/hackgods/clinic-availability/internal/db"
	"github.com/hackgods/clinic-availability/internal/logging"
	"github.com/hackgods/clinic-availability/internal/scheduling"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "schedulectl",
		Short:         "Inspect and change provider schedules from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(nextCmd())
	rootCmd.AddCommand(availabilityCmd())
	rootCmd.AddCommand(rescheduleCmd())
	rootCmd.AddCommand(appointmentsCmd())

	if err := rootCmd.Execute(); err != nil {
		kind := apperr.KindOf(err)
		printJSON(map[string]any{
			"success":    false,
			"error":      apperr.Message(err),
			"error_kind": kind,
		})
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func cliLogger(cfg config.Config) zerolog.Logger {
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel, cfg.Env)
	cfg.LogWarnings(logger)
	return logger
}

// withService loads config, builds the engine and closes it after fn.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *scheduling.Service) (any, error)) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	engine, err := app.Build(ctx, cfg, cliLogger(cfg), nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	out, err := fn(ctx, engine.Service)
	if err != nil {
		return err
	}
	printJSON(out)
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the embedded schema",
	}

	run := func(fn func(m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cliLogger(cfg)
		m, err := db.NewMigrator(cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer m.Close()
		if err := fn(m); err != nil {
			return err
		}
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		printJSON(map[string]any{"success": true, "version": version, "dirty": dirty})
		return nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(m *db.Migrator) error { return m.Up() })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(m *db.Migrator) error { return m.Down() })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return apperr.InvalidInput("VERSION must be an integer", err)
			}
			return run(func(m *db.Migrator) error { return m.Force(version) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(*db.Migrator) error { return nil })
		},
	})

	return cmd
}

type slotFlags struct {
	provider string
	start    string
	duration int
	visit    string
	exclude  string
}

func (f *slotFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "", "Provider UUID")
	cmd.Flags().StringVar(&f.start, "start", "", "Start timestamp, e.g. 2025-06-10T14:00:00")
	cmd.Flags().IntVar(&f.duration, "duration", 15, "Duration in minutes")
	cmd.Flags().StringVar(&f.visit, "type", "", "Visit type name")
	cmd.Flags().StringVar(&f.exclude, "exclude", "", "Appointment UUID to leave out of the conflict set")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("type")
}

func (f *slotFlags) request() (availability.Request, error) {
	pid, err := uuid.Parse(f.provider)
	if err != nil {
		return availability.Request{}, apperr.InvalidInput("--provider must be a valid UUID", err)
	}
	start, err := appointment.ParseTimestamp(f.start)
	if err != nil {
		return availability.Request{}, apperr.InvalidInput(fmt.Sprintf("Invalid datetime format: %s", f.start), err)
	}
	req := availability.Request{
		ProviderID:      pid,
		Start:           start,
		DurationMinutes: f.duration,
		VisitType:       f.visit,
	}
	if f.exclude != "" {
		id, err := uuid.Parse(f.exclude)
		if err != nil {
			return availability.Request{}, apperr.InvalidInput("--exclude must be a valid UUID", err)
		}
		req.ExcludeAppointmentID = id
	}
	return req, nil
}

func checkCmd() *cobra.Command {
	var flags slotFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Decide whether one slot is bookable",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *scheduling.Service) (any, error) {
				d, err := svc.CheckSlot(ctx, req)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"success":         true,
					"available":       d.Available,
					"reason_code":     d.Reason,
					"conflict_reason": d.Message,
					"booked":          d.Booked,
					"capacity":        d.Capacity,
				}, nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func nextCmd() *cobra.Command {
	var flags slotFlags
	var horizon int
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Find the earliest bookable slot at or after --start",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			if horizon < 0 || horizon > availability.MaxHorizonDays {
				return apperr.InvalidInput(fmt.Sprintf(
					"--horizon must be between 0 and %d", availability.MaxHorizonDays), nil)
			}
			return withService(cmd, func(ctx context.Context, svc *scheduling.Service) (any, error) {
				slot, err := svc.NextSlot(ctx, availability.SearchRequest{Request: req, HorizonDays: horizon})
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"success":        true,
					"found":          slot != nil,
					"next_available": scheduling.NewSlotView(slot),
				}, nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&horizon, "horizon", 0, "Days to scan past the first one (0 uses the configured default)")
	return cmd
}

func availabilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "availability APPOINTMENT_ID PREFERRED_DATETIME",
		Short: "Check whether an appointment could move to a preferred time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *scheduling.Service) (any, error) {
				res, err := svc.CheckAvailability(ctx, args[0], args[1])
				if err != nil {
					return nil, err
				}
				return struct {
					Success bool `json:"success"`
					*scheduling.AvailabilityResult
				}{true, res}, nil
			})
		},
	}
}

func rescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule APPOINTMENT_ID NEW_DATETIME",
		Short: "Move a scheduled appointment to a new time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *scheduling.Service) (any, error) {
				res, err := svc.Reschedule(ctx, args[0], args[1])
				if err != nil {
					return nil, err
				}
				return struct {
					Success bool `json:"success"`
					*scheduling.RescheduleResult
				}{true, res}, nil
			})
		},
	}
}

func appointmentsCmd() *cobra.Command {
	var name, dob string
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "List a patient's upcoming appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *scheduling.Service) (any, error) {
				res, err := svc.UpcomingAppointments(ctx, name, dob)
				if err != nil {
					return nil, err
				}
				return struct {
					Success bool `json:"success"`
					*scheduling.PatientAppointments
				}{true, res}, nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Patient full name")
	cmd.Flags().StringVar(&dob, "dob", "", "Date of birth, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("dob")
	return cmd
}

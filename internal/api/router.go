package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-availability/internal/availability"
	"github.com/hackgods/clinic-availability/internal/scheduling"
)

// SchedulingService is the slice of scheduling.Service the HTTP layer uses.
type SchedulingService interface {
	CheckSlot(ctx context.Context, req availability.Request) (availability.Decision, error)
	NextSlot(ctx context.Context, req availability.SearchRequest) (*availability.Slot, error)
	CheckAvailability(ctx context.Context, appointmentID, preferred string) (*scheduling.AvailabilityResult, error)
	Reschedule(ctx context.Context, appointmentID, newDateTime string) (*scheduling.RescheduleResult, error)
	UpcomingAppointments(ctx context.Context, name, dateOfBirth string) (*scheduling.PatientAppointments, error)
}

type RouterConfig struct {
	Service  SchedulingService
	Logger   zerolog.Logger
	Postgres Pinger // nil when the memory backend is used
	Redis    Pinger // nil when locking is disabled
	Metrics  http.Handler
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/availability", func(r chi.Router) {
		r.Post("/check", checkSlotHandler(cfg.Service))
		r.Post("/next", nextSlotHandler(cfg.Service))
	})

	r.Post("/appointments/{id}/availability", checkAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Service))
	r.Get("/patients/appointments", upcomingAppointmentsHandler(cfg.Service))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	return r
}

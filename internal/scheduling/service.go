// Package scheduling runs the reschedule workflow on top of the availability
// engine: checking a preferred time for an existing appointment, moving it,
// and listing a patient's upcoming visits.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-availability/internal/apperr"
	"github.com/hackgods/clinic-availability/internal/appointment"
	"github.com/hackgods/clinic-availability/internal/availability"
	redisclient "github.com/hackgods/clinic-availability/internal/redis"
)

const (
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

const (
	rescheduleStampLayout = "2006-01-02 15:04:05"
	upcomingDateLayout    = "Monday, January 02, 2006"
	upcomingTimeLayout    = "03:04 PM"
)

var tracer = otel.Tracer("clinic-availability/scheduling")

// RescheduleObserver receives reschedule outcomes.
type RescheduleObserver interface {
	ObserveReschedule(outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveReschedule(string) {}

type Service struct {
	repo     appointment.Repository
	checker  *availability.Checker
	finder   *availability.Finder
	locker   redisclient.Locker
	clock    availability.Clock
	logger   zerolog.Logger
	observer RescheduleObserver
}

func NewService(
	repo appointment.Repository,
	checker *availability.Checker,
	finder *availability.Finder,
	locker redisclient.Locker,
	clock availability.Clock,
	logger zerolog.Logger,
	observer RescheduleObserver,
) *Service {
	if locker == nil {
		locker = redisclient.NewLocalLocker()
	}
	if clock == nil {
		clock = availability.SystemClock()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Service{
		repo:     repo,
		checker:  checker,
		finder:   finder,
		locker:   locker,
		clock:    clock,
		logger:   logger.With().Str("component", "scheduling").Logger(),
		observer: observer,
	}
}

// CheckSlot runs the Checker directly with caller-supplied parameters.
func (s *Service) CheckSlot(ctx context.Context, req availability.Request) (availability.Decision, error) {
	d, err := s.checker.Check(ctx, req)
	if err != nil {
		return availability.Decision{}, engineError(err)
	}
	return d, nil
}

// NextSlot runs the Finder directly. A nil slot means nothing is free within
// the horizon.
func (s *Service) NextSlot(ctx context.Context, req availability.SearchRequest) (*availability.Slot, error) {
	slot, err := s.finder.FindNext(ctx, req)
	if err != nil {
		return nil, engineError(err)
	}
	return slot, nil
}

// CheckAvailability reports whether an existing appointment could move to
// preferred. When it cannot, the earliest alternative is suggested.
func (s *Service) CheckAvailability(ctx context.Context, appointmentID, preferred string) (result *AvailabilityResult, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.check_availability",
		trace.WithAttributes(attribute.String("appointment.id", appointmentID)))
	defer func() { endSpan(span, err) }()

	appt, err := s.loadAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	start, err := appointment.ParseTimestamp(preferred)
	if err != nil {
		return nil, apperr.InvalidInput("Invalid datetime format. Use ISO format like '2025-06-10T14:00:00'", err)
	}
	if err := s.requireFuture(preferred, start); err != nil {
		return nil, err
	}

	req := availability.Request{
		ProviderID:           appt.ProviderID,
		Start:                start,
		DurationMinutes:      appt.DurationMinutes,
		VisitType:            appt.Type,
		ExcludeAppointmentID: appt.ID,
	}
	span.SetAttributes(attribute.String("provider.id", appt.ProviderID.String()))

	d, err := s.checker.Check(ctx, req)
	if err != nil {
		return nil, engineError(err)
	}
	if d.Available {
		return &AvailabilityResult{
			Available:         true,
			PreferredDateTime: preferred,
			Message:           "Preferred time is available",
		}, nil
	}

	next, err := s.finder.FindNext(ctx, availability.SearchRequest{Request: req})
	if err != nil {
		return nil, engineError(err)
	}

	return &AvailabilityResult{
		Available:         false,
		PreferredDateTime: preferred,
		ConflictReason:    d.Message,
		ReasonCode:        d.Reason,
		NextAvailable:     NewSlotView(next),
		Message:           "Preferred time not available. " + d.Message,
	}, nil
}

// Reschedule moves a scheduled appointment to newDateTime. The availability
// re-check and the write run under a provider-day lock, and the write only
// matches while the appointment is still scheduled.
func (s *Service) Reschedule(ctx context.Context, appointmentID, newDateTime string) (result *RescheduleResult, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.reschedule",
		trace.WithAttributes(attribute.String("appointment.id", appointmentID)))
	defer func() {
		s.observer.ObserveReschedule(rescheduleOutcome(err))
		endSpan(span, err)
	}()

	newStart, err := appointment.ParseTimestamp(newDateTime)
	if err != nil {
		return nil, apperr.InvalidInput(fmt.Sprintf(
			"Invalid datetime format: %s. Expected ISO format like '2025-06-10T10:00:00'", newDateTime), err)
	}

	appt, err := s.loadAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if appt.Status != appointment.StatusScheduled {
		return nil, apperr.PreconditionFailed(fmt.Sprintf(
			"Cannot reschedule appointment with status: %s. Only 'scheduled' appointments can be rescheduled.", appt.Status))
	}
	if err := s.requireFuture(newDateTime, newStart); err != nil {
		return nil, err
	}

	var updated appointment.Appointment
	now := s.clock.Now()
	key := redisclient.ProviderDayKey(appt.ProviderID, newStart)

	err = s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
		d, err := s.checker.Check(lockCtx, availability.Request{
			ProviderID:           appt.ProviderID,
			Start:                newStart,
			DurationMinutes:      appt.DurationMinutes,
			VisitType:            appt.Type,
			ExcludeAppointmentID: appt.ID,
		})
		if err != nil {
			return engineError(err)
		}
		if !d.Available {
			return apperr.Unavailable("Requested time not available. " + d.Message)
		}

		notes := fmt.Sprintf("%s - Rescheduled on %s", appt.Notes, now.Format(rescheduleStampLayout))
		rows, err := s.repo.UpdateAppointments(lockCtx,
			appointment.AppointmentPatch{StartTime: &newStart, Notes: &notes},
			appointment.Eq("id", appt.ID),
			appointment.Eq("status", appointment.StatusScheduled),
		)
		if err != nil {
			return apperr.Internal("Failed to update appointment", err)
		}
		if len(rows) == 0 {
			return apperr.PreconditionFailed("Appointment is no longer scheduled")
		}
		updated = rows[0]
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, apperr.Unavailable("Another change to this provider's schedule is in progress, please retry")
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperr.Internal("An error occurred while rescheduling appointment", err)
	}

	s.logEvent(updated.ID, EventAppointmentRescheduled, map[string]any{
		"provider_id": updated.ProviderID.String(),
		"old_time":    appointment.FormatISO(appt.StartTime),
		"new_time":    appointment.FormatISO(updated.StartTime),
	})

	return &RescheduleResult{
		Message:       "Appointment successfully rescheduled",
		AppointmentID: updated.ID.String(),
		Patient:       s.patientContact(ctx, updated.PatientID),
		Provider:      s.providerSummary(ctx, updated.ProviderID, "Unknown"),
		Details: AppointmentDetails{
			Type:            updated.Type,
			DurationMinutes: updated.DurationMinutes,
			Status:          string(updated.Status),
			Notes:           updated.Notes,
		},
		Change:        newScheduleChange(appt.StartTime, updated.StartTime),
		RescheduledAt: appointment.FormatISO(now),
	}, nil
}

// UpcomingAppointments lists a patient's scheduled visits after now, earliest
// first. The patient is matched on trimmed, case-insensitive full name and
// exact date of birth.
func (s *Service) UpcomingAppointments(ctx context.Context, name, dateOfBirth string) (result *PatientAppointments, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.upcoming_appointments")
	defer func() { endSpan(span, err) }()

	if _, err := time.Parse("2006-01-02", dateOfBirth); err != nil {
		return nil, apperr.InvalidInput(fmt.Sprintf(
			"Invalid date of birth format: %s. Expected YYYY-MM-DD format.", dateOfBirth), err)
	}

	candidates, err := s.repo.FindPatients(ctx, appointment.Eq("date_of_birth", dateOfBirth))
	if err != nil {
		return nil, apperr.Internal("An error occurred while retrieving patient appointments", err)
	}

	wanted := strings.TrimSpace(name)
	var patient *appointment.Patient
	for i := range candidates {
		if strings.EqualFold(strings.TrimSpace(candidates[i].FullName), wanted) {
			patient = &candidates[i]
			break
		}
	}
	if patient == nil {
		return nil, apperr.NotFound(fmt.Sprintf(
			"No patient found with name '%s' and date of birth '%s'", name, dateOfBirth), appointment.ErrPatientNotFound)
	}
	span.SetAttributes(attribute.String("patient.id", patient.ID.String()))

	appts, err := s.repo.FindAppointments(ctx,
		appointment.Eq("patient_id", patient.ID),
		appointment.Eq("status", appointment.StatusScheduled),
	)
	if err != nil {
		return nil, apperr.Internal("An error occurred while retrieving patient appointments", err)
	}

	now := s.clock.Now()
	future := appts[:0:0]
	for _, a := range appts {
		if a.StartTime.After(now) {
			future = append(future, a)
		}
	}
	sort.SliceStable(future, func(i, j int) bool { return future[i].StartTime.Before(future[j].StartTime) })

	providers := make(map[uuid.UUID]ProviderSummary)
	upcoming := make([]UpcomingAppointment, 0, len(future))
	for _, a := range future {
		p, ok := providers[a.ProviderID]
		if !ok {
			p = s.providerSummary(ctx, a.ProviderID, "Unknown Provider")
			providers[a.ProviderID] = p
		}
		upcoming = append(upcoming, UpcomingAppointment{
			AppointmentID:     a.ID.String(),
			Date:              a.StartTime.Format(upcomingDateLayout),
			Time:              a.StartTime.Format(upcomingTimeLayout),
			DateTimeISO:       appointment.FormatISO(a.StartTime),
			ProviderName:      p.Name,
			ProviderSpecialty: p.Specialty,
			AppointmentType:   a.Type,
			DurationMinutes:   a.DurationMinutes,
			Notes:             a.Notes,
		})
	}

	result = &PatientAppointments{
		PatientFound: true,
		PatientName:  patient.FullName,
		Upcoming:     upcoming,
	}
	if len(upcoming) > 0 {
		result.PatientPhone = patient.Phone
		result.PatientEmail = patient.Email
		result.Next = &upcoming[0]
		result.Total = len(upcoming)
	}
	return result, nil
}

func (s *Service) loadAppointment(ctx context.Context, rawID string) (*appointment.Appointment, error) {
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return nil, apperr.NotFound("Appointment not found", appointment.ErrAppointmentNotFound)
	}
	appt, err := appointment.GetAppointmentByID(ctx, s.repo, id)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return nil, apperr.NotFound("Appointment not found", err)
		}
		return nil, apperr.Internal("Failed to load appointment", err)
	}
	return appt, nil
}

// requireFuture rejects t unless it is strictly after now.
func (s *Service) requireFuture(raw string, t time.Time) error {
	now := s.clock.Now()
	if t.After(now) {
		return nil
	}
	return apperr.InvalidInput(fmt.Sprintf(
		"Cannot schedule appointments in the past. Requested time: %s, Current time: %s",
		raw, appointment.FormatISO(now)), nil)
}

func (s *Service) patientContact(ctx context.Context, id uuid.UUID) PatientContact {
	p, err := appointment.GetPatientByID(ctx, s.repo, id)
	if err != nil {
		if !errors.Is(err, appointment.ErrPatientNotFound) {
			s.logger.Warn().Err(err).Str("patient_id", id.String()).Msg("load patient for reschedule response")
		}
		return PatientContact{Name: "Unknown"}
	}
	return PatientContact{Name: p.FullName, Email: p.Email, Phone: p.Phone}
}

func (s *Service) providerSummary(ctx context.Context, id uuid.UUID, fallback string) ProviderSummary {
	p, err := appointment.GetProviderByID(ctx, s.repo, id)
	if err != nil {
		if !errors.Is(err, appointment.ErrProviderNotFound) {
			s.logger.Warn().Err(err).Str("provider_id", id.String()).Msg("load provider")
		}
		return ProviderSummary{Name: fallback}
	}
	return ProviderSummary{Name: p.FullName, Specialty: p.Specialty}
}

func (s *Service) logEvent(appointmentID uuid.UUID, eventType string, payload map[string]any) {
	s.logger.Info().
		Str("event_type", eventType).
		Str("appointment_id", appointmentID.String()).
		Fields(payload).
		Msg("appointment event")
}

// engineError classifies a failure coming out of the Checker or Finder.
func engineError(err error) error {
	if errors.Is(err, availability.ErrInvalidDuration) {
		return apperr.InvalidInput("Duration must be a positive number of minutes", err)
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal("An error occurred", err)
}

func rescheduleOutcome(err error) string {
	if err == nil {
		return "rescheduled"
	}
	switch apperr.KindOf(err) {
	case apperr.KindUnavailable:
		return "unavailable"
	case apperr.KindNotFound, apperr.KindInvalidInput, apperr.KindPreconditionFailed:
		return "rejected"
	default:
		return "error"
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Message(err))
		span.SetAttributes(attribute.String("error.kind", string(apperr.KindOf(err))))
	}
	span.End()
}

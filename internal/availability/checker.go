// Package availability decides whether a provider can take an appointment at
// a given time and searches forward for the next time that works.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-availability/internal/appointment"
)

var ErrInvalidDuration = errors.New("duration must be positive")

// Reason is the machine-readable cause of an unavailable decision.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonProviderOffDay   Reason = "provider_not_available"
	ReasonOutsideHours     Reason = "outside_working_hours"
	ReasonInvalidVisitType Reason = "invalid_visit_type"
	ReasonSlotFull         Reason = "slot_full"
	ReasonConflict         Reason = "conflict"
)

// Request describes one candidate appointment. ExcludeAppointmentID, when
// set, is left out of the conflict set so an appointment being moved does not
// collide with itself.
type Request struct {
	ProviderID           uuid.UUID
	Start                time.Time
	DurationMinutes      int
	VisitType            string
	ExcludeAppointmentID uuid.UUID
}

func (r Request) duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// Decision is the outcome of a check. Message is empty when Available.
type Decision struct {
	Available bool
	Reason    Reason
	Message   string

	// Set for ReasonSlotFull.
	Booked   int
	Capacity int

	// Set for ReasonConflict.
	ConflictStart time.Time
}

// Observer receives check and search outcomes. The metrics package
// implements it.
type Observer interface {
	ObserveCheck(result string, reason string)
	ObserveSearch(outcome string, seconds float64)
}

type nopObserver struct{}

func (nopObserver) ObserveCheck(string, string)    {}
func (nopObserver) ObserveSearch(string, float64) {}

// Checker applies, in order, the working-hours rule, visit-type resolution
// and the conflict/capacity rule, stopping at the first failure.
type Checker struct {
	repo     appointment.Repository
	logger   zerolog.Logger
	observer Observer
}

func NewChecker(repo appointment.Repository, logger zerolog.Logger, observer Observer) *Checker {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Checker{
		repo:     repo,
		logger:   logger.With().Str("component", "availability_checker").Logger(),
		observer: observer,
	}
}

// Check never writes to the store.
func (c *Checker) Check(ctx context.Context, req Request) (Decision, error) {
	if req.DurationMinutes <= 0 {
		return Decision{}, ErrInvalidDuration
	}

	d, err := c.check(ctx, req)
	if err != nil {
		c.observer.ObserveCheck("error", "")
		return Decision{}, err
	}

	result := "available"
	if !d.Available {
		result = "unavailable"
	}
	c.observer.ObserveCheck(result, string(d.Reason))

	c.logger.Debug().
		Str("provider_id", req.ProviderID.String()).
		Str("start", appointment.FormatISO(req.Start)).
		Int("duration_minutes", req.DurationMinutes).
		Str("visit_type", req.VisitType).
		Bool("available", d.Available).
		Str("reason", string(d.Reason)).
		Msg("availability checked")

	return d, nil
}

func (c *Checker) check(ctx context.Context, req Request) (Decision, error) {
	start := appointment.Naive(req.Start)
	dur := req.duration()

	// Working hours
	windows, err := c.repo.FindAvailability(ctx,
		appointment.Eq("provider_id", req.ProviderID),
		appointment.Eq("weekday", appointment.ISOWeekday(start)),
	)
	if err != nil {
		return Decision{}, fmt.Errorf("load availability: %w", err)
	}
	if len(windows) == 0 {
		return unavailable(ReasonProviderOffDay, fmt.Sprintf("Provider not available on %s", start.Weekday())), nil
	}
	if !fitsAnyWindow(windows, start, dur) {
		return unavailable(ReasonOutsideHours, "Requested time is outside provider's working hours"), nil
	}

	// Visit type
	visitTypes, err := c.repo.FindVisitTypes(ctx, appointment.Eq("name", req.VisitType))
	if err != nil {
		return Decision{}, fmt.Errorf("load visit type: %w", err)
	}
	if len(visitTypes) == 0 {
		return unavailable(ReasonInvalidVisitType, fmt.Sprintf("Invalid appointment type: %s", req.VisitType)), nil
	}
	capacity := visitTypes[0].MaxPatientsPerSlot

	// Conflicts and capacity
	filters := []appointment.Filter{
		appointment.Eq("provider_id", req.ProviderID),
		appointment.Eq("status", appointment.StatusScheduled),
	}
	if req.ExcludeAppointmentID != uuid.Nil {
		filters = append(filters, appointment.Neq("id", req.ExcludeAppointmentID))
	}
	existing, err := c.repo.FindAppointments(ctx, filters...)
	if err != nil {
		return Decision{}, fmt.Errorf("load scheduled appointments: %w", err)
	}

	end := start.Add(dur)
	exact := 0
	var partial *appointment.Appointment
	for i := range existing {
		e := &existing[i]
		if !Overlaps(start, end, e.StartTime, e.EndTime()) {
			continue
		}
		if e.StartTime.Equal(start) {
			exact++
			continue
		}
		// Report the earliest overlap, not the first in store order, so the
		// message does not depend on the backend's row order.
		if partial == nil || e.StartTime.Before(partial.StartTime) {
			partial = e
		}
	}

	if exact > 0 {
		if exact >= capacity {
			d := unavailable(ReasonSlotFull, fmt.Sprintf(
				"Time slot full: %d/%d patients already scheduled at %s",
				exact, capacity, appointment.FormatShort(start)))
			d.Booked = exact
			d.Capacity = capacity
			return d, nil
		}
		return Decision{Available: true, Booked: exact, Capacity: capacity}, nil
	}

	if partial != nil {
		d := unavailable(ReasonConflict, fmt.Sprintf(
			"Conflicts with existing appointment at %s", appointment.FormatShort(partial.StartTime)))
		d.ConflictStart = partial.StartTime
		return d, nil
	}

	return Decision{Available: true, Capacity: capacity}, nil
}

func unavailable(reason Reason, message string) Decision {
	return Decision{Reason: reason, Message: message}
}

// fitsAnyWindow compares on time of day. A span that would run past midnight
// never fits.
func fitsAnyWindow(windows []appointment.WeeklyAvailability, start time.Time, dur time.Duration) bool {
	tod := appointment.TimeOfDayOf(start)
	for _, w := range windows {
		if w.Contains(tod, dur) {
			return true
		}
	}
	return false
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

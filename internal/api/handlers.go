package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-availability/internal/apperr"
	"github.com/hackgods/clinic-availability/internal/appointment"
	"github.com/hackgods/clinic-availability/internal/availability"
	"github.com/hackgods/clinic-availability/internal/scheduling"
)

func checkSlotHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body CheckSlotRequest
		if !decodeBody(w, r, &body) {
			return
		}

		req, err := engineRequest(body.ProviderID, body.Start, body.DurationMinutes, body.VisitType, body.ExcludeAppointmentID)
		if err != nil {
			writeAppError(w, err)
			return
		}

		d, err := svc.CheckSlot(r.Context(), req)
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CheckSlotResponse{
			Success:        true,
			Available:      d.Available,
			ReasonCode:     d.Reason,
			ConflictReason: d.Message,
			Booked:         d.Booked,
			Capacity:       d.Capacity,
		})
	}
}

func nextSlotHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body NextSlotRequest
		if !decodeBody(w, r, &body) {
			return
		}

		req, err := engineRequest(body.ProviderID, body.From, body.DurationMinutes, body.VisitType, body.ExcludeAppointmentID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if body.HorizonDays < 0 || body.HorizonDays > availability.MaxHorizonDays {
			writeAppError(w, apperr.InvalidInput(fmt.Sprintf(
				"horizon_days must be between 0 and %d", availability.MaxHorizonDays), nil))
			return
		}

		slot, err := svc.NextSlot(r.Context(), availability.SearchRequest{Request: req, HorizonDays: body.HorizonDays})
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, NextSlotResponse{
			Success:       true,
			Found:         slot != nil,
			NextAvailable: scheduling.NewSlotView(slot),
		})
	}
}

func checkAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body PreferredTimeRequest
		if !decodeBody(w, r, &body) {
			return
		}

		res, err := svc.CheckAvailability(r.Context(), chi.URLParam(r, "id"), body.PreferredDateTime)
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{Success: true, AvailabilityResult: res})
	}
}

func rescheduleHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body RescheduleRequest
		if !decodeBody(w, r, &body) {
			return
		}

		res, err := svc.Reschedule(r.Context(), chi.URLParam(r, "id"), body.NewDateTime)
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, RescheduleResponse{Success: true, RescheduleResult: res})
	}
}

func upcomingAppointmentsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		name := q.Get("name")
		dob := q.Get("date_of_birth")
		if strings.TrimSpace(name) == "" || dob == "" {
			writeAppError(w, apperr.InvalidInput("name and date_of_birth are required", nil))
			return
		}

		res, err := svc.UpcomingAppointments(r.Context(), name, dob)
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, UpcomingAppointmentsResponse{Success: true, PatientAppointments: res})
	}
}

// engineRequest validates the wire fields shared by the check and next routes.
func engineRequest(providerID, start string, duration int, visitType, exclude string) (availability.Request, error) {
	pid, err := uuid.Parse(providerID)
	if err != nil {
		return availability.Request{}, apperr.InvalidInput("provider_id must be a valid UUID", err)
	}
	ts, err := appointment.ParseTimestamp(start)
	if err != nil {
		return availability.Request{}, apperr.InvalidInput("Invalid datetime format. Use ISO format like '2025-06-10T14:00:00'", err)
	}
	if duration <= 0 {
		return availability.Request{}, apperr.InvalidInput("duration_minutes must be positive", nil)
	}

	req := availability.Request{
		ProviderID:      pid,
		Start:           ts,
		DurationMinutes: duration,
		VisitType:       visitType,
	}
	if exclude != "" {
		id, err := uuid.Parse(exclude)
		if err != nil {
			return availability.Request{}, apperr.InvalidInput("exclude_appointment_id must be a valid UUID", err)
		}
		req.ExcludeAppointmentID = id
	}
	return req, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, string(apperr.KindInvalidInput), "could not parse JSON body")
		return false
	}
	return true
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindUnavailable:
		return http.StatusConflict
	case apperr.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	writeError(w, statusForKind(kind), string(kind), apperr.Message(err))
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: message, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

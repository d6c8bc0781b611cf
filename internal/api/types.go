package api

import (
	"github.com/hackgods/clinic-availability/internal/availability"
	"github.com/hackgods/clinic-availability/internal/scheduling"
)

type CheckSlotRequest struct {
	ProviderID           string `json:"provider_id"`
	Start                string `json:"start"`
	DurationMinutes      int    `json:"duration_minutes"`
	VisitType            string `json:"visit_type"`
	ExcludeAppointmentID string `json:"exclude_appointment_id,omitempty"`
}

type NextSlotRequest struct {
	ProviderID           string `json:"provider_id"`
	From                 string `json:"from"`
	DurationMinutes      int    `json:"duration_minutes"`
	VisitType            string `json:"visit_type"`
	ExcludeAppointmentID string `json:"exclude_appointment_id,omitempty"`
	HorizonDays          int    `json:"horizon_days,omitempty"`
}

type PreferredTimeRequest struct {
	PreferredDateTime string `json:"preferred_datetime"`
}

type RescheduleRequest struct {
	NewDateTime string `json:"new_datetime"`
}

type CheckSlotResponse struct {
	Success        bool                `json:"success"`
	Available      bool                `json:"available"`
	ReasonCode     availability.Reason `json:"reason_code,omitempty"`
	ConflictReason string              `json:"conflict_reason,omitempty"`
	Booked         int                 `json:"booked,omitempty"`
	Capacity       int                 `json:"capacity,omitempty"`
}

type NextSlotResponse struct {
	Success       bool                 `json:"success"`
	Found         bool                 `json:"found"`
	NextAvailable *scheduling.SlotView `json:"next_available"`
}

type AvailabilityResponse struct {
	Success bool `json:"success"`
	*scheduling.AvailabilityResult
}

type RescheduleResponse struct {
	Success bool `json:"success"`
	*scheduling.RescheduleResult
}

type UpcomingAppointmentsResponse struct {
	Success bool `json:"success"`
	*scheduling.PatientAppointments
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"error_kind,omitempty"`
}

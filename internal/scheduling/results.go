package scheduling

import (
	"time"

	"github.com/hackgods/clinic-availability/internal/appointment"
	"github.com/hackgods/clinic-availability/internal/availability"
)

// SlotView is a suggested start time rendered for callers.
type SlotView struct {
	DateTime          string `json:"datetime"`
	FormattedDateTime string `json:"formatted_datetime"`
	Date              string `json:"date"`
	Time              string `json:"time"`
	Weekday           string `json:"weekday"`
}

// NewSlotView returns nil for a nil slot.
func NewSlotView(slot *availability.Slot) *SlotView {
	if slot == nil {
		return nil
	}
	return &SlotView{
		DateTime:          slot.ISO(),
		FormattedDateTime: slot.Formatted(),
		Date:              slot.Date(),
		Time:              slot.Time(),
		Weekday:           slot.Weekday(),
	}
}

type AvailabilityResult struct {
	Available         bool                `json:"available"`
	PreferredDateTime string              `json:"preferred_datetime"`
	ConflictReason    string              `json:"conflict_reason,omitempty"`
	ReasonCode        availability.Reason `json:"reason_code,omitempty"`
	NextAvailable     *SlotView           `json:"next_available"`
	Message           string              `json:"message"`
}

type PatientContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type ProviderSummary struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

type AppointmentDetails struct {
	Type            string `json:"type"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	Notes           string `json:"notes"`
}

type ScheduleChange struct {
	OldDateTime  string `json:"old_datetime"`
	OldFormatted string `json:"old_formatted"`
	NewDateTime  string `json:"new_datetime"`
	NewFormatted string `json:"new_formatted"`
	NewDate      string `json:"new_date"`
	NewTime      string `json:"new_time"`
	NewWeekday   string `json:"new_weekday"`
}

func newScheduleChange(oldStart, newStart time.Time) ScheduleChange {
	return ScheduleChange{
		OldDateTime:  appointment.FormatISO(oldStart),
		OldFormatted: appointment.FormatHuman(oldStart),
		NewDateTime:  appointment.FormatISO(newStart),
		NewFormatted: appointment.FormatHuman(newStart),
		NewDate:      appointment.FormatDate(newStart),
		NewTime:      appointment.FormatClock(newStart),
		NewWeekday:   newStart.Weekday().String(),
	}
}

type RescheduleResult struct {
	Message       string             `json:"message"`
	AppointmentID string             `json:"appointment_id"`
	Patient       PatientContact     `json:"patient"`
	Provider      ProviderSummary    `json:"provider"`
	Details       AppointmentDetails `json:"appointment_details"`
	Change        ScheduleChange     `json:"schedule_change"`
	RescheduledAt string             `json:"rescheduled_at"`
}

type UpcomingAppointment struct {
	AppointmentID     string `json:"appointment_id"`
	Date              string `json:"date"`
	Time              string `json:"time"`
	DateTimeISO       string `json:"datetime_iso"`
	ProviderName      string `json:"provider_name"`
	ProviderSpecialty string `json:"provider_specialty"`
	AppointmentType   string `json:"appointment_type"`
	DurationMinutes   int    `json:"duration_minutes"`
	Notes             string `json:"notes"`
}

type PatientAppointments struct {
	PatientFound bool                  `json:"patient_found"`
	PatientName  string                `json:"patient_name"`
	PatientPhone string                `json:"patient_phone,omitempty"`
	PatientEmail string                `json:"patient_email,omitempty"`
	Upcoming     []UpcomingAppointment `json:"upcoming_appointments"`
	Next         *UpcomingAppointment  `json:"next_appointment,omitempty"`
	Total        int                   `json:"total_appointments"`
}

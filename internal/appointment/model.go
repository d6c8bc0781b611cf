package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

// Status values are compared exactly. A capitalised "Scheduled" is a
// different status and never takes part in conflict checks or reschedules.
const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Entity kinds as stored. They double as table names.
type Kind string

const (
	KindAppointments Kind = "appointments"
	KindProviders    Kind = "providers"
	KindPatients     Kind = "patients"
	KindAvailability Kind = "availability"
	KindVisitTypes   Kind = "visit_types"
)

type Patient struct {
	ID          uuid.UUID
	FullName    string
	Email       string
	Phone       string
	DateOfBirth string // YYYY-MM-DD
}

type Provider struct {
	ID        uuid.UUID
	FullName  string
	Specialty string
	Role      string
}

// WeeklyAvailability is one working window of a provider on a weekday.
// Weekday runs 1=Monday through 7=Sunday.
type WeeklyAvailability struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Weekday    int
	StartTime  TimeOfDay
	EndTime    TimeOfDay
}

// Contains reports whether [start, start+d) fits inside the window when both
// are measured from the same midnight. Ending exactly at EndTime is allowed.
func (w WeeklyAvailability) Contains(start TimeOfDay, d time.Duration) bool {
	end := start.Add(d)
	return w.StartTime <= start && end <= w.EndTime
}

type VisitType struct {
	ID                     uuid.UUID
	Name                   string
	MaxPatientsPerSlot     int
	DefaultDurationMinutes int
}

// Appointment occupies [StartTime, StartTime+Duration) for its provider
// while its status is scheduled. StartTime is a naive wall-clock value.
type Appointment struct {
	ID              uuid.UUID
	ProviderID      uuid.UUID
	PatientID       uuid.UUID
	Type            string
	Status          AppointmentStatus
	StartTime       time.Time
	DurationMinutes int
	Notes           string
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

func (a Appointment) EndTime() time.Time {
	return a.StartTime.Add(a.Duration())
}

// AppointmentPatch lists the fields an update may change. Nil fields are
// left untouched.
type AppointmentPatch struct {
	StartTime *time.Time
	Notes     *string
}

func (p AppointmentPatch) empty() bool {
	return p.StartTime == nil && p.Notes == nil
}

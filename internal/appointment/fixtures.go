package appointment

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

type fixtureDocument struct {
	VisitTypes []struct {
		ID                     uuid.UUID `json:"id"`
		Name                   string    `json:"name"`
		MaxPatientsPerSlot     int       `json:"max_patients_per_slot"`
		DefaultDurationMinutes int       `json:"default_duration_minutes"`
	} `json:"visit_types"`
	Providers []struct {
		ID        uuid.UUID `json:"id"`
		Role      string    `json:"role"`
		FullName  string    `json:"full_name"`
		Specialty string    `json:"specialty"`
	} `json:"providers"`
	Patients []struct {
		ID          uuid.UUID `json:"id"`
		Email       string    `json:"email"`
		Phone       string    `json:"phone"`
		FullName    string    `json:"full_name"`
		DateOfBirth string    `json:"date_of_birth"`
	} `json:"patients"`
	Availability []struct {
		ID         uuid.UUID `json:"id"`
		ProviderID uuid.UUID `json:"provider_id"`
		Weekday    int       `json:"weekday"`
		StartTime  string    `json:"start_time"`
		EndTime    string    `json:"end_time"`
	} `json:"availability"`
	Appointments []struct {
		ID              uuid.UUID `json:"id"`
		ProviderID      uuid.UUID `json:"provider_id"`
		PatientID       uuid.UUID `json:"patient_id"`
		Type            string    `json:"type"`
		Status          string    `json:"status"`
		AppointmentTime string    `json:"appointment_time"`
		DurationMinutes int       `json:"duration_minutes"`
		Notes           string    `json:"notes"`
	} `json:"appointments"`
}

// LoadFixtures reads a JSON fixture document into a new MemoryRepository.
// Records are validated here so the engine can trust them.
func LoadFixtures(r io.Reader) (*MemoryRepository, error) {
	var doc fixtureDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}

	repo := NewMemoryRepository()

	for _, v := range doc.VisitTypes {
		if v.Name == "" {
			return nil, fmt.Errorf("visit type %s: name is required", v.ID)
		}
		if v.MaxPatientsPerSlot < 1 {
			return nil, fmt.Errorf("visit type %q: max_patients_per_slot must be >= 1", v.Name)
		}
		repo.AddVisitType(VisitType{
			ID:                     v.ID,
			Name:                   v.Name,
			MaxPatientsPerSlot:     v.MaxPatientsPerSlot,
			DefaultDurationMinutes: v.DefaultDurationMinutes,
		})
	}

	for _, p := range doc.Providers {
		repo.AddProvider(Provider{ID: p.ID, FullName: p.FullName, Specialty: p.Specialty, Role: p.Role})
	}

	for _, p := range doc.Patients {
		repo.AddPatient(Patient{
			ID:          p.ID,
			FullName:    p.FullName,
			Email:       p.Email,
			Phone:       p.Phone,
			DateOfBirth: p.DateOfBirth,
		})
	}

	for _, a := range doc.Availability {
		start, err := ParseTimeOfDay(a.StartTime)
		if err != nil {
			return nil, fmt.Errorf("availability %s: %w", a.ID, err)
		}
		end, err := ParseTimeOfDay(a.EndTime)
		if err != nil {
			return nil, fmt.Errorf("availability %s: %w", a.ID, err)
		}
		if a.Weekday < 1 || a.Weekday > 7 {
			return nil, fmt.Errorf("availability %s: weekday %d out of range", a.ID, a.Weekday)
		}
		if start >= end {
			return nil, fmt.Errorf("availability %s: start_time must be before end_time", a.ID)
		}
		repo.AddAvailability(WeeklyAvailability{
			ID:         a.ID,
			ProviderID: a.ProviderID,
			Weekday:    a.Weekday,
			StartTime:  start,
			EndTime:    end,
		})
	}

	for _, a := range doc.Appointments {
		start, err := ParseTimestamp(a.AppointmentTime)
		if err != nil {
			return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
		}
		if a.DurationMinutes <= 0 {
			return nil, fmt.Errorf("appointment %s: duration_minutes must be positive", a.ID)
		}
		repo.AddAppointment(Appointment{
			ID:              a.ID,
			ProviderID:      a.ProviderID,
			PatientID:       a.PatientID,
			Type:            a.Type,
			Status:          AppointmentStatus(a.Status),
			StartTime:       start,
			DurationMinutes: a.DurationMinutes,
			Notes:           a.Notes,
		})
	}

	return repo, nil
}

package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time check that MemoryRepository satisfies the record-store contract.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps every record in process memory. Records are returned
// in insertion order. It backs tests and the memory store backend.
type MemoryRepository struct {
	mu           sync.RWMutex
	appointments []Appointment
	providers    []Provider
	patients     []Patient
	availability []WeeklyAvailability
	visitTypes   []VisitType
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) AddAppointment(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.appointments = append(r.appointments, a)
}

func (r *MemoryRepository) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

func (r *MemoryRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients = append(r.patients, p)
}

func (r *MemoryRepository) AddAvailability(w WeeklyAvailability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	r.availability = append(r.availability, w)
}

func (r *MemoryRepository) AddVisitType(v VisitType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	r.visitTypes = append(r.visitTypes, v)
}

func (r *MemoryRepository) FindAppointments(_ context.Context, filters ...Filter) ([]Appointment, error) {
	if err := validateFilters(KindAppointments, filters); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return selectWhere(r.appointments, filters, appointmentField), nil
}

func (r *MemoryRepository) FindProviders(_ context.Context, filters ...Filter) ([]Provider, error) {
	if err := validateFilters(KindProviders, filters); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return selectWhere(r.providers, filters, providerField), nil
}

func (r *MemoryRepository) FindPatients(_ context.Context, filters ...Filter) ([]Patient, error) {
	if err := validateFilters(KindPatients, filters); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return selectWhere(r.patients, filters, patientField), nil
}

func (r *MemoryRepository) FindAvailability(_ context.Context, filters ...Filter) ([]WeeklyAvailability, error) {
	if err := validateFilters(KindAvailability, filters); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return selectWhere(r.availability, filters, availabilityField), nil
}

func (r *MemoryRepository) FindVisitTypes(_ context.Context, filters ...Filter) ([]VisitType, error) {
	if err := validateFilters(KindVisitTypes, filters); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return selectWhere(r.visitTypes, filters, visitTypeField), nil
}

func (r *MemoryRepository) UpdateAppointments(_ context.Context, patch AppointmentPatch, filters ...Filter) ([]Appointment, error) {
	if patch.empty() {
		return nil, ErrEmptyPatch
	}
	if err := validateFilters(KindAppointments, filters); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var updated []Appointment
	for i := range r.appointments {
		if !matchAll(filters, func(f string) any { return appointmentField(r.appointments[i], f) }) {
			continue
		}
		if patch.StartTime != nil {
			r.appointments[i].StartTime = *patch.StartTime
		}
		if patch.Notes != nil {
			r.appointments[i].Notes = *patch.Notes
		}
		updated = append(updated, r.appointments[i])
	}
	return updated, nil
}

func selectWhere[T any](items []T, filters []Filter, field func(T, string) any) []T {
	var out []T
	for _, item := range items {
		if matchAll(filters, func(f string) any { return field(item, f) }) {
			out = append(out, item)
		}
	}
	return out
}

func matchAll(filters []Filter, get func(string) any) bool {
	for _, f := range filters {
		equal := normalize(get(f.Field)) == normalize(f.Value)
		if f.Op == OpEq && !equal {
			return false
		}
		if f.Op == OpNeq && equal {
			return false
		}
	}
	return true
}

// normalize folds the value shapes callers use for one column onto a single
// comparable representation.
func normalize(v any) any {
	switch x := v.(type) {
	case uuid.UUID:
		return x.String()
	case AppointmentStatus:
		return string(x)
	case TimeOfDay:
		return x.String()
	case time.Time:
		return Naive(x).UnixNano()
	case int:
		return int64(x)
	case int32:
		return int64(x)
	default:
		return v
	}
}

func appointmentField(a Appointment, name string) any {
	switch name {
	case "id":
		return a.ID
	case "provider_id":
		return a.ProviderID
	case "patient_id":
		return a.PatientID
	case "type":
		return a.Type
	case "status":
		return a.Status
	case "appointment_time":
		return a.StartTime
	case "duration_minutes":
		return a.DurationMinutes
	case "notes":
		return a.Notes
	}
	return nil
}

func providerField(p Provider, name string) any {
	switch name {
	case "id":
		return p.ID
	case "full_name":
		return p.FullName
	case "specialty":
		return p.Specialty
	case "role":
		return p.Role
	}
	return nil
}

func patientField(p Patient, name string) any {
	switch name {
	case "id":
		return p.ID
	case "full_name":
		return p.FullName
	case "email":
		return p.Email
	case "phone":
		return p.Phone
	case "date_of_birth":
		return p.DateOfBirth
	}
	return nil
}

func availabilityField(w WeeklyAvailability, name string) any {
	switch name {
	case "id":
		return w.ID
	case "provider_id":
		return w.ProviderID
	case "weekday":
		return w.Weekday
	case "start_time":
		return w.StartTime
	case "end_time":
		return w.EndTime
	}
	return nil
}

func visitTypeField(v VisitType, name string) any {
	switch name {
	case "id":
		return v.ID
	case "name":
		return v.Name
	case "max_patients_per_slot":
		return v.MaxPatientsPerSlot
	case "default_duration_minutes":
		return v.DefaultDurationMinutes
	}
	return nil
}

package appointment

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrUnknownField        = errors.New("unknown field")
	ErrEmptyPatch          = errors.New("empty patch")
)

type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
)

// Filter is one (field, op, value) condition. Filters in a list are ANDed.
type Filter struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, value any) Filter  { return Filter{Field: field, Op: OpEq, Value: value} }
func Neq(field string, value any) Filter { return Filter{Field: field, Op: OpNeq, Value: value} }

// Columns per kind. Filters naming anything else are rejected at the store
// boundary.
var columns = map[Kind][]string{
	KindAppointments: {"id", "provider_id", "patient_id", "type", "status", "appointment_time", "duration_minutes", "notes"},
	KindProviders:    {"id", "full_name", "specialty", "role"},
	KindPatients:     {"id", "full_name", "email", "phone", "date_of_birth"},
	KindAvailability: {"id", "provider_id", "weekday", "start_time", "end_time"},
	KindVisitTypes:   {"id", "name", "max_patients_per_slot", "default_duration_minutes"},
}

func validateFilters(kind Kind, filters []Filter) error {
	cols := columns[kind]
	for _, f := range filters {
		if f.Op != OpEq && f.Op != OpNeq {
			return fmt.Errorf("%s: unsupported op %q", kind, f.Op)
		}
		known := false
		for _, c := range cols {
			if c == f.Field {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%s.%s: %w", kind, f.Field, ErrUnknownField)
		}
	}
	return nil
}

// Repository is the record-store contract the scheduling engine reads and
// writes through. Finds return every record matching all filters.
type Repository interface {
	FindAppointments(ctx context.Context, filters ...Filter) ([]Appointment, error)
	FindProviders(ctx context.Context, filters ...Filter) ([]Provider, error)
	FindPatients(ctx context.Context, filters ...Filter) ([]Patient, error)
	FindAvailability(ctx context.Context, filters ...Filter) ([]WeeklyAvailability, error)
	FindVisitTypes(ctx context.Context, filters ...Filter) ([]VisitType, error)

	// UpdateAppointments applies patch to every appointment matching filters
	// and returns the updated records.
	UpdateAppointments(ctx context.Context, patch AppointmentPatch, filters ...Filter) ([]Appointment, error)
}

// GetAppointmentByID loads a single appointment or ErrAppointmentNotFound.
func GetAppointmentByID(ctx context.Context, repo Repository, id any) (*Appointment, error) {
	found, err := repo.FindAppointments(ctx, Eq("id", id))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrAppointmentNotFound
	}
	return &found[0], nil
}

// GetProviderByID loads a single provider or ErrProviderNotFound.
func GetProviderByID(ctx context.Context, repo Repository, id any) (*Provider, error) {
	found, err := repo.FindProviders(ctx, Eq("id", id))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrProviderNotFound
	}
	return &found[0], nil
}

// GetPatientByID loads a single patient or ErrPatientNotFound.
func GetPatientByID(ctx context.Context, repo Repository, id any) (*Patient, error) {
	found, err := repo.FindPatients(ctx, Eq("id", id))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrPatientNotFound
	}
	return &found[0], nil
}

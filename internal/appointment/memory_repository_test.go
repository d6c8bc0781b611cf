package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryFixture() (*MemoryRepository, uuid.UUID, uuid.UUID) {
	repo := NewMemoryRepository()
	provider := uuid.New()
	other := uuid.New()

	repo.AddAppointment(Appointment{ProviderID: provider, Type: "Follow-Up", Status: StatusScheduled,
		StartTime: time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC), DurationMinutes: 15})
	repo.AddAppointment(Appointment{ProviderID: provider, Type: "Follow-Up", Status: "Scheduled",
		StartTime: time.Date(2025, 6, 10, 11, 0, 0, 0, time.UTC), DurationMinutes: 15})
	repo.AddAppointment(Appointment{ProviderID: other, Type: "Consultation", Status: StatusScheduled,
		StartTime: time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC), DurationMinutes: 30})
	repo.AddAvailability(WeeklyAvailability{ProviderID: provider, Weekday: 2,
		StartTime: NewTimeOfDay(10, 0, 0), EndTime: NewTimeOfDay(16, 0, 0)})
	repo.AddVisitType(VisitType{Name: "Follow-Up", MaxPatientsPerSlot: 2, DefaultDurationMinutes: 15})

	return repo, provider, other
}

func TestMemoryRepository_FindFilters(t *testing.T) {
	repo, provider, _ := newMemoryFixture()
	ctx := context.Background()

	all, err := repo.FindAppointments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, a := range all {
		assert.NotEqual(t, uuid.Nil, a.ID, "ids are assigned on insert")
	}

	scheduled, err := repo.FindAppointments(ctx, Eq("provider_id", provider), Eq("status", StatusScheduled))
	require.NoError(t, err)
	require.Len(t, scheduled, 1, "status matching is exact")
	assert.Equal(t, 10, scheduled[0].StartTime.Hour())

	byString, err := repo.FindAppointments(ctx, Eq("provider_id", provider.String()), Eq("status", "scheduled"))
	require.NoError(t, err)
	assert.Equal(t, scheduled, byString)

	excluded, err := repo.FindAppointments(ctx, Eq("provider_id", provider), Neq("id", scheduled[0].ID))
	require.NoError(t, err)
	require.Len(t, excluded, 1)
	assert.Equal(t, AppointmentStatus("Scheduled"), excluded[0].Status)

	atTen, err := repo.FindAppointments(ctx, Eq("appointment_time", time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Len(t, atTen, 2)

	windows, err := repo.FindAvailability(ctx, Eq("provider_id", provider), Eq("weekday", 2))
	require.NoError(t, err)
	assert.Len(t, windows, 1)

	none, err := repo.FindAvailability(ctx, Eq("provider_id", provider), Eq("weekday", 3))
	require.NoError(t, err)
	assert.Empty(t, none)

	types, err := repo.FindVisitTypes(ctx, Eq("name", "Follow-Up"))
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, 2, types[0].MaxPatientsPerSlot)
}

func TestMemoryRepository_UnknownField(t *testing.T) {
	repo, _, _ := newMemoryFixture()

	_, err := repo.FindAppointments(context.Background(), Eq("start", "x"))
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = repo.FindPatients(context.Background(), Eq("weekday", 1))
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = repo.FindProviders(context.Background(), Filter{Field: "id", Op: "like", Value: "x"})
	assert.Error(t, err)
}

func TestMemoryRepository_UpdateAppointments(t *testing.T) {
	repo, provider, _ := newMemoryFixture()
	ctx := context.Background()

	target, err := repo.FindAppointments(ctx, Eq("provider_id", provider), Eq("status", StatusScheduled))
	require.NoError(t, err)
	id := target[0].ID

	moved := time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC)
	notes := "moved"
	updated, err := repo.UpdateAppointments(ctx, AppointmentPatch{StartTime: &moved, Notes: &notes},
		Eq("id", id), Eq("status", StatusScheduled))
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.True(t, updated[0].StartTime.Equal(moved))
	assert.Equal(t, "moved", updated[0].Notes)

	stored, err := GetAppointmentByID(ctx, repo, id)
	require.NoError(t, err)
	assert.Equal(t, updated[0], *stored)

	// The status guard makes the update a no-op for anything not scheduled.
	capitalised, err := repo.FindAppointments(ctx, Eq("status", "Scheduled"))
	require.NoError(t, err)
	none, err := repo.UpdateAppointments(ctx, AppointmentPatch{Notes: &notes},
		Eq("id", capitalised[0].ID), Eq("status", StatusScheduled))
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = repo.UpdateAppointments(ctx, AppointmentPatch{}, Eq("id", id))
	assert.ErrorIs(t, err, ErrEmptyPatch)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo, _, _ := newMemoryFixture()
	ctx := context.Background()

	found, err := repo.FindAppointments(ctx)
	require.NoError(t, err)
	found[0].Notes = "mutated"

	again, err := repo.FindAppointments(ctx)
	require.NoError(t, err)
	assert.Empty(t, again[0].Notes)
}

func TestGetByIDHelpers(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	p := Patient{ID: uuid.New(), FullName: "Ana Diaz"}
	repo.AddPatient(p)
	pr := Provider{ID: uuid.New(), FullName: "Dr. Kim"}
	repo.AddProvider(pr)

	gotPatient, err := GetPatientByID(ctx, repo, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, *gotPatient)

	gotProvider, err := GetProviderByID(ctx, repo, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, pr, *gotProvider)

	_, err = GetPatientByID(ctx, repo, uuid.New())
	assert.ErrorIs(t, err, ErrPatientNotFound)
	_, err = GetProviderByID(ctx, repo, uuid.New())
	assert.ErrorIs(t, err, ErrProviderNotFound)
	_, err = GetAppointmentByID(ctx, repo, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

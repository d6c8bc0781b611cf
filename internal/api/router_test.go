package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-availability/internal/apperr"
	"github.com/hackgods/clinic-availability/internal/appointment"
	"github.com/hackgods/clinic-availability/internal/availability"
	"github.com/hackgods/clinic-availability/internal/metrics"
	"github.com/hackgods/clinic-availability/internal/scheduling"
)

var (
	providerID = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	patientID  = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	followUpID = uuid.MustParse("a0000000-0000-4000-8000-000000000001")
)

// Monday 2025-06-02 08:00.
var now = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) (http.Handler, *prometheus.Registry) {
	t.Helper()

	repo := appointment.NewMemoryRepository()
	repo.AddProvider(appointment.Provider{ID: providerID, FullName: "Dr. Ada Okafor", Specialty: "Family Medicine"})
	repo.AddPatient(appointment.Patient{ID: patientID, FullName: "Jon Park", DateOfBirth: "1979-11-30"})
	repo.AddAvailability(appointment.WeeklyAvailability{
		ProviderID: providerID, Weekday: 2,
		StartTime: appointment.NewTimeOfDay(10, 0, 0), EndTime: appointment.NewTimeOfDay(16, 0, 0),
	})
	repo.AddVisitType(appointment.VisitType{Name: "Follow-Up", MaxPatientsPerSlot: 2, DefaultDurationMinutes: 15})
	repo.AddAppointment(appointment.Appointment{
		ID: followUpID, ProviderID: providerID, PatientID: patientID, Type: "Follow-Up",
		Status: appointment.StatusScheduled, StartTime: time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC), DurationMinutes: 15,
	})

	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)
	clock := availability.FixedClock(now)
	checker := availability.NewChecker(repo, zerolog.Nop(), m)
	finder := availability.NewFinder(checker, repo, clock, zerolog.Nop())
	svc := scheduling.NewService(repo, checker, finder, nil, clock, zerolog.Nop(), m)

	return NewRouter(RouterConfig{
		Service: svc,
		Logger:  zerolog.Nop(),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Env:     "test",
		Version: "v0.0.0",
	}), reg
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestCheckSlot(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, body := do(t, h, http.MethodPost, "/availability/check", CheckSlotRequest{
		ProviderID: providerID.String(), Start: "2025-06-03T10:00:00", DurationMinutes: 15, VisitType: "Follow-Up",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["available"])
	assert.Equal(t, 1.0, body["booked"])
	assert.Equal(t, 2.0, body["capacity"])

	rec, body = do(t, h, http.MethodPost, "/availability/check", CheckSlotRequest{
		ProviderID: providerID.String(), Start: "2025-06-03T10:05:00", DurationMinutes: 15, VisitType: "Follow-Up",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["available"])
	assert.Equal(t, "conflict", body["reason_code"])
	assert.Equal(t, "Conflicts with existing appointment at 2025-06-03 10:00", body["conflict_reason"])
}

func TestCheckSlot_BadInput(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name string
		body any
	}{
		{"bad provider", CheckSlotRequest{ProviderID: "x", Start: "2025-06-03T10:00:00", DurationMinutes: 15}},
		{"bad start", CheckSlotRequest{ProviderID: providerID.String(), Start: "tomorrow", DurationMinutes: 15}},
		{"zero duration", CheckSlotRequest{ProviderID: providerID.String(), Start: "2025-06-03T10:00:00"}},
		{"bad exclude", CheckSlotRequest{
			ProviderID: providerID.String(), Start: "2025-06-03T10:00:00", DurationMinutes: 15, ExcludeAppointmentID: "nope",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, http.MethodPost, "/availability/check", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "INVALID_INPUT", body["error_kind"])
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/availability/check", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNextSlot(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, body := do(t, h, http.MethodPost, "/availability/next", NextSlotRequest{
		ProviderID: providerID.String(), From: "2025-06-03T10:07:00", DurationMinutes: 15, VisitType: "Follow-Up",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["found"])
	next := body["next_available"].(map[string]any)
	assert.Equal(t, "2025-06-03T10:15:00", next["datetime"])
	assert.Equal(t, "Tuesday", next["weekday"])
}

func TestNextSlot_NoneWithinHorizon(t *testing.T) {
	h, _ := newTestRouter(t)

	// Wednesday start with a one-day horizon never reaches the next Tuesday.
	rec, body := do(t, h, http.MethodPost, "/availability/next", NextSlotRequest{
		ProviderID: providerID.String(), From: "2025-06-04T09:00:00", DurationMinutes: 15, VisitType: "Follow-Up", HorizonDays: 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["found"])
	assert.Nil(t, body["next_available"])
}

func TestNextSlot_HorizonBounds(t *testing.T) {
	h, _ := newTestRouter(t)

	for _, days := range []int{-1, availability.MaxHorizonDays + 1} {
		rec, body := do(t, h, http.MethodPost, "/availability/next", NextSlotRequest{
			ProviderID: providerID.String(), From: "2025-06-03T10:00:00", DurationMinutes: 15, VisitType: "Follow-Up", HorizonDays: days,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "horizon %d", days)
		assert.Equal(t, "INVALID_INPUT", body["error_kind"])
		assert.Equal(t, "horizon_days must be between 0 and 365", body["error"])
	}

	rec, body := do(t, h, http.MethodPost, "/availability/next", NextSlotRequest{
		ProviderID: providerID.String(), From: "2025-06-03T10:00:00", DurationMinutes: 15, VisitType: "Follow-Up",
		HorizonDays: availability.MaxHorizonDays,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["found"])
}

func TestAppointmentAvailabilityAndReschedule(t *testing.T) {
	h, reg := newTestRouter(t)
	path := "/appointments/" + followUpID.String()

	rec, body := do(t, h, http.MethodPost, path+"/availability", PreferredTimeRequest{PreferredDateTime: "2025-06-03T10:30:00"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["available"])
	assert.Equal(t, "Preferred time is available", body["message"])

	rec, body = do(t, h, http.MethodPost, path+"/reschedule", RescheduleRequest{NewDateTime: "2025-06-03T10:30:00"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	change := body["schedule_change"].(map[string]any)
	assert.Equal(t, "2025-06-03T10:00:00", change["old_datetime"])
	assert.Equal(t, "2025-06-03T10:30:00", change["new_datetime"])
	assert.Equal(t, "Dr. Ada Okafor", body["provider"].(map[string]any)["name"])

	count, err := testutil.GatherAndCount(reg, "clinic_availability_reschedules_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReschedule_ErrorStatuses(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name   string
		id     string
		when   string
		status int
		kind   string
	}{
		{"unknown appointment", uuid.NewString(), "2025-06-03T11:00:00", http.StatusNotFound, "NOT_FOUND"},
		{"past time", followUpID.String(), "2025-06-01T11:00:00", http.StatusBadRequest, "INVALID_INPUT"},
		{"outside hours", followUpID.String(), "2025-06-03T17:00:00", http.StatusConflict, "UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, http.MethodPost, "/appointments/"+tt.id+"/reschedule", RescheduleRequest{NewDateTime: tt.when})
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.kind, body["error_kind"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestUpcomingAppointments(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, body := do(t, h, http.MethodGet, "/patients/appointments?name=jon%20park&date_of_birth=1979-11-30", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Jon Park", body["patient_name"])
	assert.Equal(t, 1.0, body["total_appointments"])
	next := body["next_appointment"].(map[string]any)
	assert.Equal(t, "Tuesday, June 03, 2025", next["date"])
	assert.Equal(t, "10:00 AM", next["time"])

	rec, _ = do(t, h, http.MethodGet, "/patients/appointments?name=jon%20park", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/patients/appointments?name=nobody&date_of_birth=1979-11-30", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, body := do(t, h, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "v0.0.0", body["version"])

	rec, body = do(t, h, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	// Drive one check so the counter has a series.
	do(t, h, http.MethodPost, "/availability/check", CheckSlotRequest{
		ProviderID: providerID.String(), Start: "2025-06-03T11:00:00", DurationMinutes: 15, VisitType: "Follow-Up",
	})
	rec, _ = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clinic_availability_checks_total{reason="none",result="available"} 1`)
}

func TestReadiness(t *testing.T) {
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("down") })

	tests := []struct {
		name     string
		postgres Pinger
		redis    Pinger
		code     int
		status   string
	}{
		{"all up", up, up, http.StatusOK, "ok"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error"},
		{"both down", down, down, http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.postgres, tt.redis, "test", "")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.code, rec.Code)
			var resp ReadinessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
		})
	}
}

type stubService struct {
	SchedulingService
	reschedule func() (*scheduling.RescheduleResult, error)
}

func (s stubService) Reschedule(context.Context, string, string) (*scheduling.RescheduleResult, error) {
	return s.reschedule()
}

func TestErrorMappingAndRecovery(t *testing.T) {
	tests := []struct {
		name   string
		fn     func() (*scheduling.RescheduleResult, error)
		status int
		kind   string
		msg    string
	}{
		{"precondition", func() (*scheduling.RescheduleResult, error) {
			return nil, apperr.PreconditionFailed("Cannot reschedule appointment with status: cancelled.")
		}, http.StatusPreconditionFailed, "PRECONDITION_FAILED", "Cannot reschedule appointment with status: cancelled."},
		{"unclassified", func() (*scheduling.RescheduleResult, error) {
			return nil, errors.New("connection reset")
		}, http.StatusInternalServerError, "INTERNAL", "An error occurred: connection reset"},
		{"panic", func() (*scheduling.RescheduleResult, error) {
			panic("boom")
		}, http.StatusInternalServerError, "INTERNAL", "An error occurred: internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(RouterConfig{Service: stubService{reschedule: tt.fn}, Logger: zerolog.Nop()})
			rec, body := do(t, h, http.MethodPost, "/appointments/x/reschedule", RescheduleRequest{NewDateTime: "2025-06-03T10:00:00"})

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.kind, body["error_kind"])
			assert.Equal(t, tt.msg, body["error"])
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestUnknownRoute(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, body := do(t, h, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
}

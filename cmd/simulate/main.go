package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/hackgods/clinic-availability/internal/appointment"
	"github.com/hackgods/clinic-availability/internal/config"
	"github.com/hackgods/clinic-availability/internal/db"
	"github.com/hackgods/clinic-availability/internal/logging"
)

type SimConfig struct {
	APIBaseURL       string
	Duration         time.Duration
	Workers          int
	RescheduleRatio  float64
	CheckRatio       float64
	ReadRatio        float64
	AppointmentLimit int
}

type patientRef struct {
	Name string
	DOB  string
}

// DataPool holds what the workers pick from. Appointment start times are
// updated as reschedules succeed so later moves start from the real state.
type DataPool struct {
	mu           sync.RWMutex
	appointments []uuid.UUID
	starts       map[uuid.UUID]time.Time
	patients     []patientRef
}

func (dp *DataPool) randomAppointment(rng *rand.Rand) (uuid.UUID, time.Time) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	id := dp.appointments[rng.Intn(len(dp.appointments))]
	return id, dp.starts[id]
}

func (dp *DataPool) moved(id uuid.UUID, to time.Time) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.starts[id] = to
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, worst time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	n := len(latencies)
	return sum / time.Duration(n), latencies[n*50/100], latencies[min(n*95/100, n-1)], latencies[n-1]
}

type Metrics struct {
	Reschedule OperationMetrics
	Check      OperationMetrics
	Upcoming   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  zerolog.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fallback := logging.New("info", "prod")
		fallback.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(baseCfg.LogLevel, baseCfg.Env)
	baseCfg.LogWarnings(logger)

	cfg := loadSimConfig()
	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("reschedule", cfg.RescheduleRatio).
		Float64("check", cfg.CheckRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, baseCfg.DBMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg.AppointmentLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().
		Int("appointments", len(dataPool.appointments)).
		Int("patients", len(dataPool.patients)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	sim.Run()
	sim.PrintReport()
}

func loadSimConfig() SimConfig {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("SIM_API_BASE_URL", "http://localhost:8080")
	v.SetDefault("SIM_DURATION", "30s")
	v.SetDefault("SIM_WORKERS", 10)
	v.SetDefault("SIM_RESCHEDULE_RATIO", 0.5)
	v.SetDefault("SIM_CHECK_RATIO", 0.3)
	v.SetDefault("SIM_READ_RATIO", 0.2)
	v.SetDefault("SIM_APPOINTMENT_LIMIT", 500)

	cfg := SimConfig{
		APIBaseURL:       strings.TrimRight(v.GetString("SIM_API_BASE_URL"), "/"),
		Duration:         v.GetDuration("SIM_DURATION"),
		Workers:          max(v.GetInt("SIM_WORKERS"), 1),
		RescheduleRatio:  v.GetFloat64("SIM_RESCHEDULE_RATIO"),
		CheckRatio:       v.GetFloat64("SIM_CHECK_RATIO"),
		ReadRatio:        v.GetFloat64("SIM_READ_RATIO"),
		AppointmentLimit: v.GetInt("SIM_APPOINTMENT_LIMIT"),
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 30 * time.Second
	}

	total := cfg.RescheduleRatio + cfg.CheckRatio + cfg.ReadRatio
	if total > 0 {
		cfg.RescheduleRatio /= total
		cfg.CheckRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

// loadDataPool picks future scheduled appointments. Few providers and many
// appointments per provider make reschedules collide on the same slots.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, limit int) (*DataPool, error) {
	dp := &DataPool{starts: make(map[uuid.UUID]time.Time)}

	rows, err := pool.Query(ctx, `
		SELECT id, appointment_time FROM appointments
		WHERE status = 'scheduled' AND appointment_time > now()
		ORDER BY provider_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		var start time.Time
		if err := rows.Scan(&id, &start); err != nil {
			rows.Close()
			return nil, err
		}
		dp.appointments = append(dp.appointments, id)
		dp.starts[id] = appointment.Naive(start)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `
		SELECT p.full_name, to_char(p.date_of_birth, 'YYYY-MM-DD')
		FROM patients p
		WHERE p.date_of_birth IS NOT NULL
		  AND EXISTS (SELECT 1 FROM appointments a WHERE a.patient_id = p.id)
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var p patientRef
		if err := rows.Scan(&p.Name, &p.DOB); err != nil {
			rows.Close()
			return nil, err
		}
		dp.patients = append(dp.patients, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dp.appointments) == 0 {
		return nil, fmt.Errorf("no future scheduled appointments, run the seeder first")
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.RescheduleRatio:
			s.doReschedule(ctx, rng)
		case r < s.config.RescheduleRatio+s.config.CheckRatio:
			s.doCheck(ctx, rng)
		default:
			s.doUpcoming(ctx, rng)
		}
	}
}

// target picks a grid-aligned time within a day of the current start, so
// workers keep aiming at the same handful of slots.
func target(rng *rand.Rand, from time.Time) time.Time {
	shift := time.Duration(rng.Intn(9)-4) * 15 * time.Minute
	t := from.Add(shift)
	if rng.Intn(4) == 0 {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	id, from := s.pool.randomAppointment(rng)
	to := target(rng, from)

	status, latency, err := s.post(ctx, fmt.Sprintf("/appointments/%s/reschedule", id),
		map[string]string{"new_datetime": appointment.FormatISO(to)})

	success := err == nil && status == http.StatusOK
	conflict := err == nil && (status == http.StatusConflict || status == http.StatusPreconditionFailed)
	if success {
		s.pool.moved(id, to)
	}
	s.metrics.Reschedule.Record(latency, success, conflict)
}

func (s *Simulator) doCheck(ctx context.Context, rng *rand.Rand) {
	id, from := s.pool.randomAppointment(rng)

	status, latency, err := s.post(ctx, fmt.Sprintf("/appointments/%s/availability", id),
		map[string]string{"preferred_datetime": appointment.FormatISO(target(rng, from))})

	s.metrics.Check.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doUpcoming(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.patients) == 0 {
		return
	}
	p := s.pool.patients[rng.Intn(len(s.pool.patients))]
	q := url.Values{"name": {p.Name}, "date_of_birth": {p.DOB}}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/patients/appointments?"+q.Encode(), nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	s.metrics.Upcoming.Record(latency, success, false)
}

func (s *Simulator) post(ctx context.Context, path string, payload any) (int, time.Duration, error) {
	body, _ := json.Marshal(payload)

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	resp.Body.Close()
	return resp.StatusCode, latency, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n\n", s.config.Workers)

	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Availability check", &s.metrics.Check)
	printOperationReport("Upcoming appointments", &s.metrics.Upcoming)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, worst := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), worst.Round(time.Millisecond))
}

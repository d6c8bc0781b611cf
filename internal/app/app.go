// Package app wires configuration into a ready scheduling engine. Both the
// HTTP server and the CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-availability/internal/appointment"
	"github.com/hackgods/clinic-availability/internal/availability"
	"github.com/hackgods/clinic-availability/internal/config"
	"github.com/hackgods/clinic-availability/internal/db"
	"github.com/hackgods/clinic-availability/internal/metrics"
	redisclient "github.com/hackgods/clinic-availability/internal/redis"
	"github.com/hackgods/clinic-availability/internal/scheduling"
)

type App struct {
	Service *scheduling.Service
	Repo    appointment.Repository
	Metrics *metrics.SchedulingMetrics

	// Nil when the corresponding backend is not in use.
	Postgres *pgxpool.Pool
	Redis    *redis.Client
}

// Build connects the configured store and lock backends. reg may be nil to
// skip metrics registration.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns)
		cancel()
		if err != nil {
			return nil, err
		}
		a.Postgres = pool
		a.Repo = appointment.NewPgRepository(pool)
		logger.Info().Msg("connected to postgres")
	case config.BackendMemory:
		repo, err := loadMemoryStore(cfg.FixturesPath)
		if err != nil {
			return nil, err
		}
		a.Repo = repo
		logger.Info().Str("fixtures", cfg.FixturesPath).Msg("using in-memory store")
	}

	var locker redisclient.Locker
	if cfg.LockEnabled {
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = rdb
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
	}

	if reg != nil {
		a.Metrics = metrics.NewSchedulingMetrics(reg)
	}

	clock := availability.SystemClock()
	checker := availability.NewChecker(a.Repo, logger, a.Metrics)
	finder := availability.NewFinder(checker, a.Repo, clock, logger,
		availability.WithStep(cfg.SlotStep),
		availability.WithHorizonDays(cfg.HorizonDays),
		availability.WithWorkers(cfg.SearchWorkers),
	)
	a.Service = scheduling.NewService(a.Repo, checker, finder, locker, clock, logger, a.Metrics)

	return a, nil
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
	return errors.Join(errs...)
}

func loadMemoryStore(path string) (*appointment.MemoryRepository, error) {
	if path == "" {
		return appointment.NewMemoryRepository(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()
	return appointment.LoadFixtures(f)
}

package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-availability/internal/appointment"
)

const (
	DefaultStep        = 15 * time.Minute
	DefaultHorizonDays = 30

	// MaxHorizonDays bounds how far one search may scan.
	MaxHorizonDays = 365
)

// Slot is a bookable start time.
type Slot struct {
	Start time.Time
}

func (s Slot) ISO() string       { return appointment.FormatISO(s.Start) }
func (s Slot) Formatted() string { return appointment.FormatHuman(s.Start) }
func (s Slot) Date() string      { return appointment.FormatDate(s.Start) }
func (s Slot) Time() string      { return appointment.FormatClock(s.Start) }
func (s Slot) Weekday() string   { return s.Start.Weekday().String() }

// SearchRequest asks for the first bookable slot at or after Start.
// HorizonDays of zero uses the finder's default.
type SearchRequest struct {
	Request
	HorizonDays int
}

type FinderOption func(*Finder)

// WithStep sets the candidate grid spacing.
func WithStep(step time.Duration) FinderOption {
	return func(f *Finder) {
		if step > 0 {
			f.step = step
		}
	}
}

// WithHorizonDays sets how many days past the first one are scanned.
func WithHorizonDays(days int) FinderOption {
	return func(f *Finder) {
		if days > 0 {
			f.horizonDays = days
		}
	}
}

// WithWorkers evaluates up to n days concurrently.
func WithWorkers(n int) FinderOption {
	return func(f *Finder) {
		if n > 0 {
			f.workers = n
		}
	}
}

// Finder scans forward over a quantized grid of start times, asking the
// Checker about each one, and returns the chronologically earliest hit.
type Finder struct {
	checker     *Checker
	repo        appointment.Repository
	clock       Clock
	logger      zerolog.Logger
	step        time.Duration
	horizonDays int
	workers     int
}

func NewFinder(checker *Checker, repo appointment.Repository, clock Clock, logger zerolog.Logger, opts ...FinderOption) *Finder {
	if clock == nil {
		clock = SystemClock()
	}
	f := &Finder{
		checker:     checker,
		repo:        repo,
		clock:       clock,
		logger:      logger.With().Str("component", "slot_finder").Logger(),
		step:        DefaultStep,
		horizonDays: DefaultHorizonDays,
		workers:     1,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FindNext returns nil, nil when nothing is bookable within the horizon.
func (f *Finder) FindNext(ctx context.Context, req SearchRequest) (*Slot, error) {
	begin := time.Now()
	slot, err := f.findNext(ctx, req)
	elapsed := time.Since(begin).Seconds()

	switch {
	case err != nil:
		f.checker.observer.ObserveSearch("error", elapsed)
	case slot == nil:
		f.checker.observer.ObserveSearch("none", elapsed)
	default:
		f.checker.observer.ObserveSearch("found", elapsed)
	}
	return slot, err
}

func (f *Finder) findNext(ctx context.Context, req SearchRequest) (*Slot, error) {
	if req.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	windows, err := f.repo.FindAvailability(ctx, appointment.Eq("provider_id", req.ProviderID))
	if err != nil {
		return nil, fmt.Errorf("load provider schedule: %w", err)
	}
	if len(windows) == 0 {
		return nil, nil
	}
	schedule := weeklySchedule(windows)

	from := appointment.Naive(req.Start)
	if now := f.clock.Now(); now.After(from) {
		from = now
	}

	horizon := req.HorizonDays
	if horizon <= 0 {
		horizon = f.horizonDays
	}
	horizon = min(horizon, MaxHorizonDays)

	s := search{
		finder:   f,
		req:      req.Request,
		schedule: schedule,
		from:     from,
		anchor:   appointment.StartOfDay(from),
	}

	// The anchor date plus horizon further days, inclusive.
	days := horizon + 1
	var slot *Slot
	if f.workers <= 1 {
		for i := 0; i < days && slot == nil; i++ {
			if slot, err = s.day(ctx, i); err != nil {
				return nil, err
			}
		}
	} else if slot, err = s.parallel(ctx, days, f.workers); err != nil {
		return nil, err
	}

	if slot == nil {
		f.logger.Debug().
			Str("provider_id", req.ProviderID.String()).
			Str("from", appointment.FormatISO(from)).
			Int("horizon_days", horizon).
			Msg("no slot within horizon")
	}
	return slot, nil
}

// weeklySchedule groups windows by weekday, earliest first. Several windows
// on one weekday are all kept.
func weeklySchedule(windows []appointment.WeeklyAvailability) map[int][]appointment.WeeklyAvailability {
	schedule := make(map[int][]appointment.WeeklyAvailability)
	for _, w := range windows {
		schedule[w.Weekday] = append(schedule[w.Weekday], w)
	}
	for wd := range schedule {
		ws := schedule[wd]
		sort.SliceStable(ws, func(i, j int) bool { return ws[i].StartTime < ws[j].StartTime })
	}
	return schedule
}

// CeilToStep rounds tod up to the next multiple of step from midnight.
// Exact multiples are unchanged.
func CeilToStep(tod appointment.TimeOfDay, step time.Duration) appointment.TimeOfDay {
	d := time.Duration(tod)
	if r := d % step; r != 0 {
		d += step - r
	}
	return appointment.TimeOfDay(d)
}

type search struct {
	finder   *Finder
	req      Request
	schedule map[int][]appointment.WeeklyAvailability
	from     time.Time
	anchor   time.Time
}

// day returns the earliest bookable slot on the i-th day of the search.
func (s search) day(ctx context.Context, i int) (*Slot, error) {
	date := s.anchor.AddDate(0, 0, i)
	windows := s.schedule[appointment.ISOWeekday(date)]
	if len(windows) == 0 {
		return nil, nil
	}

	dur := s.req.duration()
	var best *Slot
	for _, w := range windows {
		startTOD := w.StartTime
		if i == 0 {
			if fromTOD := appointment.TimeOfDayOf(s.from); fromTOD > startTOD {
				startTOD = fromTOD
			}
		}
		startTOD = CeilToStep(startTOD, s.finder.step)

		limit := w.EndTime.On(date)
		for candidate := startTOD.On(date); !candidate.Add(dur).After(limit); candidate = candidate.Add(s.finder.step) {
			if best != nil && !candidate.Before(best.Start) {
				break
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			probe := s.req
			probe.Start = candidate
			d, err := s.finder.checker.Check(ctx, probe)
			if err != nil {
				return nil, err
			}
			if d.Available {
				best = &Slot{Start: candidate}
				break
			}
		}
	}
	return best, nil
}

// parallel evaluates days in batches and returns the earliest hit of the
// first batch that has one, so completion order never matters.
func (s search) parallel(ctx context.Context, days, workers int) (*Slot, error) {
	for batchStart := 0; batchStart < days; batchStart += workers {
		batchEnd := batchStart + workers
		if batchEnd > days {
			batchEnd = days
		}

		results := make([]*Slot, batchEnd-batchStart)
		g, gctx := errgroup.WithContext(ctx)
		for i := batchStart; i < batchEnd; i++ {
			g.Go(func() error {
				slot, err := s.day(gctx, i)
				if err != nil {
					return err
				}
				results[i-batchStart] = slot
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, slot := range results {
			if slot != nil {
				return slot, nil
			}
		}
	}
	return nil, nil
}

// Package scheduler fires the feed ticks on wall-clock aligned cadences.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/couchcryptid/weather-broadcast-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// FeedRunner runs one tick of an event feed.
type FeedRunner interface {
	RunFeed(ctx context.Context, feed domain.Feed) (int, error)
}

// Broadcaster refreshes the forecast and dispatches its briefing.
type Broadcaster interface {
	Broadcast(ctx context.Context) (domain.ForecastSnapshot, error)
}

// ReadinessChecker reports whether the persistent store is reachable.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Cadences.
const (
	EarthquakeEvery = time.Minute
	WarningEvery    = 10 * time.Minute
	ForecastEvery   = time.Hour
)

// Options tune the scheduler.
type Options struct {
	// ForecastOffset shifts the hourly broadcast past the top of the hour.
	ForecastOffset time.Duration
	// StartupTimeout bounds WaitReady.
	StartupTimeout time.Duration
	// Prepare runs once after readiness and before the catch-up ticks,
	// e.g. to bootstrap the ledger schema.
	Prepare func(ctx context.Context) error
}

type job struct {
	name    string
	every   time.Duration
	offset  time.Duration
	catchUp bool // run once at startup
	run     func(ctx context.Context) error
}

// Scheduler owns one loop per job. Loops never block each other.
type Scheduler struct {
	runner      FeedRunner
	broadcaster Broadcaster
	readiness   ReadinessChecker
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
	opts        Options
	jobs        []job
}

func New(runner FeedRunner, broadcaster Broadcaster, readiness ReadinessChecker, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Scheduler {
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = time.Minute
	}
	s := &Scheduler{
		runner:      runner,
		broadcaster: broadcaster,
		readiness:   readiness,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		opts:        opts,
	}
	s.jobs = []job{
		{name: string(domain.FeedWarning), every: WarningEvery, catchUp: true, run: s.feedJob(domain.FeedWarning)},
		{name: string(domain.FeedEarthquake), every: EarthquakeEvery, catchUp: true, run: s.feedJob(domain.FeedEarthquake)},
		{name: string(domain.FeedForecast), every: ForecastEvery, offset: opts.ForecastOffset, run: s.forecastJob},
	}
	return s
}

// Run waits for readiness, then starts one loop per job. Warning and
// earthquake loops catch up once before settling on their cadence. Run
// returns when ctx is cancelled and every loop has stopped.
func (s *Scheduler) Run(ctx context.Context) error {
	s.metrics.SchedulerAlive.Set(1)
	defer s.metrics.SchedulerAlive.Set(0)

	if err := s.WaitReady(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		// Ticks still run; each failing tick logs its own error.
		s.logger.Error("starting scheduler without a ready ledger", "error", err)
	}

	if s.opts.Prepare != nil {
		if err := s.opts.Prepare(ctx); err != nil {
			s.logger.Error("startup preparation failed", "error", err)
		}
	}

	s.logger.Info("scheduler started", "forecast_offset", s.opts.ForecastOffset)

	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	wg.Wait()

	s.logger.Info("scheduler stopped", "reason", ctx.Err())
	return nil
}

// WaitReady polls readiness with exponential backoff until it succeeds,
// StartupTimeout elapses or ctx ends.
func (s *Scheduler) WaitReady(ctx context.Context) error {
	deadline := s.clock.Now().Add(s.opts.StartupTimeout)
	backoff := initialBackoff
	for {
		err := s.readiness.CheckReadiness(ctx)
		if err == nil {
			return nil
		}
		if !s.clock.Now().Before(deadline) {
			return fmt.Errorf("not ready after %s: %w", s.opts.StartupTimeout, err)
		}
		s.logger.Warn("waiting for ledger", "error", err, "retry_in", backoff)
		if !sleepWithContext(ctx, s.clock, backoff) {
			return ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// loop runs the job's catch-up tick, if any, then fires it on its cadence.
// A slow catch-up delays only its own job.
func (s *Scheduler) loop(ctx context.Context, j job) {
	if j.catchUp {
		s.tick(ctx, j)
	}
	for {
		now := s.clock.Now()
		if !sleepWithContext(ctx, s.clock, nextRun(now, j.every, j.offset).Sub(now)) {
			return
		}
		s.tick(ctx, j)
	}
}

// tick runs one job. Errors and panics are logged and never escape.
func (s *Scheduler) tick(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.Ticks.WithLabelValues(j.name, "panic").Inc()
			s.logger.Error("tick panicked", "job", j.name, "panic", r)
		}
	}()
	if err := j.run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("tick failed", "job", j.name, "error", err)
	}
}

func (s *Scheduler) feedJob(feed domain.Feed) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.runner.RunFeed(ctx, feed)
		return err
	}
}

// forecastJob records its own tick metrics; feed ticks are recorded by the
// coordinator.
func (s *Scheduler) forecastJob(ctx context.Context) error {
	start := s.clock.Now()
	_, err := s.broadcaster.Broadcast(ctx)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.metrics.Ticks.WithLabelValues(string(domain.FeedForecast), outcome).Inc()
	s.metrics.TickDuration.WithLabelValues(string(domain.FeedForecast)).Observe(s.clock.Since(start).Seconds())
	return err
}

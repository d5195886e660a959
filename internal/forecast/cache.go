// Package forecast serves the routine forecast snapshot from a single-slot
// cache that is refreshed at most once per freshness window.
package forecast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/couchcryptid/weather-broadcast-service/internal/observability"
	"github.com/couchcryptid/weather-broadcast-service/internal/report"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// CityFetcher loads the current forecast slot for every target county.
type CityFetcher interface {
	FetchForecast(ctx context.Context) ([]domain.CityForecast, error)
}

// Generator turns structured input into a broadcast script.
type Generator interface {
	Generate(ctx context.Context, t report.Template, in report.Input) (string, bool)
}

// Dispatcher hands a script to speech synthesis.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string)
}

// Mirror persists the snapshot outside the process.
type Mirror interface {
	Load(ctx context.Context) (domain.ForecastSnapshot, bool, error)
	Save(ctx context.Context, snap domain.ForecastSnapshot) error
}

// Options tune the cache. Zero values fall back to the defaults below.
type Options struct {
	Window         time.Duration
	RefreshTimeout time.Duration
	Mirror         Mirror
}

const (
	defaultWindow         = 55 * time.Minute
	defaultRefreshTimeout = 90 * time.Second
	mirrorTimeout         = 2 * time.Second
	refreshKey            = "forecast"
)

// Cache holds the latest ForecastSnapshot.
type Cache struct {
	fetcher    CityFetcher
	generator  Generator
	dispatcher Dispatcher
	mirror     Mirror
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	window         time.Duration
	refreshTimeout time.Duration

	group    singleflight.Group
	warmOnce sync.Once

	mu   sync.RWMutex
	slot domain.ForecastSnapshot
}

func New(fetcher CityFetcher, generator Generator, dispatcher Dispatcher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Cache {
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	return &Cache{
		fetcher:        fetcher,
		generator:      generator,
		dispatcher:     dispatcher,
		mirror:         opts.Mirror,
		clock:          clock,
		logger:         logger,
		metrics:        metrics,
		window:         opts.Window,
		refreshTimeout: opts.RefreshTimeout,
	}
}

// GetOrRefresh returns the cached snapshot when it is fresh and force is
// false. Otherwise it joins (or starts) the single in-flight refresh. When
// the refresh fails a stale snapshot is returned if one exists.
func (c *Cache) GetOrRefresh(ctx context.Context, force bool) (domain.ForecastSnapshot, error) {
	snap, _, err := c.get(ctx, force)
	return snap, err
}

// Broadcast forces a refresh and dispatches the new briefing. A stale
// snapshot is never re-broadcast.
func (c *Cache) Broadcast(ctx context.Context) (domain.ForecastSnapshot, error) {
	snap, fresh, err := c.get(ctx, true)
	if err != nil {
		return domain.ForecastSnapshot{}, err
	}
	if !fresh {
		return snap, errors.New("forecast refresh failed, stale snapshot not broadcast")
	}
	c.dispatcher.Dispatch(ctx, snap.AIReport)
	return snap, nil
}

// Current returns the slot without refreshing.
func (c *Cache) Current() domain.ForecastSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slot
}

func (c *Cache) get(ctx context.Context, force bool) (domain.ForecastSnapshot, bool, error) {
	if !force {
		c.warm(ctx)
		if snap := c.Current(); snap.FreshAt(c.clock.Now(), c.window) {
			c.metrics.ForecastCache.WithLabelValues("hit").Inc()
			return snap, true, nil
		}
	}

	// The refresh outlives any single caller; it is bounded by its own timeout.
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.refreshIfStale(detached, force)
	})

	select {
	case <-ctx.Done():
		return domain.ForecastSnapshot{}, false, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(domain.ForecastSnapshot), true, nil
		}
		if stale := c.Current(); !stale.IsZero() {
			c.metrics.ForecastCache.WithLabelValues("stale").Inc()
			c.logger.Warn("forecast refresh failed, serving stale snapshot",
				"error", res.Err,
				"last_updated", stale.LastUpdated,
			)
			return stale, false, nil
		}
		return domain.ForecastSnapshot{}, false, res.Err
	}
}

// refreshIfStale runs inside the flight. Unless forced it re-checks the slot,
// which a flight that ended after the caller's own check may have refreshed.
func (c *Cache) refreshIfStale(ctx context.Context, force bool) (domain.ForecastSnapshot, error) {
	if !force {
		if snap := c.Current(); snap.FreshAt(c.clock.Now(), c.window) {
			c.metrics.ForecastCache.WithLabelValues("hit").Inc()
			return snap, nil
		}
	}
	return c.refresh(ctx)
}

func (c *Cache) refresh(parent context.Context) (domain.ForecastSnapshot, error) {
	ctx, cancel := context.WithTimeout(parent, c.refreshTimeout)
	defer cancel()
	start := c.clock.Now()

	cities, err := c.fetcher.FetchForecast(ctx)
	var cfgErr *domain.ConfigMissingError
	if errors.As(err, &cfgErr) {
		c.logger.Warn("forecast feed not configured, briefing without cities", "setting", cfgErr.Setting)
		cities, err = nil, nil
	}
	if err != nil {
		return domain.ForecastSnapshot{}, err
	}
	if cities == nil {
		cities = []domain.CityForecast{}
	}

	// The national overview dataset is not queried; the briefing is built
	// from the county slots alone.
	text, ok := c.generator.Generate(ctx, report.TemplateForecast, report.ForecastInput("", cities))
	snap := domain.ForecastSnapshot{
		Cities:      cities,
		AIReport:    text,
		LastUpdated: c.clock.Now(),
	}

	c.mu.Lock()
	c.slot = snap
	c.mu.Unlock()

	c.metrics.ForecastCache.WithLabelValues("refresh").Inc()
	c.metrics.ForecastRefresh.Observe(c.clock.Since(start).Seconds())
	c.logger.Info("forecast refreshed", "cities", len(cities), "generated", ok)

	if c.mirror != nil {
		mctx, mcancel := context.WithTimeout(parent, mirrorTimeout)
		defer mcancel()
		if err := c.mirror.Save(mctx, snap); err != nil {
			c.logger.Warn("forecast mirror save failed", "error", err)
		}
	}
	return snap, nil
}

// warm seeds an empty slot from the mirror once per process.
func (c *Cache) warm(ctx context.Context) {
	if c.mirror == nil {
		return
	}
	c.warmOnce.Do(func() {
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
		defer cancel()
		snap, ok, err := c.mirror.Load(mctx)
		if err != nil {
			c.logger.Warn("forecast mirror load failed", "error", err)
			return
		}
		if !ok {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.slot.IsZero() {
			c.slot = snap
			c.metrics.ForecastCache.WithLabelValues("mirror").Inc()
			c.logger.Info("forecast warmed from mirror", "last_updated", snap.LastUpdated)
		}
	})
}

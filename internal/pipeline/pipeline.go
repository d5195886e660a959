// Package pipeline runs one tick of a hazard or earthquake feed: fetch,
// de-duplicate against the ledger, generate, dispatch, persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/couchcryptid/weather-broadcast-service/internal/observability"
	"github.com/couchcryptid/weather-broadcast-service/internal/report"
	"github.com/google/uuid"
)

// Fetcher pulls and normalizes one feed.
type Fetcher interface {
	FetchAndNormalize(ctx context.Context, feed domain.Feed) ([]domain.NormalizedEvent, error)
}

// Ledger is the durable record of processed events.
type Ledger interface {
	Ping(ctx context.Context) error
	Exists(ctx context.Context, key domain.NaturalKey) (bool, error)
	PersistIfAbsent(ctx context.Context, rec domain.Record) (domain.Record, domain.PersistOutcome, error)
	UpdateReport(ctx context.Context, feed domain.Feed, id int64, aiReport string) error
	Get(ctx context.Context, feed domain.Feed, id int64) (domain.Record, error)
	ListRecent(ctx context.Context, feed domain.Feed, limit int) ([]domain.Record, error)
}

// Generator turns structured input into a broadcast script. It never fails;
// the flag is false when the text is a fallback.
type Generator interface {
	Generate(ctx context.Context, t report.Template, in report.Input) (string, bool)
}

// Dispatcher hands a script to speech synthesis. Delivery is best effort.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string)
}

// Publisher emits persisted records to the audit stream.
type Publisher interface {
	Publish(ctx context.Context, rec domain.Record, reason string) error
}

// Audit reasons.
const (
	ReasonInserted = "inserted"
	ReasonReReport = "re_report"
)

// List limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Timeouts. A tick is detached from its caller once it holds the feed lock
// and is bounded by tickTimeout instead. Ledger writes that follow a dispatch
// get their own persistTimeout so a late tick deadline cannot drop them.
const (
	tickTimeout    = 15 * time.Minute
	persistTimeout = 10 * time.Second
)

// Event states, logged as "state".
const (
	stateDiscovered = "discovered"
	stateDuplicate  = "duplicate"
	stateNew        = "new"
	stateGenerated  = "generated"
	stateDispatched = "dispatched"
	statePersisted  = "persisted"
)

// Coordinator drives feed ticks and manual re-reports.
type Coordinator struct {
	fetcher    Fetcher
	ledger     Ledger
	generator  Generator
	dispatcher Dispatcher
	publisher  Publisher
	logger     *slog.Logger
	metrics    *observability.Metrics

	// One-slot semaphores, one per feed.
	locks map[domain.Feed]chan struct{}
}

// New creates a Coordinator. publisher may be nil.
func New(f Fetcher, l Ledger, g Generator, d Dispatcher, p Publisher, logger *slog.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		fetcher:    f,
		ledger:     l,
		generator:  g,
		dispatcher: d,
		publisher:  p,
		logger:     logger,
		metrics:    metrics,
		locks: map[domain.Feed]chan struct{}{
			domain.FeedWarning:    make(chan struct{}, 1),
			domain.FeedEarthquake: make(chan struct{}, 1),
		},
	}
}

// CheckReadiness reports whether the ledger is reachable.
func (c *Coordinator) CheckReadiness(ctx context.Context) error {
	if err := c.ledger.Ping(ctx); err != nil {
		return fmt.Errorf("ledger unreachable: %w", err)
	}
	return nil
}

// RunFeed processes one tick of feed and returns how many events were newly
// persisted. Ticks of the same feed never overlap; a caller whose ctx ends
// while another tick holds the feed gets ErrTickInProgress. Once started, a
// tick ignores the caller's cancellation and runs to completion or
// tickTimeout. A fetch failure aborts the tick; a ledger failure on one event
// skips that event and is reported in the returned error after the remaining
// events are processed.
func (c *Coordinator) RunFeed(ctx context.Context, feed domain.Feed) (int, error) {
	sem, ok := c.locks[feed]
	if !ok {
		return 0, fmt.Errorf("feed %q has no event pipeline", feed)
	}
	select {
	case sem <- struct{}{}:
	default:
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return 0, fmt.Errorf("%s: %w: %w", feed, domain.ErrTickInProgress, ctx.Err())
		}
	}
	defer func() { <-sem }()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tickTimeout)
	defer cancel()

	start := time.Now()
	log := c.logger.With("feed", string(feed), "run_id", uuid.NewString())

	events, err := c.fetcher.FetchAndNormalize(ctx, feed)
	if err != nil {
		c.observeTick(feed, start, "error")
		log.Error("fetch failed", "error", err)
		return 0, err
	}

	var (
		inserted int
		errs     []error
	)
	for _, e := range events {
		ok, err := c.processEvent(ctx, log, e)
		if err != nil {
			errs = append(errs, err)
			log.Error("event skipped", "key", e.Key.String(), "error", err)
			continue
		}
		if ok {
			inserted++
		}
	}

	outcome := "success"
	if len(errs) > 0 {
		outcome = "error"
	}
	c.observeTick(feed, start, outcome)
	log.Info("tick complete", "events", len(events), "new", inserted, "failed", len(errs))
	return inserted, errors.Join(errs...)
}

// processEvent returns true when e was newly persisted.
func (c *Coordinator) processEvent(ctx context.Context, log *slog.Logger, e domain.NormalizedEvent) (bool, error) {
	log = log.With("key", e.Key.String())
	log.Debug("event", "state", stateDiscovered)

	exists, err := c.ledger.Exists(ctx, e.Key)
	if err != nil {
		return false, err
	}
	if exists {
		c.metrics.EventsDup.WithLabelValues(string(e.Feed)).Inc()
		log.Debug("event", "state", stateDuplicate)
		return false, nil
	}
	log.Info("event", "state", stateNew, "title", e.Title)

	text, generated := c.generator.Generate(ctx, templateFor(e.Feed), report.EventInput(e))
	log.Debug("event", "state", stateGenerated, "generated", generated)

	c.dispatcher.Dispatch(ctx, text)
	log.Debug("event", "state", stateDispatched)

	// The event has been broadcast; it must reach the ledger or the next tick
	// would broadcast it again.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	rec, outcome, err := c.ledger.PersistIfAbsent(pctx, domain.NewRecord(e, text))
	if err != nil {
		return false, err
	}
	if outcome == domain.AlreadyPresent {
		c.metrics.EventsDup.WithLabelValues(string(e.Feed)).Inc()
		log.Warn("event persisted concurrently", "state", stateDuplicate, "id", rec.ID)
		return false, nil
	}

	c.metrics.EventsNew.WithLabelValues(string(e.Feed)).Inc()
	log.Info("event", "state", statePersisted, "id", rec.ID)
	c.publish(pctx, rec, ReasonInserted)
	return true, nil
}

// ReReport regenerates and re-dispatches the broadcast for a stored record.
// Like a tick it is not cancelled with its caller.
func (c *Coordinator) ReReport(ctx context.Context, feed domain.Feed, id int64) (domain.Record, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tickTimeout)
	defer cancel()

	rec, err := c.ledger.Get(ctx, feed, id)
	if err != nil {
		return domain.Record{}, err
	}

	text, generated := c.generator.Generate(ctx, report.TemplateBroadcast, report.RecordInput(rec))
	c.dispatcher.Dispatch(ctx, text)

	pctx, pcancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer pcancel()
	if err := c.ledger.UpdateReport(pctx, feed, id, text); err != nil {
		return domain.Record{}, err
	}
	rec.AIReport = &text
	rec.IsReported = true

	c.logger.Info("record re-reported", "feed", string(feed), "id", id, "generated", generated)
	c.publish(pctx, rec, ReasonReReport)
	return rec, nil
}

// Recent lists stored records newest first. limit is clamped to
// [1, MaxListLimit]; zero or negative selects DefaultListLimit.
func (c *Coordinator) Recent(ctx context.Context, feed domain.Feed, limit int) ([]domain.Record, error) {
	if _, ok := c.locks[feed]; !ok {
		return nil, fmt.Errorf("feed %q has no records", feed)
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return c.ledger.ListRecent(ctx, feed, limit)
}

func (c *Coordinator) publish(ctx context.Context, rec domain.Record, reason string) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, rec, reason); err != nil {
		c.logger.Warn("audit publish failed", "key", rec.Key().String(), "reason", reason, "error", err)
	}
}

func (c *Coordinator) observeTick(feed domain.Feed, start time.Time, outcome string) {
	c.metrics.Ticks.WithLabelValues(string(feed), outcome).Inc()
	c.metrics.TickDuration.WithLabelValues(string(feed)).Observe(time.Since(start).Seconds())
}

func templateFor(feed domain.Feed) report.Template {
	if feed == domain.FeedWarning {
		return report.TemplateWarning
	}
	return report.TemplateBroadcast
}

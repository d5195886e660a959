// Package ledger provides an in-process event ledger with the same
// at-most-once contract as the Postgres ledger. It backs LEDGER_DRIVER=memory
// and the pipeline tests.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Memory is a mutex-guarded ledger. Records are lost on restart.
type Memory struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	nextID  map[domain.Feed]int64
	records map[domain.Feed][]domain.Record
	keys    map[string]int // natural key -> index into records[feed]
}

// NewMemory creates an empty ledger. A nil clock selects the real clock.
func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock:   clock,
		nextID:  make(map[domain.Feed]int64),
		records: make(map[domain.Feed][]domain.Record),
		keys:    make(map[string]int),
	}
}

func (m *Memory) Ping(_ context.Context) error { return nil }

func (m *Memory) Exists(_ context.Context, key domain.NaturalKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key.String()]
	return ok, nil
}

// PersistIfAbsent inserts rec unless its natural key is already stored.
func (m *Memory) PersistIfAbsent(_ context.Context, rec domain.Record) (domain.Record, domain.PersistOutcome, error) {
	if !rec.Feed.Valid() || rec.Feed == domain.FeedForecast {
		return domain.Record{}, 0, fmt.Errorf("persist: unsupported feed %q", rec.Feed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := rec.Key().String()
	if idx, ok := m.keys[k]; ok {
		return clone(m.records[rec.Feed][idx]), domain.AlreadyPresent, nil
	}

	m.nextID[rec.Feed]++
	rec.ID = m.nextID[rec.Feed]
	rec.CreatedAt = m.clock.Now().UTC()
	rec.AffectedAreas = slices.Clone(rec.AffectedAreas)
	m.records[rec.Feed] = append(m.records[rec.Feed], rec)
	m.keys[k] = len(m.records[rec.Feed]) - 1
	return clone(rec), domain.Inserted, nil
}

func (m *Memory) UpdateReport(_ context.Context, feed domain.Feed, id int64, aiReport string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records[feed] {
		if m.records[feed][i].ID == id {
			report := aiReport
			m.records[feed][i].AIReport = &report
			m.records[feed][i].IsReported = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s %d", domain.ErrRecordNotFound, feed, id)
}

func (m *Memory) Get(_ context.Context, feed domain.Feed, id int64) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.records[feed] {
		if r.ID == id {
			return clone(r), nil
		}
	}
	return domain.Record{}, fmt.Errorf("%w: %s %d", domain.ErrRecordNotFound, feed, id)
}

// ListRecent returns up to limit records, newest first.
func (m *Memory) ListRecent(_ context.Context, feed domain.Feed, limit int) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := m.records[feed]
	out := make([]domain.Record, 0, min(limit, len(recs)))
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, clone(recs[i]))
	}
	return out, nil
}

func clone(r domain.Record) domain.Record {
	r.AffectedAreas = slices.Clone(r.AffectedAreas)
	if r.AIReport != nil {
		report := *r.AIReport
		r.AIReport = &report
	}
	return r
}

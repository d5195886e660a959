// Package redis mirrors the forecast snapshot so a restarted process can
// serve a recent briefing without another generation call.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/go-redis/redis/v8"
)

// DefaultKey is where the snapshot is stored.
const DefaultKey = "weather-broadcast:forecast:snapshot"

// Mirror stores one ForecastSnapshot under a fixed key.
// It implements forecast.Mirror.
type Mirror struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewClient builds a go-redis client for addr.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewMirror wraps client. Saved snapshots expire after ttl.
func NewMirror(client *redis.Client, key string, ttl time.Duration) *Mirror {
	if key == "" {
		key = DefaultKey
	}
	return &Mirror{client: client, key: key, ttl: ttl}
}

// Load returns the stored snapshot. ok is false when nothing is stored.
func (m *Mirror) Load(ctx context.Context) (snap domain.ForecastSnapshot, ok bool, err error) {
	val, err := m.client.Get(ctx, m.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ForecastSnapshot{}, false, nil
	}
	if err != nil {
		return domain.ForecastSnapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	if err := json.Unmarshal(val, &snap); err != nil {
		return domain.ForecastSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

func (m *Mirror) Save(ctx context.Context, snap domain.ForecastSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := m.client.Set(ctx, m.key, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (m *Mirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *Mirror) Close() error {
	return m.client.Close()
}

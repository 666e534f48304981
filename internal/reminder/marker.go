package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MarkerTTL is how long a sent-marker is kept. It covers the day it belongs to with room for
// time zone differences and late reruns.
const MarkerTTL = 48 * time.Hour

// Marker records which (user, day) pairs have been handled so that a second run on the same day
// does not send twice.
type Marker interface {
	// Claim sets key if it is not set yet and reports whether this call set it.
	Claim(ctx context.Context, key string) (bool, error)
	// Release removes key so that a later run retries.
	Release(ctx context.Context, key string) error
}

func markerKey(kind string, userID int64, date string) string {
	return fmt.Sprintf("birthday:reminder:%s:%d:%s", kind, userID, date)
}

// RedisMarker keeps markers in Redis with SET NX.
type RedisMarker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisMarker(client redis.UniversalClient) *RedisMarker {
	return &RedisMarker{client: client, ttl: MarkerTTL}
}

// NewRedisMarkerFromURL connects to the Redis server at url, e.g. redis://localhost:6379/0.
func NewRedisMarkerFromURL(ctx context.Context, url string) (*RedisMarker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisMarker(client), nil
}

func (m *RedisMarker) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := m.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

func (m *RedisMarker) Release(ctx context.Context, key string) error {
	if err := m.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (m *RedisMarker) Close() error {
	return m.client.Close()
}

// MemoryMarker keeps markers in process memory. It only protects against reruns within the same
// process and is meant for development setups without Redis.
type MemoryMarker struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{keys: map[string]struct{}{}}
}

func (m *MemoryMarker) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *MemoryMarker) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

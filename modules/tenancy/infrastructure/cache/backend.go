package cache

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Backend is a string key/value store with per-key expiry.
type Backend interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key string) (string, bool, error)
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisBackend stores entries in Redis. Every operation is bounded by opTimeout.
type RedisBackend struct {
	client    redis.UniversalClient
	opTimeout time.Duration
}

func NewRedisBackend(client redis.UniversalClient, opTimeout time.Duration) *RedisBackend {
	return &RedisBackend{client: client, opTimeout: opTimeout}
}

func (b *RedisBackend) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.opTimeout)
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	val, err := b.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "failed to get %s", key)
	}
	return val, true, nil
}

func (b *RedisBackend) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to set %s", key)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := b.bound(ctx)
	defer cancel()
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "failed to delete keys")
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// NoopBackend is used when no cache is configured; every read is a miss.
type NoopBackend struct{}

func (NoopBackend) Get(context.Context, string) (string, bool, error) { return "", false, nil }

func (NoopBackend) SetWithExpiry(context.Context, string, string, time.Duration) error { return nil }

func (NoopBackend) Delete(context.Context, ...string) error { return nil }

type memoryItem struct {
	value     string
	expiresAt time.Time
}

// MemoryBackend is a process-local Backend with lazy expiry.
type MemoryBackend struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]memoryItem), now: time.Now}
}

// WithClock swaps the time source, for tests.
func (b *MemoryBackend) WithClock(now func() time.Time) *MemoryBackend {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
	return b
}

func (b *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	item, ok := b.items[key]
	if !ok {
		return "", false, nil
	}
	if !item.expiresAt.IsZero() && !b.now().Before(item.expiresAt) {
		delete(b.items, key)
		return "", false, nil
	}
	return item.value, true, nil
}

func (b *MemoryBackend) SetWithExpiry(_ context.Context, key, value string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = b.now().Add(ttl)
	}
	b.items[key] = item
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.items, k)
	}
	return nil
}

// TTL reports the remaining lifetime of key, zero when absent.
func (b *MemoryBackend) TTL(key string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	item, ok := b.items[key]
	if !ok || item.expiresAt.IsZero() {
		return 0
	}
	return item.expiresAt.Sub(b.now())
}

// Keys returns the stored keys, including expired ones not yet evicted.
func (b *MemoryBackend) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.items))
	for k := range b.items {
		out = append(out, k)
	}
	return out
}

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewBackend builds a Backend from a redis URL. An empty URL yields a NoopBackend.
func NewBackend(redisURL string, opTimeout time.Duration) (Backend, error) {
	if redisURL == "" {
		return NoopBackend{}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse REDIS_URL")
	}
	if opTimeout > 0 {
		opts.DialTimeout = opTimeout
		opts.ReadTimeout = opTimeout
		opts.WriteTimeout = opTimeout
	}
	return NewRedisBackend(redis.NewClient(opts), opTimeout), nil
}

// LazyBackend defers construction of the underlying Backend until first use and reuses it afterwards.
// A construction failure is logged once and degrades to a NoopBackend.
type LazyBackend struct {
	get func() Backend
}

func NewLazyBackend(redisURL string, opTimeout time.Duration, logger *logrus.Entry) *LazyBackend {
	return &LazyBackend{get: sync.OnceValue(func() Backend {
		b, err := NewBackend(redisURL, opTimeout)
		if err != nil {
			if logger != nil {
				logger.WithError(err).Error("tenant cache disabled")
			}
			return NoopBackend{}
		}
		return b
	})}
}

// Backend returns the shared instance, building it on the first call.
func (l *LazyBackend) Backend() Backend {
	return l.get()
}

func (l *LazyBackend) Get(ctx context.Context, key string) (string, bool, error) {
	return l.get().Get(ctx, key)
}

func (l *LazyBackend) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	return l.get().SetWithExpiry(ctx, key, value, ttl)
}

func (l *LazyBackend) Delete(ctx context.Context, keys ...string) error {
	return l.get().Delete(ctx, keys...)
}

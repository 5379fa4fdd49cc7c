package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/tenancy/modules/tenancy/domain"
	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenancy/modules/tenancy/infrastructure/cache"
	"github.com/iota-uz/tenancy/pkg/logging"
)

const (
	cacheKeyPrefix = "tenant:"
	staleKeySuffix = ":stale"

	DefaultFreshTTL        = time.Hour
	DefaultStaleTTL        = 24 * time.Hour
	DefaultWarmConcurrency = 16
)

func FreshKey(identifier string) string {
	return cacheKeyPrefix + identifier
}

func StaleKey(identifier string) string {
	return cacheKeyPrefix + identifier + staleKeySuffix
}

type TenantCacheOptions struct {
	FreshTTL        time.Duration
	StaleTTL        time.Duration
	WarmConcurrency int
	Logger          *logrus.Entry
}

func (o *TenantCacheOptions) setDefaults() {
	if o.FreshTTL <= 0 {
		o.FreshTTL = DefaultFreshTTL
	}
	if o.StaleTTL <= 0 {
		o.StaleTTL = DefaultStaleTTL
	}
	if o.WarmConcurrency <= 0 {
		o.WarmConcurrency = DefaultWarmConcurrency
	}
	o.Logger = logging.OrNop(o.Logger).WithField("component", "tenant_cache")
}

// WarmResult reports the outcome of a warm run.
type WarmResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// TenantCache is the two-tier tenant cache. Backend failures never reach callers.
type TenantCache struct {
	backend cache.Backend
	tenants domain.TenantRepository
	opts    TenantCacheOptions
	metrics *metrics
}

func NewTenantCache(backend cache.Backend, tenants domain.TenantRepository, opts TenantCacheOptions) *TenantCache {
	opts.setDefaults()
	if backend == nil {
		backend = cache.NoopBackend{}
	}
	return &TenantCache{
		backend: backend,
		tenants: tenants,
		opts:    opts,
		metrics: getMetrics(),
	}
}

// GetFresh reads the short-TTL tier only.
func (c *TenantCache) GetFresh(ctx context.Context, identifier string) (*tenant.Tenant, bool) {
	return c.get(ctx, "fresh", FreshKey(identifier))
}

// GetStale reads the long-TTL fallback tier.
func (c *TenantCache) GetStale(ctx context.Context, identifier string) (*tenant.Tenant, bool) {
	return c.get(ctx, "stale", StaleKey(identifier))
}

func (c *TenantCache) get(ctx context.Context, tier, key string) (*tenant.Tenant, bool) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.metrics.cacheErrorsTotal.WithLabelValues("get").Inc()
		c.metrics.cacheOpsTotal.WithLabelValues(tier, "error").Inc()
		c.opts.Logger.WithError(err).WithField("key", key).Error("cache backend get failed")
		return nil, false
	}
	if !ok {
		c.metrics.cacheOpsTotal.WithLabelValues(tier, "miss").Inc()
		return nil, false
	}
	t, err := tenant.UnmarshalCacheEntry(raw)
	if err != nil {
		c.metrics.cacheOpsTotal.WithLabelValues(tier, "corrupt").Inc()
		c.opts.Logger.WithError(err).WithField("key", key).Warn("discarding undecodable cache entry")
		return nil, false
	}
	c.metrics.cacheOpsTotal.WithLabelValues(tier, "hit").Inc()
	return t, true
}

// Set writes both tiers for identifier concurrently. Errors are logged, not returned.
func (c *TenantCache) Set(ctx context.Context, identifier string, t *tenant.Tenant) {
	if err := c.write(ctx, identifier, t); err != nil {
		c.opts.Logger.WithError(err).WithField("identifier", identifier).Error("cache backend set failed")
	}
}

func (c *TenantCache) write(ctx context.Context, identifier string, t *tenant.Tenant) error {
	payload, err := tenant.MarshalCacheEntry(t)
	if err != nil {
		return errors.Wrap(err, "failed to encode cache entry")
	}
	var g errgroup.Group
	g.Go(func() error {
		return c.backend.SetWithExpiry(ctx, FreshKey(identifier), payload, c.opts.FreshTTL)
	})
	g.Go(func() error {
		return c.backend.SetWithExpiry(ctx, StaleKey(identifier), payload, c.opts.StaleTTL)
	})
	if err := g.Wait(); err != nil {
		c.metrics.cacheErrorsTotal.WithLabelValues("set").Inc()
		return err
	}
	return nil
}

// Invalidate drops both tiers for the subdomain and, when set, the custom domain.
func (c *TenantCache) Invalidate(ctx context.Context, t *tenant.Tenant) {
	c.InvalidateIdentifiers(ctx, t.CacheKeys()...)
}

func (c *TenantCache) InvalidateIdentifiers(ctx context.Context, identifiers ...string) {
	keys := make([]string, 0, len(identifiers)*2)
	for _, id := range identifiers {
		if id == "" {
			continue
		}
		keys = append(keys, FreshKey(id), StaleKey(id))
	}
	if len(keys) == 0 {
		return
	}
	if err := c.backend.Delete(ctx, keys...); err != nil {
		c.metrics.cacheErrorsTotal.WithLabelValues("delete").Inc()
		c.opts.Logger.WithError(err).WithField("keys", keys).Error("cache backend delete failed")
	}
}

// WarmAll loads every active tenant and caches it under its subdomain and its custom
// domain, verified or not. Callers gate routing with Tenant.ResolvableBy.
func (c *TenantCache) WarmAll(ctx context.Context) WarmResult {
	tenants, err := c.tenants.FindActive(ctx)
	if err != nil {
		c.opts.Logger.WithError(err).Error("failed to load active tenants for warming")
		return WarmResult{Error: fmt.Sprintf("failed to load active tenants: %v", err)}
	}

	var (
		written atomic.Int64
		failed  atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.WarmConcurrency)
	total := 0
	for _, t := range tenants {
		for _, id := range t.CacheKeys() {
			total++
			g.Go(func() error {
				if err := c.write(gctx, id, t); err != nil {
					failed.Add(1)
					c.opts.Logger.WithError(err).WithFields(logrus.Fields{
						"identifier": id,
						"tenant_id":  t.ID(),
					}).Error("failed to warm cache entry")
					return nil
				}
				written.Add(1)
				return nil
			})
		}
	}
	_ = g.Wait()

	n := int(written.Load())
	c.metrics.warmedTotal.Add(float64(n))
	if err := ctx.Err(); err != nil {
		return WarmResult{Count: n, Error: fmt.Sprintf("warming interrupted: %v", err)}
	}
	if f := failed.Load(); f > 0 {
		return WarmResult{Count: n, Error: fmt.Sprintf("%d of %d cache writes failed", f, total)}
	}
	c.opts.Logger.WithFields(logrus.Fields{"tenants": len(tenants), "entries": n}).Info("tenant cache warmed")
	return WarmResult{Success: true, Count: n}
}

// WarmOne caches a single tenant. It returns false when the tenant does not exist or is not active.
func (c *TenantCache) WarmOne(ctx context.Context, id uuid.UUID) (bool, error) {
	t, err := c.tenants.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to load tenant")
	}
	if !t.Status().IsActive() {
		c.Invalidate(ctx, t)
		return false, nil
	}
	keys := t.CacheKeys()
	for _, ident := range keys {
		if err := c.write(ctx, ident, t); err != nil {
			return false, errors.Wrapf(err, "failed to cache %s", ident)
		}
	}
	c.metrics.warmedTotal.Add(float64(len(keys)))
	return true, nil
}

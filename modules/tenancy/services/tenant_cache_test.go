package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenancy/modules/tenancy/infrastructure/cache"
	"github.com/iota-uz/tenancy/modules/tenancy/infrastructure/persistence/persistencetest"
)

func TestTenantCache_WarmAllPopulatesEveryIdentifier(t *testing.T) {
	ctx := context.Background()
	acme := tenant.New("acme", "Acme", tenant.WithTier("pro"))
	globex := tenant.New("globex", "Globex", tenant.WithCustomDomain("globex.io"), tenant.WithDomainVerified(true))
	suspended := tenant.New("initech", "Initech", tenant.WithStatus(tenant.StatusSuspended))
	repo := persistencetest.NewTenantRepository(acme, globex, suspended)
	backend := cache.NewMemoryBackend()
	c := NewTenantCache(backend, repo, TenantCacheOptions{WarmConcurrency: 2})

	res := c.WarmAll(ctx)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 3, res.Count)

	got, ok := c.GetFresh(ctx, "acme")
	require.True(t, ok)
	assert.Equal(t, acme.ID(), got.ID())
	assert.Equal(t, "acme", got.Subdomain())
	assert.Equal(t, "Acme", got.Name())
	assert.Equal(t, "pro", got.Tier())
	assert.Equal(t, tenant.StatusActive, got.Status())

	got, ok = c.GetFresh(ctx, "globex.io")
	require.True(t, ok)
	assert.Equal(t, globex.ID(), got.ID())

	_, ok = c.GetFresh(ctx, "initech")
	assert.False(t, ok)
}

func TestTenantCache_WarmAllCachesUnverifiedDomain(t *testing.T) {
	ctx := context.Background()
	acme := tenant.New("acme", "Acme", tenant.WithCustomDomain("shop.acme.com"))
	repo := persistencetest.NewTenantRepository(acme)
	c := NewTenantCache(cache.NewMemoryBackend(), repo, TenantCacheOptions{})

	res := c.WarmAll(ctx)
	require.True(t, res.Success)
	assert.Equal(t, 2, res.Count)

	for _, id := range []string{"acme", "shop.acme.com"} {
		got, ok := c.GetFresh(ctx, id)
		require.True(t, ok, id)
		assert.Equal(t, acme.ID(), got.ID())
		_, ok = c.GetStale(ctx, id)
		assert.True(t, ok, id)
	}

	// cached, but not routable until verified
	got, _ := c.GetFresh(ctx, "shop.acme.com")
	assert.False(t, got.ResolvableBy("shop.acme.com"))
}

func TestTenantCache_SetWritesBothTiers(t *testing.T) {
	ctx := context.Background()
	backend := cache.NewMemoryBackend()
	c := NewTenantCache(backend, persistencetest.NewTenantRepository(), TenantCacheOptions{
		FreshTTL: time.Hour,
		StaleTTL: 24 * time.Hour,
	})

	c.Set(ctx, "acme", tenant.New("acme", "Acme"))

	assert.ElementsMatch(t, []string{"tenant:acme", "tenant:acme:stale"}, backend.Keys())
	assert.InDelta(t, time.Hour.Seconds(), backend.TTL("tenant:acme").Seconds(), 1)
	assert.InDelta(t, (24 * time.Hour).Seconds(), backend.TTL("tenant:acme:stale").Seconds(), 1)

	_, ok := c.GetStale(ctx, "acme")
	assert.True(t, ok)
}

func TestTenantCache_FreshExpiresBeforeStale(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	backend := cache.NewMemoryBackend().WithClock(func() time.Time { return now })
	c := NewTenantCache(backend, persistencetest.NewTenantRepository(), TenantCacheOptions{})

	c.Set(ctx, "acme", tenant.New("acme", "Acme"))
	now = now.Add(2 * time.Hour)

	_, ok := c.GetFresh(ctx, "acme")
	assert.False(t, ok)
	_, ok = c.GetStale(ctx, "acme")
	assert.True(t, ok)
}

func TestTenantCache_InvalidateDropsEveryKey(t *testing.T) {
	ctx := context.Background()
	backend := cache.NewMemoryBackend()
	c := NewTenantCache(backend, persistencetest.NewTenantRepository(), TenantCacheOptions{})
	acme := tenant.New("acme", "Acme", tenant.WithCustomDomain("shop.acme.com"), tenant.WithDomainVerified(true))

	c.Set(ctx, "acme", acme)
	c.Set(ctx, "shop.acme.com", acme)
	require.Len(t, backend.Keys(), 4)

	c.Invalidate(ctx, acme)

	assert.Empty(t, backend.Keys())
	_, ok := c.GetFresh(ctx, "acme")
	assert.False(t, ok)
	_, ok = c.GetFresh(ctx, "shop.acme.com")
	assert.False(t, ok)
}

func TestTenantCache_BackendFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	repo := persistencetest.NewTenantRepository(tenant.New("acme", "Acme"))
	c := NewTenantCache(brokenBackend{}, repo, TenantCacheOptions{})

	_, ok := c.GetFresh(ctx, "acme")
	assert.False(t, ok)
	_, ok = c.GetStale(ctx, "acme")
	assert.False(t, ok)

	assert.NotPanics(t, func() {
		c.Set(ctx, "acme", tenant.New("acme", "Acme"))
		c.InvalidateIdentifiers(ctx, "acme")
	})

	res := c.WarmAll(ctx)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Count)
	assert.Contains(t, res.Error, "1 of 1 cache writes failed")
}

func TestTenantCache_NoopBackendAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	c := NewTenantCache(cache.NoopBackend{}, persistencetest.NewTenantRepository(), TenantCacheOptions{})

	c.Set(ctx, "acme", tenant.New("acme", "Acme"))
	_, ok := c.GetFresh(ctx, "acme")
	assert.False(t, ok)
}

func TestTenantCache_CorruptEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	backend := cache.NewMemoryBackend()
	require.NoError(t, backend.SetWithExpiry(ctx, FreshKey("acme"), "{not json", time.Minute))
	c := NewTenantCache(backend, persistencetest.NewTenantRepository(), TenantCacheOptions{})

	_, ok := c.GetFresh(ctx, "acme")
	assert.False(t, ok)
}

func TestTenantCache_WarmAllReportsStoreFailure(t *testing.T) {
	repo := &flakyTenantRepo{TenantRepository: persistencetest.NewTenantRepository()}
	repo.down.Store(true)
	c := NewTenantCache(cache.NewMemoryBackend(), repo, TenantCacheOptions{})

	res := c.WarmAll(context.Background())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "failed to load active tenants")
}

func TestTenantCache_WarmOne(t *testing.T) {
	ctx := context.Background()
	acme := tenant.New("acme", "Acme")
	suspended := tenant.New("initech", "Initech", tenant.WithStatus(tenant.StatusSuspended))
	backend := cache.NewMemoryBackend()
	c := NewTenantCache(backend, persistencetest.NewTenantRepository(acme, suspended), TenantCacheOptions{})

	ok, err := c.WarmOne(ctx, acme.ID())
	require.NoError(t, err)
	assert.True(t, ok)
	_, hit := c.GetFresh(ctx, "acme")
	assert.True(t, hit)

	ok, err = c.WarmOne(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.WarmOne(ctx, suspended.ID())
	require.NoError(t, err)
	assert.False(t, ok)
}

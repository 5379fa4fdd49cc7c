package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/iota-uz/tenancy/modules/tenancy/domain"
	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenancy/modules/tenancy/infrastructure/dns"
)

// flakyTenantRepo counts identifier lookups and can be switched into an outage.
type flakyTenantRepo struct {
	domain.TenantRepository

	lookups atomic.Int64
	down    atomic.Bool
}

func (r *flakyTenantRepo) FindBySubdomainOrDomain(ctx context.Context, identifier string) (*tenant.Tenant, error) {
	r.lookups.Add(1)
	if r.down.Load() {
		return nil, domain.ErrStoreUnavailable
	}
	return r.TenantRepository.FindBySubdomainOrDomain(ctx, identifier)
}

func (r *flakyTenantRepo) FindActive(ctx context.Context) ([]*tenant.Tenant, error) {
	if r.down.Load() {
		return nil, domain.ErrStoreUnavailable
	}
	return r.TenantRepository.FindActive(ctx)
}

type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) (string, bool, error) {
	return "", false, errBackendDown
}

func (brokenBackend) SetWithExpiry(context.Context, string, string, time.Duration) error {
	return errBackendDown
}

func (brokenBackend) Delete(context.Context, ...string) error { return errBackendDown }

var errBackendDown = errors.New("dial tcp 127.0.0.1:6379: connection refused")

// fakeChecker answers DNS checks from a per-domain script.
type fakeChecker struct {
	mu      sync.Mutex
	results map[string]func() dns.Result
	calls   []string
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{results: make(map[string]func() dns.Result)}
}

func (c *fakeChecker) on(domainName string, fn func() dns.Result) *fakeChecker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[domainName] = fn
	return c
}

func (c *fakeChecker) Verify(_ context.Context, domainName, _ string) dns.Result {
	c.mu.Lock()
	c.calls = append(c.calls, domainName)
	fn, ok := c.results[domainName]
	c.mu.Unlock()
	if !ok {
		return dns.Result{Cause: dns.CauseNotFound, Error: "DNS record not found; changes can take up to 48 hours to propagate"}
	}
	return fn()
}

func (c *fakeChecker) called() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func verifiedResult() dns.Result {
	return dns.Result{Verified: true, Propagated: true, Cause: dns.CauseNone}
}

func noSleep(context.Context, time.Duration) error { return nil }

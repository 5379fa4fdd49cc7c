package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/tenancy/modules/tenancy/domain"
	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenancy/pkg/logging"
)

var (
	ErrResolutionNotFound = errors.New("tenant not found for host")
	ErrServiceUnavailable = errors.New("tenant resolution unavailable")
)

type ResolutionKind string

const (
	ResolutionNotFound           ResolutionKind = "not_found"
	ResolutionServiceUnavailable ResolutionKind = "service_unavailable"
)

// ResolutionError is the typed failure returned by Resolver.Resolve.
type ResolutionError struct {
	Kind       ResolutionKind
	Identifier string
	Cause      error
}

func (e *ResolutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("resolve %q: %s: %v", e.Identifier, e.Kind, e.Cause)
	}
	return fmt.Sprintf("resolve %q: %s", e.Identifier, e.Kind)
}

func (e *ResolutionError) Unwrap() []error {
	sentinel := ErrResolutionNotFound
	if e.Kind == ResolutionServiceUnavailable {
		sentinel = ErrServiceUnavailable
	}
	if e.Cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Cause}
}

const DefaultBackfillTimeout = 2 * time.Second

var resolverTracer = otel.Tracer("tenancy-resolver")

type ResolverOptions struct {
	// RootDomain maps <label>.<RootDomain> hosts to the <label> subdomain.
	RootDomain      string
	BackfillTimeout time.Duration
	Logger          *logrus.Entry
}

type Resolver struct {
	tenants domain.TenantRepository
	cache   *TenantCache
	opts    ResolverOptions
	metrics *metrics
}

func NewResolver(tenants domain.TenantRepository, cache *TenantCache, opts ResolverOptions) *Resolver {
	if opts.BackfillTimeout <= 0 {
		opts.BackfillTimeout = DefaultBackfillTimeout
	}
	opts.Logger = logging.OrNop(opts.Logger).WithField("component", "tenant_resolver")
	return &Resolver{
		tenants: tenants,
		cache:   cache,
		opts:    opts,
		metrics: getMetrics(),
	}
}

// Identifier turns a raw Host header into the key tenants are looked up by.
func (r *Resolver) Identifier(host string) (string, error) {
	h, err := NormalizeHost(host)
	if err != nil {
		return "", err
	}
	return IdentifierFor(h, r.opts.RootDomain), nil
}

// Resolve returns the active tenant owning host, or a *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, host string) (*tenant.Tenant, error) {
	start := time.Now()
	ctx, span := resolverTracer.Start(ctx, "tenancy.resolve", trace.WithAttributes(attribute.String("tenancy.host", host)))
	defer span.End()

	t, source, err := r.resolve(ctx, host)
	result := source
	if err != nil {
		var rerr *ResolutionError
		if errors.As(err, &rerr) {
			result = string(rerr.Kind)
		}
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("tenancy.tenant_id", t.ID().String()))
	}
	span.SetAttributes(attribute.String("tenancy.source", result))
	r.metrics.resolveTotal.WithLabelValues(result).Inc()
	r.metrics.resolveLatency.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return t, err
}

func (r *Resolver) resolve(ctx context.Context, host string) (*tenant.Tenant, string, error) {
	identifier, err := r.Identifier(host)
	if err != nil {
		return nil, "", &ResolutionError{Kind: ResolutionNotFound, Identifier: host, Cause: err}
	}
	logger := r.opts.Logger.WithField("identifier", identifier)

	if t, ok := r.cache.GetFresh(ctx, identifier); ok && t.ResolvableBy(identifier) {
		return t, "cache", nil
	}

	t, err := r.tenants.FindBySubdomainOrDomain(ctx, identifier)
	switch {
	case err == nil:
		r.backfill(identifier, t)
		return t, "store", nil
	case errors.Is(err, domain.ErrTenantNotFound):
		return nil, "", &ResolutionError{Kind: ResolutionNotFound, Identifier: identifier}
	}

	logger.WithError(err).Warn("record store lookup failed, trying stale cache")
	if stale, ok := r.cache.GetStale(ctx, identifier); ok && stale.ResolvableBy(identifier) {
		return stale, "stale", nil
	}
	return nil, "", &ResolutionError{Kind: ResolutionServiceUnavailable, Identifier: identifier, Cause: err}
}

// backfill writes the cache without holding up the caller.
func (r *Resolver) backfill(identifier string, t *tenant.Tenant) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.BackfillTimeout)
		defer cancel()
		r.cache.Set(ctx, identifier, t)
	}()
}

package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenancy/modules/tenancy"
	"github.com/iota-uz/tenancy/modules/tenancy/domain"
	"github.com/iota-uz/tenancy/modules/tenancy/infrastructure/cache"
	"github.com/iota-uz/tenancy/modules/tenancy/infrastructure/dns"
	"github.com/iota-uz/tenancy/modules/tenancy/infrastructure/persistence"
	"github.com/iota-uz/tenancy/modules/tenancy/presentation/controllers"
	"github.com/iota-uz/tenancy/modules/tenancy/services"
	"github.com/iota-uz/tenancy/pkg/application"
	"github.com/iota-uz/tenancy/pkg/configuration"
)

const connectTimeout = 10 * time.Second

// OpenPool connects a pgx pool to the PostgreSQL record store and pings it.
func OpenPool(ctx context.Context, conf *configuration.Configuration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "db connect failed")
	}
	return pool, nil
}

// Stack is the fully wired tenancy core shared by the server and tenantctl.
type Stack struct {
	Tenants      domain.TenantRepository
	Attempts     domain.VerificationRepository
	Backend      *cache.LazyBackend
	Cache        *services.TenantCache
	Resolver     *services.Resolver
	Verification *services.DomainVerificationService
	Job          *services.VerificationJob
}

func NewStack(conf *configuration.Configuration, pool *pgxpool.Pool, logger *logrus.Logger) *Stack {
	log := logrus.NewEntry(logger)
	dv := conf.DomainVerification

	s := &Stack{
		Tenants:  persistence.NewPgTenantRepository(pool),
		Attempts: persistence.NewPgVerificationRepository(pool),
		Backend:  cache.NewLazyBackend(conf.RedisURL, conf.TenantCache.OpTimeout, log.WithField("component", "cache_backend")),
	}
	s.Cache = services.NewTenantCache(s.Backend, s.Tenants, services.TenantCacheOptions{
		FreshTTL:        conf.TenantCache.FreshTTL,
		StaleTTL:        conf.TenantCache.StaleTTL,
		WarmConcurrency: conf.TenantCache.WarmConcurrency,
		Logger:          log,
	})
	s.Resolver = services.NewResolver(s.Tenants, s.Cache, services.ResolverOptions{
		RootDomain: conf.RootDomain,
		Logger:     log,
	})
	verifier := dns.NewVerifier(dns.Options{
		RecordLabel:   dv.RecordLabel,
		Retries:       dv.DNSRetries,
		BaseDelay:     dv.DNSBaseDelay,
		LookupTimeout: dv.DNSLookupTimeout,
		Logger:        log.WithField("component", "dns_verifier"),
	})
	s.Verification = services.NewDomainVerificationService(s.Tenants, s.Attempts, s.Cache, verifier, services.DomainVerificationOptions{
		RootDomain:  conf.RootDomain,
		RecordLabel: dv.RecordLabel,
		TokenPrefix: dv.TokenPrefix,
		MaxAttempts: dv.MaxAttempts,
		CheckDelay:  dv.CheckDelay,
		Logger:      log,
	})
	s.Job = services.NewVerificationJob(s.Verification, services.VerificationJobOptions{
		Interval: dv.Interval,
		Logger:   log,
	})
	return s
}

// Module packages the stack's services as the tenancy application module.
func (s *Stack) Module(controllerOpts controllers.TenantControllerOptions) application.Module {
	return tenancy.NewModule(&tenancy.ModuleOptions{
		Resolver:         s.Resolver,
		Cache:            s.Cache,
		Verification:     s.Verification,
		TenantController: controllerOpts,
	})
}

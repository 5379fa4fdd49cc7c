package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/iota-uz/tenancy/pkg/composables"
	"github.com/iota-uz/tenancy/pkg/httpapi"
)

const rateLimitPrefix = "tenancy:ratelimit"

type RateLimitConfig struct {
	RequestsPerPeriod int64
	Period            time.Duration
	Store             limiter.Store
	// Scope namespaces counters so several limited routes do not share a budget.
	Scope        string
	RealIPHeader string
}

func NewMemoryStore() limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          rateLimitPrefix,
		CleanUpInterval: time.Minute,
	})
}

func NewRedisStore(redisURL string) (limiter.Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse redis url")
	}
	store, err := sredis.NewStoreWithOptions(redis.NewClient(opts), limiter.StoreOptions{
		Prefix: rateLimitPrefix,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create redis rate limit store")
	}
	return store, nil
}

// RateLimit throttles requests per tenant, or per client IP when no tenant was resolved.
func RateLimit(config RateLimitConfig) mux.MiddlewareFunc {
	if config.Store == nil {
		config.Store = NewMemoryStore()
	}
	if config.Period <= 0 {
		config.Period = time.Minute
	}
	rate := limiter.Rate{
		Period: config.Period,
		Limit:  config.RequestsPerPeriod,
	}

	m := mhttp.NewMiddleware(
		limiter.New(config.Store, rate),
		mhttp.WithKeyGetter(func(r *http.Request) string {
			return config.Scope + ":" + rateLimitKey(r, config.RealIPHeader)
		}),
		mhttp.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(config.Period.Seconds())))
			_ = httpapi.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
		}),
		mhttp.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			composables.UseLogger(r.Context()).WithError(err).Error("rate limiter store failed")
			_ = httpapi.WriteError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error", nil)
		}),
	)
	return m.Handler
}

func rateLimitKey(r *http.Request, realIPHeader string) string {
	if id, err := composables.UseTenantID(r.Context()); err == nil {
		return "tenant:" + id.String()
	}
	return "ip:" + getRealIP(r, realIPHeader)
}

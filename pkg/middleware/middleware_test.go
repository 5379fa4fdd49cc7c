package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenancy/modules/tenancy/services"
	"github.com/iota-uz/tenancy/pkg/composables"
	"github.com/iota-uz/tenancy/pkg/configuration"
	"github.com/iota-uz/tenancy/pkg/httpapi"
)

type resolverFunc func(ctx context.Context, host string) (*tenant.Tenant, error)

func (f resolverFunc) Resolve(ctx context.Context, host string) (*tenant.Tenant, error) {
	return f(ctx, host)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httpapi.ErrorEnvelope {
	t.Helper()
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestRequireTenantFromHost(t *testing.T) {
	acme := tenant.New("acme", "Acme")
	resolver := resolverFunc(func(_ context.Context, host string) (*tenant.Tenant, error) {
		switch host {
		case "acme.example.com":
			return acme, nil
		case "down.example.com":
			return nil, &services.ResolutionError{Kind: services.ResolutionServiceUnavailable, Identifier: "down"}
		default:
			return nil, &services.ResolutionError{Kind: services.ResolutionNotFound, Identifier: host}
		}
	})

	handler := RequireTenantFromHost(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := composables.UseTenant(r.Context())
		require.NoError(t, err)
		assert.Same(t, acme, got)
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("resolved", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://acme.example.com/api/tenant", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://ghost.example.com/api/tenant", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "TENANT_NOT_FOUND", decodeEnvelope(t, rec).Code)
	})

	t.Run("unavailable", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://down.example.com/api/tenant", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "5", rec.Header().Get("Retry-After"))
		assert.Equal(t, "TENANT_RESOLUTION_UNAVAILABLE", decodeEnvelope(t, rec).Code)
	})
}

func TestWithLogger_RecoversPanicsAsJSON(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	r := mux.NewRouter()
	r.Use(WithLogger(logger, LoggerOptions{Entrypoint: "server"}))
	r.HandleFunc("/api/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	r.HandleFunc("/page", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", env.Code)
	assert.Equal(t, "/api/boom", env.Meta["path"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Server Error")

	var panics int
	for _, e := range hook.AllEntries() {
		if e.Message == "panic recovered in request handler" {
			panics++
		}
	}
	assert.Equal(t, 2, panics)
}

func TestWithLogger_ProvidesRequestContext(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)

	r := mux.NewRouter()
	r.Use(WithLogger(logger, DefaultLoggerOptions()))
	r.HandleFunc("/api/tenant", func(w http.ResponseWriter, r *http.Request) {
		_, ok := composables.UseRequestStart(r.Context())
		assert.True(t, ok)
		composables.UseLogger(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "request completed", last.Message)
	assert.Equal(t, http.StatusTeapot, last.Data["status-code"])
	assert.Equal(t, "req-1", last.Data["request-id"])
}

func opsConfig(token, cidrs string) *configuration.Configuration {
	return &configuration.Configuration{
		GoAppEnvironment: configuration.Production,
		RealIPHeader:     "X-Real-IP",
		OpsGuard: configuration.OpsGuardOptions{
			Enabled: true,
			Token:   token,
			CIDRs:   cidrs,
		},
	}
}

func TestOpsGuard(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	serve := func(conf *configuration.Configuration, req *http.Request) int {
		rec := httptest.NewRecorder()
		OpsGuard(conf, "server")(ok).ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("non ops routes pass", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
		assert.Equal(t, http.StatusOK, serve(opsConfig("secret", ""), req))
	})

	t.Run("ops route hidden without credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/ops/cache/warm", nil)
		assert.Equal(t, http.StatusNotFound, serve(opsConfig("secret", ""), req))
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/ops/cache/warm", nil)
		req.Header.Set("Authorization", "Bearer secret")
		assert.Equal(t, http.StatusOK, serve(opsConfig("secret", ""), req))

		req = httptest.NewRequest(http.MethodPost, "/ops/cache/warm", nil)
		req.Header.Set("X-Ops-Token", "wrong")
		assert.Equal(t, http.StatusNotFound, serve(opsConfig("secret", ""), req))
	})

	t.Run("cidr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Real-IP", "10.1.2.3")
		assert.Equal(t, http.StatusOK, serve(opsConfig("", "10.0.0.0/8"), req))

		req = httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Real-IP", "192.168.1.1")
		assert.Equal(t, http.StatusNotFound, serve(opsConfig("", "10.0.0.0/8"), req))
	})

	t.Run("disabled outside production", func(t *testing.T) {
		conf := opsConfig("secret", "")
		conf.GoAppEnvironment = "development"
		req := httptest.NewRequest(http.MethodPost, "/ops/cache/warm", nil)
		assert.Equal(t, http.StatusOK, serve(conf, req))
	})
}

func TestRateLimit_PerTenant(t *testing.T) {
	acme := tenant.New("acme", "Acme")
	globex := tenant.New("globex", "Globex")

	limited := RateLimit(RateLimitConfig{
		RequestsPerPeriod: 2,
		Period:            time.Minute,
		Store:             NewMemoryStore(),
		Scope:             "check-now",
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	call := func(tt *tenant.Tenant) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/domains/verification/check", nil)
		req = req.WithContext(composables.WithTenant(req.Context(), tt))
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call(acme).Code)
	assert.Equal(t, http.StatusOK, call(acme).Code)

	rec := call(acme)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decodeEnvelope(t, rec).Code)

	assert.Equal(t, http.StatusOK, call(globex).Code)
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore("not-a-url://")
	require.Error(t, err)
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getRealIP(req, "X-Real-IP"))

	req.Header.Set("X-Real-IP", "1.2.3.4, 5.6.7.8")
	assert.Equal(t, "1.2.3.4", getRealIP(req, "X-Real-IP"))
}

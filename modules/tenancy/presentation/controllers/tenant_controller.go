package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/tenancy/modules/tenancy/domain"
	"github.com/iota-uz/tenancy/modules/tenancy/presentation/controllers/dtos"
	"github.com/iota-uz/tenancy/modules/tenancy/services"
	"github.com/iota-uz/tenancy/pkg/application"
	"github.com/iota-uz/tenancy/pkg/composables"
	"github.com/iota-uz/tenancy/pkg/httpapi"
	"github.com/iota-uz/tenancy/pkg/middleware"
)

type TenantControllerOptions struct {
	// CheckNowLimit caps on-demand verification checks per tenant. Zero disables limiting.
	CheckNowLimit  int64
	CheckNowPeriod time.Duration
	RateLimitStore limiter.Store
	RealIPHeader   string
}

// TenantController serves the tenant-scoped API. Every route runs behind host-based
// tenant resolution.
type TenantController struct {
	app      application.Application
	basePath string
	opts     TenantControllerOptions
}

func NewTenantController(app application.Application, opts TenantControllerOptions) application.Controller {
	return &TenantController{
		app:      app,
		basePath: "/api",
		opts:     opts,
	}
}

func (c *TenantController) Key() string {
	return c.basePath
}

// Register mounts the API on r itself rather than a PathPrefix subrouter, so a method
// mismatch reaches the root MethodNotAllowedHandler.
func (c *TenantController) Register(r *mux.Router) {
	resolver := c.app.Service(services.Resolver{}).(*services.Resolver)
	scoped := func(h http.Handler) http.Handler {
		return middleware.TracedMiddleware("tenantFromHost")(middleware.RequireTenantFromHost(resolver)(h))
	}

	var check http.Handler = http.HandlerFunc(c.checkVerification)
	if c.opts.CheckNowLimit > 0 {
		check = middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerPeriod: c.opts.CheckNowLimit,
			Period:            c.opts.CheckNowPeriod,
			Store:             c.opts.RateLimitStore,
			Scope:             "domain-check",
			RealIPHeader:      c.opts.RealIPHeader,
		})(check)
	}

	r.Handle(c.basePath+"/tenant", scoped(http.HandlerFunc(c.getTenant))).Methods(http.MethodGet)
	r.Handle(c.basePath+"/domains/verification", scoped(http.HandlerFunc(c.startVerification))).Methods(http.MethodPost)
	r.Handle(c.basePath+"/domains/verification/check", scoped(check)).Methods(http.MethodPost)
}

func (c *TenantController) verificationService() *services.DomainVerificationService {
	return c.app.Service(services.DomainVerificationService{}).(*services.DomainVerificationService)
}

func (c *TenantController) getTenant(w http.ResponseWriter, r *http.Request) {
	t, err := composables.UseTenant(r.Context())
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusNotFound, "TENANT_NOT_FOUND", "tenant not found", nil)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.TenantToResponse(t))
}

func (c *TenantController) startVerification(w http.ResponseWriter, r *http.Request) {
	tenantID, req, ok := c.domainRequest(w, r)
	if !ok {
		return
	}
	res, err := c.verificationService().StartVerification(r.Context(), tenantID, req.Domain)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, res)
}

func (c *TenantController) checkVerification(w http.ResponseWriter, r *http.Request) {
	tenantID, req, ok := c.domainRequest(w, r)
	if !ok {
		return
	}
	res, err := c.verificationService().CheckVerificationNow(r.Context(), tenantID, req.Domain)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, res)
}

func (c *TenantController) domainRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, dtos.DomainRequest, bool) {
	var req dtos.DomainRequest
	id, err := composables.UseTenantID(r.Context())
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusNotFound, "TENANT_NOT_FOUND", "tenant not found", nil)
		return id, req, false
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return id, req, false
	}
	if req.Domain == "" {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_DOMAIN", "domain is required", nil)
		return id, req, false
	}
	return id, req, true
}

// writeServiceError maps service and store errors onto the JSON envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidDomain):
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_DOMAIN", err.Error(), nil)
	case errors.Is(err, services.ErrReservedDomain):
		_ = httpapi.WriteError(w, http.StatusBadRequest, "RESERVED_DOMAIN", err.Error(), nil)
	case errors.Is(err, services.ErrDomainAlreadyVerified):
		_ = httpapi.WriteError(w, http.StatusConflict, "DOMAIN_ALREADY_VERIFIED", err.Error(), nil)
	case errors.Is(err, domain.ErrDomainTaken):
		_ = httpapi.WriteError(w, http.StatusConflict, "DOMAIN_TAKEN", "domain is already used by another tenant", nil)
	case errors.Is(err, services.ErrScanInProgress):
		_ = httpapi.WriteError(w, http.StatusConflict, "SCAN_IN_PROGRESS", err.Error(), nil)
	case errors.Is(err, domain.ErrVerificationNotFound):
		_ = httpapi.WriteError(w, http.StatusNotFound, "VERIFICATION_NOT_FOUND", "no verification started for this domain", nil)
	case errors.Is(err, domain.ErrTenantNotFound):
		_ = httpapi.WriteError(w, http.StatusNotFound, "TENANT_NOT_FOUND", "tenant not found", nil)
	case errors.Is(err, domain.ErrStoreUnavailable):
		composables.UseLogger(r.Context()).WithError(err).Error("record store unavailable")
		_ = httpapi.WriteError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "service temporarily unavailable", nil)
	default:
		composables.UseLogger(r.Context()).WithError(err).Error("request failed")
		_ = httpapi.WriteError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error", nil)
	}
}

package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/tenancy/modules/tenancy/presentation/controllers/dtos"
	"github.com/iota-uz/tenancy/modules/tenancy/services"
	"github.com/iota-uz/tenancy/pkg/application"
	"github.com/iota-uz/tenancy/pkg/composables"
	"github.com/iota-uz/tenancy/pkg/httpapi"
)

const healthPingTimeout = 2 * time.Second

// OpsController exposes operator endpoints. Access control lives in middleware.OpsGuard.
type OpsController struct {
	app      application.Application
	basePath string
}

func NewOpsController(app application.Application) application.Controller {
	return &OpsController{
		app:      app,
		basePath: "/ops",
	}
}

func (c *OpsController) Key() string {
	return c.basePath
}

func (c *OpsController) Register(r *mux.Router) {
	r.HandleFunc(c.basePath+"/cache/warm", c.warm).Methods(http.MethodPost)
	r.HandleFunc(c.basePath+"/domains/verification/scan", c.scan).Methods(http.MethodPost)

	r.HandleFunc("/health", c.health).Methods(http.MethodGet)
}

func (c *OpsController) warm(w http.ResponseWriter, r *http.Request) {
	var req dtos.WarmRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	if id := composables.GetLastQueryParam(r, "tenant_id"); id != "" {
		req.TenantID = id
	}

	cache := c.app.Service(services.TenantCache{}).(*services.TenantCache)

	if req.TenantID == "" {
		res := cache.WarmAll(r.Context())
		status := http.StatusOK
		if !res.Success {
			status = http.StatusInternalServerError
		}
		_ = httpapi.WriteJSON(w, status, res)
		return
	}

	id, err := uuid.Parse(req.TenantID)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_TENANT_ID", "tenant_id must be a UUID", nil)
		return
	}
	cached, err := cache.WarmOne(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.WarmOneResponse{Success: true, TenantID: id.String(), Cached: cached})
}

func (c *OpsController) scan(w http.ResponseWriter, r *http.Request) {
	svc := c.app.Service(services.DomainVerificationService{}).(*services.DomainVerificationService)
	summary, err := svc.ScanOnce(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, summary)
}

func (c *OpsController) health(w http.ResponseWriter, r *http.Request) {
	db := c.app.DB()
	if db == nil {
		_ = httpapi.WriteJSON(w, http.StatusOK, dtos.HealthResponse{Status: "ok", Store: "memory"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		composables.UseLogger(r.Context()).WithError(err).Error("health check: record store unreachable")
		_ = httpapi.WriteJSON(w, http.StatusServiceUnavailable, dtos.HealthResponse{Status: "degraded", Store: "down"})
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.HealthResponse{Status: "ok", Store: "up"})
}

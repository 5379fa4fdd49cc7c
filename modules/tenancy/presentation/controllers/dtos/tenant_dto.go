package dtos

import (
	"time"

	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/tenant"
)

type TenantResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Subdomain      string    `json:"subdomain"`
	CustomDomain   string    `json:"custom_domain,omitempty"`
	DomainVerified bool      `json:"domain_verified"`
	Status         string    `json:"status"`
	Tier           string    `json:"tier,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func TenantToResponse(t *tenant.Tenant) TenantResponse {
	return TenantResponse{
		ID:             t.ID().String(),
		Name:           t.Name(),
		Subdomain:      t.Subdomain(),
		CustomDomain:   t.CustomDomain(),
		DomainVerified: t.DomainVerified(),
		Status:         string(t.Status()),
		Tier:           t.Tier(),
		CreatedAt:      t.CreatedAt(),
	}
}

type DomainRequest struct {
	Domain string `json:"domain"`
}

type WarmRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
}

type WarmOneResponse struct {
	Success  bool   `json:"success"`
	TenantID string `json:"tenant_id"`
	Cached   bool   `json:"cached"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

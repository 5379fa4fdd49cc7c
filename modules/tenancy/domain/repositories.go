package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/verification"
)

var (
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrVerificationNotFound = errors.New("verification attempt not found")
	ErrVerificationExists   = errors.New("verification attempt already exists for domain")
	ErrVerificationConflict = errors.New("verification attempt was updated concurrently")
	ErrDomainTaken          = errors.New("custom domain is already used by another tenant")
	ErrStoreUnavailable     = errors.New("record store unavailable")
	ErrInvalidHostname      = errors.New("invalid hostname")
)

// TenantUpdate carries the fields to change; nil pointers are left untouched.
type TenantUpdate struct {
	CustomDomain   *string
	DomainVerified *bool
	Status         *tenant.Status
	Name           *string
	Tier           *string
}

func (u TenantUpdate) Empty() bool {
	return u.CustomDomain == nil && u.DomainVerified == nil && u.Status == nil && u.Name == nil && u.Tier == nil
}

// VerificationUpdate carries attempt bookkeeping written after each check.
// It applies only while the stored attempt count still equals PreviousAttempts;
// otherwise Update returns ErrVerificationConflict.
type VerificationUpdate struct {
	Status           verification.Status
	PreviousAttempts int
	Attempts         int
	LastAttemptAt    time.Time
	VerifiedAt       *time.Time
	ErrorMessage     *string
}

type TenantRepository interface {
	// FindBySubdomainOrDomain returns the active tenant whose subdomain equals identifier,
	// or whose verified custom domain equals identifier. ErrTenantNotFound when none match.
	FindBySubdomainOrDomain(ctx context.Context, identifier string) (*tenant.Tenant, error)
	FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
	FindActive(ctx context.Context) ([]*tenant.Tenant, error)
	Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error)
	// Update returns ErrDomainTaken when the custom domain belongs to another tenant.
	Update(ctx context.Context, id uuid.UUID, update TenantUpdate) (*tenant.Tenant, error)
}

type VerificationRepository interface {
	// FindPending returns pending attempts with attempts < maxAttempts.
	FindPending(ctx context.Context, maxAttempts int) ([]*verification.Attempt, error)
	// FindLatest returns the newest attempt for tenant+domain.
	FindLatest(ctx context.Context, tenantID uuid.UUID, domain string) (*verification.Attempt, error)
	Create(ctx context.Context, tenantID uuid.UUID, domain, token string) (*verification.Attempt, error)
	Update(ctx context.Context, id uuid.UUID, update VerificationUpdate) error
}

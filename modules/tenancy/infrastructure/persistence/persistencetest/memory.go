// Package persistencetest provides in-memory record stores for tests.
package persistencetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/tenancy/modules/tenancy/domain"
	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/verification"
)

// TenantRepository keeps tenants in process memory.
type TenantRepository struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]tenant.Tenant
	order   []uuid.UUID
}

func NewTenantRepository(seed ...*tenant.Tenant) *TenantRepository {
	r := &TenantRepository{tenants: make(map[uuid.UUID]tenant.Tenant)}
	for _, t := range seed {
		_, _ = r.Create(context.Background(), t)
	}
	return r
}

func (r *TenantRepository) FindBySubdomainOrDomain(_ context.Context, identifier string) (*tenant.Tenant, error) {
	identifier = strings.ToLower(identifier)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var byDomain *tenant.Tenant
	for _, id := range r.order {
		t := r.tenants[id]
		if !t.ResolvableBy(identifier) {
			continue
		}
		if t.Subdomain() == identifier {
			return &t, nil
		}
		if byDomain == nil {
			cp := t
			byDomain = &cp
		}
	}
	if byDomain != nil {
		return byDomain, nil
	}
	return nil, domain.ErrTenantNotFound
}

func (r *TenantRepository) FindByID(_ context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	return &t, nil
}

func (r *TenantRepository) FindActive(_ context.Context) ([]*tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*tenant.Tenant, 0, len(r.order))
	for _, id := range r.order {
		t := r.tenants[id]
		if t.Status().IsActive() {
			out = append(out, &t)
		}
	}
	return out, nil
}

func (r *TenantRepository) Create(_ context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	stored := *tenant.New(
		strings.ToLower(t.Subdomain()),
		t.Name(),
		tenant.WithID(t.ID()),
		tenant.WithCustomDomain(strings.ToLower(t.CustomDomain())),
		tenant.WithDomainVerified(t.DomainVerified()),
		tenant.WithStatus(t.Status()),
		tenant.WithTier(t.Tier()),
		tenant.WithCreatedAt(t.CreatedAt()),
		tenant.WithUpdatedAt(t.UpdatedAt()),
	)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.domainTaken(stored.ID(), stored.CustomDomain()) {
		return nil, domain.ErrDomainTaken
	}
	if _, exists := r.tenants[stored.ID()]; !exists {
		r.order = append(r.order, stored.ID())
	}
	r.tenants[stored.ID()] = stored
	out := stored
	return &out, nil
}

func (r *TenantRepository) Update(_ context.Context, id uuid.UUID, update domain.TenantUpdate) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	if update.CustomDomain != nil {
		d := strings.ToLower(*update.CustomDomain)
		if r.domainTaken(id, d) {
			return nil, domain.ErrDomainTaken
		}
		t.SetCustomDomain(d)
	}
	if update.DomainVerified != nil {
		t.SetDomainVerified(*update.DomainVerified)
	}
	if update.Status != nil {
		t.SetStatus(*update.Status)
	}
	if update.Name != nil {
		t.SetName(*update.Name)
	}
	if update.Tier != nil {
		t.SetTier(*update.Tier)
	}
	r.tenants[id] = t
	out := t
	return &out, nil
}

// domainTaken reports whether another tenant holds d. Callers hold r.mu.
func (r *TenantRepository) domainTaken(id uuid.UUID, d string) bool {
	if d == "" {
		return false
	}
	for otherID, other := range r.tenants {
		if otherID != id && other.CustomDomain() == d {
			return true
		}
	}
	return false
}

// VerificationRepository keeps verification attempts in process memory.
// Update honors VerificationUpdate.PreviousAttempts like the Postgres store.
type VerificationRepository struct {
	mu       sync.RWMutex
	attempts map[uuid.UUID]verification.Attempt
}

func NewVerificationRepository(seed ...*verification.Attempt) *VerificationRepository {
	r := &VerificationRepository{attempts: make(map[uuid.UUID]verification.Attempt)}
	for _, a := range seed {
		r.attempts[a.ID] = *a
	}
	return r
}

func (r *VerificationRepository) FindPending(_ context.Context, maxAttempts int) ([]*verification.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*verification.Attempt
	for _, a := range r.attempts {
		if a.Status == verification.StatusPending && a.Attempts < maxAttempts {
			cp := a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *VerificationRepository) FindLatest(_ context.Context, tenantID uuid.UUID, domainName string) (*verification.Attempt, error) {
	domainName = strings.ToLower(domainName)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *verification.Attempt
	for _, a := range r.attempts {
		if a.TenantID != tenantID || a.Domain != domainName {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			cp := a
			latest = &cp
		}
	}
	if latest == nil {
		return nil, domain.ErrVerificationNotFound
	}
	return latest, nil
}

func (r *VerificationRepository) Create(_ context.Context, tenantID uuid.UUID, domainName, token string) (*verification.Attempt, error) {
	domainName = strings.ToLower(domainName)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.TenantID == tenantID && a.Domain == domainName && a.IsPending() {
			return nil, domain.ErrVerificationExists
		}
	}
	now := time.Now().UTC()
	a := verification.Attempt{
		ID:                uuid.New(),
		TenantID:          tenantID,
		Domain:            domainName,
		VerificationToken: token,
		Status:            verification.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	r.attempts[a.ID] = a
	return &a, nil
}

func (r *VerificationRepository) Update(_ context.Context, id uuid.UUID, update domain.VerificationUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return domain.ErrVerificationNotFound
	}
	if a.Attempts != update.PreviousAttempts {
		return domain.ErrVerificationConflict
	}
	last := update.LastAttemptAt
	a.Status = update.Status
	a.Attempts = update.Attempts
	a.LastAttemptAt = &last
	a.VerifiedAt = update.VerifiedAt
	a.ErrorMessage = update.ErrorMessage
	a.UpdatedAt = time.Now().UTC()
	r.attempts[id] = a
	return nil
}

// Get returns a copy of the stored attempt.
func (r *VerificationRepository) Get(id uuid.UUID) (verification.Attempt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attempts[id]
	return a, ok
}

package tenant

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
	StatusArchived  Status = "archived"
)

func (s Status) IsActive() bool {
	return s == StatusActive
}

type Tenant struct {
	id             uuid.UUID
	subdomain      string
	customDomain   string
	domainVerified bool
	status         Status
	name           string
	tier           string
	createdAt      time.Time
	updatedAt      time.Time
}

type Option func(*Tenant)

func WithID(id uuid.UUID) Option {
	return func(t *Tenant) {
		t.id = id
	}
}

func WithCustomDomain(domain string) Option {
	return func(t *Tenant) {
		t.customDomain = domain
	}
}

func WithDomainVerified(verified bool) Option {
	return func(t *Tenant) {
		t.domainVerified = verified
	}
}

func WithStatus(status Status) Option {
	return func(t *Tenant) {
		t.status = status
	}
}

func WithTier(tier string) Option {
	return func(t *Tenant) {
		t.tier = tier
	}
}

func WithCreatedAt(createdAt time.Time) Option {
	return func(t *Tenant) {
		t.createdAt = createdAt
	}
}

func WithUpdatedAt(updatedAt time.Time) Option {
	return func(t *Tenant) {
		t.updatedAt = updatedAt
	}
}

func New(subdomain, name string, opts ...Option) *Tenant {
	t := &Tenant{
		id:        uuid.New(),
		subdomain: subdomain,
		name:      name,
		status:    StatusActive,
		createdAt: time.Now(),
		updatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tenant) ID() uuid.UUID {
	return t.id
}

func (t *Tenant) Subdomain() string {
	return t.subdomain
}

func (t *Tenant) CustomDomain() string {
	return t.customDomain
}

func (t *Tenant) DomainVerified() bool {
	return t.domainVerified
}

func (t *Tenant) Status() Status {
	return t.status
}

func (t *Tenant) Name() string {
	return t.name
}

func (t *Tenant) Tier() string {
	return t.tier
}

func (t *Tenant) CreatedAt() time.Time {
	return t.createdAt
}

func (t *Tenant) UpdatedAt() time.Time {
	return t.updatedAt
}

// Identifiers lists every key the tenant may be resolved by right now.
// The custom domain is only included once verified.
func (t *Tenant) Identifiers() []string {
	ids := []string{t.subdomain}
	if t.customDomain != "" && t.domainVerified {
		ids = append(ids, t.customDomain)
	}
	return ids
}

// CacheKeys lists every identifier that may hold a cache entry for the tenant,
// including an unverified custom domain.
func (t *Tenant) CacheKeys() []string {
	ids := []string{t.subdomain}
	if t.customDomain != "" {
		ids = append(ids, t.customDomain)
	}
	return ids
}

// ResolvableBy reports whether identifier routes to this tenant.
func (t *Tenant) ResolvableBy(identifier string) bool {
	if !t.status.IsActive() || identifier == "" {
		return false
	}
	if identifier == t.subdomain {
		return true
	}
	return t.domainVerified && t.customDomain != "" && identifier == t.customDomain
}

func (t *Tenant) SetCustomDomain(domain string) {
	if domain != t.customDomain {
		t.domainVerified = false
	}
	t.customDomain = domain
	t.updatedAt = time.Now()
}

func (t *Tenant) MarkDomainVerified() {
	t.SetDomainVerified(true)
}

func (t *Tenant) SetDomainVerified(verified bool) {
	t.domainVerified = verified
	t.updatedAt = time.Now()
}

func (t *Tenant) SetStatus(status Status) {
	t.status = status
	t.updatedAt = time.Now()
}

func (t *Tenant) SetName(name string) {
	t.name = name
	t.updatedAt = time.Now()
}

func (t *Tenant) SetTier(tier string) {
	t.tier = tier
	t.updatedAt = time.Now()
}

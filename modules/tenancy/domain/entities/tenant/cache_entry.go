package tenant

import (
	"encoding/json"

	"github.com/google/uuid"
)

// CacheEntry is the serialized snapshot stored in the cache backend.
type CacheEntry struct {
	ID             uuid.UUID `json:"id"`
	Subdomain      string    `json:"subdomain"`
	CustomDomain   string    `json:"custom_domain,omitempty"`
	DomainVerified bool      `json:"domain_verified"`
	Status         Status    `json:"status"`
	Name           string    `json:"name"`
	Tier           string    `json:"tier,omitempty"`
}

func ToCacheEntry(t *Tenant) CacheEntry {
	return CacheEntry{
		ID:             t.ID(),
		Subdomain:      t.Subdomain(),
		CustomDomain:   t.CustomDomain(),
		DomainVerified: t.DomainVerified(),
		Status:         t.Status(),
		Name:           t.Name(),
		Tier:           t.Tier(),
	}
}

func (e CacheEntry) ToTenant() *Tenant {
	return New(e.Subdomain, e.Name,
		WithID(e.ID),
		WithCustomDomain(e.CustomDomain),
		WithDomainVerified(e.DomainVerified),
		WithStatus(e.Status),
		WithTier(e.Tier),
	)
}

func MarshalCacheEntry(t *Tenant) (string, error) {
	b, err := json.Marshal(ToCacheEntry(t))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func UnmarshalCacheEntry(raw string) (*Tenant, error) {
	var e CacheEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, err
	}
	return e.ToTenant(), nil
}

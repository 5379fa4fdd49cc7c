package verification

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

// Attempt is one in-flight proof of ownership of a custom domain.
type Attempt struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	Domain            string
	VerificationToken string
	Status            Status
	Attempts          int
	LastAttemptAt     *time.Time
	VerifiedAt        *time.Time
	ErrorMessage      *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DNSHost is the TXT record name the tenant must publish the token under.
func DNSHost(label, domain string) string {
	return label + "." + strings.TrimSuffix(domain, ".")
}

func (a *Attempt) IsPending() bool {
	return a.Status == StatusPending
}

// Exhausted reports whether the attempt has used up its checks.
func (a *Attempt) Exhausted(maxAttempts int) bool {
	return a.Attempts >= maxAttempts
}

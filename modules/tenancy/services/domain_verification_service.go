package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenancy/modules/tenancy/domain"
	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/verification"
	"github.com/iota-uz/tenancy/modules/tenancy/infrastructure/dns"
	"github.com/iota-uz/tenancy/pkg/logging"
)

var (
	ErrInvalidDomain         = errors.New("invalid domain")
	ErrReservedDomain        = errors.New("domain belongs to the platform")
	ErrDomainAlreadyVerified = errors.New("domain already verified")
	ErrScanInProgress        = errors.New("verification scan already running")
)

const (
	DefaultTokenPrefix = "vc-domain-verify="
	DefaultMaxAttempts = 10
	DefaultCheckDelay  = time.Second

	tokenBytes       = 16
	maxUpdateRetries = 3
)

// Checker performs one DNS ownership check.
type Checker interface {
	Verify(ctx context.Context, domain, token string) dns.Result
}

type DomainVerificationOptions struct {
	RootDomain  string
	RecordLabel string
	TokenPrefix string
	MaxAttempts int
	// CheckDelay is the pause between consecutive checks of one scan.
	CheckDelay time.Duration
	Logger     *logrus.Entry

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o *DomainVerificationOptions) setDefaults() {
	if o.RecordLabel == "" {
		o.RecordLabel = dns.DefaultRecordLabel
	}
	if o.TokenPrefix == "" {
		o.TokenPrefix = DefaultTokenPrefix
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.CheckDelay < 0 {
		o.CheckDelay = 0
	}
	o.Logger = logging.OrNop(o.Logger).WithField("component", "domain_verification")
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
}

type StartResult struct {
	AttemptID         uuid.UUID `json:"attempt_id"`
	Domain            string    `json:"domain"`
	VerificationToken string    `json:"verification_token"`
	DNSHost           string    `json:"dns_host"`
}

type CheckResult struct {
	Verified bool                `json:"verified"`
	Message  string              `json:"message"`
	Attempts int                 `json:"attempts"`
	Status   verification.Status `json:"status"`
}

// ScanSummary counts what one pass over the pending attempts did.
type ScanSummary struct {
	Checked  int `json:"checked"`
	Verified int `json:"verified"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
}

type DomainVerificationService struct {
	tenants  domain.TenantRepository
	attempts domain.VerificationRepository
	cache    *TenantCache
	checker  Checker
	opts     DomainVerificationOptions
	metrics  *metrics

	scanning atomic.Bool
}

func NewDomainVerificationService(
	tenants domain.TenantRepository,
	attempts domain.VerificationRepository,
	cache *TenantCache,
	checker Checker,
	opts DomainVerificationOptions,
) *DomainVerificationService {
	opts.setDefaults()
	return &DomainVerificationService{
		tenants:  tenants,
		attempts: attempts,
		cache:    cache,
		checker:  checker,
		opts:     opts,
		metrics:  getMetrics(),
	}
}

func (s *DomainVerificationService) normalizeDomain(raw string) (string, error) {
	d, err := NormalizeHost(raw)
	if err != nil || !strings.Contains(d, ".") {
		return "", errors.Wrapf(ErrInvalidDomain, "%q", raw)
	}
	if UnderRootDomain(d, s.opts.RootDomain) {
		return "", errors.Wrapf(ErrReservedDomain, "%q", d)
	}
	return d, nil
}

// StartVerification attaches domainName to the tenant as an unverified custom domain and
// returns the TXT record the tenant has to publish. A still-pending attempt is reused.
func (s *DomainVerificationService) StartVerification(ctx context.Context, tenantID uuid.UUID, domainName string) (*StartResult, error) {
	d, err := s.normalizeDomain(domainName)
	if err != nil {
		return nil, err
	}
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.CustomDomain() == d && t.DomainVerified() {
		return nil, ErrDomainAlreadyVerified
	}
	logger := s.opts.Logger.WithFields(logrus.Fields{"tenant_id": tenantID, "domain": d})

	if t.CustomDomain() != d {
		previous := t.CacheKeys()
		verified := false
		updated, err := s.tenants.Update(ctx, tenantID, domain.TenantUpdate{CustomDomain: &d, DomainVerified: &verified})
		if err != nil {
			return nil, errors.Wrap(err, "failed to attach custom domain")
		}
		s.cache.InvalidateIdentifiers(ctx, append(previous, updated.CacheKeys()...)...)
	}

	attempt, err := s.pendingAttempt(ctx, tenantID, d)
	if err != nil {
		return nil, err
	}
	logger.WithField("attempt_id", attempt.ID).Info("domain verification started")
	return &StartResult{
		AttemptID:         attempt.ID,
		Domain:            d,
		VerificationToken: attempt.VerificationToken,
		DNSHost:           verification.DNSHost(s.opts.RecordLabel, d),
	}, nil
}

func (s *DomainVerificationService) pendingAttempt(ctx context.Context, tenantID uuid.UUID, d string) (*verification.Attempt, error) {
	latest, err := s.attempts.FindLatest(ctx, tenantID, d)
	switch {
	case err == nil:
		if latest.IsPending() && !latest.Exhausted(s.opts.MaxAttempts) {
			return latest, nil
		}
	case !errors.Is(err, domain.ErrVerificationNotFound):
		return nil, errors.Wrap(err, "failed to look up verification attempt")
	}

	token, err := s.newToken()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate verification token")
	}
	created, err := s.attempts.Create(ctx, tenantID, d, token)
	if errors.Is(err, domain.ErrVerificationExists) {
		// lost a race with a concurrent start
		return s.attempts.FindLatest(ctx, tenantID, d)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create verification attempt")
	}
	return created, nil
}

func (s *DomainVerificationService) newToken() (string, error) {
	h, err := randomHex(tokenBytes)
	if err != nil {
		return "", err
	}
	return s.opts.TokenPrefix + h, nil
}

// CheckVerificationNow runs a single check outside the schedule.
func (s *DomainVerificationService) CheckVerificationNow(ctx context.Context, tenantID uuid.UUID, domainName string) (*CheckResult, error) {
	d, err := s.normalizeDomain(domainName)
	if err != nil {
		return nil, err
	}
	a, err := s.attempts.FindLatest(ctx, tenantID, d)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case verification.StatusVerified:
		return &CheckResult{Verified: true, Message: "domain verified", Attempts: a.Attempts, Status: a.Status}, nil
	case verification.StatusFailed:
		return &CheckResult{Message: deref(a.ErrorMessage), Attempts: a.Attempts, Status: a.Status}, nil
	}

	checked, err := s.check(ctx, a)
	if err != nil {
		return nil, err
	}
	res := &CheckResult{Verified: checked.Status == verification.StatusVerified, Attempts: checked.Attempts, Status: checked.Status}
	if res.Verified {
		res.Message = "domain verified"
	} else {
		res.Message = deref(checked.ErrorMessage)
	}
	return res, nil
}

// check performs one DNS check for a and persists the resulting transition.
// On success the tenant row is updated before its cache entries are dropped.
// A check cut short by ctx records nothing.
func (s *DomainVerificationService) check(ctx context.Context, a *verification.Attempt) (*verification.Attempt, error) {
	logger := s.opts.Logger.WithFields(logrus.Fields{
		"attempt_id": a.ID,
		"tenant_id":  a.TenantID,
		"domain":     a.Domain,
	})
	res := s.checker.Verify(ctx, a.Domain, a.VerificationToken)
	if res.Cause == dns.CauseCanceled {
		return nil, errors.Wrap(ctx.Err(), "verification check interrupted")
	}
	now := s.opts.Now()

	var verifiedTenant *tenant.Tenant
	if res.Verified {
		t, err := s.markTenantVerified(ctx, a)
		if err != nil {
			return nil, err
		}
		verifiedTenant = t
	}

	cur := a
	update := s.transition(cur, res, now)
	for retry := 0; ; retry++ {
		err := s.attempts.Update(ctx, cur.ID, update)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrVerificationConflict) || retry >= maxUpdateRetries {
			return nil, errors.Wrap(err, "failed to record verification attempt")
		}
		// a concurrent check recorded first; count this one on top of it
		fresh, err := s.attempts.FindLatest(ctx, cur.TenantID, cur.Domain)
		if err != nil {
			return nil, errors.Wrap(err, "failed to reload verification attempt")
		}
		if fresh.ID != cur.ID || !fresh.IsPending() {
			if verifiedTenant != nil {
				s.cache.Invalidate(ctx, verifiedTenant)
			}
			return fresh, nil
		}
		cur = fresh
		update = s.transition(cur, res, now)
	}
	if verifiedTenant != nil {
		s.cache.Invalidate(ctx, verifiedTenant)
	}

	s.metrics.dnsChecksTotal.WithLabelValues(string(update.Status)).Inc()
	switch update.Status {
	case verification.StatusVerified:
		logger.Info("custom domain verified")
	case verification.StatusFailed:
		logger.WithField("cause", res.Cause).Warn("domain verification exhausted")
	default:
		logger.WithFields(logrus.Fields{"cause": res.Cause, "attempts": update.Attempts}).Debug("domain not verified yet")
	}

	out := *cur
	out.Status = update.Status
	out.Attempts = update.Attempts
	out.LastAttemptAt = &now
	out.VerifiedAt = update.VerifiedAt
	out.ErrorMessage = update.ErrorMessage
	return &out, nil
}

// transition computes the row written after one check of a.
func (s *DomainVerificationService) transition(a *verification.Attempt, res dns.Result, now time.Time) domain.VerificationUpdate {
	update := domain.VerificationUpdate{
		Status:           verification.StatusPending,
		PreviousAttempts: a.Attempts,
		Attempts:         a.Attempts + 1,
		LastAttemptAt:    now,
	}
	if res.Verified {
		update.Status = verification.StatusVerified
		update.VerifiedAt = &now
		return update
	}
	msg := res.Error
	if update.Attempts >= s.opts.MaxAttempts {
		update.Status = verification.StatusFailed
		msg = fmt.Sprintf("verification failed after %d attempts: %s", update.Attempts, res.Error)
	}
	update.ErrorMessage = &msg
	return update
}

func (s *DomainVerificationService) markTenantVerified(ctx context.Context, a *verification.Attempt) (*tenant.Tenant, error) {
	t, err := s.tenants.FindByID(ctx, a.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load tenant")
	}
	if t.CustomDomain() != a.Domain {
		// domain was changed after the attempt was started; nothing to promote
		s.opts.Logger.WithFields(logrus.Fields{
			"tenant_id": a.TenantID,
			"domain":    a.Domain,
			"current":   t.CustomDomain(),
		}).Warn("verified domain is no longer attached to tenant")
		return nil, nil
	}
	verified := true
	updated, err := s.tenants.Update(ctx, a.TenantID, domain.TenantUpdate{DomainVerified: &verified})
	if err != nil {
		return nil, errors.Wrap(err, "failed to mark domain verified")
	}
	return updated, nil
}

// ScanOnce checks every pending attempt sequentially, pausing CheckDelay between checks.
// A failing attempt never stops the scan.
func (s *DomainVerificationService) ScanOnce(ctx context.Context) (ScanSummary, error) {
	var summary ScanSummary
	if !s.scanning.CompareAndSwap(false, true) {
		return summary, ErrScanInProgress
	}
	defer s.scanning.Store(false)

	start := time.Now()
	defer func() { s.metrics.scanDuration.Observe(time.Since(start).Seconds()) }()

	pending, err := s.attempts.FindPending(ctx, s.opts.MaxAttempts)
	if err != nil {
		return summary, errors.Wrap(err, "failed to load pending verifications")
	}
	s.metrics.pendingGauge.Set(float64(len(pending)))

	for i, a := range pending {
		if i > 0 {
			if err := s.opts.Sleep(ctx, s.opts.CheckDelay); err != nil {
				return summary, err
			}
		}
		checked, err := s.safeCheck(ctx, a)
		if err != nil && ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Checked++
		if err != nil {
			summary.Errors++
			s.opts.Logger.WithError(err).WithFields(logrus.Fields{
				"attempt_id": a.ID,
				"domain":     a.Domain,
			}).Warn("verification check failed")
			continue
		}
		switch checked.Status {
		case verification.StatusVerified:
			summary.Verified++
		case verification.StatusFailed:
			summary.Failed++
		}
	}

	s.opts.Logger.WithFields(logrus.Fields{
		"checked":  summary.Checked,
		"verified": summary.Verified,
		"failed":   summary.Failed,
		"errors":   summary.Errors,
	}).Info("verification scan finished")
	return summary, nil
}

func (s *DomainVerificationService) safeCheck(ctx context.Context, a *verification.Attempt) (checked *verification.Attempt, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic during verification check: %v", r)
		}
	}()
	return s.check(ctx, a)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func randomHex(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid random length: %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 0, len(buf)*2)
	for _, b := range buf {
		out = append(out, hexdigits[b>>4], hexdigits[b&0x0f])
	}
	return string(out), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

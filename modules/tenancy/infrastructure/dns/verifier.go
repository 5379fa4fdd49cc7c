// Package dns checks custom-domain ownership through TXT records.
package dns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenancy/pkg/logging"
)

const (
	DefaultRecordLabel   = "_verify-domain"
	DefaultRetries       = 3
	DefaultBaseDelay     = 500 * time.Millisecond
	DefaultLookupTimeout = 2 * time.Second
)

type Cause string

const (
	CauseNone          Cause = "none"
	CauseNotFound      Cause = "not_found"
	CauseTimeout       Cause = "timeout"
	CauseOther         Cause = "other"
	CauseTokenMismatch Cause = "token_mismatch"
	// CauseCanceled means the caller's context ended; the check says nothing about the domain.
	CauseCanceled Cause = "canceled"
)

// TXTResolver resolves TXT records for a hostname.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

type netTXTResolver struct {
	r *net.Resolver
}

func (n netTXTResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return n.r.LookupTXT(ctx, name)
}

// Result is the outcome of one ownership check.
// Propagated reports whether any TXT record was visible at the lookup name.
type Result struct {
	Verified   bool
	Propagated bool
	Records    []string
	Error      string
	Cause      Cause
}

type Options struct {
	Resolver      TXTResolver
	RecordLabel   string
	Retries       int
	BaseDelay     time.Duration
	LookupTimeout time.Duration
	Logger        *logrus.Entry
	// Sleep waits between retries; replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o *Options) setDefaults() {
	if o.Resolver == nil {
		o.Resolver = netTXTResolver{r: net.DefaultResolver}
	}
	if o.RecordLabel == "" {
		o.RecordLabel = DefaultRecordLabel
	}
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = DefaultLookupTimeout
	}
	o.Logger = logging.OrNop(o.Logger)
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
}

type Verifier struct {
	opts Options
}

func NewVerifier(opts Options) *Verifier {
	opts.setDefaults()
	return &Verifier{opts: opts}
}

// LookupName is the TXT record name the token must be published under.
func (v *Verifier) LookupName(domain string) string {
	return v.opts.RecordLabel + "." + strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

// Verify looks up the TXT records for domain and reports whether token is present.
// Only not-found errors are retried; the wait before retry n is BaseDelay*n.
func (v *Verifier) Verify(ctx context.Context, domain, token string) Result {
	name := v.LookupName(domain)
	logger := v.opts.Logger.WithFields(logrus.Fields{"domain": domain, "lookup": name})

	var (
		records []string
		err     error
	)
	for attempt := 1; attempt <= v.opts.Retries; attempt++ {
		records, err = v.lookup(ctx, name)
		if err == nil || !isNotFound(err) || attempt == v.opts.Retries {
			break
		}
		logger.WithField("attempt", attempt).Debug("TXT record not found, retrying")
		if serr := v.opts.Sleep(ctx, v.opts.BaseDelay*time.Duration(attempt)); serr != nil {
			err = serr
			break
		}
	}

	if err != nil && ctx.Err() != nil {
		logger.WithError(ctx.Err()).Debug("TXT lookup abandoned")
		return Result{Error: ctx.Err().Error(), Cause: CauseCanceled}
	}
	if err != nil {
		cause := classify(err)
		logger.WithError(err).WithField("cause", cause).Debug("TXT lookup failed")
		return Result{Error: describe(cause, name, err), Cause: cause}
	}

	if matches(records, token) {
		return Result{Verified: true, Propagated: true, Records: records, Cause: CauseNone}
	}
	return Result{
		Propagated: len(records) > 0,
		Records:    records,
		Error:      fmt.Sprintf("TXT record found at %s but it does not contain the verification token", name),
		Cause:      CauseTokenMismatch,
	}
}

func (v *Verifier) lookup(ctx context.Context, name string) ([]string, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, v.opts.LookupTimeout)
	defer cancel()
	return v.opts.Resolver.LookupTXT(lookupCtx, name)
}

func matches(records []string, token string) bool {
	if token == "" {
		return false
	}
	for _, rec := range records {
		rec = strings.TrimSpace(rec)
		if rec == token || strings.Contains(rec, token) {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

func classify(err error) Cause {
	switch {
	case isNotFound(err):
		return CauseNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsTimeout {
		return CauseTimeout
	}
	return CauseOther
}

func describe(cause Cause, name string, err error) string {
	switch cause {
	case CauseNotFound:
		return fmt.Sprintf("DNS record not found at %s; changes can take up to 48 hours to propagate", name)
	case CauseTimeout:
		return fmt.Sprintf("DNS lookup for %s timed out; please try again later", name)
	default:
		return fmt.Sprintf("DNS lookup for %s failed: %s", name, err.Error())
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

package dns

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedResult struct {
	records []string
	err     error
}

type scriptedResolver struct {
	mu     sync.Mutex
	script []scriptedResult
	names  []string
}

func (s *scriptedResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	if len(s.script) == 0 {
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	next := s.script[0]
	if len(s.script) > 1 {
		s.script = s.script[1:]
	}
	return next.records, next.err
}

func (s *scriptedResolver) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}

type resolverFunc func(ctx context.Context, name string) ([]string, error)

func (f resolverFunc) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return f(ctx, name)
}

func notFound() scriptedResult {
	return scriptedResult{err: &net.DNSError{Err: "no such host", IsNotFound: true}}
}

func newTestVerifier(r TXTResolver) (*Verifier, *[]time.Duration) {
	var waits []time.Duration
	v := NewVerifier(Options{
		Resolver: r,
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	})
	return v, &waits
}

func TestVerify_MatchingRecord(t *testing.T) {
	r := &scriptedResolver{script: []scriptedResult{{records: []string{"vc-domain-verify=abc123"}}}}
	v, _ := newTestVerifier(r)

	res := v.Verify(context.Background(), "shop.acme.com", "vc-domain-verify=abc123")
	assert.True(t, res.Verified)
	assert.True(t, res.Propagated)
	assert.Equal(t, CauseNone, res.Cause)
	assert.Empty(t, res.Error)
	assert.Equal(t, []string{"_verify-domain.shop.acme.com"}, r.names)
}

func TestVerify_RecordContainingToken(t *testing.T) {
	r := &scriptedResolver{script: []scriptedResult{{records: []string{"v=spf1 -all", "note vc-domain-verify=abc123 end"}}}}
	v, _ := newTestVerifier(r)

	res := v.Verify(context.Background(), "shop.acme.com", "vc-domain-verify=abc123")
	assert.True(t, res.Verified)
}

func TestVerify_IsIdempotent(t *testing.T) {
	r := &scriptedResolver{script: []scriptedResult{{records: []string{"vc-domain-verify=abc123"}}}}
	v, _ := newTestVerifier(r)

	first := v.Verify(context.Background(), "shop.acme.com", "vc-domain-verify=abc123")
	second := v.Verify(context.Background(), "shop.acme.com", "vc-domain-verify=abc123")
	assert.True(t, first.Verified)
	assert.Equal(t, first, second)
}

func TestVerify_NotFoundExhaustsRetries(t *testing.T) {
	r := &scriptedResolver{script: []scriptedResult{notFound(), notFound(), notFound()}}
	v, waits := newTestVerifier(r)

	res := v.Verify(context.Background(), "never-configured.example", "tok")
	assert.False(t, res.Verified)
	assert.False(t, res.Propagated)
	assert.Equal(t, CauseNotFound, res.Cause)
	assert.Contains(t, res.Error, "DNS record not found")
	assert.Contains(t, res.Error, "48 hours")
	assert.Equal(t, 3, r.calls())
	assert.Equal(t, []time.Duration{DefaultBaseDelay, 2 * DefaultBaseDelay}, *waits)
}

func TestVerify_RecoversAfterNotFound(t *testing.T) {
	r := &scriptedResolver{script: []scriptedResult{notFound(), {records: []string{"tok"}}}}
	v, _ := newTestVerifier(r)

	res := v.Verify(context.Background(), "acme.com", "tok")
	assert.True(t, res.Verified)
	assert.Equal(t, 2, r.calls())
}

func TestVerify_TimeoutIsNotRetried(t *testing.T) {
	r := &scriptedResolver{script: []scriptedResult{{err: &net.DNSError{Err: "i/o timeout", IsTimeout: true}}}}
	v, waits := newTestVerifier(r)

	res := v.Verify(context.Background(), "acme.com", "tok")
	assert.Equal(t, CauseTimeout, res.Cause)
	assert.Contains(t, res.Error, "timed out")
	assert.Equal(t, 1, r.calls())
	assert.Empty(t, *waits)
}

func TestVerify_OtherFailure(t *testing.T) {
	r := &scriptedResolver{script: []scriptedResult{{err: &net.DNSError{Err: "server misbehaving"}}}}
	v, _ := newTestVerifier(r)

	res := v.Verify(context.Background(), "acme.com", "tok")
	assert.Equal(t, CauseOther, res.Cause)
	assert.Contains(t, res.Error, "server misbehaving")
}

func TestVerify_TokenMismatch(t *testing.T) {
	r := &scriptedResolver{script: []scriptedResult{{records: []string{"vc-domain-verify=other"}}}}
	v, _ := newTestVerifier(r)

	res := v.Verify(context.Background(), "acme.com", "vc-domain-verify=abc123")
	assert.False(t, res.Verified)
	assert.True(t, res.Propagated)
	assert.Equal(t, CauseTokenMismatch, res.Cause)
	assert.Equal(t, []string{"vc-domain-verify=other"}, res.Records)
}

func TestVerify_CancelledDuringBackoff(t *testing.T) {
	r := &scriptedResolver{script: []scriptedResult{notFound()}}
	ctx, cancel := context.WithCancel(context.Background())
	v := NewVerifier(Options{
		Resolver:  r,
		BaseDelay: time.Hour,
	})
	cancel()

	res := v.Verify(ctx, "acme.com", "tok")
	require.False(t, res.Verified)
	assert.Equal(t, CauseCanceled, res.Cause)
	assert.NotContains(t, res.Error, "DNS lookup")
	assert.Equal(t, 1, r.calls())
}

func TestVerify_CancelledDuringLookup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := resolverFunc(func(ctx context.Context, _ string) ([]string, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	v, _ := newTestVerifier(r)

	res := v.Verify(ctx, "acme.com", "tok")
	assert.Equal(t, CauseCanceled, res.Cause)
}

func TestLookupName(t *testing.T) {
	v := NewVerifier(Options{RecordLabel: "_check"})
	assert.Equal(t, "_check.shop.acme.com", v.LookupName(" Shop.Acme.com. "))
}

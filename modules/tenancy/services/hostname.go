package services

import (
	"net"
	"regexp"
	"strings"

	"github.com/iota-uz/tenancy/modules/tenancy/domain"
)

var hostnamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// NormalizeHost strips scheme, path, port and trailing dot from raw and lowercases it.
func NormalizeHost(raw string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	if i := strings.LastIndex(h, "@"); i >= 0 {
		h = h[i+1:]
	}
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	h = strings.TrimSuffix(h, ".")
	if h == "" || len(h) > 253 || !hostnamePattern.MatchString(h) {
		return "", domain.ErrInvalidHostname
	}
	return h, nil
}

// IdentifierFor maps a normalized host to a resolution identifier.
// <label>.<rootDomain> becomes <label>; everything else is used as-is.
func IdentifierFor(host, rootDomain string) string {
	if rootDomain == "" {
		return host
	}
	suffix := "." + rootDomain
	if strings.HasSuffix(host, suffix) {
		label := strings.TrimSuffix(host, suffix)
		if label != "" && !strings.Contains(label, ".") {
			return label
		}
	}
	return host
}

// UnderRootDomain reports whether host is the platform apex or one of its subdomains.
func UnderRootDomain(host, rootDomain string) bool {
	if rootDomain == "" {
		return false
	}
	return host == rootDomain || strings.HasSuffix(host, "."+rootDomain)
}

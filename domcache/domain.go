package domcache

import (
	"strings"

	"golang.org/x/net/idna"
)

// Normalize canonicalizes a domain for use as a cache key: trimmed,
// lowercased, trailing dot removed, and internationalized names converted
// to their punycode ASCII form. Inputs idna rejects fall back to the
// trimmed lowercase string so lookups stay deterministic.
func Normalize(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")
	if d == "" {
		return d
	}
	if ascii, err := idna.Lookup.ToASCII(d); err == nil {
		return ascii
	}
	return d
}

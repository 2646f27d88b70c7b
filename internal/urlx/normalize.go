// Package urlx canonicalizes URLs so that equality checks and
// de-duplication across the store are stable. Every URL written to the
// database passes through Normalize; comparison is byte-equality on
// the canonical form.
package urlx

import (
	"net/url"
	"strings"
)

// Normalize returns the canonical form of s:
//
//	trim, drop fragment and query, force a single https:// prefix,
//	default the path to "/", and strip a trailing slash from any
//	longer path.
//
// Normalize is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.TrimSpace(s)

	if i := strings.Index(s, "#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}

	// Collapse any stack of scheme prefixes before forcing https.
	for {
		if rest, ok := strings.CutPrefix(s, "http://"); ok {
			s = rest
			continue
		}
		if rest, ok := strings.CutPrefix(s, "https://"); ok {
			s = rest
			continue
		}
		break
	}
	s = "https://" + s

	u, err := url.Parse(s)
	if err != nil {
		return s
	}

	u.Fragment = ""
	u.RawQuery = ""
	if u.Path == "" {
		u.Path = "/"
	} else if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String()
}

// SameDomain reports whether the hosts of two canonical URLs belong to
// the same site. Exact, subdomain, and parent-domain relationships all
// match, after stripping a leading "www.".
func SameDomain(a, b string) bool {
	ha := hostOf(a)
	hb := hostOf(b)
	if ha == "" || hb == "" {
		return false
	}
	if ha == hb {
		return true
	}
	return strings.HasSuffix(ha, "."+hb) || strings.HasSuffix(hb, "."+ha)
}

func hostOf(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

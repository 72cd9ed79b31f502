package utils

import (
	"crypto/md5"
	"encoding/hex"
	"net"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// QueryPolicy controls how the query string takes part in URL identity.
type QueryPolicy int

const (
	// QueryPreserve keeps the raw query verbatim. Redirect targets often
	// live in the query, so two URLs differing only there stay distinct.
	QueryPreserve QueryPolicy = iota
	// QueryStripTracking drops analytics parameters and sorts the rest.
	QueryStripTracking
)

// ParseQueryPolicy maps a config value onto a QueryPolicy.
func ParseQueryPolicy(s string) QueryPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strip", "strip_tracking", "strip-tracking":
		return QueryStripTracking
	default:
		return QueryPreserve
	}
}

func (p QueryPolicy) String() string {
	if p == QueryStripTracking {
		return "strip_tracking"
	}
	return "preserve"
}

var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"gclsrc":  {},
	"dclid":   {},
	"msclkid": {},
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// NormalizeURL resolves raw against base and returns the canonical absolute
// form used for dedup: lower-case scheme and host, no default port, no
// fragment, no trailing slash except on the root path. Non-http(s) or
// unparsable input yields ok == false.
func NormalizeURL(raw, base string, policy QueryPolicy) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if base != "" && !ref.IsAbs() {
		baseURL, err := url.Parse(strings.TrimSpace(base))
		if err != nil {
			return "", false
		}
		ref = baseURL.ResolveReference(ref)
	}

	ref.Scheme = strings.ToLower(ref.Scheme)
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}

	host := strings.ToLower(ref.Hostname())
	if host == "" {
		return "", false
	}
	port := ref.Port()
	if port == defaultPorts[ref.Scheme] {
		port = ""
	}
	if port != "" {
		ref.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		ref.Host = "[" + host + "]"
	} else {
		ref.Host = host
	}

	ref.Fragment = ""
	ref.RawFragment = ""
	ref.Opaque = ""

	if ref.Path == "" {
		ref.Path = "/"
		ref.RawPath = ""
	} else if ref.Path != "/" {
		ref.Path = strings.TrimRight(ref.Path, "/")
		ref.RawPath = strings.TrimRight(ref.RawPath, "/")
		if ref.Path == "" {
			ref.Path = "/"
			ref.RawPath = ""
		}
	}

	if policy == QueryStripTracking {
		ref.RawQuery = stripTrackingQuery(ref.RawQuery)
	}
	ref.ForceQuery = false

	return ref.String(), true
}

// ResolveURL resolves ref against base without canonicalizing it.
func ResolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

func stripTrackingQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		lower := strings.ToLower(k)
		if strings.HasPrefix(lower, "utm_") {
			continue
		}
		if _, tracked := trackingParams[lower]; tracked {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// HashURL returns the hex MD5 digest of u.
func HashURL(u string) string {
	sum := md5.Sum([]byte(u))
	return hex.EncodeToString(sum[:])
}

// Hostname returns the lower-cased host of rawURL without port, or "".
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// RegistrableDomain returns the eTLD+1 of host, or host itself when the
// public suffix list cannot answer (IP literals, localhost).
func RegistrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// HostMatches reports whether host equals domain or is a subdomain of it.
func HostMatches(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// StripWWW removes a single leading "www." label.
func StripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

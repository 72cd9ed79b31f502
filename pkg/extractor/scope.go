package extractor

import (
	"net/url"
	"path"
	"strings"

	"github.com/amosWeiskopf/linktrace/pkg/utils"
)

// ScopeRules controls which discovered links are crawled further.
type ScopeRules struct {
	// ContentSegments always make a path relevant.
	ContentSegments []string
	// AssetExtensions mark static files, without the dot.
	AssetExtensions []string
	// BlockedSegments are non-content final path segments.
	BlockedSegments []string
	// MaxQueryParams above which a URL is treated as noise.
	MaxQueryParams int
}

// DefaultScopeRules returns the built-in relevance lists.
func DefaultScopeRules() ScopeRules {
	return ScopeRules{
		ContentSegments: []string{
			"post", "article", "blog", "news", "story", "travel", "guide",
			"destination", "affiliate", "status", "video", "reel", "short",
			"channel", "playlist",
		},
		AssetExtensions: []string{"jpg", "jpeg", "png", "gif", "svg", "pdf", "zip", "rar", "css", "js", "xml", "json"},
		BlockedSegments: []string{"login", "logout", "register", "signin", "signout", "cart", "checkout", "privacy", "terms"},
		MaxQueryParams:  3,
	}
}

// Scope decides whether a link belongs to the crawled site and is worth
// fetching.
type Scope struct {
	seedHost   string
	seedDomain string
	content    map[string]struct{}
	assets     map[string]struct{}
	blocked    map[string]struct{}
	maxQuery   int
}

// NewScope builds a Scope around seedURL.
func NewScope(seedURL string, rules ScopeRules) *Scope {
	host := utils.StripWWW(utils.Hostname(seedURL))
	s := &Scope{
		seedHost:   host,
		seedDomain: utils.RegistrableDomain(host),
		content:    toSet(rules.ContentSegments),
		assets:     toSet(rules.AssetExtensions),
		blocked:    toSet(rules.BlockedSegments),
		maxQuery:   rules.MaxQueryParams,
	}
	if s.maxQuery <= 0 {
		s.maxQuery = 3
	}
	return s
}

// Domain returns the registrable domain of the seed.
func (s *Scope) Domain() string { return s.seedDomain }

// InScope reports whether rawURL is on the seed's site and has a relevant
// path.
func (s *Scope) InScope(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return s.SameSite(u.Hostname()) && s.relevant(u)
}

// SameSite reports whether host shares the seed's registrable domain or is
// the seed host or one of its subdomains.
func (s *Scope) SameSite(host string) bool {
	host = utils.StripWWW(host)
	if host == "" || s.seedHost == "" {
		return false
	}
	if utils.HostMatches(host, s.seedHost) {
		return true
	}
	return s.seedDomain != "" && utils.RegistrableDomain(host) == s.seedDomain
}

// Relevant applies the path and query rules to rawURL.
func (s *Scope) Relevant(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return s.relevant(u)
}

func (s *Scope) relevant(u *url.URL) bool {
	p := strings.ToLower(u.Path)
	segments := strings.Split(strings.Trim(p, "/"), "/")

	for _, seg := range segments {
		if _, ok := s.content[seg]; ok {
			return true
		}
	}

	if ext := strings.TrimPrefix(path.Ext(p), "."); ext != "" {
		if _, ok := s.assets[ext]; ok {
			return false
		}
	}

	if last := segments[len(segments)-1]; last != "" {
		if _, ok := s.blocked[last]; ok {
			return false
		}
	}

	return len(u.Query()) <= s.maxQuery
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.ToLower(strings.Trim(strings.TrimSpace(it), "./"))
		if it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}

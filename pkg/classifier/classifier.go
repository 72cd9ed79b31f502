// Package classifier decides which URLs look like shortener, affiliate or
// tracking links and are therefore worth a redirect-resolution round trip.
//
// Classification works on the URL string alone and never touches the
// network.
package classifier

import (
	"net/url"
	"strings"

	"github.com/amosWeiskopf/linktrace/pkg/utils"
)

// Reason names the rule that flagged a URL.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonShortener     Reason = "shortener"
	ReasonAdNetwork     Reason = "ad_network"
	ReasonAffiliateHost Reason = "affiliate_host"
	ReasonAffiliatePath Reason = "affiliate_path"
	ReasonRedirectParam Reason = "redirect_param"
	ReasonTracking      Reason = "tracking_params"
)

// AdNetwork is a domain set that only counts when one of the required
// query pairs is present with an exact value.
type AdNetwork struct {
	Domains []string
	Params  map[string]string
}

// Rules holds the heuristic lists. All entries are compared lower-case.
type Rules struct {
	Shorteners      []string
	AdNetworks      []AdNetwork
	AffiliateHosts  []string
	AffiliatePaths  []string
	RedirectParams  []string
	TrackingFamily  []string
	MinTrackingHits int
}

// DefaultRules returns the built-in heuristic lists.
func DefaultRules() Rules {
	return Rules{
		Shorteners: []string{
			"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "is.gd",
			"buff.ly", "adf.ly", "bit.do", "mcaf.ee", "su.pr", "tiny.cc",
			"tidd.ly", "redirectingat.com", "go.redirectingat.com", "go.skimresources.com",
		},
		AdNetworks: []AdNetwork{
			{
				Domains: []string{"awin1.com", "zenaps.com"},
				Params:  map[string]string{"v": "87121", "awinmid": "87121"},
			},
		},
		AffiliateHosts: []string{
			"track.", "go.", "click.", "buy.", "shop.", "link.", "visit.",
			"affiliate.", "partners.", "tracking.", "redirect.", "ref.",
		},
		AffiliatePaths: []string{
			"visit", "go", "goto", "redirect", "click", "buy", "shop",
			"link", "affiliate", "partner", "tracking", "ref", "out",
		},
		RedirectParams: []string{
			"site", "url", "link", "goto", "target", "redirect", "redirect_to",
			"dest", "destination", "u", "to", "out", "away", "href",
		},
		TrackingFamily:  []string{"utm_", "ref", "aff", "source", "campaign", "medium"},
		MinTrackingHits: 2,
	}
}

// Classifier applies Rules in a fixed order; the first rule that matches
// decides.
type Classifier struct {
	rules          Rules
	affiliatePaths map[string]struct{}
	redirectParams map[string]struct{}
}

// New builds a Classifier. Empty lists in rules are taken as given, so a
// caller can disable a rule by clearing its list.
func New(rules Rules) *Classifier {
	c := &Classifier{
		rules:          lowerRules(rules),
		affiliatePaths: make(map[string]struct{}),
		redirectParams: make(map[string]struct{}),
	}
	for _, p := range c.rules.AffiliatePaths {
		c.affiliatePaths[strings.Trim(p, "/")] = struct{}{}
	}
	for _, p := range c.rules.RedirectParams {
		c.redirectParams[p] = struct{}{}
	}
	if c.rules.MinTrackingHits <= 0 {
		c.rules.MinTrackingHits = 2
	}
	return c
}

// Default returns a Classifier using DefaultRules.
func Default() *Classifier {
	return New(DefaultRules())
}

// IsCandidate reports whether rawURL should be resolved.
func (c *Classifier) IsCandidate(rawURL string) bool {
	return c.Explain(rawURL) != ReasonNone
}

// Explain returns the rule that flags rawURL, or ReasonNone.
func (c *Classifier) Explain(rawURL string) Reason {
	u, err := url.Parse(strings.ToLower(strings.TrimSpace(rawURL)))
	if err != nil || u.Host == "" {
		return ReasonNone
	}
	host := u.Hostname()

	for _, s := range c.rules.Shorteners {
		if utils.HostMatches(host, s) {
			return ReasonShortener
		}
	}

	query := u.Query()

	for _, network := range c.rules.AdNetworks {
		if !matchesAny(host, network.Domains) {
			continue
		}
		for key, want := range network.Params {
			if vals, ok := query[key]; ok && len(vals) > 0 && vals[0] == want {
				return ReasonAdNetwork
			}
		}
	}

	bare := utils.StripWWW(host)
	for _, prefix := range c.rules.AffiliateHosts {
		if strings.HasPrefix(host, prefix) || strings.HasPrefix(bare, prefix) {
			return ReasonAffiliateHost
		}
	}

	for _, seg := range strings.Split(u.Path, "/") {
		if seg == "" {
			continue
		}
		if _, ok := c.affiliatePaths[seg]; ok {
			return ReasonAffiliatePath
		}
	}

	for key := range query {
		if _, ok := c.redirectParams[key]; ok {
			return ReasonRedirectParam
		}
	}

	if c.trackingFamilies(query) >= c.rules.MinTrackingHits {
		return ReasonTracking
	}

	return ReasonNone
}

// trackingFamilies counts distinct families among the query keys. A key
// belongs to the first family it matches; "utm_" is a prefix, the rest are
// substrings.
func (c *Classifier) trackingFamilies(query url.Values) int {
	families := make(map[string]struct{})
	for key := range query {
		for _, fam := range c.rules.TrackingFamily {
			var hit bool
			if strings.HasSuffix(fam, "_") {
				hit = strings.HasPrefix(key, fam)
			} else {
				hit = strings.Contains(key, fam)
			}
			if hit {
				families[fam] = struct{}{}
				break
			}
		}
	}
	return len(families)
}

func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		if utils.HostMatches(host, d) {
			return true
		}
	}
	return false
}

func lowerRules(r Rules) Rules {
	out := Rules{
		Shorteners:      lowerAll(r.Shorteners),
		AffiliateHosts:  lowerAll(r.AffiliateHosts),
		AffiliatePaths:  lowerAll(r.AffiliatePaths),
		RedirectParams:  lowerAll(r.RedirectParams),
		TrackingFamily:  lowerAll(r.TrackingFamily),
		MinTrackingHits: r.MinTrackingHits,
	}
	for _, n := range r.AdNetworks {
		params := make(map[string]string, len(n.Params))
		for k, v := range n.Params {
			params[strings.ToLower(k)] = strings.ToLower(v)
		}
		out.AdNetworks = append(out.AdNetworks, AdNetwork{Domains: lowerAll(n.Domains), Params: params})
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

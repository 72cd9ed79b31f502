package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/amosWeiskopf/linktrace/pkg/classifier"
	"github.com/amosWeiskopf/linktrace/pkg/extractor"
	"github.com/amosWeiskopf/linktrace/pkg/matcher"
	"github.com/amosWeiskopf/linktrace/pkg/utils"
)

const (
	DefaultMaxPages       = 5000
	DefaultMaxDepth       = 10
	DefaultWorkers        = 1
	DefaultFetchTimeout   = 15 * time.Second
	DefaultResolveTimeout = 5 * time.Second
)

var (
	ErrEmptySeed      = errors.New("seed url is empty")
	ErrInvalidSeed    = errors.New("seed url must be an absolute http(s) url")
	ErrNoKeywords     = errors.New("at least one keyword is required")
	ErrAlreadyStarted = errors.New("crawl already started")
)

// ConfigError reports an invalid crawl setting.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config is the validated, immutable description of one crawl.
type Config struct {
	Seed             string
	Keywords         matcher.Keywords
	MaxPages         int
	MaxRedirectDepth int
	Workers          int
	QueryPolicy      utils.QueryPolicy
	Rules            classifier.Rules
	Scope            extractor.ScopeRules
	FetchTimeout     time.Duration
	ResolveTimeout   time.Duration
	RespectRobots    bool
	UseSitemap       bool
	UserAgent        string
}

// Option adjusts a Config under construction.
type Option func(*Config) error

// WithMaxPages sets the page budget.
func WithMaxPages(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return &ConfigError{Field: "max_pages", Reason: fmt.Sprintf("must be positive, got %d", n)}
		}
		c.MaxPages = n
		return nil
	}
}

// WithMaxRedirectDepth bounds redirect chains.
func WithMaxRedirectDepth(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return &ConfigError{Field: "max_redirect_depth", Reason: fmt.Sprintf("must be positive, got %d", n)}
		}
		c.MaxRedirectDepth = n
		return nil
	}
}

// WithWorkers sets how many popped pages are processed concurrently.
func WithWorkers(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return &ConfigError{Field: "workers", Reason: fmt.Sprintf("must be positive, got %d", n)}
		}
		c.Workers = n
		return nil
	}
}

// WithQueryPolicy sets how queries count toward URL identity in the
// visited, queued and checked sets. Matching and resolution always use the
// full URL.
func WithQueryPolicy(p utils.QueryPolicy) Option {
	return func(c *Config) error {
		c.QueryPolicy = p
		return nil
	}
}

// WithRules replaces the classifier rules.
func WithRules(r classifier.Rules) Option {
	return func(c *Config) error {
		c.Rules = r
		return nil
	}
}

// WithScopeRules replaces the crawl scope rules.
func WithScopeRules(r extractor.ScopeRules) Option {
	return func(c *Config) error {
		c.Scope = r
		return nil
	}
}

// WithTimeouts sets per-call limits for page fetches and redirect hops.
// Zero keeps the current value.
func WithTimeouts(fetch, resolve time.Duration) Option {
	return func(c *Config) error {
		if fetch > 0 {
			c.FetchTimeout = fetch
		}
		if resolve > 0 {
			c.ResolveTimeout = resolve
		}
		return nil
	}
}

// WithRobots enables robots.txt checks before queueing links.
func WithRobots(respect bool) Option {
	return func(c *Config) error {
		c.RespectRobots = respect
		return nil
	}
}

// WithSitemap seeds the frontier from the site's sitemap.xml.
func WithSitemap(enabled bool) Option {
	return func(c *Config) error {
		c.UseSitemap = enabled
		return nil
	}
}

// WithUserAgent sets the agent name used for robots.txt rules.
func WithUserAgent(ua string) Option {
	return func(c *Config) error {
		c.UserAgent = strings.TrimSpace(ua)
		return nil
	}
}

// NewConfig validates seed and keywords and applies opts over the defaults.
// The seed is normalized; profile URLs on x.com and twitter.com are
// rewritten to the profile's replies timeline.
func NewConfig(seed string, keywords []string, opts ...Option) (*Config, error) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return nil, &ConfigError{Field: "seed", Reason: "empty", Err: ErrEmptySeed}
	}
	normalized, ok := utils.NormalizeURL(seed, "", utils.QueryPreserve)
	if !ok {
		return nil, &ConfigError{Field: "seed", Reason: fmt.Sprintf("%q is not an absolute http(s) url", seed), Err: ErrInvalidSeed}
	}

	kw := matcher.NewKeywords(keywords)
	if len(kw) == 0 {
		return nil, &ConfigError{Field: "keywords", Reason: "empty", Err: ErrNoKeywords}
	}

	cfg := &Config{
		Seed:             socialSeed(normalized),
		Keywords:         kw,
		MaxPages:         DefaultMaxPages,
		MaxRedirectDepth: DefaultMaxDepth,
		Workers:          DefaultWorkers,
		QueryPolicy:      utils.QueryPreserve,
		Rules:            classifier.DefaultRules(),
		Scope:            extractor.DefaultScopeRules(),
		FetchTimeout:     DefaultFetchTimeout,
		ResolveTimeout:   DefaultResolveTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

var socialHosts = map[string]struct{}{
	"x.com":              {},
	"twitter.com":        {},
	"mobile.twitter.com": {},
}

// reserved first path segments that are not user handles
var socialReserved = map[string]struct{}{
	"home": {}, "explore": {}, "search": {}, "i": {}, "settings": {},
	"notifications": {}, "messages": {}, "login": {}, "intent": {}, "hashtag": {},
}

func socialSeed(seed string) string {
	u, err := url.Parse(seed)
	if err != nil {
		return seed
	}
	host := utils.StripWWW(u.Hostname())
	if _, ok := socialHosts[host]; !ok {
		return seed
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	user := parts[0]
	if user == "" {
		return seed
	}
	if _, ok := socialReserved[strings.ToLower(user)]; ok {
		return seed
	}
	return fmt.Sprintf("https://%s/%s/with_replies", u.Host, user)
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/amosWeiskopf/linktrace/pkg/classifier"
	"github.com/amosWeiskopf/linktrace/pkg/crawler"
	"github.com/amosWeiskopf/linktrace/pkg/extractor"
	"github.com/amosWeiskopf/linktrace/pkg/fetcher"
	"github.com/amosWeiskopf/linktrace/pkg/reporter"
	"github.com/amosWeiskopf/linktrace/pkg/utils"
)

// EnvPrefix prefixes every environment override, e.g. LINKTRACE_CRAWLER_MAX_PAGES.
const EnvPrefix = "LINKTRACE"

// Config holds all application configuration
type Config struct {
	// Crawler configuration
	Crawler CrawlerConfig `mapstructure:"crawler"`

	// Redirect resolution
	Resolver ResolverConfig `mapstructure:"resolver"`

	// Extra classifier entries, added to the built-in lists
	Classifier ClassifierConfig `mapstructure:"classifier"`

	// Default keywords when none are given on the command line
	Keywords []string `mapstructure:"keywords"`

	// Export configuration
	Export ExportConfig `mapstructure:"export"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig holds crawler-specific configuration
type CrawlerConfig struct {
	MaxPages          int           `mapstructure:"max_pages"`
	Workers           int           `mapstructure:"workers"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	UserAgent         string        `mapstructure:"user_agent"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	FollowRobotsTxt   bool          `mapstructure:"follow_robots_txt"`
	UseSitemap        bool          `mapstructure:"use_sitemap"`
	Render            bool          `mapstructure:"render"`
	MaxScrolls        int           `mapstructure:"max_scrolls"`
	ScrollPause       time.Duration `mapstructure:"scroll_pause"`
	QueryPolicy       string        `mapstructure:"query_policy"` // "preserve" or "strip_tracking"
	MaxQueryParams    int           `mapstructure:"max_query_params"`
}

// ResolverConfig holds redirect resolution limits
type ResolverConfig struct {
	MaxDepth int           `mapstructure:"max_depth"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ClassifierConfig extends the affiliate heuristics
type ClassifierConfig struct {
	Shorteners     []string `mapstructure:"shorteners"`
	AffiliateHosts []string `mapstructure:"affiliate_hosts"`
	AffiliatePaths []string `mapstructure:"affiliate_paths"`
	RedirectParams []string `mapstructure:"redirect_params"`
}

// ExportConfig holds output settings
type ExportConfig struct {
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "text"
	OutputPath string `mapstructure:"output_path"`
}

// Load reads configuration from file and environment. An empty configPath
// searches ., ./config and ~/.linktrace for config.yaml; a missing file is
// not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		path, err := homedir.Expand(configPath)
		if err != nil {
			return nil, fmt.Errorf("error expanding config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := homedir.Expand("~/.linktrace"); err == nil {
			v.AddConfigPath(home)
		}
	}

	// Set defaults
	setDefaults(v)

	// Bind environment variables
	bindEnvVars(v)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if config.Export.Path != "" {
		if p, err := homedir.Expand(config.Export.Path); err == nil {
			config.Export.Path = p
		}
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Crawler defaults
	v.SetDefault("crawler.max_pages", crawler.DefaultMaxPages)
	v.SetDefault("crawler.workers", crawler.DefaultWorkers)
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.fetch_timeout", crawler.DefaultFetchTimeout.String())
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.follow_robots_txt", false)
	v.SetDefault("crawler.use_sitemap", false)
	v.SetDefault("crawler.render", false)
	v.SetDefault("crawler.max_scrolls", 20)
	v.SetDefault("crawler.scroll_pause", "2s")
	v.SetDefault("crawler.query_policy", utils.QueryPreserve.String())
	v.SetDefault("crawler.max_query_params", 3)

	// Resolver defaults
	v.SetDefault("resolver.max_depth", crawler.DefaultMaxDepth)
	v.SetDefault("resolver.timeout", crawler.DefaultResolveTimeout.String())

	// Export defaults
	v.SetDefault("export.format", string(reporter.FormatCSV))
	v.SetDefault("export.path", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output_path", "stderr")
}

// bindEnvVars binds environment variables
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// keywords has no default, so AutomaticEnv alone would not surface it
	_ = v.BindEnv("keywords")
	for _, key := range []string{"shorteners", "affiliate_hosts", "affiliate_paths", "redirect_params"} {
		_ = v.BindEnv("classifier." + key)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be positive")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be positive")
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must not be negative")
	}
	if c.Crawler.MaxQueryParams <= 0 {
		return fmt.Errorf("crawler.max_query_params must be positive")
	}
	switch strings.ToLower(c.Crawler.QueryPolicy) {
	case "", "preserve", "strip_tracking":
	default:
		return fmt.Errorf("crawler.query_policy must be preserve or strip_tracking, got %q", c.Crawler.QueryPolicy)
	}
	if c.Resolver.MaxDepth <= 0 {
		return fmt.Errorf("resolver.max_depth must be positive")
	}
	if _, err := reporter.ParseFormat(c.Export.Format); err != nil {
		return fmt.Errorf("export.format: %w", err)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// Rules returns the built-in classifier rules extended with configured entries
func (c *Config) Rules() classifier.Rules {
	rules := classifier.DefaultRules()
	rules.Shorteners = append(rules.Shorteners, c.Classifier.Shorteners...)
	rules.AffiliateHosts = append(rules.AffiliateHosts, c.Classifier.AffiliateHosts...)
	rules.AffiliatePaths = append(rules.AffiliatePaths, c.Classifier.AffiliatePaths...)
	rules.RedirectParams = append(rules.RedirectParams, c.Classifier.RedirectParams...)
	return rules
}

// CrawlOptions maps the configuration onto crawler options
func (c *Config) CrawlOptions() []crawler.Option {
	scope := extractor.DefaultScopeRules()
	scope.MaxQueryParams = c.Crawler.MaxQueryParams

	return []crawler.Option{
		crawler.WithMaxPages(c.Crawler.MaxPages),
		crawler.WithWorkers(c.Crawler.Workers),
		crawler.WithMaxRedirectDepth(c.Resolver.MaxDepth),
		crawler.WithQueryPolicy(utils.ParseQueryPolicy(c.Crawler.QueryPolicy)),
		crawler.WithRules(c.Rules()),
		crawler.WithScopeRules(scope),
		crawler.WithTimeouts(c.Crawler.FetchTimeout, c.Resolver.Timeout),
		crawler.WithRobots(c.Crawler.FollowRobotsTxt),
		crawler.WithSitemap(c.Crawler.UseSitemap),
		crawler.WithUserAgent(c.Crawler.UserAgent),
	}
}

// FetcherOptions maps the configuration onto HTTP fetcher options
func (c *Config) FetcherOptions(logger logrus.FieldLogger) fetcher.Options {
	return fetcher.Options{
		UserAgent:         c.Crawler.UserAgent,
		Timeout:           c.Crawler.FetchTimeout,
		MaxRetries:        c.Crawler.MaxRetries,
		RequestsPerSecond: c.Crawler.RequestsPerSecond,
		Logger:            logger,
	}
}

// BrowserOptions maps the configuration onto headless browser options
func (c *Config) BrowserOptions(logger logrus.FieldLogger) fetcher.BrowserOptions {
	return fetcher.BrowserOptions{
		NavigationTimeout: c.Crawler.FetchTimeout,
		ScrollPause:       c.Crawler.ScrollPause,
		MaxScrolls:        c.Crawler.MaxScrolls,
		Headless:          true,
		UserAgent:         c.Crawler.UserAgent,
		Logger:            logger,
	}
}

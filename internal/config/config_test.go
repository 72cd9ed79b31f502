package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/linktrace/pkg/crawler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, crawler.DefaultMaxPages, cfg.Crawler.MaxPages)
	assert.Equal(t, crawler.DefaultWorkers, cfg.Crawler.Workers)
	assert.Equal(t, crawler.DefaultFetchTimeout, cfg.Crawler.FetchTimeout)
	assert.Equal(t, crawler.DefaultMaxDepth, cfg.Resolver.MaxDepth)
	assert.Equal(t, 5*time.Second, cfg.Resolver.Timeout)
	assert.Equal(t, "preserve", cfg.Crawler.QueryPolicy)
	assert.Equal(t, "csv", cfg.Export.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Keywords)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
crawler:
  max_pages: 25
  workers: 4
  fetch_timeout: 3s
  query_policy: strip_tracking
resolver:
  max_depth: 4
classifier:
  shorteners: [sho.rt]
keywords: [gowithguide, tours]
export:
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 25, cfg.Crawler.MaxPages)
	assert.Equal(t, 4, cfg.Crawler.Workers)
	assert.Equal(t, 3*time.Second, cfg.Crawler.FetchTimeout)
	assert.Equal(t, 4, cfg.Resolver.MaxDepth)
	assert.Equal(t, []string{"gowithguide", "tours"}, cfg.Keywords)
	assert.Equal(t, "json", cfg.Export.Format)
	assert.Contains(t, cfg.Rules().Shorteners, "sho.rt")
	assert.Contains(t, cfg.Rules().Shorteners, "bit.ly")
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "crawler:\n  max_pages: 25\n")
	t.Setenv("LINKTRACE_CRAWLER_MAX_PAGES", "7")
	t.Setenv("LINKTRACE_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Crawler.MaxPages)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadBadFile(t *testing.T) {
	path := writeConfig(t, "crawler: [unterminated\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pages", func(c *Config) { c.Crawler.MaxPages = 0 }},
		{"zero workers", func(c *Config) { c.Crawler.Workers = 0 }},
		{"negative rate", func(c *Config) { c.Crawler.RequestsPerSecond = -1 }},
		{"bad policy", func(c *Config) { c.Crawler.QueryPolicy = "drop" }},
		{"zero depth", func(c *Config) { c.Resolver.MaxDepth = 0 }},
		{"bad format", func(c *Config) { c.Export.Format = "pdf" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCrawlOptions(t *testing.T) {
	path := writeConfig(t, `
crawler:
  max_pages: 12
  workers: 2
  max_query_params: 5
  follow_robots_txt: true
resolver:
  max_depth: 6
  timeout: 2s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	cc, err := crawler.NewConfig("https://example.com/", []string{"deal"}, cfg.CrawlOptions()...)
	require.NoError(t, err)
	assert.Equal(t, 12, cc.MaxPages)
	assert.Equal(t, 2, cc.Workers)
	assert.Equal(t, 6, cc.MaxRedirectDepth)
	assert.Equal(t, 2*time.Second, cc.ResolveTimeout)
	assert.Equal(t, 5, cc.Scope.MaxQueryParams)
	assert.True(t, cc.RespectRobots)
}

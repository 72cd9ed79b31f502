package crawler

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/amosWeiskopf/linktrace/pkg/fetcher"
)

// robotsAgent is the group name looked up in robots.txt.
const robotsAgent = "linktrace"

// robotsGuard caches robots.txt rules per scheme and host. Missing or
// unreadable files allow everything.
type robotsGuard struct {
	fetcher fetcher.Fetcher
	agent   string

	mu    sync.Mutex
	rules map[string]*robotstxt.RobotsData
}

func newRobotsGuard(f fetcher.Fetcher, agent string) *robotsGuard {
	if agent == "" {
		agent = robotsAgent
	}
	return &robotsGuard{fetcher: f, agent: agent, rules: make(map[string]*robotstxt.RobotsData)}
}

// Allowed reports whether rawURL may be fetched.
func (g *robotsGuard) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	data := g.load(ctx, u)
	if data == nil {
		return true
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, g.agent)
}

func (g *robotsGuard) load(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := strings.ToLower(u.Scheme + "://" + u.Host)

	g.mu.Lock()
	data, ok := g.rules[key]
	g.mu.Unlock()
	if ok {
		return data
	}

	resp, err := g.fetcher.Fetch(ctx, key+"/robots.txt")
	if err == nil {
		data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	}
	if err != nil {
		data = nil
	}

	g.mu.Lock()
	g.rules[key] = data
	g.mu.Unlock()
	return data
}

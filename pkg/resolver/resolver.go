// Package resolver follows redirect chains to their terminal URL.
package resolver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/amosWeiskopf/linktrace/pkg/extractor"
	"github.com/amosWeiskopf/linktrace/pkg/fetcher"
	"github.com/amosWeiskopf/linktrace/pkg/utils"
)

const (
	DefaultMaxDepth = 10
	DefaultTimeout  = 5 * time.Second
)

// Options configures a Resolver.
type Options struct {
	MaxDepth int
	Timeout  time.Duration
	Logger   logrus.FieldLogger
}

// Hop is one edge of a redirect chain. Via names the mechanism: an HTTP
// status such as "http_302", "http_follow" for redirects the transport
// followed itself, "meta_refresh", or a script idiom.
type Hop struct {
	From string
	To   string
	Via  string
}

// Trace is the full outcome of following one URL.
type Trace struct {
	Start     string
	Final     string
	Hops      []Hop
	Cycle     bool
	Truncated bool
	Err       error
}

// Stats counts resolver activity.
type Stats struct {
	Requests  int64
	CacheHits int64
	Resolved  int64
	Failures  int64
}

// Resolver finds the terminal URL of redirecting links. Results are cached
// per Resolver, so one Resolver should serve one crawl.
type Resolver struct {
	fetcher  fetcher.Fetcher
	cache    *RedirectCache
	group    singleflight.Group
	maxDepth int
	timeout  time.Duration
	log      logrus.FieldLogger

	requests  atomic.Int64
	cacheHits atomic.Int64
	resolved  atomic.Int64
	failures  atomic.Int64
}

// New returns a Resolver issuing requests through f.
func New(f fetcher.Fetcher, opts Options) *Resolver {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Resolver{
		fetcher:  f,
		cache:    NewRedirectCache(),
		maxDepth: opts.MaxDepth,
		timeout:  opts.Timeout,
		log:      opts.Logger,
	}
}

// Cache exposes the resolver's redirect cache.
func (r *Resolver) Cache() *RedirectCache { return r.cache }

// Stats returns a snapshot of the counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Requests:  r.requests.Load(),
		CacheHits: r.cacheHits.Load(),
		Resolved:  r.resolved.Load(),
		Failures:  r.failures.Load(),
	}
}

// Resolve returns the terminal URL for rawURL. It never fails: a transport
// error yields rawURL itself. Every outcome is cached under rawURL.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) string {
	if final, ok := r.cache.Load(rawURL); ok {
		r.cacheHits.Add(1)
		return final
	}

	v, _, _ := r.group.Do(rawURL, func() (interface{}, error) {
		if final, ok := r.cache.Load(rawURL); ok {
			r.cacheHits.Add(1)
			return final, nil
		}
		tr := r.Trace(ctx, rawURL)
		r.cache.Store(rawURL, tr.Final)
		return tr.Final, nil
	})
	return v.(string)
}

// Trace follows rawURL hop by hop without consulting the cache.
func (r *Resolver) Trace(ctx context.Context, rawURL string) *Trace {
	tr := r.follow(ctx, rawURL)
	if len(tr.Hops) == 0 {
		tr.Final = tr.Start
	}
	entry := r.log.WithFields(logrus.Fields{"url": rawURL, "hops": len(tr.Hops)})
	switch {
	case tr.Err != nil:
		r.failures.Add(1)
		entry.Debugf("resolve failed: %v", tr.Err)
	case tr.Cycle:
		entry.Debugf("redirect cycle, stopping at %s", tr.Final)
	case tr.Truncated:
		entry.Debugf("redirect depth %d reached, stopping at %s", r.maxDepth, tr.Final)
	default:
		entry.Debugf("resolved to %s", tr.Final)
	}
	r.resolved.Add(1)
	return tr
}

func (r *Resolver) follow(ctx context.Context, start string) *Trace {
	tr := &Trace{Start: start, Final: start}

	current, ok := utils.NormalizeURL(start, "", utils.QueryPreserve)
	if !ok {
		tr.Err = fmt.Errorf("resolve %q: not an http url", start)
		return tr
	}
	seen := map[string]struct{}{current: {}}

	// every appended hop, transport-followed or not, counts against maxDepth
	for len(tr.Hops) < r.maxDepth {
		if err := ctx.Err(); err != nil {
			tr.Err = err
			tr.Final = start
			return tr
		}

		next, landed, via, err := r.step(ctx, current)
		if err != nil {
			tr.Err = err
			tr.Final = start
			return tr
		}

		if landed != "" && landed != current {
			if _, loop := seen[landed]; loop {
				tr.Final = current
				tr.Cycle = true
				return tr
			}
			tr.Hops = append(tr.Hops, Hop{From: current, To: landed, Via: "http_follow"})
			seen[landed] = struct{}{}
			current = landed
		}

		if next == "" {
			tr.Final = current
			return tr
		}
		if len(tr.Hops) >= r.maxDepth {
			break
		}
		if _, loop := seen[next]; loop {
			tr.Final = current
			tr.Cycle = true
			return tr
		}
		tr.Hops = append(tr.Hops, Hop{From: current, To: next, Via: via})
		seen[next] = struct{}{}
		current = next
	}

	tr.Final = current
	tr.Truncated = true
	return tr
}

// step performs one resolution round for current. next is the following
// hop, or "" when current is terminal. landed is where a GET ended after
// transport-level redirects.
func (r *Resolver) step(ctx context.Context, current string) (next, landed, via string, err error) {
	head, herr := r.call(ctx, r.fetcher.Head, current)
	if herr == nil && head.IsRedirect() {
		if target, ok := utils.NormalizeURL(head.Location(), current, utils.QueryPreserve); ok {
			return target, "", fmt.Sprintf("http_%d", head.StatusCode), nil
		}
	}

	resp, gerr := r.call(ctx, r.fetcher.Fetch, current)
	if gerr != nil {
		if herr != nil {
			return "", "", "", fmt.Errorf("head: %v; get: %w", herr, gerr)
		}
		return "", "", "", gerr
	}

	landed = current
	if resp.FinalURL != "" {
		if u, ok := utils.NormalizeURL(resp.FinalURL, current, utils.QueryPreserve); ok {
			landed = u
		}
	}

	if resp.IsHTML() && len(resp.Body) > 0 {
		if target, how := extractor.BodyRedirect(resp.Body, landed); target != "" {
			return target, landed, how, nil
		}
	}
	return "", landed, "", nil
}

func (r *Resolver) call(ctx context.Context, fn func(context.Context, string) (*fetcher.Response, error), rawURL string) (*fetcher.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	r.requests.Add(1)
	return fn(ctx, rawURL)
}

// Package crawler walks a site breadth-first and reports links that reach
// the configured keywords, directly or through redirects.
package crawler

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/amosWeiskopf/linktrace/internal/models"
	"github.com/amosWeiskopf/linktrace/pkg/classifier"
	"github.com/amosWeiskopf/linktrace/pkg/extractor"
	"github.com/amosWeiskopf/linktrace/pkg/fetcher"
	"github.com/amosWeiskopf/linktrace/pkg/resolver"
	"github.com/amosWeiskopf/linktrace/pkg/results"
	"github.com/amosWeiskopf/linktrace/pkg/utils"
)

// snippetWidth is the page-content sample length around a match.
const snippetWidth = 200

// RunOption customises a Crawler.
type RunOption func(*Crawler)

// WithSink sets where progress messages go. Default is Discard.
func WithSink(s StatusSink) RunOption {
	return func(c *Crawler) {
		if s != nil {
			c.sink = s
		}
	}
}

// WithLogger sets the logger; every entry carries the crawl id.
func WithLogger(l logrus.FieldLogger) RunOption {
	return func(c *Crawler) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSupportFetcher sets the transport for redirect resolution, robots.txt
// and sitemaps. It defaults to the page fetcher; set it when pages are
// rendered in a browser.
func WithSupportFetcher(f fetcher.Fetcher) RunOption {
	return func(c *Crawler) {
		if f != nil {
			c.support = f
		}
	}
}

// WithResolver replaces the crawl's redirect resolver.
func WithResolver(r *resolver.Resolver) RunOption {
	return func(c *Crawler) { c.resolver = r }
}

func withClock(now func() time.Time) RunOption {
	return func(c *Crawler) { c.now = now }
}

// Crawler owns all state of one crawl. It is not reusable.
type Crawler struct {
	cfg        *Config
	id         string
	fetcher    fetcher.Fetcher
	support    fetcher.Fetcher
	resolver   *resolver.Resolver
	classifier *classifier.Classifier
	extractor  *extractor.Extractor
	scope      *extractor.Scope
	robots     *robotsGuard
	results    *results.Aggregator
	sink       StatusSink
	log        logrus.FieldLogger
	now        func() time.Time
	stopped    atomic.Bool

	mu         sync.Mutex
	state      State
	visited    map[string]struct{}
	queue      *list.List
	queued     map[string]struct{}
	checked    map[string]struct{}
	pages      int
	errorCount int
	startedAt  time.Time
	finishedAt time.Time
}

// New builds a Crawler for cfg fetching pages through f.
func New(cfg *Config, f fetcher.Fetcher, opts ...RunOption) (*Crawler, error) {
	if cfg == nil {
		return nil, &ConfigError{Field: "config", Reason: "nil"}
	}
	if f == nil {
		return nil, &ConfigError{Field: "fetcher", Reason: "nil"}
	}

	scope := extractor.NewScope(cfg.Seed, cfg.Scope)
	c := &Crawler{
		cfg:        cfg,
		id:         uuid.New().String(),
		fetcher:    f,
		support:    f,
		classifier: classifier.New(cfg.Rules),
		extractor:  extractor.New(scope, cfg.QueryPolicy),
		scope:      scope,
		results:    results.NewAggregator(),
		sink:       Discard,
		log:        logrus.StandardLogger(),
		now:        time.Now,
		state:      StateIdle,
		visited:    make(map[string]struct{}),
		queue:      list.New(),
		queued:     make(map[string]struct{}),
		checked:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("crawl_id", c.id)

	if c.resolver == nil {
		c.resolver = resolver.New(c.support, resolver.Options{
			MaxDepth: cfg.MaxRedirectDepth,
			Timeout:  cfg.ResolveTimeout,
			Logger:   c.log,
		})
	}
	if cfg.RespectRobots {
		c.robots = newRobotsGuard(c.support, cfg.UserAgent)
	}
	return c, nil
}

// ID returns the crawl's unique id.
func (c *Crawler) ID() string { return c.id }

// Crawl runs the crawl to a terminal state.
func (c *Crawler) Crawl(ctx context.Context) (*models.CrawlResult, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	for c.Step(ctx) {
	}
	c.report("Crawling completed")
	c.log.WithFields(logrus.Fields{
		"state":   c.State().String(),
		"pages":   c.PagesCrawled(),
		"matches": c.results.Len(),
	}).Info("crawl finished")
	return c.Result(), nil
}

// Step processes the next batch of up to Workers pages. It returns false
// once the crawl has reached a terminal state. Calling Step on an idle
// crawler starts it.
func (c *Crawler) Step(ctx context.Context) bool {
	if c.State() == StateIdle {
		if err := c.begin(ctx); err != nil {
			return false
		}
	}

	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return false
	}
	if c.stopped.Load() || ctx.Err() != nil {
		c.finishLocked(StateStopped)
		c.mu.Unlock()
		return false
	}
	batch := c.popLocked()
	if len(batch) == 0 {
		c.settleLocked()
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	if len(batch) == 1 {
		c.processPage(ctx, batch[0])
	} else {
		var g errgroup.Group
		g.SetLimit(c.cfg.Workers)
		for _, p := range batch {
			p := p
			g.Go(func() error {
				c.processPage(ctx, p)
				return nil
			})
		}
		_ = g.Wait()
	}

	if n := c.results.Len(); n > 0 {
		c.report(fmt.Sprintf("Found %d matches", n))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pages >= c.cfg.MaxPages || c.queue.Len() == 0 {
		c.settleLocked()
	}
	return !c.state.Terminal()
}

// Stop asks the crawl to end before the next step.
func (c *Crawler) Stop() {
	c.stopped.Store(true)
}

// State returns the current lifecycle state.
func (c *Crawler) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the queued URLs in crawl order.
func (c *Crawler) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, c.queue.Len())
	for e := c.queue.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}

// PagesCrawled counts pages charged to the budget so far.
func (c *Crawler) PagesCrawled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pages
}

// Results returns a snapshot of the matches so far.
func (c *Crawler) Results() []models.Result {
	return c.results.Snapshot()
}

// Records returns the matches as export rows.
func (c *Crawler) Records() []models.Record {
	return c.results.Records()
}

// Resolver exposes the crawl's redirect resolver.
func (c *Crawler) Resolver() *resolver.Resolver { return c.resolver }

// Result summarises the crawl in its current state.
func (c *Crawler) Result() *models.CrawlResult {
	c.mu.Lock()
	res := &models.CrawlResult{
		ID:           c.id,
		Seed:         c.cfg.Seed,
		Domain:       c.scope.Domain(),
		State:        c.state.String(),
		PagesCrawled: c.pages,
		ErrorCount:   c.errorCount,
		Pending:      c.queue.Len(),
		StartedAt:    c.startedAt,
		FinishedAt:   c.finishedAt,
	}
	c.mu.Unlock()
	res.Results = c.results.Snapshot()
	return res
}

func (c *Crawler) begin(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateRunning
	c.startedAt = c.now()
	c.pushLocked(c.cfg.Seed)
	c.mu.Unlock()

	c.report(fmt.Sprintf("Starting crawl of %s", c.cfg.Seed))
	c.log.WithField("seed", c.cfg.Seed).Info("crawl started")

	if c.cfg.UseSitemap {
		c.seedFromSitemap(ctx)
	}
	return nil
}

func (c *Crawler) seedFromSitemap(ctx context.Context) {
	u, err := url.Parse(c.cfg.Seed)
	if err != nil {
		return
	}
	locs, err := sitemapURLs(ctx, c.support, u.Scheme+"://"+u.Host)
	if err != nil {
		c.log.WithError(err).Debug("no sitemap")
		return
	}
	added := 0
	for _, loc := range locs {
		n, ok := utils.NormalizeURL(loc, c.cfg.Seed, utils.QueryPreserve)
		if !ok || !c.scope.InScope(n) {
			continue
		}
		if c.enqueue(ctx, n) {
			added++
		}
	}
	c.log.WithField("urls", added).Info("seeded from sitemap")
}

type pageJob struct {
	url string
	n   int
}

// popLocked takes up to Workers unvisited URLs off the queue, marking each
// visited and charging it to the budget.
func (c *Crawler) popLocked() []pageJob {
	var batch []pageJob
	for len(batch) < c.cfg.Workers && c.pages < c.cfg.MaxPages {
		e := c.queue.Front()
		if e == nil {
			break
		}
		c.queue.Remove(e)
		u := e.Value.(string)
		key := c.extractor.Key(u)
		delete(c.queued, key)
		if _, seen := c.visited[key]; seen {
			continue
		}
		c.visited[key] = struct{}{}
		c.pages++
		batch = append(batch, pageJob{url: u, n: c.pages})
	}
	return batch
}

// settleLocked moves a crawl with nothing left to pop to its end state.
func (c *Crawler) settleLocked() {
	if c.queue.Len() == 0 {
		c.finishLocked(StateCompleted)
		return
	}
	if c.pages >= c.cfg.MaxPages {
		c.finishLocked(StateBudgetExhausted)
	}
}

func (c *Crawler) finishLocked(s State) {
	if c.state.Terminal() {
		return
	}
	c.state = s
	c.finishedAt = c.now()
}

// pushLocked queues u unless its key was visited or queued already.
func (c *Crawler) pushLocked(u string) bool {
	key := c.extractor.Key(u)
	if _, seen := c.visited[key]; seen {
		return false
	}
	if _, seen := c.queued[key]; seen {
		return false
	}
	c.queue.PushBack(u)
	c.queued[key] = struct{}{}
	return true
}

// enqueue adds u to the frontier unless it was seen before or robots.txt
// forbids it.
func (c *Crawler) enqueue(ctx context.Context, u string) bool {
	key := c.extractor.Key(u)
	c.mu.Lock()
	_, visited := c.visited[key]
	_, queued := c.queued[key]
	c.mu.Unlock()
	if visited || queued {
		return false
	}

	if c.robots != nil && !c.robots.Allowed(ctx, u) {
		c.log.WithField("url", u).Debug("disallowed by robots.txt")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushLocked(u)
}

func (c *Crawler) processPage(ctx context.Context, job pageJob) {
	entry := c.log.WithFields(logrus.Fields{"url": job.url, "page": job.n})
	c.report(fmt.Sprintf("Processing page %d: %s", job.n, job.url))

	fctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	resp, err := c.fetcher.Fetch(fctx, job.url)
	cancel()
	if err == nil {
		err = fetcher.CheckPage(resp)
	}
	if err != nil {
		c.mu.Lock()
		c.errorCount++
		c.mu.Unlock()
		entry.WithError(err).Warn("fetch failed")
		c.report(fmt.Sprintf("Error processing %s: %v", job.url, err))
		return
	}

	base := job.url
	if final, ok := utils.NormalizeURL(resp.FinalURL, job.url, utils.QueryPreserve); ok {
		base = final
	}

	if kws := c.cfg.Keywords.Match(string(resp.Body)); len(kws) > 0 {
		c.emit(job.url, job.url, kws, models.LocationPageContent, "page_content", "text", c.contentSample(resp.Body, kws[0]))
	}

	page, err := c.extractor.Extract(resp.Body, base)
	if err != nil {
		var perr *extractor.ParseError
		if errors.As(err, &perr) {
			entry.WithError(err).Warn("unparsable page")
		}
		c.report(fmt.Sprintf("Error processing %s: %v", job.url, err))
		return
	}

	for _, r := range page.Redirects {
		c.checkURL(ctx, r.URL, r.Key, job.url, r.Element, r.Attribute)
	}

	queued := 0
	for _, l := range page.Links {
		c.checkURL(ctx, l.URL, l.Key, job.url, l.Element, l.Attribute)
		if l.InScope && c.enqueue(ctx, l.URL) {
			queued++
		}
	}
	entry.WithFields(logrus.Fields{"links": len(page.Links), "queued": queued}).Debug("page processed")
}

// checkURL records keyword matches on u and, for redirect candidates, on
// its terminal URL. Each key is checked once per crawl; matching and
// resolution always see the full u.
func (c *Crawler) checkURL(ctx context.Context, u, key, source, element, attribute string) {
	h := utils.HashURL(key)
	c.mu.Lock()
	if _, done := c.checked[h]; done {
		c.mu.Unlock()
		return
	}
	c.checked[h] = struct{}{}
	c.mu.Unlock()

	if kws := c.cfg.Keywords.Match(u); len(kws) > 0 {
		c.emit(source, u, kws, models.LocationDirectURL, element, attribute, u)
	}

	if !c.classifier.IsCandidate(u) {
		return
	}
	final := c.resolver.Resolve(ctx, u)
	if final == u {
		return
	}
	if kws := c.cfg.Keywords.Match(final); len(kws) > 0 {
		c.emit(source, final, kws, models.LocationRedirectedURL, element, attribute,
			fmt.Sprintf("Redirected from: %s to: %s", u, final))
	}
}

func (c *Crawler) emit(source, matched string, kws []string, loc models.LocationType, element, attribute, content string) {
	r, err := models.NewResult(source, matched, kws, loc, element, attribute, content, c.now())
	if err != nil {
		return
	}
	c.results.Add(r)
	c.log.WithFields(logrus.Fields{"url": matched, "location": loc}).Info("match")
	c.report(fmt.Sprintf("Found match: %s (Keyword: %s)", matched, strings.Join(kws, models.KeywordDelimiter)))
}

func (c *Crawler) contentSample(body []byte, keyword string) string {
	text := extractor.ReadableText(body)
	if s := utils.Snippet(text, keyword, snippetWidth); s != "" {
		return s
	}
	return utils.TruncateText(utils.CleanText(string(body)), snippetWidth)
}

func (c *Crawler) report(message string) {
	safeReport(c.sink, c.log, message)
}

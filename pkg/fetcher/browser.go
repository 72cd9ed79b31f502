package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// BrowserOptions configures headless rendering.
type BrowserOptions struct {
	NavigationTimeout time.Duration
	ScrollPause       time.Duration
	MaxScrolls        int
	Headless          bool
	UserAgent         string
	// LaunchTimeout bounds starting Chromium, including a first-run download.
	LaunchTimeout time.Duration
	Logger        logrus.FieldLogger
}

// BrowserFetcher renders pages in headless Chromium and scrolls them until
// no more content loads. Head requests go through the wrapped HTTPFetcher.
type BrowserFetcher struct {
	opts BrowserOptions
	http *HTTPFetcher
	log  logrus.FieldLogger

	mu       sync.Mutex
	launch   *launcher.Launcher
	browser  *rod.Browser
	launchFn func(ctx context.Context) (*rod.Browser, *launcher.Launcher, error)
}

// NewBrowserFetcher returns a BrowserFetcher. The browser is launched by
// Start, or lazily on first Fetch; a failed launch is retried on the next
// Fetch.
func NewBrowserFetcher(opts BrowserOptions, head *HTTPFetcher) *BrowserFetcher {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.ScrollPause <= 0 {
		opts.ScrollPause = 2 * time.Second
	}
	if opts.MaxScrolls <= 0 {
		opts.MaxScrolls = 20
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	b := &BrowserFetcher{opts: opts, http: head, log: opts.Logger}
	b.launchFn = b.launchChromium
	return b
}

// Start launches the browser now, so a crawl can fail before its first page.
func (b *BrowserFetcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.opts.LaunchTimeout)
	defer cancel()
	_, err := b.start(ctx)
	return err
}

// Head delegates to the HTTP transport.
func (b *BrowserFetcher) Head(ctx context.Context, rawURL string) (*Response, error) {
	return b.http.Head(ctx, rawURL)
}

// Fetch navigates to rawURL, waits for load, scrolls to the bottom
// repeatedly and returns the rendered document.
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	browser, err := b.ensure()
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("open page: %w", err)}
	}
	defer func() { _ = page.Close() }()

	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			b.log.WithField("url", rawURL).Debugf("set user agent: %v", err)
		}
	}

	nav := page.Context(ctx).Timeout(b.opts.NavigationTimeout)
	if err := nav.Navigate(rawURL); err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("navigate: %w", err)}
	}
	if err := nav.WaitLoad(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("wait load: %w", err)}
	}

	b.scroll(ctx, page.Context(ctx), rawURL)

	html, err := page.HTML()
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("read html: %w", err)}
	}

	final := rawURL
	if info, err := page.Info(); err == nil && info.URL != "" {
		final = info.URL
	}

	return &Response{
		URL:        rawURL,
		FinalURL:   final,
		StatusCode: 200,
		Header:     map[string][]string{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(html),
	}, nil
}

// scroll keeps scrolling until document height stops growing or the scroll
// budget runs out.
func (b *BrowserFetcher) scroll(ctx context.Context, page *rod.Page, rawURL string) {
	last, err := scrollHeight(page)
	if err != nil {
		return
	}
	for i := 0; i < b.opts.MaxScrolls; i++ {
		if _, err := page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
			return
		}
		select {
		case <-time.After(b.opts.ScrollPause):
		case <-ctx.Done():
			return
		}
		height, err := scrollHeight(page)
		if err != nil || height == last {
			return
		}
		last = height
	}
	b.log.WithField("url", rawURL).Debugf("scroll budget of %d exhausted", b.opts.MaxScrolls)
}

func scrollHeight(page *rod.Page) (int, error) {
	res, err := page.Eval(`() => document.body ? document.body.scrollHeight : 0`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// ensure returns the running browser, launching it under its own deadline
// rather than the page's.
func (b *BrowserFetcher) ensure() (*rod.Browser, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.LaunchTimeout)
	defer cancel()
	return b.start(ctx)
}

func (b *BrowserFetcher) start(ctx context.Context) (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}
	browser, l, err := b.launchFn(ctx)
	if err != nil {
		b.log.WithError(err).Warn("browser launch failed")
		return nil, err
	}
	b.launch = l
	b.browser = browser
	return browser, nil
}

func (b *BrowserFetcher) launchChromium(ctx context.Context) (*rod.Browser, *launcher.Launcher, error) {
	l := launcher.New().Leakless(false).NoSandbox(true).Headless(b.opts.Headless).
		Set("disable-gpu").Set("disable-dev-shm-usage")
	if bin := strings.TrimSpace(os.Getenv("ROD_BROWSER")); bin != "" {
		l = l.Bin(bin)
	} else if bin, ok := launcher.LookPath(); ok {
		l = l.Bin(bin)
	} else {
		dl := launcher.NewBrowser()
		dl.Context = ctx
		dl.Logger = log.New(io.Discard, "", 0)
		path, err := dl.Get()
		if err != nil {
			return nil, nil, fmt.Errorf("download browser: %w", err)
		}
		l = l.Bin(path)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, nil, fmt.Errorf("connect browser: %w", err)
	}
	return browser, l, nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.launch != nil {
		b.launch.Kill()
		b.launch = nil
	}
	return err
}

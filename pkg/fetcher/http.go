package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0",
}

func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

var retryStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent         string
	Timeout           time.Duration
	MaxBodyBytes      int64
	MaxRetries        int
	BackoffBase       time.Duration
	RequestsPerSecond float64
	Logger            logrus.FieldLogger
}

// HTTPFetcher implements Fetcher on net/http with retries and a rate limit.
type HTTPFetcher struct {
	client       *http.Client
	noRedirect   *http.Client
	userAgent    string
	timeout      time.Duration
	maxBodyBytes int64
	maxRetries   int
	backoff      time.Duration
	limiter      *rate.Limiter
	log          logrus.FieldLogger
}

// NewHTTPFetcher constructs an HTTP fetcher using the provided options.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 * 1024 * 1024
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &HTTPFetcher{
		client: &http.Client{Transport: transport, Jar: jar},
		noRedirect: &http.Client{
			Transport: transport,
			Jar:       jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent:    opts.UserAgent,
		timeout:      opts.Timeout,
		maxBodyBytes: opts.MaxBodyBytes,
		maxRetries:   opts.MaxRetries,
		backoff:      opts.BackoffBase,
		limiter:      limiter,
		log:          opts.Logger,
	}
}

// Client exposes the redirect-following client (robots.txt, sitemaps).
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

// Fetch downloads rawURL, following redirects.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	return f.do(ctx, f.client, http.MethodGet, rawURL)
}

// Head requests rawURL's headers without following redirects.
func (f *HTTPFetcher) Head(ctx context.Context, rawURL string) (*Response, error) {
	return f.do(ctx, f.noRedirect, http.MethodHead, rawURL)
}

func (f *HTTPFetcher) do(ctx context.Context, client *http.Client, method, rawURL string) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		if attempt > 0 {
			wait := f.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, &FetchError{URL: rawURL, Err: ctx.Err()}
			}
		}

		resp, err := f.once(ctx, client, method, rawURL)
		if err == nil && !retryStatuses[resp.StatusCode] {
			return resp, nil
		}
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
		} else {
			lastErr = &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
			if attempt == f.maxRetries-1 {
				return resp, nil
			}
		}
		f.log.WithFields(logrus.Fields{"url": rawURL, "method": method, "attempt": attempt + 1}).
			Debugf("retrying: %v", lastErr)
	}
	return nil, lastErr
}

func (f *HTTPFetcher) once(ctx context.Context, client *http.Client, method, rawURL string) (*Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("build request: %w", err)}
	}
	ua := f.userAgent
	if ua == "" {
		ua = randomUserAgent()
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	out := &Response{
		URL:        rawURL,
		FinalURL:   rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		out.FinalURL = resp.Request.URL.String()
	}
	if method == http.MethodHead {
		return out, nil
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}
	out.Body = toUTF8(body, resp.Header.Get("Content-Type"))
	return out, nil
}

// toUTF8 transcodes an HTML body using the charset from the header, a BOM
// or a meta tag. Undecodable bodies are returned unchanged.
func toUTF8(body []byte, contentType string) []byte {
	if len(body) == 0 {
		return body
	}
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || name == "windows-1252" && isASCII(body) {
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, errors.New("response body exceeds size limit")
	}
	return body, nil
}

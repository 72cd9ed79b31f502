// Package fetcher provides the page transports used by the crawler and the
// redirect resolver.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Response is a fetched page or the head of one.
type Response struct {
	URL        string
	FinalURL   string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Location returns the redirect target header, if any.
func (r *Response) Location() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return strings.TrimSpace(r.Header.Get("Location"))
}

// IsRedirect reports a 3xx status carrying a Location header.
func (r *Response) IsRedirect() bool {
	return r != nil && r.StatusCode >= 300 && r.StatusCode < 400 && r.Location() != ""
}

// IsHTML reports whether the response declares an HTML-like content type.
// A missing header counts as HTML.
func (r *Response) IsHTML() bool {
	if r == nil || r.Header == nil {
		return true
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return true
	}
	mimeType := strings.TrimSpace(strings.Split(strings.ToLower(ct), ";")[0])
	switch mimeType {
	case "text/html", "application/xhtml+xml", "application/xhtml", "text/xml", "application/xml", "text/plain":
		return true
	}
	return false
}

// Fetcher is the transport contract.
//
// Fetch issues a GET and follows HTTP redirects; FinalURL is where it
// landed. Head issues a HEAD and never follows redirects.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
	Head(ctx context.Context, url string) (*Response, error)
}

// FetchError wraps a transport failure or an HTTP error status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 && e.Err == nil {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrNotHTML marks a response whose content type is not a web page.
var ErrNotHTML = errors.New("response is not an html document")

// CheckPage turns an unusable page response into a *FetchError.
func CheckPage(resp *Response) error {
	if resp == nil {
		return &FetchError{Err: errors.New("nil response")}
	}
	if resp.StatusCode >= 400 {
		return &FetchError{URL: resp.URL, StatusCode: resp.StatusCode}
	}
	if !resp.IsHTML() {
		return &FetchError{URL: resp.URL, StatusCode: resp.StatusCode, Err: ErrNotHTML}
	}
	return nil
}

package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"

	"github.com/amosWeiskopf/linktrace/pkg/utils"
)

// ParseError reports HTML that could not be parsed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Link is an outgoing reference found on a page. URL keeps the full
// query; Key is the identity under the extractor's query policy.
type Link struct {
	URL       string
	Key       string
	Raw       string
	Text      string
	Element   string
	Attribute string
	InScope   bool
}

// Redirect is a target the page itself redirects to.
type Redirect struct {
	URL       string
	Key       string
	Raw       string
	Element   string
	Attribute string
}

// Page holds what one document yielded.
type Page struct {
	URL       string
	Links     []Link
	Redirects []Redirect
}

// InScopeLinks returns the URLs of the page's in-scope links.
func (p *Page) InScopeLinks() []string {
	var out []string
	for _, l := range p.Links {
		if l.InScope {
			out = append(out, l.URL)
		}
	}
	return out
}

// Extractor handles link and redirect extraction from HTML
type Extractor struct {
	scope  *Scope
	policy utils.QueryPolicy
}

// New creates a new Extractor instance
func New(scope *Scope, policy utils.QueryPolicy) *Extractor {
	return &Extractor{scope: scope, policy: policy}
}

// Scope returns the scope policy in use.
func (e *Extractor) Scope() *Scope { return e.scope }

// Key returns the identity of an absolute URL under the query policy.
func (e *Extractor) Key(absURL string) string {
	if key, ok := utils.NormalizeURL(absURL, "", e.policy); ok {
		return key
	}
	return absURL
}

// Extract parses body and returns its normalized anchor links, tagged with
// scope, and the page's own redirect targets.
func (e *Extractor) Extract(body []byte, baseURL string) (*Page, error) {
	doc, err := parse(body, baseURL)
	if err != nil {
		return nil, err
	}

	page := &Page{URL: baseURL}
	seen := make(map[string]struct{})
	doc.Find("a[href], area[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := utils.NormalizeURL(href, baseURL, utils.QueryPreserve)
		if !ok {
			return
		}
		key := e.Key(abs)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		page.Links = append(page.Links, Link{
			URL:       abs,
			Key:       key,
			Raw:       href,
			Text:      utils.CleanText(s.Text()),
			Element:   goquery.NodeName(s),
			Attribute: "href",
			InScope:   e.scope != nil && e.scope.InScope(abs),
		})
	})

	page.Redirects = e.redirects(doc, baseURL)
	return page, nil
}

// BodyRedirect returns the first content-level redirect in body: the meta
// refresh target, else the highest-priority script idiom. The target is
// resolved against baseURL. how names the mechanism that matched.
func BodyRedirect(body []byte, baseURL string) (target, how string) {
	doc, err := parse(body, baseURL)
	if err != nil {
		return "", ""
	}
	if raw := metaRefresh(doc); raw != "" {
		if abs, ok := utils.NormalizeURL(raw, baseURL, utils.QueryPreserve); ok {
			return abs, "meta_refresh"
		}
	}
	if raw, name := firstScriptTarget(scriptBodies(doc)); raw != "" {
		if abs, ok := utils.NormalizeURL(raw, baseURL, utils.QueryPreserve); ok {
			return abs, name
		}
	}
	return "", ""
}

func (e *Extractor) redirects(doc *goquery.Document, baseURL string) []Redirect {
	var candidates []Redirect
	if raw := metaRefresh(doc); raw != "" {
		candidates = append(candidates, Redirect{Raw: raw, Element: "meta", Attribute: "content"})
	}
	for _, script := range scriptBodies(doc) {
		for _, raw := range ScriptTargets(script) {
			candidates = append(candidates, Redirect{Raw: raw, Element: "script", Attribute: "text"})
		}
	}
	candidates = append(candidates, queryRedirects(baseURL)...)

	var out []Redirect
	seen := make(map[string]struct{})
	for _, c := range candidates {
		abs, ok := utils.NormalizeURL(c.Raw, baseURL, utils.QueryPreserve)
		if !ok {
			continue
		}
		key := e.Key(abs)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		c.URL = abs
		c.Key = key
		out = append(out, c)
	}
	return out
}

// ReadableText extracts the main text of an HTML page, falling back to all
// text nodes when trafilatura finds nothing.
func ReadableText(body []byte) string {
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{})
	if err == nil && result != nil && strings.TrimSpace(result.ContentText) != "" {
		return utils.CleanText(result.ContentText)
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	gq := goquery.NewDocumentFromNode(doc)
	gq.Find("script, style, noscript").Remove()
	return utils.CleanText(gq.Text())
}

func parse(body []byte, baseURL string) (*goquery.Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{URL: baseURL, Err: err}
	}
	return goquery.NewDocumentFromNode(root), nil
}

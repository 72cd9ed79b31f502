package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// scriptRedirect is one row of the script navigation table. Pattern must
// capture the target in group 1.
type scriptRedirect struct {
	Name    string
	Pattern *regexp.Regexp
}

// scriptRedirects lists the JavaScript navigation idioms recognised in
// <script> bodies, in priority order. Nothing outside this table is
// interpreted.
//
//	1 location.replace  (window|document|top|self).location.replace("…")
//	2 location.assign   (window|document|top|self).location.assign("…")
//	3 window.location   window.location = "…", window.location.href = "…"
//	4 document.location document.location = "…", document.location.href = "…"
//	5 top.location      top|self|parent .location[.href] = "…"
//	6 location.href     bare location.href = "…"
//	7 setTimeout        setTimeout("location.href='…'", n)
var scriptRedirects = []scriptRedirect{
	{Name: "location.replace", Pattern: regexp.MustCompile(`(?:(?:window|document|top|self)\.)?location\.replace\(\s*["']([^"']+)["']`)},
	{Name: "location.assign", Pattern: regexp.MustCompile(`(?:(?:window|document|top|self)\.)?location\.assign\(\s*["']([^"']+)["']`)},
	{Name: "window.location", Pattern: regexp.MustCompile(`window\.location(?:\.href)?\s*=\s*["']([^"']+)["']`)},
	{Name: "document.location", Pattern: regexp.MustCompile(`document\.location(?:\.href)?\s*=\s*["']([^"']+)["']`)},
	{Name: "top.location", Pattern: regexp.MustCompile(`(?:top|self|parent)\.location(?:\.href)?\s*=\s*["']([^"']+)["']`)},
	{Name: "location.href", Pattern: regexp.MustCompile(`(?:^|[^.\w])location\.href\s*=\s*["']([^"']+)["']`)},
	{Name: "setTimeout", Pattern: regexp.MustCompile(`setTimeout\(\s*["']\s*(?:window\.)?location(?:\.href)?\s*=\s*\\?["']([^"'\\]+)`)},
}

// redirectQueryParams are query keys whose value is a redirect target.
var redirectQueryParams = []string{"redirect_to", "redirect", "url", "link", "goto", "target", "ued"}

// MetaRefreshURL extracts the target from a meta refresh content value
// such as "0; URL='https://example.com'".
func MetaRefreshURL(content string) string {
	idx := strings.Index(strings.ToLower(content), "url=")
	if idx < 0 {
		return ""
	}
	return strings.Trim(strings.TrimSpace(content[idx+4:]), `'"`)
}

// ScriptTargets returns every target in script matched by the navigation
// table, in table order, without duplicates.
func ScriptTargets(script string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, sr := range scriptRedirects {
		for _, m := range sr.Pattern.FindAllStringSubmatch(script, -1) {
			target := strings.TrimSpace(m[1])
			if target == "" {
				continue
			}
			if _, dup := seen[target]; dup {
				continue
			}
			seen[target] = struct{}{}
			out = append(out, target)
		}
	}
	return out
}

// firstScriptTarget returns the highest-priority target across scripts.
func firstScriptTarget(scripts []string) (string, string) {
	for _, sr := range scriptRedirects {
		for _, s := range scripts {
			if m := sr.Pattern.FindStringSubmatch(s); m != nil && strings.TrimSpace(m[1]) != "" {
				return strings.TrimSpace(m[1]), sr.Name
			}
		}
	}
	return "", ""
}

func metaRefresh(doc *goquery.Document) string {
	var target string
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		equiv, _ := s.Attr("http-equiv")
		if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			return true
		}
		content, _ := s.Attr("content")
		target = MetaRefreshURL(content)
		return target == ""
	})
	return target
}

func scriptBodies(doc *goquery.Document) []string {
	var scripts []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if text := s.Text(); strings.TrimSpace(text) != "" {
			scripts = append(scripts, text)
		}
	})
	return scripts
}

// queryRedirects returns decoded redirect parameter values on pageURL.
func queryRedirects(pageURL string) []Redirect {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	query := u.Query()
	var out []Redirect
	for _, key := range redirectQueryParams {
		vals, ok := query[key]
		if !ok || len(vals) == 0 || vals[0] == "" {
			continue
		}
		value := vals[0]
		if strings.Contains(value, "%") {
			if decoded, err := url.QueryUnescape(value); err == nil {
				value = decoded
			}
		}
		out = append(out, Redirect{Raw: value, Element: "query", Attribute: key})
	}
	return out
}

package crawler

import (
	"bytes"
	"context"
	"errors"

	sitemap "github.com/oxffaa/gopher-parse-sitemap"

	"github.com/amosWeiskopf/linktrace/pkg/fetcher"
)

// maxSitemapURLs caps how many entries one sitemap tree may contribute.
const maxSitemapURLs = 1000

var errSitemapFull = errors.New("sitemap url limit reached")

// sitemapURLs reads <origin>/sitemap.xml, descending one level into a
// sitemap index, and returns the page locations it lists.
func sitemapURLs(ctx context.Context, f fetcher.Fetcher, origin string) ([]string, error) {
	var out []string
	collect := func(e sitemap.Entry) error {
		if len(out) >= maxSitemapURLs {
			return errSitemapFull
		}
		if loc := e.GetLocation(); loc != "" {
			out = append(out, loc)
		}
		return nil
	}

	body, err := fetchSitemap(ctx, f, origin+"/sitemap.xml")
	if err != nil {
		return nil, err
	}

	var children []string
	if err := sitemap.ParseIndex(bytes.NewReader(body), func(e sitemap.IndexEntry) error {
		if loc := e.GetLocation(); loc != "" {
			children = append(children, loc)
		}
		return nil
	}); err == nil && len(children) > 0 {
		for _, child := range children {
			childBody, err := fetchSitemap(ctx, f, child)
			if err != nil {
				continue
			}
			if err := sitemap.Parse(bytes.NewReader(childBody), collect); errors.Is(err, errSitemapFull) {
				break
			}
		}
		return out, nil
	}

	if err := sitemap.Parse(bytes.NewReader(body), collect); err != nil && !errors.Is(err, errSitemapFull) {
		return out, err
	}
	return out, nil
}

func fetchSitemap(ctx context.Context, f fetcher.Fetcher, loc string) ([]byte, error) {
	resp, err := f.Fetch(ctx, loc)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &fetcher.FetchError{URL: loc, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

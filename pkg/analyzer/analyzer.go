package analyzer

import (
	"sort"

	"github.com/amosWeiskopf/linktrace/internal/models"
	"github.com/amosWeiskopf/linktrace/pkg/utils"
)

// Analyzer condenses crawl results into a Summary
type Analyzer struct {
	config *Config
}

// Config holds analyzer configuration
type Config struct {
	// TopDomains caps the matched-domain ranking
	TopDomains int
	// IncludeRedirects lists resolved redirect pairs in the summary
	IncludeRedirects bool
}

// New creates a new Analyzer instance
func New() *Analyzer {
	return &Analyzer{
		config: &Config{
			TopDomains:       10,
			IncludeRedirects: true,
		},
	}
}

// NewWithConfig creates an Analyzer with custom configuration
func NewWithConfig(config *Config) *Analyzer {
	return &Analyzer{config: config}
}

// Analyze summarises a crawl. redirects maps source URLs to their terminal
// URL; identity entries are ignored.
func (a *Analyzer) Analyze(res *models.CrawlResult, redirects map[string]string) *models.Summary {
	summary := &models.Summary{
		Seed:         res.Seed,
		Domain:       res.Domain,
		State:        res.State,
		PagesCrawled: res.PagesCrawled,
		TotalMatches: len(res.Results),
		GeneratedAt:  res.FinishedAt,
	}
	summary.KeywordsFound = summary.TotalMatches > 0

	byKeyword := make(map[string]int)
	byLocation := make(map[string]int)
	byDomain := make(map[string]int)
	for _, r := range res.Results {
		for _, kw := range r.Keywords {
			byKeyword[kw]++
		}
		byLocation[string(r.LocationType)]++
		if d := utils.RegistrableDomain(utils.Hostname(r.MatchedURL)); d != "" {
			byDomain[d]++
		}
	}

	summary.ByKeyword = ranked(byKeyword, 0)
	summary.TopDomains = ranked(byDomain, a.config.TopDomains)

	// fixed order keeps reports comparable between runs
	for _, loc := range []models.LocationType{models.LocationDirectURL, models.LocationRedirectedURL, models.LocationPageContent} {
		if n := byLocation[string(loc)]; n > 0 {
			summary.ByLocation = append(summary.ByLocation, models.Count{Label: string(loc), Count: n})
		}
	}

	if a.config.IncludeRedirects {
		summary.Redirects = redirectPairs(redirects)
	}
	return summary
}

// ranked orders counts by descending count, then label. limit <= 0 keeps all.
func ranked(counts map[string]int, limit int) []models.Count {
	out := make([]models.Count, 0, len(counts))
	for label, n := range counts {
		out = append(out, models.Count{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func redirectPairs(redirects map[string]string) []models.RedirectPair {
	var out []models.RedirectPair
	for from, to := range redirects {
		if from == to {
			continue
		}
		out = append(out, models.RedirectPair{From: from, To: to})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}

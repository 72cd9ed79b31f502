package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/linktrace/internal/models"
)

func result(t *testing.T, matched string, loc models.LocationType, kws ...string) models.Result {
	t.Helper()
	r, err := models.NewResult("https://seed.com/", matched, kws, loc, "a", "href", "", time.Time{})
	require.NoError(t, err)
	return r
}

func TestAnalyze(t *testing.T) {
	finished := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	res := &models.CrawlResult{
		Seed:         "https://seed.com/",
		Domain:       "seed.com",
		State:        "completed",
		PagesCrawled: 7,
		FinishedAt:   finished,
		Results: []models.Result{
			result(t, "https://www.target.com/gowithguide", models.LocationRedirectedURL, "gowithguide"),
			result(t, "https://shop.target.com/go-with-guide", models.LocationDirectURL, "go-with-guide"),
			result(t, "https://seed.com/blog/a", models.LocationPageContent, "gowithguide", "go-with-guide"),
		},
	}
	redirects := map[string]string{
		"https://bit.ly/x":     "https://www.target.com/gowithguide",
		"https://seed.com/go":  "https://seed.com/go",
		"https://a.trk.com/go": "https://b.com/",
	}

	s := New().Analyze(res, redirects)

	assert.Equal(t, 3, s.TotalMatches)
	assert.True(t, s.KeywordsFound)
	assert.Equal(t, 7, s.PagesCrawled)
	assert.Equal(t, finished, s.GeneratedAt)
	assert.Equal(t, []models.Count{{Label: "go-with-guide", Count: 2}, {Label: "gowithguide", Count: 2}}, s.ByKeyword)
	assert.Equal(t, []models.Count{
		{Label: "direct_url", Count: 1},
		{Label: "redirected_url", Count: 1},
		{Label: "page_content", Count: 1},
	}, s.ByLocation)
	assert.Equal(t, []models.Count{{Label: "target.com", Count: 2}, {Label: "seed.com", Count: 1}}, s.TopDomains)
	assert.Equal(t, []models.RedirectPair{
		{From: "https://a.trk.com/go", To: "https://b.com/"},
		{From: "https://bit.ly/x", To: "https://www.target.com/gowithguide"},
	}, s.Redirects)
}

func TestAnalyzeEmpty(t *testing.T) {
	s := NewWithConfig(&Config{TopDomains: 1}).Analyze(&models.CrawlResult{State: "stopped"}, nil)
	assert.False(t, s.KeywordsFound)
	assert.Empty(t, s.ByKeyword)
	assert.Empty(t, s.Redirects)
	assert.Equal(t, "stopped", s.State)
}

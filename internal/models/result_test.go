package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResultRequiresKeyword(t *testing.T) {
	_, err := NewResult("https://a.com", "https://a.com", nil, LocationDirectURL, "a", "href", "", time.Now())
	assert.ErrorIs(t, err, ErrNoKeywords)
}

func TestNewResultCopiesKeywords(t *testing.T) {
	kw := []string{"gowithguide"}
	r, err := NewResult("https://a.com", "https://a.com/x", kw, LocationDirectURL, "a", "href", "", time.Now())
	require.NoError(t, err)
	kw[0] = "changed"
	assert.Equal(t, []string{"gowithguide"}, r.Keywords)
}

func TestResultRecord(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	r, err := NewResult(
		"https://site.com/p",
		"https://target.com/gowithguide",
		[]string{"gowithguide", "go with guide"},
		LocationRedirectedURL,
		"a", "href",
		strings.Repeat("x", 500),
		at,
	)
	require.NoError(t, err)

	rec := r.Record()
	assert.Equal(t, "gowithguide, go with guide", rec.Keyword)
	assert.Equal(t, "redirected_url", rec.LocationType)
	assert.Equal(t, "2024-03-09 14:05:07", rec.Timestamp)
	assert.Len(t, rec.ContentSample, ContentSampleLimit)
	assert.Len(t, rec.Row(), len(RecordHeader))
}

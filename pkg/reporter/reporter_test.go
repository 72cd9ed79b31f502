package reporter

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/amosWeiskopf/linktrace/internal/models"
)

func sampleRecords() []models.Record {
	return []models.Record{
		{
			SourceURL:     "https://seed.com/",
			MatchedURL:    "https://target.com/gowithguide",
			Keyword:       "gowithguide",
			LocationType:  "redirected_url",
			Element:       "a",
			Attribute:     "href",
			ContentSample: "Redirected from: https://bit.ly/x to: https://target.com/gowithguide",
			Timestamp:     "2024-05-01 12:00:00",
		},
		{
			SourceURL:     "https://seed.com/blog",
			MatchedURL:    "https://seed.com/blog",
			Keyword:       "gowithguide, tours",
			LocationType:  "page_content",
			Element:       "page_content",
			Attribute:     "text",
			ContentSample: "a | pipe and <b>tag</b>",
			Timestamp:     "2024-05-01 12:00:01",
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{"", FormatCSV, false},
		{"JSON", FormatJSON, false},
		{"excel", FormatXLSX, false},
		{"md", FormatMarkdown, false},
		{"html", FormatHTML, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "crawl_results.md", DefaultFilename(FormatMarkdown))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New().Write(&buf, sampleRecords(), FormatCSV))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.RecordHeader, rows[0])
	assert.Equal(t, "gowithguide, tours", rows[2][2])
	assert.Equal(t, "2024-05-01 12:00:00", rows[1][7])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	report := &Report{
		Summary: &models.Summary{Domain: "seed.com", TotalMatches: 2},
		Records: sampleRecords(),
	}
	require.NoError(t, New().WriteReport(&buf, report, FormatJSON))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, report.Records, decoded.Records)
	require.NotNil(t, decoded.Summary)
	assert.Equal(t, "seed.com", decoded.Summary.Domain)
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New().Write(&buf, nil, FormatJSON))
	assert.Contains(t, buf.String(), `"records": []`)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	report := &Report{
		Summary: &models.Summary{Seed: "https://seed.com/", Domain: "seed.com", TotalMatches: 2},
		Records: sampleRecords(),
	}
	require.NoError(t, New().WriteReport(&buf, report, FormatXLSX))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.RecordHeader, rows[0])
	assert.Equal(t, "https://target.com/gowithguide", rows[1][1])

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, []string{"domain", "seed.com"}, summary[1])
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	report := &Report{
		Summary: &models.Summary{
			Domain:    "seed.com",
			ByKeyword: []models.Count{{Label: "gowithguide", Count: 2}},
			Redirects: []models.RedirectPair{{From: "https://bit.ly/x", To: "https://target.com/gowithguide"}},
		},
		Records: sampleRecords(),
	}
	require.NoError(t, New().WriteReport(&buf, report, FormatMarkdown))

	out := buf.String()
	assert.Contains(t, out, "# Link Report - seed.com")
	assert.Contains(t, out, "- gowithguide: 2")
	assert.Contains(t, out, "- https://bit.ly/x -> https://target.com/gowithguide")
	assert.Contains(t, out, `a \| pipe`)
}

func TestWriteHTMLEscapes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New().Write(&buf, sampleRecords(), FormatHTML))
	assert.Contains(t, buf.String(), "&lt;b&gt;tag&lt;/b&gt;")
	assert.NotContains(t, buf.String(), "<b>tag</b>")
}

func TestWriteUnknownFormat(t *testing.T) {
	assert.Error(t, New().Write(&bytes.Buffer{}, nil, Format("pdf")))
}

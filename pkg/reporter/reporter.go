package reporter

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/xuri/excelize/v2"

	"github.com/amosWeiskopf/linktrace/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Format is an export format
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatXLSX     Format = "xlsx"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Formats lists the supported formats
var Formats = []Format{FormatCSV, FormatJSON, FormatXLSX, FormatMarkdown, FormatHTML}

// ParseFormat accepts a format name or common alias
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", "":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unsupported format: %s", s)
}

// Extension returns the file extension for f, without the dot
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// DefaultFilename is the output name used when none is given
func DefaultFilename(f Format) string {
	return "crawl_results." + f.Extension()
}

// Report is what gets exported: the result rows and, optionally, a summary
type Report struct {
	Summary *models.Summary `json:"summary,omitempty"`
	Records []models.Record `json:"records"`
}

// Reporter handles report generation in various formats
type Reporter struct {
	sheet string
}

// New creates a new Reporter instance
func New() *Reporter {
	return &Reporter{sheet: "Results"}
}

// Write exports records in the given format
func (r *Reporter) Write(w io.Writer, records []models.Record, format Format) error {
	return r.WriteReport(w, &Report{Records: records}, format)
}

// WriteReport exports a full report in the given format
func (r *Reporter) WriteReport(w io.Writer, report *Report, format Format) error {
	if report.Records == nil {
		report.Records = []models.Record{}
	}
	switch format {
	case FormatCSV:
		return r.writeCSV(w, report.Records)
	case FormatJSON:
		return r.writeJSON(w, report)
	case FormatXLSX:
		return r.writeXLSX(w, report)
	case FormatMarkdown:
		return r.writeMarkdown(w, report)
	case FormatHTML:
		return r.writeHTML(w, report)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func (r *Reporter) writeCSV(w io.Writer, records []models.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.RecordHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(rec.Row()); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r *Reporter) writeJSON(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return nil
}

func (r *Reporter) writeXLSX(w io.Writer, report *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", r.sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	header := make([]interface{}, len(models.RecordHeader))
	for i, h := range models.RecordHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(r.sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(r.sheet, "A1", last, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, rec := range report.Records {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := rec.Row()
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(r.sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(r.sheet, "A", "B", 50)
	_ = f.SetColWidth(r.sheet, "G", "G", 80)

	if s := report.Summary; s != nil {
		if err := r.writeSummarySheet(f, s, bold); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (r *Reporter) writeSummarySheet(f *excelize.File, s *models.Summary, bold int) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to add summary sheet: %w", err)
	}
	rows := [][]interface{}{
		{"seed", s.Seed},
		{"domain", s.Domain},
		{"state", s.State},
		{"pages_crawled", s.PagesCrawled},
		{"total_matches", s.TotalMatches},
	}
	for _, c := range s.ByKeyword {
		rows = append(rows, []interface{}{"keyword: " + c.Label, c.Count})
	}
	for _, c := range s.ByLocation {
		rows = append(rows, []interface{}{"location: " + c.Label, c.Count})
	}
	for _, c := range s.TopDomains {
		rows = append(rows, []interface{}{"domain: " + c.Label, c.Count})
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	_ = f.SetCellStyle(sheet, "A1", fmt.Sprintf("A%d", len(rows)), bold)
	_ = f.SetColWidth(sheet, "A", "A", 40)
	return nil
}

// writeMarkdown renders a summary section (when present) and a results table
func (r *Reporter) writeMarkdown(w io.Writer, report *Report) error {
	var b strings.Builder

	if s := report.Summary; s != nil {
		fmt.Fprintf(&b, "# Link Report - %s\n\n", s.Domain)
		if !s.GeneratedAt.IsZero() {
			fmt.Fprintf(&b, "**Generated:** %s\n\n", s.GeneratedAt.Format(models.TimestampLayout))
		}
		fmt.Fprintf(&b, "- **Seed:** %s\n", s.Seed)
		fmt.Fprintf(&b, "- **State:** %s\n", s.State)
		fmt.Fprintf(&b, "- **Pages crawled:** %d\n", s.PagesCrawled)
		fmt.Fprintf(&b, "- **Matches:** %d\n\n", s.TotalMatches)

		writeCounts(&b, "Keywords", s.ByKeyword)
		writeCounts(&b, "Locations", s.ByLocation)
		writeCounts(&b, "Matched domains", s.TopDomains)

		if len(s.Redirects) > 0 {
			b.WriteString("## Resolved redirects\n\n")
			for _, p := range s.Redirects {
				fmt.Fprintf(&b, "- %s -> %s\n", p.From, p.To)
			}
			b.WriteString("\n")
		}
		b.WriteString("## Results\n\n")
	}

	if len(report.Records) == 0 {
		b.WriteString("No matches found.\n")
	} else {
		b.WriteString("| " + strings.Join(models.RecordHeader, " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", len(models.RecordHeader)) + "\n")
		for _, rec := range report.Records {
			cells := rec.Row()
			for i, c := range cells {
				cells[i] = markdownCell(c)
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeCounts(b *strings.Builder, title string, counts []models.Count) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, c := range counts {
		fmt.Fprintf(b, "- %s: %d\n", c.Label, c.Count)
	}
	b.WriteString("\n")
}

func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Link Report{{with .Summary}} - {{.Domain}}{{end}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 2rem;
            border-radius: 10px;
            margin-bottom: 2rem;
        }
        .card {
            background: white;
            border-radius: 10px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
            box-shadow: 0 2px 10px rgba(0,0,0,0.1);
        }
        table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
        th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid #eee; word-break: break-all; }
        th { background: #f8f9fa; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Link Report</h1>
        {{with .Summary}}<p>{{.Seed}} &middot; {{.State}} &middot; {{.PagesCrawled}} pages &middot; {{.TotalMatches}} matches</p>{{end}}
    </div>
    {{with .Summary}}
    <div class="card">
        <h2>Keywords</h2>
        <ul>{{range .ByKeyword}}<li>{{.Label}}: {{.Count}}</li>{{end}}</ul>
        <h2>Matched domains</h2>
        <ul>{{range .TopDomains}}<li>{{.Label}}: {{.Count}}</li>{{end}}</ul>
    </div>
    {{end}}
    <div class="card">
        <h2>Results</h2>
        {{if .Records}}
        <table>
            <tr><th>Source</th><th>Matched URL</th><th>Keyword</th><th>Location</th><th>Content</th><th>Time</th></tr>
            {{range .Records}}
            <tr><td>{{.SourceURL}}</td><td>{{.MatchedURL}}</td><td>{{.Keyword}}</td><td>{{.LocationType}}</td><td>{{.ContentSample}}</td><td>{{.Timestamp}}</td></tr>
            {{end}}
        </table>
        {{else}}
        <p>No matches found.</p>
        {{end}}
    </div>
</body>
</html>
`))

func (r *Reporter) writeHTML(w io.Writer, report *Report) error {
	if err := htmlTemplate.Execute(w, report); err != nil {
		return fmt.Errorf("failed to render html: %w", err)
	}
	return nil
}

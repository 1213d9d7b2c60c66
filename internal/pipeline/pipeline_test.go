package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/IshaanNene/igscrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func validReport() *types.Report {
	return &types.Report{
		Inspector:    "exampleoig",
		InspectorURL: "https://oig.example.gov",
		Agency:       "example",
		AgencyName:   "Example Agency",
		ReportID:     "OIG-23-01",
		URL:          "https://oig.example.gov/reports/OIG-23-01.pdf",
		Title:        "Audit of the Travel Card Program",
		PublishedOn:  "2023-09-30",
	}
}

func TestPipelineBasic(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})
	p.Use(&DefaultsMiddleware{Type: "audit"})

	r := validReport()
	r.Title = "  Audit of the Travel Card Program \n"
	r.ReportID = " OIG-23-01 "

	result, err := p.Process(r)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if result.Title != "Audit of the Travel Card Program" {
		t.Errorf("expected trimmed title, got %q", result.Title)
	}
	if result.ReportID != "OIG-23-01" {
		t.Errorf("expected trimmed id, got %q", result.ReportID)
	}
	if result.Type != "audit" || result.FileType != "pdf" {
		t.Errorf("defaults not applied: type=%q file_type=%q", result.Type, result.FileType)
	}
	if p.Len() != 2 {
		t.Errorf("Len = %d", p.Len())
	}
}

func TestPipelineWrapsErrors(t *testing.T) {
	p := New(testLogger)
	p.Use(&ValidateMiddleware{Now: func() time.Time { return testNow }})

	r := validReport()
	r.Title = ""
	_, err := p.Process(r)

	var pe *types.PipelineError
	if !errors.As(err, &pe) || pe.Stage != "validate" {
		t.Fatalf("expected PipelineError at validate, got %v", err)
	}
	var ve *types.ValidationError
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("expected ValidationError on title, got %v", err)
	}
}

func TestSanitizeReportID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"OIG-23-01", "OIG-23-01"},
		{"A-07-19/00123", "A-07-19-00123"},
		{"Report No. 17 04", "Report-No.-17-04"},
		{"  ./weird// id?  ", "weird-id"},
		{"IG:2020:5", "IG-2020-5"},
	}
	for _, tt := range tests {
		if got := SanitizeReportID(tt.in); got != tt.want {
			t.Errorf("SanitizeReportID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHTMLSanitizeMiddleware(t *testing.T) {
	m := NewHTMLSanitizeMiddleware()
	r := validReport()
	r.Title = `Audit of <em>Grants</em> &amp; Contracts`
	r.Summary = "<p>We found\n  problems.</p>"

	result, _ := m.Process(r)
	if result.Title != "Audit of Grants & Contracts" {
		t.Errorf("Title = %q", result.Title)
	}
	if result.Summary != "We found problems." {
		t.Errorf("Summary = %q", result.Summary)
	}
}

func TestDateNormalizeMiddleware(t *testing.T) {
	m := NewDateNormalizeMiddleware()

	tests := []struct {
		input    string
		expected string
	}{
		{"January 15, 2024", "2024-01-15"},
		{"2024-01-15", "2024-01-15"},
		{"Sept. 3rd, 2019", "2019-09-03"},
		{"not a date", "not a date"},
		{"2023", "2023"},
		{"March 2023", "March 2023"},
	}

	for _, tt := range tests {
		r := validReport()
		r.PublishedOn = tt.input
		result, _ := m.Process(r)
		if result.PublishedOn != tt.expected {
			t.Errorf("date %q: expected %q, got %q", tt.input, tt.expected, result.PublishedOn)
		}
	}
}

func TestPublishedOverrideMiddleware(t *testing.T) {
	m := NewPublishedOverrideMiddleware(map[string]string{"OIG-23-01": "2023-10-02"}, testLogger)

	r := validReport()
	r.EstimatedDate = true
	result, _ := m.Process(r)
	if result.PublishedOn != "2023-10-02" || result.EstimatedDate {
		t.Errorf("override not applied: %+v", result)
	}

	other := validReport()
	other.ReportID = "OIG-23-02"
	result, _ = m.Process(other)
	if result.PublishedOn != "2023-09-30" {
		t.Errorf("unrelated report changed: %q", result.PublishedOn)
	}
}

func TestValidateMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *types.Report)
		field  string
	}{
		{"valid", func(r *types.Report) {}, ""},
		{"missing agency", func(r *types.Report) { r.Agency = "" }, "agency"},
		{"missing url", func(r *types.Report) { r.URL = "" }, "url"},
		{"relative url", func(r *types.Report) { r.URL = "/reports/a.pdf" }, "url"},
		{"ftp url", func(r *types.Report) { r.URL = "ftp://oig.example.gov/a.pdf" }, "url"},
		{"bad date", func(r *types.Report) { r.PublishedOn = "09/30/2023" }, "published_on"},
		{"future date", func(r *types.Report) { r.PublishedOn = "2024-06-02" }, "published_on"},
		{"ancient date", func(r *types.Report) { r.PublishedOn = "1899-12-31" }, "published_on"},
		{"slash in id", func(r *types.Report) { r.ReportID = "A/B" }, "report_id"},
		{"unreleased with landing", func(r *types.Report) {
			r.URL, r.Unreleased, r.LandingURL = "", true, "https://oig.example.gov/r/1"
		}, ""},
		{"unreleased without landing", func(r *types.Report) { r.URL, r.Unreleased = "", true }, "landing_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReport()
			tt.mutate(r)
			err := Validate(r, testNow)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *types.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q (%v)", ve.Field, tt.field, err)
			}
		})
	}
}

func TestFilters(t *testing.T) {
	idf := &ReportIDFilterMiddleware{ReportID: "OIG-23-01"}
	if r, _ := idf.Process(validReport()); r == nil {
		t.Error("matching report id dropped")
	}
	other := validReport()
	other.ReportID = "OIG-23-02"
	if r, _ := idf.Process(other); r != nil {
		t.Error("non-matching report id kept")
	}

	yf := NewYearFilterMiddleware([]int{2022, 2023})
	if r, _ := yf.Process(validReport()); r == nil {
		t.Error("2023 report dropped")
	}
	old := validReport()
	old.PublishedOn = "2019-01-01"
	if r, _ := yf.Process(old); r != nil {
		t.Error("2019 report kept")
	}

	if r, _ := NewYearFilterMiddleware(nil).Process(old); r == nil {
		t.Error("empty year filter should keep everything")
	}
}

func TestDedupMiddleware(t *testing.T) {
	m := NewDedupMiddleware()

	result, err := m.Process(validReport())
	if err != nil || result == nil {
		t.Fatal("first report should pass dedup")
	}

	// Same document again is dropped quietly.
	result, err = m.Process(validReport())
	if err != nil || result != nil {
		t.Fatalf("repeat should be dropped, got %v, %v", result, err)
	}

	// Same ID, different document.
	clash := validReport()
	clash.URL = "https://oig.example.gov/reports/other.pdf"
	_, err = m.Process(clash)
	var de *types.DuplicateReportError
	if !errors.As(err, &de) {
		t.Fatalf("expected DuplicateReportError, got %v", err)
	}
	if de.FirstURL != validReport().URL || de.SecondURL != clash.URL {
		t.Errorf("urls = %q, %q", de.FirstURL, de.SecondURL)
	}

	// Same ID under a different inspector is fine.
	elsewhere := validReport()
	elsewhere.Inspector = "otheroig"
	if result, err := m.Process(elsewhere); err != nil || result == nil {
		t.Fatal("different inspector should pass")
	}
	if m.Seen() != 2 {
		t.Errorf("Seen = %d, want 2", m.Seen())
	}
}

// --- Benchmarks ---

func BenchmarkPipeline(b *testing.B) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})
	p.Use(NewHTMLSanitizeMiddleware())
	p.Use(NewDateNormalizeMiddleware())
	p.Use(&ValidateMiddleware{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := validReport()
		r.Title = "  Audit of <b>Grants</b>  "
		r.PublishedOn = "January 15, 2024"
		p.Process(r)
	}
}

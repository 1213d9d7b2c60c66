package types

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"
	"time"
)

// DateLayout is the format of Report.PublishedOn.
const DateLayout = "2006-01-02"

// Report is the metadata record saved for a single IG document.
type Report struct {
	Inspector    string `json:"inspector"`
	InspectorURL string `json:"inspector_url"`
	Agency       string `json:"agency"`
	AgencyName   string `json:"agency_name"`
	ReportID     string `json:"report_id"`
	URL          string `json:"url,omitempty"`
	Title        string `json:"title"`
	PublishedOn  string `json:"published_on"`

	Type          string `json:"type,omitempty"`
	Topic         string `json:"topic,omitempty"`
	Summary       string `json:"summary,omitempty"`
	LandingURL    string `json:"landing_url,omitempty"`
	Unreleased    bool   `json:"unreleased,omitempty"`
	FileType      string `json:"file_type,omitempty"`
	EstimatedDate bool   `json:"estimated_date,omitempty"`

	// Filled in by the save path once the document is on disk.
	PageCount int    `json:"page_count,omitempty"`
	SHA256    string `json:"sha256,omitempty"`
	Size      int64  `json:"size,omitempty"`
}

// Key identifies a report across runs.
func (r *Report) Key() string {
	return r.Inspector + "/" + r.ReportID
}

// Published parses PublishedOn.
func (r *Report) Published() (time.Time, error) {
	return time.Parse(DateLayout, r.PublishedOn)
}

// Year returns the publish year, or 0 if PublishedOn is not a valid date.
func (r *Report) Year() int {
	t, err := r.Published()
	if err != nil {
		return 0
	}
	return t.Year()
}

// SetPublished stores t in PublishedOn.
func (r *Report) SetPublished(t time.Time) {
	r.PublishedOn = t.Format(DateLayout)
}

// Clone returns a copy of the report.
func (r *Report) Clone() *Report {
	c := *r
	return &c
}

// ToJSON serializes the report with stable indentation.
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// knownFileTypes are the extensions kept as-is for file_type.
var knownFileTypes = map[string]string{
	"pdf":  "pdf",
	"doc":  "doc",
	"docx": "docx",
	"xls":  "xls",
	"xlsx": "xlsx",
	"ppt":  "ppt",
	"pptx": "pptx",
	"htm":  "htm",
	"html": "htm",
	"aspx": "htm",
	"asp":  "htm",
	"php":  "htm",
	"cfm":  "htm",
	"txt":  "txt",
	"zip":  "zip",
}

// FileTypeFromURL infers a report's file_type from its URL. Extension-less
// paths are assumed to be HTML pages.
func FileTypeFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if ext == "" {
		return "htm"
	}
	if ft, ok := knownFileTypes[ext]; ok {
		return ft
	}
	return ""
}

// FileTypeFromContentType maps a Content-Type header to a file_type.
func FileTypeFromContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "application/pdf"):
		return "pdf"
	case strings.HasPrefix(ct, "application/msword"):
		return "doc"
	case strings.Contains(ct, "wordprocessingml"):
		return "docx"
	case strings.HasPrefix(ct, "text/html"), strings.HasPrefix(ct, "application/xhtml"):
		return "htm"
	case strings.HasPrefix(ct, "text/plain"):
		return "txt"
	default:
		return ""
	}
}

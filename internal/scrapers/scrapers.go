// Package scrapers holds the per-inspector scrapers. Sites with their own
// quirks get a Go scraper; sites that are a plain listing of links are
// described in YAML and run by DefinitionScraper.
package scrapers

import (
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/IshaanNene/igscrape/internal/inspector"
)

// Register adds every built-in scraper to reg, followed by the YAML
// definitions found in definitionsDir (if set).
func Register(reg *inspector.Registry, definitionsDir string, logger *slog.Logger) error {
	for _, s := range []inspector.Scraper{NewCPB(), NewNEA(), NewUSPS()} {
		if err := reg.Register(s); err != nil {
			return err
		}
	}

	defs, err := BuiltinDefinitions()
	if err != nil {
		return err
	}
	if definitionsDir != "" {
		extra, err := LoadDefinitionsDir(definitionsDir)
		if err != nil {
			return err
		}
		defs = append(defs, extra...)
	}
	for _, def := range defs {
		if err := reg.Register(NewDefinitionScraper(def)); err != nil {
			return fmt.Errorf("definition %s: %w", def.Source, err)
		}
	}

	logger.Debug("scrapers registered", "count", reg.Len(), "definitions", len(defs))
	return nil
}

// reportIDFromURL derives a report ID from the last path segment of a URL,
// without its extension.
func reportIDFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if base == "." || base == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// isDocumentURL reports whether rawURL points straight at a document rather
// than at a page or a redirecting download link.
func isDocumentURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".pdf", ".doc", ".docx", ".xls", ".xlsx", ".txt":
		return true
	}
	return false
}

// reportType maps a site's report type label onto the common types.
func reportType(label string) string {
	label = strings.ToLower(label)
	switch {
	case label == "":
		return ""
	case strings.Contains(label, "semiannual"), strings.Contains(label, "semi-annual"):
		return "semiannual_report"
	case strings.Contains(label, "audit"):
		return "audit"
	case strings.Contains(label, "evaluation"), strings.Contains(label, "review"):
		return "evaluation"
	case strings.Contains(label, "inspection"):
		return "inspection"
	case strings.Contains(label, "investigat"):
		return "investigation"
	case strings.Contains(label, "testimony"):
		return "testimony"
	case strings.Contains(label, "advisory"):
		return "management_advisory"
	default:
		return "other"
	}
}

func containsYear(years []int, year int) bool {
	for _, y := range years {
		if y == year {
			return true
		}
	}
	return false
}

func mustParse(rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("scrapers: bad base URL %q: %v", rawURL, err))
	}
	return u
}

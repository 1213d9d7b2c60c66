package scrapers

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/igscrape/internal/inspector"
	"github.com/IshaanNene/igscrape/internal/parser"
	"github.com/IshaanNene/igscrape/internal/types"
)

// NEA scrapes the National Endowment for the Arts OIG. The listing links to a
// landing page per report, which carries the date, summary and document link.
type NEA struct {
	BaseURL string
}

func NewNEA() *NEA {
	return &NEA{BaseURL: "https://www.arts.gov"}
}

func (n *NEA) Info() inspector.Info {
	return inspector.Info{
		Inspector:   "nea",
		Name:        "National Endowment for the Arts Office of Inspector General",
		Agency:      "nea",
		AgencyName:  "National Endowment for the Arts",
		URL:         "https://www.arts.gov/about/oig",
		ArchiveYear: 2005,
		Safe:        true,
	}
}

func (n *NEA) listURL() string {
	return strings.TrimSuffix(n.BaseURL, "/") + "/about/oig/reports"
}

func (n *NEA) Run(ctx context.Context, s *inspector.Session) error {
	listURL := n.listURL()
	doc, err := s.Document(ctx, listURL)
	if err != nil {
		return err
	}
	base := mustParse(listURL)

	type entry struct{ title, landing string }
	var entries []entry
	doc.Find("div.report-list li").Each(func(_ int, li *goquery.Selection) {
		landing := parser.Link(li, base)
		if landing == "" {
			return
		}
		// Skip the landing page fetch when the listing date is out of range.
		if t, err := parser.FindDate(parser.Text(li.Find("span.date"))); err == nil && !containsYear(s.Years(), t.Year()) {
			return
		}
		entries = append(entries, entry{title: parser.Text(li.Find("a").First()), landing: landing})
	})

	for _, e := range entries {
		r, err := n.landing(ctx, s, e.landing)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.PageError(ctx, e.landing, err)
			continue
		}
		if r.Title == "" {
			r.Title = e.title
		}
		if err := s.Save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (n *NEA) landing(ctx context.Context, s *inspector.Session, landingURL string) (*types.Report, error) {
	doc, err := s.Document(ctx, landingURL)
	if err != nil {
		return nil, err
	}
	base := mustParse(landingURL)
	content := doc.Find("main").First()
	if content.Length() == 0 {
		content = doc.Selection
	}

	r := s.NewReport()
	r.LandingURL = landingURL
	r.Title = parser.Text(content.Find("h1").First())
	r.PublishedOn = parser.Text(content.Find(".field--name-field-date").First())
	r.ReportID = parser.Text(content.Find(".field--name-field-report-number").First())
	r.Type = reportType(parser.Text(content.Find(".field--name-field-report-type").First()))

	r.Summary = parser.Text(content.Find(".field--name-body p").First())
	if r.Summary == "" {
		r.Summary = parser.MetaDescription(doc)
	}

	docURL := parser.Link(content.Find(".field--name-field-file, a.report-file").First(), base)
	switch {
	case docURL == "":
		if !strings.Contains(strings.ToLower(parser.Text(content)), "not publicly released") {
			return nil, &types.ParseError{URL: landingURL, Selector: ".field--name-field-file", Err: types.ErrEmptyResponse}
		}
		r.Unreleased = true
	case !isDocumentURL(docURL):
		// Download links like /download/1234 redirect to the PDF.
		resolved, err := s.Resolve(ctx, docURL)
		if err != nil {
			return nil, err
		}
		docURL = resolved
	}
	r.URL = docURL

	if r.ReportID == "" {
		r.ReportID = reportIDFromURL(docURL)
	}
	if r.ReportID == "" {
		r.ReportID = reportIDFromURL(landingURL)
	}
	return r, nil
}

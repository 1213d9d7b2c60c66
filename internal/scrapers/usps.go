package scrapers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/igscrape/internal/inspector"
	"github.com/IshaanNene/igscrape/internal/parser"
	"github.com/IshaanNene/igscrape/internal/types"
)

// uspsTopic is one of the site's report listings.
type uspsTopic struct {
	Slug string
	Path string
	Type string
}

var uspsTopics = []uspsTopic{
	{Slug: "audit", Path: "/reports/audit-reports", Type: "audit"},
	{Slug: "sar", Path: "/reports/semiannual-reports", Type: "semiannual_report"},
	{Slug: "research", Path: "/reports/white-papers", Type: "research"},
	{Slug: "testimony", Path: "/reports/congressional-testimony", Type: "testimony"},
}

// uspsDefaultPages is how deep each topic listing is walked without --pages.
const uspsDefaultPages = 5

// USPS scrapes the U.S. Postal Service OIG. Each topic is a paginated
// listing, newest first, linking straight to the report PDFs.
type USPS struct {
	BaseURL string
}

func NewUSPS() *USPS {
	return &USPS{BaseURL: "https://www.uspsoig.gov"}
}

func (u *USPS) Info() inspector.Info {
	return inspector.Info{
		Inspector:   "usps",
		Name:        "United States Postal Service Office of Inspector General",
		Agency:      "usps",
		AgencyName:  "United States Postal Service",
		URL:         "https://www.uspsoig.gov",
		ArchiveYear: 1998,
	}
}

func (u *USPS) topics(s *inspector.Session) []uspsTopic {
	wanted := s.Options().Topics
	if len(wanted) == 0 {
		return uspsTopics
	}
	var out []uspsTopic
	for _, slug := range wanted {
		found := false
		for _, t := range uspsTopics {
			if t.Slug == slug {
				out = append(out, t)
				found = true
			}
		}
		if !found {
			s.Logger().Warn("unknown topic", "topic", slug)
		}
	}
	return out
}

func (u *USPS) Run(ctx context.Context, s *inspector.Session) error {
	for _, topic := range u.topics(s) {
		if err := u.runTopic(ctx, s, topic); err != nil {
			return err
		}
	}
	return nil
}

func (u *USPS) runTopic(ctx context.Context, s *inspector.Session, topic uspsTopic) error {
	earliest := s.Years()[0]
	pages := s.Options().PageLimit(uspsDefaultPages)

	for page := 0; page < pages; page++ {
		pageURL := fmt.Sprintf("%s%s?page=%d", strings.TrimSuffix(u.BaseURL, "/"), topic.Path, page)
		doc, err := s.Document(ctx, pageURL)
		if err != nil {
			return err
		}
		base := mustParse(pageURL)

		rows := doc.Find("div.views-row")
		if rows.Length() == 0 {
			return nil
		}

		olderThanRange := false
		var saveErr error
		rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
			r := u.report(s, row, base, topic)
			if r.Year() > 0 && r.Year() < earliest {
				olderThanRange = true
			}
			saveErr = s.Save(ctx, r)
			return saveErr == nil
		})
		if saveErr != nil {
			return saveErr
		}

		// Listings are newest first, so nothing further back is in range.
		if olderThanRange {
			return nil
		}
		if doc.Find("li.pager__item--next a").Length() == 0 {
			return nil
		}
	}
	return nil
}

func (u *USPS) report(s *inspector.Session, row *goquery.Selection, base *url.URL, topic uspsTopic) *types.Report {
	link := row.Find("h3 a").First()

	r := s.NewReport()
	r.Title = parser.Text(link)
	r.URL = parser.Link(link, base)
	r.ReportID = parser.Text(row.Find(".report-number").First())
	r.Type = topic.Type
	r.Topic = topic.Slug
	r.Summary = parser.Text(row.Find(".views-field-body").First())

	if datetime, ok := row.Find("time[datetime]").First().Attr("datetime"); ok && len(datetime) >= len(types.DateLayout) {
		r.PublishedOn = datetime[:len(types.DateLayout)]
	} else {
		r.PublishedOn = parser.Text(row.Find("time, .date").First())
	}

	if r.ReportID == "" {
		r.ReportID = reportIDFromURL(r.URL)
	}
	return r
}

package scrapers

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/igscrape/internal/inspector"
	"github.com/IshaanNene/igscrape/internal/parser"
	"github.com/IshaanNene/igscrape/internal/types"
)

//go:embed definitions/*.yaml
var builtinFS embed.FS

// Definition describes a site that lists its reports as repeated elements
// with a link, a title and a date. The list URL may contain {year}, in which
// case it is fetched once per year in the run's range.
type Definition struct {
	inspector.Info `yaml:",inline"`

	ListURL string `yaml:"list_url"`
	// Render is "http" (default) or "browser" for listings built by script.
	Render       string `yaml:"render"`
	WaitSelector string `yaml:"wait_selector"`

	// Item selects one element per report on the listing page.
	Item   string           `yaml:"item"`
	Fields DefinitionFields `yaml:"fields"`

	// Type is the report type used when Fields.Type finds nothing.
	Type        string   `yaml:"type"`
	DateLayouts []string `yaml:"date_layouts"`

	// Next finds the link to the following listing page.
	Next     parser.Rule `yaml:"next"`
	MaxPages int         `yaml:"max_pages"`

	// Landing is set when item links go to a page per report rather than to
	// the document itself.
	Landing *LandingFields `yaml:"landing"`

	// Resolve follows redirects on document links without a file extension.
	Resolve bool `yaml:"resolve"`

	// Published overrides publish dates by report ID.
	Published map[string]string `yaml:"published"`

	// Source is the file the definition was read from.
	Source string `yaml:"-"`
}

// DefinitionFields are the rules applied to each listing item. A rule with
// no selector reads the item itself.
type DefinitionFields struct {
	Title    parser.Rule `yaml:"title"`
	URL      parser.Rule `yaml:"url"`
	Date     parser.Rule `yaml:"date"`
	ReportID parser.Rule `yaml:"report_id"`
	Summary  parser.Rule `yaml:"summary"`
	Type     parser.Rule `yaml:"type"`
}

// LandingFields are the rules applied to a report's landing page.
type LandingFields struct {
	URL      parser.Rule `yaml:"url"`
	Date     parser.Rule `yaml:"date"`
	ReportID parser.Rule `yaml:"report_id"`
	Summary  parser.Rule `yaml:"summary"`
}

// Validate checks a definition and fills in defaults.
func (d *Definition) Validate() error {
	var errs []error
	if d.Inspector == "" {
		errs = append(errs, errors.New("inspector is required"))
	}
	if d.AgencyName == "" {
		errs = append(errs, errors.New("agency_name is required"))
	}
	if d.Item == "" {
		errs = append(errs, errors.New("item is required"))
	}
	if _, err := url.Parse(strings.ReplaceAll(d.ListURL, "{year}", "2000")); err != nil || !strings.HasPrefix(d.ListURL, "http") {
		errs = append(errs, fmt.Errorf("list_url %q is not an absolute URL", d.ListURL))
	}
	switch d.Render {
	case "", string(types.FetcherHTTP), string(types.FetcherBrowser):
	default:
		errs = append(errs, fmt.Errorf("render must be http or browser, got %q", d.Render))
	}
	if d.MaxPages < 0 {
		errs = append(errs, errors.New("max_pages must be >= 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("definition %s: %w", d.Source, err)
	}

	if d.Agency == "" {
		d.Agency = d.Inspector
	}
	if d.Fields.URL.Selector == "" && d.Fields.URL.Type == "" {
		d.Fields.URL.Selector = "a[href]"
	}
	if d.Fields.URL.Attribute == "" {
		d.Fields.URL.Attribute = "href"
	}
	if d.Next.Selector != "" && d.Next.Attribute == "" {
		d.Next.Attribute = "href"
	}
	if d.Landing != nil {
		if d.Landing.URL.Selector == "" && d.Landing.URL.Type == "" {
			d.Landing.URL.Selector = `a[href$=".pdf"]`
		}
		if d.Landing.URL.Attribute == "" {
			d.Landing.URL.Attribute = "href"
		}
	}
	if d.MaxPages == 0 {
		d.MaxPages = 1
	}
	return nil
}

// ParseDefinition decodes and validates one YAML definition.
func ParseDefinition(data []byte, source string) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Definition
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("definition %s: %w", source, err)
	}
	d.Source = source
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadDefinitions reads every *.yaml file in dir of fsys.
func LoadDefinitions(fsys fs.FS, dir string) ([]*Definition, error) {
	matches, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}

	defs := make([]*Definition, 0, len(matches))
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		d, err := ParseDefinition(data, name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// BuiltinDefinitions returns the definitions compiled into the binary.
func BuiltinDefinitions() ([]*Definition, error) {
	return LoadDefinitions(builtinFS, "definitions")
}

// LoadDefinitionsDir reads the definitions in a directory on disk.
func LoadDefinitionsDir(dir string) ([]*Definition, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("definitions dir: %w", err)
	}
	return LoadDefinitions(os.DirFS(dir), ".")
}

// --- Scraper ---

// DefinitionScraper runs a Definition.
type DefinitionScraper struct {
	def *Definition
}

func NewDefinitionScraper(def *Definition) *DefinitionScraper {
	return &DefinitionScraper{def: def}
}

func (d *DefinitionScraper) Info() inspector.Info { return d.def.Info }

func (d *DefinitionScraper) PublishedOverrides() map[string]string { return d.def.Published }

func (d *DefinitionScraper) Run(ctx context.Context, s *inspector.Session) error {
	for _, listURL := range d.listURLs(s.Years()) {
		if err := d.runListing(ctx, s, listURL); err != nil {
			return err
		}
	}
	return nil
}

func (d *DefinitionScraper) listURLs(years []int) []string {
	if !strings.Contains(d.def.ListURL, "{year}") {
		return []string{d.def.ListURL}
	}
	urls := make([]string, 0, len(years))
	for _, y := range years {
		urls = append(urls, strings.ReplaceAll(d.def.ListURL, "{year}", strconv.Itoa(y)))
	}
	return urls
}

func (d *DefinitionScraper) runListing(ctx context.Context, s *inspector.Session, listURL string) error {
	pages := s.Options().PageLimit(d.def.MaxPages)
	visited := make(map[string]bool)

	pageURL := listURL
	for page := 0; page < pages && pageURL != "" && !visited[pageURL]; page++ {
		visited[pageURL] = true

		doc, err := d.document(ctx, s, pageURL, true)
		if err != nil {
			return err
		}
		base, err := url.Parse(pageURL)
		if err != nil {
			return err
		}

		items := doc.Find(d.def.Item)
		if items.Length() == 0 && page == 0 {
			// A year with no reports is normal; an undated listing with none
			// means the page layout changed.
			if strings.Contains(d.def.ListURL, "{year}") {
				s.Logger().Debug("no reports listed", "url", pageURL)
				return nil
			}
			return &types.ParseError{URL: pageURL, Selector: d.def.Item, Err: errors.New("no reports listed")}
		}

		var saveErr error
		items.EachWithBreak(func(_ int, item *goquery.Selection) bool {
			r, err := d.report(ctx, s, item, base)
			if err != nil {
				if ctx.Err() != nil {
					saveErr = ctx.Err()
					return false
				}
				s.PageError(ctx, pageURL, err)
				return true
			}
			if r == nil {
				return true
			}
			saveErr = s.Save(ctx, r)
			return saveErr == nil
		})
		if saveErr != nil {
			return saveErr
		}

		pageURL = ""
		if d.def.Next.Selector != "" || d.def.Next.Pattern != "" {
			href, err := parser.First(doc.Selection, d.def.Next)
			if err != nil {
				return err
			}
			if href != "" {
				pageURL, _ = parser.ResolveURL(base, href)
			}
		}
	}
	return nil
}

// document fetches a page, rendering it in the browser when the definition
// asks for that. Landing pages never wait on the listing selector.
func (d *DefinitionScraper) document(ctx context.Context, s *inspector.Session, rawURL string, listing bool) (*goquery.Document, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	if d.def.Render == string(types.FetcherBrowser) {
		req.FetcherType = types.FetcherBrowser
		if listing {
			req.WaitSelector = d.def.WaitSelector
		}
	}
	resp, err := s.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Document()
}

func (d *DefinitionScraper) report(ctx context.Context, s *inspector.Session, item *goquery.Selection, base *url.URL) (*types.Report, error) {
	f := d.def.Fields

	href, err := parser.First(item, f.URL)
	if err != nil {
		return nil, err
	}
	if href == "" {
		return nil, nil
	}
	link, err := parser.ResolveURL(base, href)
	if err != nil {
		return nil, &types.ParseError{URL: base.String(), Selector: f.URL.Selector, Err: err}
	}

	r := s.NewReport()
	if r.Title, err = parser.First(item, f.Title); err != nil {
		return nil, err
	}
	dateText, err := ruleValue(item, f.Date, true)
	if err != nil {
		return nil, err
	}
	if r.ReportID, err = ruleValue(item, f.ReportID, false); err != nil {
		return nil, err
	}
	if r.Summary, err = ruleValue(item, f.Summary, false); err != nil {
		return nil, err
	}
	if r.Type, err = ruleValue(item, f.Type, false); err != nil {
		return nil, err
	}
	if r.Type = reportType(r.Type); r.Type == "" {
		r.Type = d.def.Type
	}

	r.URL = link
	if d.def.Landing != nil {
		if err := d.landing(ctx, s, r, link, &dateText); err != nil {
			return nil, err
		}
	}

	if r.URL != "" && d.def.Resolve && !isDocumentURL(r.URL) {
		resolved, err := s.Resolve(ctx, r.URL)
		if err != nil {
			return nil, err
		}
		r.URL = resolved
	}

	if r.ReportID == "" {
		r.ReportID = reportIDFromURL(r.URL)
	}
	if r.ReportID == "" {
		r.ReportID = reportIDFromURL(r.LandingURL)
	}
	d.setDate(r, dateText)
	return r, nil
}

func (d *DefinitionScraper) landing(ctx context.Context, s *inspector.Session, r *types.Report, landingURL string, dateText *string) error {
	doc, err := d.document(ctx, s, landingURL, false)
	if err != nil {
		return err
	}
	base, err := url.Parse(landingURL)
	if err != nil {
		return err
	}
	lf := d.def.Landing
	r.LandingURL = landingURL

	href, err := parser.First(doc.Selection, lf.URL)
	if err != nil {
		return err
	}
	if href == "" {
		r.URL = ""
		r.Unreleased = true
	} else if r.URL, err = parser.ResolveURL(base, href); err != nil {
		return err
	}

	if *dateText == "" && isSet(lf.Date) {
		if *dateText, err = parser.First(doc.Selection, lf.Date); err != nil {
			return err
		}
	}
	if r.ReportID == "" && isSet(lf.ReportID) {
		if r.ReportID, err = parser.First(doc.Selection, lf.ReportID); err != nil {
			return err
		}
	}
	if r.Summary == "" {
		if isSet(lf.Summary) {
			if r.Summary, err = parser.First(doc.Selection, lf.Summary); err != nil {
				return err
			}
		}
		if r.Summary == "" {
			r.Summary = parser.MetaDescription(doc)
		}
	}
	return nil
}

// setDate tries the definition's layouts, then a date anywhere in the text,
// then "Month YYYY" as an estimate, then free-form parsing. Unparseable dates
// are left empty so the report is flagged as undated.
func (d *DefinitionScraper) setDate(r *types.Report, text string) {
	if text == "" {
		return
	}
	layouts := d.def.DateLayouts
	if len(layouts) == 0 {
		layouts = parser.DefaultDateLayouts
	}
	cleaned := parser.CleanDate(text)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			r.SetPublished(t)
			return
		}
	}
	if t, err := parser.FindDate(text); err == nil {
		r.SetPublished(t)
		return
	}
	if t, ok := parser.FindMonthYear(text); ok {
		r.SetPublished(t)
		r.EstimatedDate = true
		return
	}
	if t, err := parser.ParseDate(text); err == nil {
		r.SetPublished(t)
	}
}

// ruleValue applies rule to item. Unset rules yield "" unless itemText asks
// for the item's own text.
func ruleValue(item *goquery.Selection, rule parser.Rule, itemText bool) (string, error) {
	if !isSet(rule) && !itemText {
		return "", nil
	}
	return parser.First(item, rule)
}

func isSet(rule parser.Rule) bool {
	return rule.Selector != "" || rule.Pattern != ""
}

package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractCSS applies a CSS rule. An empty selector targets sel itself.
func extractCSS(sel *goquery.Selection, rule Rule) []string {
	target := sel
	if rule.Selector != "" {
		target = sel.Find(rule.Selector)
	}

	var values []string
	target.Each(func(_ int, s *goquery.Selection) {
		var val string
		switch rule.Attribute {
		case "", "text":
			val = Text(s)
		case "html", "innerHTML":
			val, _ = s.Html()
		case "outerHTML":
			val, _ = goquery.OuterHtml(s)
		default:
			val, _ = s.Attr(rule.Attribute)
			val = strings.TrimSpace(val)
		}
		if val != "" {
			values = append(values, val)
		}
	})
	return values
}

// ResolveURL resolves href against base. Fragments are dropped and spaces,
// which several IG sites leave unescaped in PDF links, are encoded.
func ResolveURL(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	href = strings.ReplaceAll(href, " ", "%20")
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	resolved := ref
	if base != nil {
		resolved = base.ResolveReference(ref)
	}
	resolved.Fragment = ""
	return resolved.String(), nil
}

// Link returns the resolved href of the first <a> in sel (or sel itself).
func Link(sel *goquery.Selection, base *url.URL) string {
	a := sel
	if goquery.NodeName(sel) != "a" {
		a = sel.Find("a[href]").First()
	}
	href, ok := a.Attr("href")
	if !ok || skipHref(href) {
		return ""
	}
	resolved, err := ResolveURL(base, href)
	if err != nil {
		return ""
	}
	return resolved
}

// Links finds all followable <a href> links under sel, resolved against base.
func Links(sel *goquery.Selection, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string

	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if skipHref(href) {
			return
		}
		abs, err := ResolveURL(base, href)
		if err != nil {
			return
		}
		u, err := url.Parse(abs)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})
	return links
}

func skipHref(href string) bool {
	href = strings.TrimSpace(href)
	return href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:")
}

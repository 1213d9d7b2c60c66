package parser

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

var regexCache sync.Map // pattern -> *regexp.Regexp

// extractRegex applies rule.Pattern to the text of sel, or to its inner
// HTML when Attribute is "html".
func extractRegex(sel *goquery.Selection, rule Rule) ([]string, error) {
	re, err := compile(rule.Pattern)
	if err != nil {
		return nil, err
	}

	var body string
	switch rule.Attribute {
	case "html", "innerHTML":
		body, _ = sel.Html()
	default:
		body = Text(sel)
	}
	return matchAll(re, body), nil
}

// filterPattern keeps the values pattern matches, reduced to the capture.
func filterPattern(values []string, pattern string) ([]string, error) {
	re, err := compile(pattern)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, v := range values {
		if m := matchAll(re, v); len(m) > 0 {
			out = append(out, m[0])
		}
	}
	return out, nil
}

// matchAll returns named groups, else the first group, else whole matches.
func matchAll(re *regexp.Regexp, body string) []string {
	var values []string

	names := re.SubexpNames()
	hasNamedGroups := false
	for _, name := range names {
		if name != "" {
			hasNamedGroups = true
			break
		}
	}

	switch {
	case hasNamedGroups:
		for _, match := range re.FindAllStringSubmatch(body, -1) {
			for i, name := range names {
				if name != "" && i < len(match) && match[i] != "" {
					values = append(values, match[i])
				}
			}
		}
	case re.NumSubexp() > 0:
		for _, match := range re.FindAllStringSubmatch(body, -1) {
			if len(match) > 1 && match[1] != "" {
				values = append(values, match[1])
			}
		}
	default:
		values = re.FindAllString(body, -1)
	}
	return values
}

// compile returns a cached compiled regex.
func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	regexCache.Store(pattern, re)
	return re, nil
}

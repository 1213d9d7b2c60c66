// Package parser holds the DOM helpers shared by scrapers: rule-driven
// field extraction (CSS, XPath, regex), table and link helpers, and the
// lenient date parsing IG listing pages need.
package parser

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Rule defines a single extraction rule applied to a selection.
type Rule struct {
	Selector  string `yaml:"selector"`
	Type      string `yaml:"type"` // css (default), xpath, regex
	Attribute string `yaml:"attribute"`
	// Pattern is a regex. For regex rules it is the rule itself; for css
	// and xpath rules it filters each extracted value, keeping the first
	// capture group when there is one.
	Pattern string `yaml:"pattern"`
}

// Extract applies rule to sel and returns every non-empty value.
func Extract(sel *goquery.Selection, rule Rule) ([]string, error) {
	var (
		values []string
		err    error
	)
	switch rule.Type {
	case "", "css":
		values = extractCSS(sel, rule)
	case "xpath":
		values, err = extractXPath(sel, rule)
	case "regex":
		values, err = extractRegex(sel, rule)
		return values, err
	default:
		return nil, fmt.Errorf("unknown rule type %q", rule.Type)
	}
	if err != nil || rule.Pattern == "" {
		return values, err
	}
	return filterPattern(values, rule.Pattern)
}

// First returns the first value rule extracts from sel, or "".
func First(sel *goquery.Selection, rule Rule) (string, error) {
	values, err := Extract(sel, rule)
	if err != nil || len(values) == 0 {
		return "", err
	}
	return values[0], nil
}

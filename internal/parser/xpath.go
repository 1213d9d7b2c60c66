package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
)

// extractXPath evaluates rule.Selector relative to each node of sel. goquery
// and htmlquery share x/net/html nodes, so no re-parse is needed.
func extractXPath(sel *goquery.Selection, rule Rule) ([]string, error) {
	expr, err := xpath.Compile(rule.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", rule.Selector, err)
	}

	var values []string
	for _, root := range sel.Nodes {
		for _, node := range htmlquery.QuerySelectorAll(root, expr) {
			var val string
			switch rule.Attribute {
			case "", "text":
				val = collapseSpace(htmlquery.InnerText(node))
			case "html", "innerHTML":
				val = htmlquery.OutputHTML(node, false)
			case "outerHTML":
				val = htmlquery.OutputHTML(node, true)
			default:
				val = strings.TrimSpace(htmlquery.SelectAttr(node, rule.Attribute))
			}
			if val != "" {
				values = append(values, val)
			}
		}
	}
	return values, nil
}

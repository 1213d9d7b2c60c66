package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Text returns the text of sel with runs of whitespace (including
// non-breaking spaces) collapsed to single spaces.
func Text(sel *goquery.Selection) string {
	return collapseSpace(sel.Text())
}

// collapseSpace relies on strings.Fields treating U+00A0 as space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Table parses the first table in sel (or sel itself) into rows of cell text.
// Rows with no cells are skipped.
func Table(sel *goquery.Selection) [][]string {
	table := sel
	if goquery.NodeName(sel) != "table" {
		table = sel.Find("table").First()
	}

	var rows [][]string
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, Text(cell))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	return rows
}

// Cells returns the td/th children of a table row.
func Cells(row *goquery.Selection) []*goquery.Selection {
	var cells []*goquery.Selection
	row.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, cell)
	})
	return cells
}

// MetaDescription returns the page description from the description or
// og:description meta tags. Landing pages often carry the report summary there.
func MetaDescription(doc *goquery.Document) string {
	for _, sel := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = collapseSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

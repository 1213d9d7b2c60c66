package extract

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"time"
)

// Metadata is the subset of pdfinfo output the save path uses.
type Metadata struct {
	Pages     int
	CreatedAt time.Time
}

// Metadata runs pdfinfo on a PDF.
func (e *Extractor) Metadata(ctx context.Context, path string) (*Metadata, error) {
	out, err := e.run(ctx, e.cfg.PDFInfo, "-enc", "UTF-8", path)
	if err != nil {
		return nil, err
	}
	return parsePDFInfo(out), nil
}

// pdfinfoDateLayouts cover the CreationDate formats pdfinfo versions print.
var pdfinfoDateLayouts = []string{
	"Mon Jan _2 15:04:05 2006 MST",
	"Mon Jan _2 15:04:05 2006",
	time.RFC3339,
	"2006-01-02T15:04:05-07",
}

func parsePDFInfo(out string) *Metadata {
	md := &Metadata{}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Pages":
			md.Pages, _ = strconv.Atoi(value)
		case "CreationDate":
			for _, layout := range pdfinfoDateLayouts {
				if t, err := time.Parse(layout, value); err == nil {
					md.CreatedAt = t
					break
				}
			}
		}
	}
	return md
}

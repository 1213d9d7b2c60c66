package main

import (
	"errors"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/igscrape/internal/storage"
	"github.com/IshaanNene/igscrape/internal/types"
)

// reportsCmd creates the "reports" subcommand for querying the report index.
func reportsCmd() *cobra.Command {
	var (
		q          storage.Query
		counts     bool
		duplicates bool
	)
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Query the report index",
		Long: `Query the SQLite report index written by previous runs.

Without flags the newest reports are listed. --counts summarizes reports per
inspector and --duplicates lists document URLs saved under more than one
report ID.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Index.SQLite == "" {
				return errors.New("index.sqlite is not configured")
			}
			idx, err := storage.OpenIndex(cfg.Index.SQLite, logger)
			if err != nil {
				return err
			}
			defer idx.Close()

			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			switch {
			case counts:
				rows, err := idx.Counts(ctx)
				if err != nil {
					return err
				}
				renderCounts(w, rows)
			case duplicates:
				rows, err := idx.DuplicateURLs(ctx)
				if err != nil {
					return err
				}
				renderDuplicates(w, rows)
			default:
				reports, err := idx.Reports(ctx, q)
				if err != nil {
					return err
				}
				renderReports(w, reports)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&q.Inspector, "inspector", "i", "", "only this inspector")
	cmd.Flags().IntVar(&q.Year, "year", 0, "only reports published in this year")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "maximum reports to list (0 = all)")
	cmd.Flags().BoolVar(&counts, "counts", false, "count reports per inspector")
	cmd.Flags().BoolVar(&duplicates, "duplicates", false, "list URLs shared by several reports")
	cmd.MarkFlagsMutuallyExclusive("counts", "duplicates")
	return cmd
}

func renderReports(w io.Writer, reports []*types.Report) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Published", "Inspector", "Report ID", "Type", "Title"})
	for _, r := range reports {
		t.AppendRow(table.Row{r.PublishedOn, r.Inspector, r.ReportID, r.Type, truncate(r.Title, 72)})
	}
	t.Render()
}

func renderCounts(w io.Writer, rows []storage.InspectorCount) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Inspector", "Reports", "Earliest", "Latest"})
	total := 0
	for _, c := range rows {
		t.AppendRow(table.Row{c.Inspector, c.Reports, c.Earliest, c.Latest})
		total += c.Reports
	}
	t.AppendFooter(table.Row{"Total", total})
	t.Render()
}

func renderDuplicates(w io.Writer, rows []storage.DuplicateURL) {
	t := newTable(w)
	t.AppendHeader(table.Row{"URL", "Reports"})
	for _, d := range rows {
		t.AppendRow(table.Row{d.URL, strings.Join(d.Reports, "\n")})
	}
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/igscrape/internal/inspector"
	"github.com/IshaanNene/igscrape/internal/notify"
)

// runFlags holds the "run" flags.
type runFlags struct {
	only   []string
	except []string
	safe   bool

	since   int
	year    int
	archive bool

	reportID string
	limit    int
	pages    int
	topics   []string

	dryRun         bool
	quick          bool
	skipDownloaded bool

	concurrency int
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringSliceVar(&f.only, "only", nil, "comma-separated inspectors to run")
	fs.StringSliceVar(&f.except, "except", nil, "comma-separated inspectors to skip")
	fs.BoolVar(&f.safe, "safe", false, "run only scrapers marked safe")

	fs.IntVar(&f.since, "since", 0, "scrape reports published from this year on")
	fs.IntVar(&f.year, "year", 0, "scrape reports published in this year only")
	fs.BoolVar(&f.archive, "archive", false, "scrape back to each inspector's archive year")

	fs.StringVar(&f.reportID, "report-id", "", "save only the report with this ID")
	fs.IntVar(&f.limit, "limit", 0, "stop each scraper after this many reports (0 = no limit)")
	fs.IntVar(&f.pages, "pages", 0, "maximum listing pages per topic (0 = scraper default)")
	fs.StringSliceVar(&f.topics, "topics", nil, "comma-separated topics for scrapers that list by topic")

	fs.BoolVar(&f.dryRun, "dry-run", false, "parse and validate only; write and download nothing")
	fs.BoolVar(&f.quick, "quick", false, "write report JSON without downloading documents")
	fs.BoolVar(&f.skipDownloaded, "skip-downloaded", false, "leave reports that are already saved untouched")

	fs.IntVarP(&f.concurrency, "concurrency", "n", 0, "inspectors scraped in parallel (0 = config value)")
}

// selection merges positional inspector arguments into --only.
func (f *runFlags) selection(args []string) inspector.Selection {
	only := append(append([]string(nil), f.only...), args...)
	return inspector.Selection{Only: only, Except: f.except, Safe: f.safe}
}

func (f *runFlags) options() inspector.Options {
	return inspector.Options{
		Since:          f.since,
		Year:           f.year,
		Archive:        f.archive,
		ReportID:       f.reportID,
		Limit:          f.limit,
		Pages:          f.pages,
		Topics:         f.topics,
		DryRun:         f.dryRun,
		Quick:          f.quick,
		SkipDownloaded: f.skipDownloaded,
	}
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [inspector...]",
		Short: "Run scrapers",
		Long: `Run the scrapers for the given inspectors, or for every inspector when none
are named. By default reports from last year and this year are scraped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if flags.concurrency > 0 {
				cfg.Engine.Concurrency = flags.concurrency
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.runner.Run(ctx, flags.selection(args), flags.options())
			if summary != nil {
				renderSummary(cmd.OutOrStdout(), summary)
			}
			if err != nil {
				return err
			}
			if failed := summary.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d scrapers failed", len(failed), len(summary.Results))
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// runOnce is the body of one scheduled run.
func runOnce(ctx context.Context, a *app, sel inspector.Selection, opts inspector.Options, w io.Writer) error {
	summary, err := a.runner.Run(ctx, sel, opts)
	if summary != nil {
		renderSummary(w, summary)
	}
	return err
}

// renderSummary prints one row per inspector.
func renderSummary(w io.Writer, s *notify.Summary) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Inspector", "Saved", "Skipped", "Dropped", "Errors", "No date", "Time", "Failure"})
	for _, r := range s.Results {
		t.AppendRow(table.Row{
			r.Inspector, r.Saved, r.Skipped, r.Dropped, r.Errors, r.NoDate,
			r.Duration.Round(time.Millisecond), firstLine(r.Error),
		})
	}
	saved, errs := s.Totals()
	t.AppendFooter(table.Row{"Total", saved, "", "", errs, "", s.Finished.Sub(s.Started).Round(time.Second), fmt.Sprintf("%d failed", len(s.Failed()))})
	if s.DryRun {
		t.SetCaption("dry run: nothing was written")
	}
	t.Render()
}

// firstLine trims panic stack traces and other multi-line errors.
func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/igscrape/internal/pipeline"
	"github.com/IshaanNene/igscrape/internal/storage"
	"github.com/IshaanNene/igscrape/internal/types"
)

// problem is one bad report.json found by validate.
type problem struct {
	Path   string
	Reason string
}

// validateTree re-validates every saved report under layout. It returns the
// problems found and how many reports were checked.
func validateTree(ctx context.Context, layout storage.Layout, inspector string, checkDocs bool, now func() time.Time) ([]problem, int, error) {
	var (
		problems []problem
		checked  int
	)
	err := layout.Walk(ctx, inspector, func(path string, r *types.Report, err error) error {
		checked++
		rel, relErr := layout.Rel(path)
		if relErr != nil {
			rel = path
		}
		add := func(reason string) {
			problems = append(problems, problem{Path: rel, Reason: reason})
		}

		if err != nil {
			add(err.Error())
			return nil
		}
		if err := pipeline.Validate(r, now()); err != nil {
			add(err.Error())
			return nil
		}
		if want := layout.JSONPath(r); filepath.Clean(want) != filepath.Clean(path) {
			if w, err := layout.Rel(want); err == nil {
				want = w
			}
			add("saved in the wrong place, expected " + want)
		}
		if checkDocs && !r.Unreleased && r.URL != "" {
			if _, err := os.Stat(layout.FilePath(r)); err != nil {
				add("document missing: " + filepath.Base(layout.FilePath(r)))
			}
		}
		return nil
	})
	return problems, checked, err
}

// validateCmd creates the "validate" subcommand.
func validateCmd() *cobra.Command {
	var (
		inspector string
		checkDocs bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Re-validate the saved reports in the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			layout := storage.NewLayout(cfg.Output.DataDir)
			problems, checked, err := validateTree(cmd.Context(), layout, inspector, checkDocs, time.Now)
			if err != nil {
				return err
			}
			logger.Info("validation finished", "checked", checked, "problems", len(problems))

			w := cmd.OutOrStdout()
			if len(problems) == 0 {
				fmt.Fprintf(w, "%d reports OK\n", checked)
				return nil
			}
			renderProblems(w, problems)
			return fmt.Errorf("%d of %d reports have problems", len(problems), checked)
		},
	}
	cmd.Flags().StringVarP(&inspector, "inspector", "i", "", "only this inspector")
	cmd.Flags().BoolVar(&checkDocs, "documents", false, "also require the downloaded document")
	return cmd
}

func renderProblems(w io.Writer, problems []problem) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Report", "Problem"})
	for _, p := range problems {
		t.AppendRow(table.Row{p.Path, p.Reason})
	}
	t.Render()
}

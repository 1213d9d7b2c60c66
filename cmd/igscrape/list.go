package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/igscrape/internal/inspector"
)

// listCmd creates the "list" subcommand.
func listCmd() *cobra.Command {
	var safeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the known inspectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := newRegistry(cfg, logger)
			if err != nil {
				return err
			}
			scrapers, err := reg.Select(inspector.Selection{Safe: safeOnly})
			if err != nil {
				return err
			}
			renderScrapers(cmd.OutOrStdout(), scrapers)
			return nil
		},
	}
	cmd.Flags().BoolVar(&safeOnly, "safe", false, "list only scrapers marked safe")
	return cmd
}

func renderScrapers(w io.Writer, scrapers []inspector.Scraper) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Inspector", "Name", "Archive", "Safe", "URL"})
	for _, s := range scrapers {
		info := s.Info()
		safe := ""
		if info.Safe {
			safe = "yes"
		}
		t.AppendRow(table.Row{info.Inspector, info.Name, info.ArchiveYear, safe, info.URL})
	}
	t.AppendFooter(table.Row{len(scrapers), "scrapers"})
	t.Render()
}

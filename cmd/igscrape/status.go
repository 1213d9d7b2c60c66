package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/igscrape/internal/engine"
)

// statusCmd creates the "status" subcommand.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last result of every inspector",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := engine.LoadStatus(cfg.Engine.StatusFile)
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "No runs recorded in %s\n", cfg.Engine.StatusFile)
				return nil
			}
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func renderStatus(w io.Writer, st *engine.Status) {
	fmt.Fprintf(w, "Last run: %s, started %s", st.State, st.Started.Format(time.DateTime))
	if !st.Finished.IsZero() {
		fmt.Fprintf(w, ", took %s", st.Finished.Sub(st.Started).Round(time.Second))
	}
	if st.DryRun {
		fmt.Fprint(w, " (dry run)")
	}
	fmt.Fprintln(w)

	t := newTable(w)
	t.AppendHeader(table.Row{"Inspector", "State", "Started", "Saved", "Errors", "No date", "Failure"})
	for _, is := range st.Sorted() {
		started := ""
		if !is.Started.IsZero() {
			started = is.Started.Format(time.DateTime)
		}
		t.AppendRow(table.Row{is.Inspector, is.State, started, is.Saved, is.Errors, is.NoDate, firstLine(is.Error)})
	}
	t.Render()
}

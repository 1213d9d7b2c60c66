package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/igscrape/internal/fetcher"
)

// cacheCmd creates the "cache" subcommand.
func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the listing page cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Remove every cached page",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			cache, err := fetcher.OpenCache(cfg.Cache.Dir, cfg.Cache.TTL, logger)
			if err != nil {
				return fmt.Errorf("open page cache: %w", err)
			}
			defer cache.Close()

			if err := cache.Purge(); err != nil {
				return fmt.Errorf("purge %s: %w", cfg.Cache.Dir, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", cfg.Cache.Dir)
			return nil
		},
	})
	return cmd
}

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/igscrape/internal/config"
)

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long:  "Print the configuration after defaults, the config file, .env and IGSCRAPE_ variables are applied. Secrets are masked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			return writeConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func writeConfig(w io.Writer, cfg *config.Config) error {
	masked := *cfg
	masked.Notify.Email.Password = mask(cfg.Notify.Email.Password)
	masked.Notify.Slack.WebhookURL = mask(cfg.Notify.Slack.WebhookURL)
	masked.Notify.Dashboard.Token = mask(cfg.Notify.Dashboard.Token)
	masked.Index.MongoURI = mask(cfg.Index.MongoURI)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&masked); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

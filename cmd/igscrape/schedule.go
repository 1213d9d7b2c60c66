package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/igscrape/internal/dashboard"
)

// scheduleCmd creates the "schedule" subcommand.
func scheduleCmd() *cobra.Command {
	flags := &runFlags{}
	var spec, dashAddr string
	cmd := &cobra.Command{
		Use:   "schedule [inspector...]",
		Short: "Run scrapers on a cron schedule until interrupted",
		Long: `Run scrapers repeatedly on the cron schedule from schedule.cron (or --cron).
A run that is still going when the next one is due delays it rather than
overlapping with it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if spec != "" {
				cfg.Schedule.Cron = spec
			}
			if cfg.Schedule.Cron == "" {
				return errors.New("no schedule: set schedule.cron or --cron")
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

			if dashAddr != "" {
				dashboard.NewDashboard(dashAddr, cfg.Engine.StatusFile, a.metrics, logger).Start(ctx)
			}

			sel := flags.selection(args)
			job := func() {
				if err := runOnce(ctx, a, sel, flags.options(), cmd.OutOrStdout()); err != nil && ctx.Err() == nil {
					logger.Error("scheduled run failed", "error", err)
				}
			}

			c, err := newScheduler(cfg.Schedule.Cron, logger, job)
			if err != nil {
				return err
			}
			logger.Info("scheduler started", "cron", cfg.Schedule.Cron, "next", c.Entries()[0].Schedule.Next(time.Now()))
			c.Start()

			<-ctx.Done()
			logger.Info("scheduler stopping")
			<-c.Stop().Done()
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&spec, "cron", "", "cron spec overriding schedule.cron")
	cmd.Flags().StringVar(&dashAddr, "dashboard", "", "serve the status page on this address (e.g. :8081)")
	return cmd
}

// newScheduler builds a cron runner for job. Overlapping runs are delayed
// and a panicking job is logged rather than crashing the scheduler.
func newScheduler(spec string, logger *slog.Logger, job func()) (*cron.Cron, error) {
	cl := cronLogger{logger: logger.With("component", "schedule")}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.DelayIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, job); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return c, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

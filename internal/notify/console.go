package notify

import (
	"context"
	"log/slog"
)

// Console logs events through slog.
type Console struct {
	logger *slog.Logger
}

// NewConsole creates a console notifier.
func NewConsole(logger *slog.Logger) *Console {
	return &Console{logger: logger.With("component", "console_notifier")}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Notify(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	switch e.Level {
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	attrs := []any{"inspector", e.Inspector, "kind", string(e.Kind)}
	if e.ReportID != "" {
		attrs = append(attrs, "report_id", e.ReportID)
	}
	if e.URL != "" {
		attrs = append(attrs, "url", e.URL)
	}
	c.logger.Log(ctx, level, e.Message, attrs...)
	return nil
}

// NotifySummary logs one line per inspector plus the totals.
func (c *Console) NotifySummary(ctx context.Context, s Summary) error {
	for _, r := range s.Results {
		level := slog.LevelInfo
		if r.Failed() {
			level = slog.LevelError
		}
		c.logger.Log(ctx, level, "inspector finished",
			"inspector", r.Inspector,
			"saved", r.Saved,
			"skipped", r.Skipped,
			"errors", r.Errors,
			"no_date", r.NoDate,
			"duration", r.Duration,
			"error", r.Error,
		)
	}
	saved, errs := s.Totals()
	c.logger.Info("run finished",
		"inspectors", len(s.Results),
		"failed", len(s.Failed()),
		"saved", saved,
		"errors", errs,
		"duration", s.Finished.Sub(s.Started),
	)
	return nil
}

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/IshaanNene/igscrape/internal/config"
)

func newWebhookClient() *resty.Client {
	return resty.New().
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", config.AppName+"/"+config.Version)
}

func checkResponse(resp *resty.Response) error {
	if resp.IsError() {
		body := strings.TrimSpace(resp.String())
		if len(body) > 200 {
			body = body[:200]
		}
		return fmt.Errorf("%s returned %d: %s", resp.Request.URL, resp.StatusCode(), body)
	}
	return nil
}

// --- Slack ---

// Slack posts each event to an incoming webhook.
type Slack struct {
	cfg    config.SlackConfig
	client *resty.Client
	logger *slog.Logger
}

// SlackMessage is the incoming-webhook payload.
type SlackMessage struct {
	Text     string `json:"text"`
	Channel  string `json:"channel,omitempty"`
	Username string `json:"username,omitempty"`
}

// NewSlack creates a Slack notifier.
func NewSlack(cfg config.SlackConfig, logger *slog.Logger) *Slack {
	return &Slack{
		cfg:    cfg,
		client: newWebhookClient(),
		logger: logger.With("component", "slack_notifier"),
	}
}

func (n *Slack) Name() string { return "slack" }

func (n *Slack) Notify(ctx context.Context, e Event) error {
	return n.post(ctx, fmt.Sprintf("*%s* %s", strings.ToUpper(e.Level.String()), e))
}

// NotifySummary posts a short summary when scrapers failed.
func (n *Slack) NotifySummary(ctx context.Context, s Summary) error {
	failed := s.Failed()
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, len(failed))
	for i, r := range failed {
		names[i] = r.Inspector
	}
	saved, _ := s.Totals()
	return n.post(ctx, fmt.Sprintf("Run finished: %d reports saved, %d of %d scrapers failed (%s)",
		saved, len(failed), len(s.Results), strings.Join(names, ", ")))
}

func (n *Slack) post(ctx context.Context, text string) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(SlackMessage{Text: text, Channel: n.cfg.Channel, Username: n.cfg.Username}).
		Post(n.cfg.WebhookURL)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return checkResponse(resp)
}

// --- Dashboard ---

// Dashboard posts the run summary, with the run's events, to a collector
// endpoint.
type Dashboard struct {
	cfg    config.DashboardConfig
	client *resty.Client
	logger *slog.Logger
}

// NewDashboard creates a dashboard notifier.
func NewDashboard(cfg config.DashboardConfig, logger *slog.Logger) *Dashboard {
	c := newWebhookClient()
	if cfg.Token != "" {
		c.SetAuthToken(cfg.Token)
	}
	return &Dashboard{
		cfg:    cfg,
		client: c,
		logger: logger.With("component", "dashboard_notifier"),
	}
}

func (n *Dashboard) Name() string { return "dashboard" }

// Notify is a no-op; events are sent with the summary.
func (n *Dashboard) Notify(context.Context, Event) error { return nil }

func (n *Dashboard) NotifySummary(ctx context.Context, s Summary) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(s).
		Post(n.cfg.URL)
	if err != nil {
		return fmt.Errorf("dashboard post: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return err
	}
	n.logger.Debug("summary posted", "url", n.cfg.URL, "results", len(s.Results))
	return nil
}

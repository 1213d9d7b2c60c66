package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"

	"github.com/jordan-wright/email"

	"github.com/IshaanNene/igscrape/internal/config"
)

// Email collects events during a run and mails one digest with the summary.
type Email struct {
	cfg    config.EmailConfig
	mu     sync.Mutex
	events []Event
	send   func(m *email.Email, addr string, auth smtp.Auth) error
	logger *slog.Logger
}

// NewEmail creates an email notifier.
func NewEmail(cfg config.EmailConfig, logger *slog.Logger) *Email {
	return &Email{
		cfg: cfg,
		send: func(m *email.Email, addr string, auth smtp.Auth) error {
			return m.Send(addr, auth)
		},
		logger: logger.With("component", "email_notifier"),
	}
}

func (n *Email) Name() string { return "email" }

// Notify queues e for the digest.
func (n *Email) Notify(_ context.Context, e Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

// NotifySummary sends the digest when anything went wrong.
func (n *Email) NotifySummary(_ context.Context, s Summary) error {
	n.mu.Lock()
	events := n.events
	n.events = nil
	n.mu.Unlock()

	_, errCount := s.Totals()
	if len(events) == 0 && len(s.Failed()) == 0 && errCount == 0 {
		n.logger.Debug("nothing to report")
		return nil
	}

	mail := n.message(s, events)
	addr := fmt.Sprintf("%s:%d", n.cfg.Server, n.cfg.Port)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Server)
	}
	err := n.send(mail, addr, auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = n.send(mail, addr, nil)
	}
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	n.logger.Info("digest sent", "to", n.cfg.To, "events", len(events))
	return nil
}

func (n *Email) message(s Summary, events []Event) *email.Email {
	mail := email.NewEmail()
	from := n.cfg.From
	if from == "" {
		from = n.cfg.Username
	}
	mail.From = from
	mail.To = n.cfg.To
	mail.Subject = n.cfg.Subject
	if failed := len(s.Failed()); failed > 0 {
		mail.Subject = fmt.Sprintf("%s (%d failed)", n.cfg.Subject, failed)
	}

	var b strings.Builder
	saved, errCount := s.Totals()
	fmt.Fprintf(&b, "Run started %s, finished %s.\n", s.Started.Format("2006-01-02 15:04:05"), s.Finished.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "%d inspectors, %d reports saved, %d errors.\n\n", len(s.Results), saved, errCount)

	if failed := s.Failed(); len(failed) > 0 {
		b.WriteString("Failed scrapers:\n")
		for _, r := range failed {
			fmt.Fprintf(&b, "  %s: %s\n", r.Inspector, r.Error)
		}
		b.WriteString("\n")
	}
	if len(events) > 0 {
		b.WriteString("Problems:\n")
		for _, e := range events {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	mail.Text = []byte(b.String())
	return mail
}

// Package notify pushes notable treasury activity to external channels.
package notify

import (
	"context"
	"log/slog"
	"sort"

	"github.com/slack-go/slack"

	"github.com/memecoinersol82-cell/liquid-protocol/internal/events"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/retry"
)

// Notifier delivers a message about treasury activity.
type Notifier interface {
	Notify(ctx context.Context, severity events.Severity, message string, fields map[string]string) error
}

// Noop discards notifications. Used when no webhook is configured.
type Noop struct{}

func (Noop) Notify(context.Context, events.Severity, string, map[string]string) error { return nil }

// Slack posts through an incoming webhook.
type Slack struct {
	log        *slog.Logger
	webhookURL string
	username   string
	retry      retry.Config
}

// NewSlack builds a Slack notifier for the given webhook URL.
func NewSlack(log *slog.Logger, webhookURL string) *Slack {
	return &Slack{
		log:        log.With("component", "notify"),
		webhookURL: webhookURL,
		username:   "liquidbot",
		retry:      retry.DefaultConfig(),
	}
}

func (s *Slack) Notify(ctx context.Context, severity events.Severity, message string, fields map[string]string) error {
	attachment := slack.Attachment{
		Color:  colorFor(severity),
		Text:   message,
		Fields: attachmentFields(fields),
	}
	msg := &slack.WebhookMessage{
		Username:    s.username,
		Attachments: []slack.Attachment{attachment},
	}

	err := retry.Do(ctx, s.retry, func() error {
		return slack.PostWebhookContext(ctx, s.webhookURL, msg)
	})
	if err != nil {
		s.log.Warn("slack notification failed", "error", err)
		return err
	}
	return nil
}

// attachmentFields renders fields in a stable order.
func attachmentFields(fields map[string]string) []slack.AttachmentField {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]slack.AttachmentField, 0, len(keys))
	for _, k := range keys {
		out = append(out, slack.AttachmentField{
			Title: k,
			Value: fields[k],
			Short: true,
		})
	}
	return out
}

func colorFor(severity events.Severity) string {
	switch severity {
	case events.SeveritySuccess:
		return "good"
	case events.SeverityWarning:
		return "warning"
	case events.SeverityError:
		return "danger"
	default:
		return "#439FE0"
	}
}

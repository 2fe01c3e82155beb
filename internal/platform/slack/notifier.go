// Package slack posts ad script failure alerts to a Slack incoming webhook.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/events"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
	"github.com/slack-go/slack"
)

// excerptLength is the longest script excerpt included in an alert, in characters.
const excerptLength = 200

const createdLayout = "2006-01-02 15:04:05"

// Config configures a Notifier.
type Config struct {
	// WebhookURL is the incoming webhook. Empty disables notifications.
	WebhookURL string

	// BaseURL is the public application URL used for the "View Task" link.
	BaseURL string

	// Timeout bounds each webhook post. Zero means 10 seconds.
	Timeout time.Duration
}

// Notifier sends a Slack alert for every ad_script_task.failed event.
// Delivery is best effort: failures are logged and never returned.
type Notifier struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(cfg Config, logger *slog.Logger) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With(slog.String("component", "slack_notifier")),
	}
}

var _ events.EventHandler = (*Notifier)(nil)

// HandleEvent implements events.EventHandler.
func (n *Notifier) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != events.TypeAdScriptTaskFailed {
		return nil
	}

	log := logger.FromContextOrDefault(ctx, n.logger)

	var payload events.AdScriptTaskFailedPayload
	if err := event.UnmarshalPayload(&payload); err != nil || payload.Task == nil {
		log.Error("failed to decode task failure event",
			slog.String("event_id", event.ID.String()),
			slog.Any("error", err))
		return nil
	}

	n.NotifyTaskFailed(ctx, payload.Task, payload.ErrorMessage)
	return nil
}

// NotifyTaskFailed posts an alert about task. It is a no-op without a webhook URL.
func (n *Notifier) NotifyTaskFailed(ctx context.Context, task *domain.AdScriptTask, errorMessage string) {
	log := logger.FromContextOrDefault(ctx, n.logger).With(slog.Int64("task_id", task.ID))

	if n.cfg.WebhookURL == "" {
		log.Debug("slack webhook URL not configured, skipping failure notification")
		return
	}

	msg := BuildTaskFailedMessage(task, errorMessage, n.cfg.BaseURL)
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.cfg.WebhookURL, n.httpClient, msg); err != nil {
		log.Error("failed to send slack failure notification", slog.String("error", err.Error()))
		return
	}

	log.Info("slack failure notification sent")
}

// BuildTaskFailedMessage renders the Block Kit alert for a failed task.
func BuildTaskFailedMessage(task *domain.AdScriptTask, errorMessage, baseURL string) *slack.WebhookMessage {
	id := strconv.FormatInt(task.ID, 10)
	title := "🚨 Ad Script Task Failed"

	fields := []*slack.TextBlockObject{
		markdown("*Task ID:*\n" + id),
		markdown("*Status:*\n" + string(task.Status)),
		markdown("*Created:*\n" + task.CreatedAt.UTC().Format(createdLayout)),
		markdown("*Error:*\n" + errorMessage),
	}

	button := slack.NewButtonBlockElement(
		"view_task",
		id,
		slack.NewTextBlockObject(slack.PlainTextType, "View Task", false, false),
	).WithURL(TaskURL(baseURL, task.ID))

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, true, false)),
		slack.NewSectionBlock(nil, fields, nil),
		slack.NewSectionBlock(markdown("*Reference Script:*\n"+Truncate(task.ReferenceScript, excerptLength)), nil, nil),
		slack.NewSectionBlock(markdown("*Outcome Description:*\n"+Truncate(task.OutcomeDescription, excerptLength)), nil, nil),
		slack.NewActionBlock("task_actions", button),
	}

	return &slack.WebhookMessage{
		Text:   fmt.Sprintf("%s: task %s: %s", title, id, errorMessage),
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

// TaskURL returns the link to a task in the web application.
func TaskURL(baseURL string, id int64) string {
	return fmt.Sprintf("%s/ad-scripts/%d", strings.TrimRight(baseURL, "/"), id)
}

// Truncate shortens s to at most max characters, ending in "..." when cut.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func markdown(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

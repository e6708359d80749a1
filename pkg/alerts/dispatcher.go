package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"golang.org/x/sync/errgroup"
)

// DispatcherConfig holds channel settings shared by all alerts.
type DispatcherConfig struct {
	// DefaultRecipient receives email when neither the owner nor the budget
	// provides an address.
	DefaultRecipient string
	From             string
	PubSubTopic      string
	// Timeout bounds each channel delivery. Zero means DefaultHTTPTimeout.
	Timeout time.Duration
}

// Dispatcher fans an alert out to its enabled channels.
type Dispatcher struct {
	cfg       DispatcherConfig
	mailer    Mailer
	publisher Publisher
	poster    WebhookPoster
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil mailer or poster makes that
// channel report a configuration failure. Pub/sub is skipped when publisher
// is nil or no topic is configured.
func NewDispatcher(cfg DispatcherConfig, mailer Mailer, publisher Publisher, poster WebhookPoster, logger *slog.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	return &Dispatcher{
		cfg:       cfg,
		mailer:    mailer,
		publisher: publisher,
		poster:    poster,
		logger:    logger,
	}
}

type delivery struct {
	channel model.Channel
	send    func(ctx context.Context) error
}

// SendAlert delivers alert on every enabled channel concurrently. It never
// returns an error and never panics; each channel's outcome is reported in
// the returned map. The console channel is always present.
func (d *Dispatcher) SendAlert(ctx context.Context, alert model.Alert) (results map[model.Channel]model.NotificationResult) {
	results = map[model.Channel]model.NotificationResult{
		model.ChannelConsole: d.logConsole(alert),
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("alert dispatch panicked", "budget_id", alert.BudgetID, "panic", r)
		}
	}()

	var jobs []delivery
	n := alert.Notifications
	if n.Email {
		jobs = append(jobs, delivery{model.ChannelEmail, func(ctx context.Context) error { return d.sendEmail(ctx, alert) }})
	}
	if n.PubSub && d.publisher != nil && d.cfg.PubSubTopic != "" {
		jobs = append(jobs, delivery{model.ChannelPubSub, func(ctx context.Context) error { return d.publish(ctx, alert) }})
	}
	if n.Chat && n.WebhookURL != "" {
		jobs = append(jobs, delivery{model.ChannelChat, func(ctx context.Context) error { return d.postChat(ctx, alert) }})
	}

	out := make([]model.NotificationResult, len(jobs))
	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			out[i] = d.run(ctx, alert, job)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range out {
		results[r.Channel] = r
	}
	return results
}

func (d *Dispatcher) run(ctx context.Context, alert model.Alert, job delivery) (res model.NotificationResult) {
	res = model.NotificationResult{Channel: job.channel, Attempted: true}
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("panic: %v", r)
			d.logger.Error("notification channel panicked",
				"channel", job.channel,
				"budget_id", alert.BudgetID,
				"panic", r,
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	if err := job.send(ctx); err != nil {
		res.Error = err.Error()
		d.logger.Warn("notification failed",
			"channel", job.channel,
			"budget_id", alert.BudgetID,
			"error", err,
		)
		return res
	}
	res.Success = true
	return res
}

func (d *Dispatcher) logConsole(alert model.Alert) model.NotificationResult {
	d.logger.Warn("budget alert",
		"budget_id", alert.BudgetID,
		"budget", alert.BudgetName,
		"alert_type", alert.AlertType,
		"severity", alert.Severity,
		"utilization", alert.CurrentUtilization,
		"spend", alert.CurrentSpend,
		"limit", alert.BudgetLimit,
		"threshold", alert.Threshold,
		"user_id", alert.UserID,
	)
	return model.NotificationResult{Channel: model.ChannelConsole, Attempted: true, Success: true}
}

// Recipient picks the alert's email address: owner email, then the budget's
// configured address, then the default recipient.
func (d *Dispatcher) Recipient(alert model.Alert) string {
	switch {
	case alert.UserEmail != "":
		return alert.UserEmail
	case alert.Notifications.EmailAddress != "":
		return alert.Notifications.EmailAddress
	default:
		return d.cfg.DefaultRecipient
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, alert model.Alert) error {
	if d.mailer == nil {
		return errors.New("email delivery is not configured")
	}
	to := d.Recipient(alert)
	if to == "" {
		return errors.New("no email recipient for alert")
	}
	msg, err := renderEmail(alert, d.cfg.From, to)
	if err != nil {
		return err
	}
	return d.mailer.SendEmail(ctx, msg)
}

func (d *Dispatcher) publish(ctx context.Context, alert model.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return d.publisher.Publish(ctx, d.cfg.PubSubTopic, body, map[string]string{
		"alertType": string(alert.AlertType),
		"severity":  string(alert.Severity),
		"budgetId":  alert.BudgetID,
	})
}

func (d *Dispatcher) postChat(ctx context.Context, alert model.Alert) error {
	if d.poster == nil {
		return errors.New("chat delivery is not configured")
	}
	return d.poster.PostWebhook(ctx, alert.Notifications.WebhookURL, chatPayload(alert))
}

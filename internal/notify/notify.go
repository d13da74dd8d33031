// Package notify provides alert notification delivery.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"trade-alert/internal/config"
	apperrors "trade-alert/internal/errors"
	"trade-alert/internal/metrics"
	"trade-alert/internal/models"
	"trade-alert/pkg/utils"
)

// Notifier defines the dispatcher consumed by the alert evaluator and CLI.
type Notifier interface {
	SendAlertNotification(ctx context.Context, alert models.Alert, price decimal.Decimal) error
	SendTestEmail(ctx context.Context) error
	Channels() []string
	Close() error
}

// New returns a MultiNotifier when notifications are enabled and a
// NoOpNotifier otherwise.
func New(cfg config.NotificationConfig, logger zerolog.Logger) Notifier {
	if !cfg.Enabled {
		return NewNoOpNotifier()
	}
	return NewMultiNotifier(cfg, logger)
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type    NotificationType
	Title   string
	Message string
	// Recipient overrides the channel's default address when set.
	Recipient string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationAlert NotificationType = "alert"
	NotificationTest  NotificationType = "test"
)

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	email    *EmailNotifier
	logger   zerolog.Logger
	mu       sync.RWMutex
}

var _ Notifier = (*MultiNotifier)(nil)

// NewMultiNotifier creates a MultiNotifier with every enabled channel.
// With notifications disabled no channel is added.
func NewMultiNotifier(cfg config.NotificationConfig, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0),
		logger:   logger.With().Str("component", "notify").Logger(),
	}

	if !cfg.Enabled {
		return mn
	}

	if cfg.Email.Enabled {
		mn.email = NewEmailNotifier(cfg.Email)
		mn.channels = append(mn.channels, mn.email)
	}
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramNotifier(cfg.Telegram))
	}
	if cfg.Kafka.Enabled {
		mn.channels = append(mn.channels, NewKafkaNotifier(cfg.Kafka))
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
	if email, ok := ch.(*EmailNotifier); ok {
		mn.email = email
	}
}

// Channels returns the names of the enabled channels.
func (mn *MultiNotifier) Channels() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()

	names := make([]string, 0, len(mn.channels))
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			names = append(names, ch.Name())
		}
	}
	return names
}

// Send delivers n on every enabled channel. A failing channel does not stop
// the others; all failures are returned together.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs error
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		err := ch.Send(ctx, n)
		metrics.NotificationsTotal.WithLabelValues(ch.Name(), metrics.ResultLabel(err)).Inc()
		if err != nil {
			mn.logger.Warn().Err(err).Str("channel", ch.Name()).Msg("Notification channel failed")
			errs = multierr.Append(errs, apperrors.NewNotificationError(ch.Name(), err))
		}
	}
	return errs
}

// SendAlertNotification sends a triggered alert on every channel. The alert's
// notification email, when set, replaces the default email recipient.
func (mn *MultiNotifier) SendAlertNotification(ctx context.Context, alert models.Alert, price decimal.Decimal) error {
	return mn.Send(ctx, AlertNotification(alert, price))
}

// SendTestEmail sends a test message through the email channel only.
func (mn *MultiNotifier) SendTestEmail(ctx context.Context) error {
	mn.mu.RLock()
	email := mn.email
	mn.mu.RUnlock()

	if email == nil || !email.IsEnabled() {
		return apperrors.ErrEmailDisabled
	}

	err := email.Send(ctx, Notification{
		Type:      NotificationTest,
		Title:     "Trade Alert - test email",
		Message:   "This is a test message from Trade Alert. Email notifications are configured correctly.",
		Timestamp: time.Now(),
	})
	metrics.NotificationsTotal.WithLabelValues(email.Name(), metrics.ResultLabel(err)).Inc()
	if err != nil {
		return apperrors.NewNotificationError(email.Name(), err)
	}
	return nil
}

// Close releases channel resources such as broker connections.
func (mn *MultiNotifier) Close() error {
	mn.mu.RLock()
	defer mn.mu.RUnlock()

	var errs error
	for _, ch := range mn.channels {
		if c, ok := ch.(io.Closer); ok {
			errs = multierr.Append(errs, c.Close())
		}
	}
	return errs
}

// AlertNotification renders a triggered alert.
func AlertNotification(alert models.Alert, price decimal.Decimal) Notification {
	var emoji string
	switch alert.Condition {
	case models.ConditionAbove:
		emoji = "📈"
	case models.ConditionBelow:
		emoji = "📉"
	default:
		emoji = "⚠️"
	}

	triggeredAt := time.Now().UTC()
	if alert.TriggeredAt != nil {
		triggeredAt = alert.TriggeredAt.UTC()
	}

	market := utils.DetectMarket(alert.Symbol)
	title := fmt.Sprintf("%s Alert Triggered: %s", emoji, alert.Symbol)
	message := fmt.Sprintf(
		"Symbol: %s (%s)\nCondition: Price %s %s\nCurrent Price: %s\nTriggered at: %s",
		alert.Symbol,
		market.DisplayName(),
		alert.Condition.Title(),
		utils.FormatPrice(alert.Symbol, alert.Price),
		utils.FormatPrice(alert.Symbol, price),
		triggeredAt.Format("2006-01-02 15:04:05 UTC"),
	)

	return Notification{
		Type:      NotificationAlert,
		Title:     title,
		Message:   message,
		Recipient: alert.NotificationEmail,
		Data: map[string]interface{}{
			"alert_id":      alert.ID,
			"user_id":       alert.UserID,
			"symbol":        alert.Symbol,
			"market":        string(market),
			"condition":     string(alert.Condition),
			"target_price":  alert.Price.String(),
			"current_price": price.String(),
			"triggered_at":  triggeredAt.Format(time.RFC3339),
		},
		Timestamp: triggeredAt,
	}
}

// NoOpNotifier is a notifier that does nothing.
type NoOpNotifier struct{}

var _ Notifier = (*NoOpNotifier)(nil)

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// SendAlertNotification does nothing.
func (n *NoOpNotifier) SendAlertNotification(ctx context.Context, alert models.Alert, price decimal.Decimal) error {
	return nil
}

// SendTestEmail reports email as disabled.
func (n *NoOpNotifier) SendTestEmail(ctx context.Context) error {
	return apperrors.ErrEmailDisabled
}

// Channels returns no channels.
func (n *NoOpNotifier) Channels() []string {
	return nil
}

// Close does nothing.
func (n *NoOpNotifier) Close() error {
	return nil
}

package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"

	"trade-alert/internal/config"
)

const webhookUserAgent = "TradeAlert/1.0"

// webhookPayload is the body posted for every notification. Alert fields are
// top level; a test notification carries only event, title and message.
type webhookPayload struct {
	Event        string `json:"event"`
	AlertID      string `json:"alert_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Symbol       string `json:"symbol,omitempty"`
	Market       string `json:"market,omitempty"`
	Condition    string `json:"condition,omitempty"`
	TargetPrice  string `json:"target_price,omitempty"`
	CurrentPrice string `json:"current_price,omitempty"`
	TriggeredAt  string `json:"triggered_at,omitempty"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	SentAt       string `json:"sent_at"`
}

func newWebhookPayload(n Notification) webhookPayload {
	str := func(key string) string { return cast.ToString(n.Data[key]) }
	return webhookPayload{
		Event:        eventName(n.Type),
		AlertID:      str("alert_id"),
		UserID:       str("user_id"),
		Symbol:       str("symbol"),
		Market:       str("market"),
		Condition:    str("condition"),
		TargetPrice:  str("target_price"),
		CurrentPrice: str("current_price"),
		TriggeredAt:  str("triggered_at"),
		Title:        n.Title,
		Message:      n.Message,
		SentAt:       n.Timestamp.UTC().Format(time.RFC3339),
	}
}

// eventName is the event label shared by the webhook and kafka channels.
func eventName(t NotificationType) string {
	if t == NotificationAlert {
		return "alert_triggered"
	}
	return string(t)
}

// WebhookNotifier posts notifications as JSON to a configured URL.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send posts the notification. Any 2xx response is success.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}
	status, err := postJSON(ctx, w.client, w.url, newWebhookPayload(n))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("webhook returned status %d", status)
	}
	return nil
}

// postJSON marshals body, posts it and returns the response status.
func postJSON(ctx context.Context, client *http.Client, url string, body interface{}) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

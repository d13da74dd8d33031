package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/go-mail/mail"

	"trade-alert/internal/config"
)

// mailSender is satisfied by *mail.Dialer.
type mailSender interface {
	DialAndSend(m ...*mail.Message) error
}

// EmailNotifier sends notifications via email using SMTP.
type EmailNotifier struct {
	from     string
	fromName string
	to       string
	enabled  bool
	sender   mailSender
}

// NewEmailNotifier creates a new EmailNotifier. Port 465 uses implicit TLS;
// other ports upgrade with STARTTLS when the server offers it.
func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	dialer := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password)
	dialer.Timeout = 10 * time.Second

	return &EmailNotifier{
		from:     cfg.From,
		fromName: cfg.FromName,
		to:       cfg.To,
		enabled:  cfg.Enabled && cfg.SMTPHost != "" && cfg.From != "",
		sender:   dialer,
	}
}

// Name returns the name of the notifier.
func (e *EmailNotifier) Name() string {
	return "email"
}

// IsEnabled returns whether the notifier is enabled.
func (e *EmailNotifier) IsEnabled() bool {
	return e.enabled
}

// Send sends a notification via email to n.Recipient, or the configured
// default recipient when unset.
func (e *EmailNotifier) Send(ctx context.Context, n Notification) error {
	if !e.enabled {
		return nil
	}

	to := n.Recipient
	if to == "" {
		to = e.to
	}
	if to == "" {
		return errors.New("no email recipient configured")
	}

	m := mail.NewMessage()
	m.SetAddressHeader("From", e.from, e.fromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", n.Title)
	m.SetDateHeader("Date", n.Timestamp)
	m.SetBody("text/plain", plainBody(n))
	m.AddAlternative("text/html", htmlBody(n))

	// The dialer has no context support; honour cancellation before dialing.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("sending email to %s: %w", to, err)
	}
	return nil
}

func plainBody(n Notification) string {
	var sb strings.Builder
	sb.WriteString(n.Message)
	if len(n.Data) > 0 {
		sb.WriteString("\n\n---\n")
		for _, k := range sortedKeys(n.Data) {
			fmt.Fprintf(&sb, "%s: %v\n", k, n.Data[k])
		}
	}
	return sb.String()
}

func htmlBody(n Notification) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	fmt.Fprintf(&sb, "<h2>%s</h2>", html.EscapeString(n.Title))
	for _, line := range strings.Split(n.Message, "\n") {
		fmt.Fprintf(&sb, "<p>%s</p>", html.EscapeString(line))
	}
	sb.WriteString("<hr><p><small>Trade Alert</small></p></body></html>")
	return sb.String()
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

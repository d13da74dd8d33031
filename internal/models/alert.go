package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "trade-alert/internal/errors"
)

// AlertCondition is the comparison an alert applies to the current price.
type AlertCondition string

const (
	// ConditionAbove triggers when price >= target.
	ConditionAbove AlertCondition = "above"
	// ConditionBelow triggers when price <= target.
	ConditionBelow AlertCondition = "below"
)

// ParseAlertCondition parses a condition name case-insensitively.
func ParseAlertCondition(s string) (AlertCondition, error) {
	switch AlertCondition(strings.ToLower(strings.TrimSpace(s))) {
	case ConditionAbove:
		return ConditionAbove, nil
	case ConditionBelow:
		return ConditionBelow, nil
	default:
		return "", fmt.Errorf("unknown alert condition %q", s)
	}
}

// Valid reports whether c is a known condition.
func (c AlertCondition) Valid() bool {
	return c == ConditionAbove || c == ConditionBelow
}

// Title returns the display form used in notifications.
func (c AlertCondition) Title() string {
	switch c {
	case ConditionAbove:
		return "Above"
	case ConditionBelow:
		return "Below"
	default:
		return string(c)
	}
}

// AlertStatus is the lifecycle state of an alert.
// Active may move to Triggered or Cancelled; both are terminal.
type AlertStatus string

const (
	StatusActive    AlertStatus = "active"
	StatusTriggered AlertStatus = "triggered"
	StatusCancelled AlertStatus = "cancelled"
)

// ParseAlertStatus parses a status name case-insensitively.
func ParseAlertStatus(s string) (AlertStatus, error) {
	switch AlertStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusTriggered:
		return StatusTriggered, nil
	case StatusCancelled:
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown alert status %q", s)
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s AlertStatus) IsTerminal() bool {
	return s == StatusTriggered || s == StatusCancelled
}

// Alert represents a user-defined price threshold on one symbol.
type Alert struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	Symbol            string          `json:"symbol"`
	Condition         AlertCondition  `json:"condition"`
	Price             decimal.Decimal `json:"price"`
	Status            AlertStatus     `json:"status"`
	NotificationEmail string          `json:"notification_email,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	TriggeredAt       *time.Time      `json:"triggered_at,omitempty"`
}

// IsTriggeredBy reports whether current satisfies the alert condition.
func (a *Alert) IsTriggeredBy(current decimal.Decimal) bool {
	switch a.Condition {
	case ConditionAbove:
		return current.GreaterThanOrEqual(a.Price)
	case ConditionBelow:
		return current.LessThanOrEqual(a.Price)
	default:
		return false
	}
}

// CreateAlertRequest carries the mutable fields of an alert.
// It is used for both create and update.
type CreateAlertRequest struct {
	UserID            string          `json:"user_id"`
	Symbol            string          `json:"symbol"`
	Condition         AlertCondition  `json:"condition"`
	Price             decimal.Decimal `json:"price"`
	NotificationEmail string          `json:"notification_email,omitempty"`
}

// Normalize upper-cases the symbol and trims whitespace.
func (r *CreateAlertRequest) Normalize() {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	r.NotificationEmail = strings.TrimSpace(r.NotificationEmail)
	r.UserID = strings.TrimSpace(r.UserID)
}

// Validate checks the request before it reaches storage.
func (r *CreateAlertRequest) Validate() error {
	if r.UserID == "" {
		return apperrors.NewValidationError("user_id", r.UserID, "is required")
	}
	return r.ValidateFields()
}

// ValidateFields checks the fields an update may change.
func (r *CreateAlertRequest) ValidateFields() error {
	if r.Symbol == "" {
		return apperrors.NewValidationError("symbol", r.Symbol, "is required")
	}
	if !r.Condition.Valid() {
		return apperrors.NewValidationError("condition", r.Condition, fmt.Sprintf("must be %q or %q", ConditionAbove, ConditionBelow))
	}
	if !r.Price.IsPositive() {
		return apperrors.NewValidationError("price", r.Price, "must be positive")
	}
	if r.NotificationEmail != "" && !strings.Contains(r.NotificationEmail, "@") {
		return apperrors.NewValidationError("notification_email", r.NotificationEmail, "is not an email address")
	}
	return nil
}

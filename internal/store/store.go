// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"trade-alert/internal/models"
)

// AlertStore defines persisted CRUD over alerts.
//
// Lookups of a missing alert return an error matching errors.ErrNotFound.
// Delete and status operations report whether a row was affected.
type AlertStore interface {
	CreateAlert(ctx context.Context, req models.CreateAlertRequest) (*models.Alert, error)
	ListAlerts(ctx context.Context) ([]models.Alert, error)
	ListAlertsByUser(ctx context.Context, userID string) ([]models.Alert, error)
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	GetAlertByUser(ctx context.Context, id, userID string) (*models.Alert, error)
	UpdateAlert(ctx context.Context, id string, req models.CreateAlertRequest) (*models.Alert, error)
	DeleteAlert(ctx context.Context, id string) (bool, error)
	DeleteAlertByUser(ctx context.Context, id, userID string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.AlertStatus) (bool, error)
	// MarkTriggered moves an alert from active to triggered. It returns
	// false when the alert was not active, so concurrent evaluators race
	// safely and exactly one of them wins.
	MarkTriggered(ctx context.Context, id string) (bool, error)
	CountByUser(ctx context.Context, userID string) (int, error)

	// ActiveSymbols returns the distinct symbols with at least one active alert.
	ActiveSymbols(ctx context.Context) ([]string, error)
	ActiveAlertsForSymbol(ctx context.Context, symbol string) ([]models.Alert, error)
}

// PriceHistoryStore persists one price bar per symbol per day.
type PriceHistoryStore interface {
	// SavePrice upserts by (symbol, date); a later bar replaces the day's row.
	SavePrice(ctx context.Context, bar models.PriceBar) error
	LatestPrice(ctx context.Context, symbol string) (*models.PriceBar, error)
	PriceHistory(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	AlertStore
	PriceHistoryStore
	Close() error
}

// DefaultHistoryLimit bounds PriceHistory when no limit is given.
const DefaultHistoryLimit = 100

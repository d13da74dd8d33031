package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	apperrors "trade-alert/internal/errors"
	"trade-alert/internal/models"
)

// ============================================================================
// Alerts Methods
// ============================================================================

const alertColumns = `id, user_id, symbol, condition, price, status, notification_email, created_at, updated_at, triggered_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var a models.Alert
	var condition, status string
	var email sql.NullString
	var triggeredAt sql.NullTime

	if err := row.Scan(&a.ID, &a.UserID, &a.Symbol, &condition, &a.Price, &status,
		&email, &a.CreatedAt, &a.UpdatedAt, &triggeredAt); err != nil {
		return nil, err
	}

	a.Condition = models.AlertCondition(condition)
	a.Status = models.AlertStatus(status)
	a.NotificationEmail = email.String
	if triggeredAt.Valid {
		t := triggeredAt.Time
		a.TriggeredAt = &t
	}
	return &a, nil
}

func (s *SQLiteStore) queryAlerts(ctx context.Context, op, where string, args ...interface{}) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, apperrors.NewPersistenceError(op, err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError(op, fmt.Errorf("failed to scan alert: %w", err))
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError(op, err)
	}
	return alerts, nil
}

func (s *SQLiteStore) getAlert(ctx context.Context, op, where string, args ...interface{}) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts `+where, args...)
	a, err := scanAlert(row)
	if apperrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %v: %w", args[0], apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError(op, err)
	}
	return a, nil
}

func nullableEmail(email string) interface{} {
	if email == "" {
		return nil
	}
	return email
}

// CreateAlert validates the request and stores a new active alert.
func (s *SQLiteStore) CreateAlert(ctx context.Context, req models.CreateAlertRequest) (*models.Alert, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.timestamp()
	alert := &models.Alert{
		ID:                uuid.NewString(),
		UserID:            req.UserID,
		Symbol:            req.Symbol,
		Condition:         req.Condition,
		Price:             req.Price,
		Status:            models.StatusActive,
		NotificationEmail: req.NotificationEmail,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`, alert.ID, alert.UserID, alert.Symbol, string(alert.Condition), alert.Price,
		string(alert.Status), nullableEmail(alert.NotificationEmail), alert.CreatedAt, alert.UpdatedAt)
	if err != nil {
		return nil, apperrors.NewPersistenceError("create_alert", err)
	}

	return alert, nil
}

// ListAlerts returns every alert, newest first.
func (s *SQLiteStore) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	return s.queryAlerts(ctx, "list_alerts", "")
}

// ListAlertsByUser returns the alerts owned by userID, newest first.
func (s *SQLiteStore) ListAlertsByUser(ctx context.Context, userID string) ([]models.Alert, error) {
	return s.queryAlerts(ctx, "list_alerts_by_user", "WHERE user_id = ?", userID)
}

// GetAlert retrieves an alert by ID.
func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	return s.getAlert(ctx, "get_alert", "WHERE id = ?", id)
}

// GetAlertByUser retrieves an alert by ID only if userID owns it.
func (s *SQLiteStore) GetAlertByUser(ctx context.Context, id, userID string) (*models.Alert, error) {
	return s.getAlert(ctx, "get_alert_by_user", "WHERE id = ? AND user_id = ?", id, userID)
}

// UpdateAlert replaces symbol, condition, price and notification email.
// Status and owner are left untouched.
func (s *SQLiteStore) UpdateAlert(ctx context.Context, id string, req models.CreateAlertRequest) (*models.Alert, error) {
	req.Normalize()
	if err := req.ValidateFields(); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET symbol = ?, condition = ?, price = ?, notification_email = ?, updated_at = ?
		WHERE id = ?
	`, req.Symbol, string(req.Condition), req.Price, nullableEmail(req.NotificationEmail), s.timestamp(), id)
	if err != nil {
		return nil, apperrors.NewPersistenceError("update_alert", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("alert %s: %w", id, apperrors.ErrNotFound)
	}

	return s.GetAlert(ctx, id)
}

// DeleteAlert removes an alert.
func (s *SQLiteStore) DeleteAlert(ctx context.Context, id string) (bool, error) {
	return s.deleteAlert(ctx, "delete_alert", "WHERE id = ?", id)
}

// DeleteAlertByUser removes an alert only if userID owns it.
func (s *SQLiteStore) DeleteAlertByUser(ctx context.Context, id, userID string) (bool, error) {
	return s.deleteAlert(ctx, "delete_alert_by_user", "WHERE id = ? AND user_id = ?", id, userID)
}

func (s *SQLiteStore) deleteAlert(ctx context.Context, op, where string, args ...interface{}) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM alerts `+where, args...)
	if err != nil {
		return false, apperrors.NewPersistenceError(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewPersistenceError(op, err)
	}
	return n > 0, nil
}

// UpdateStatus moves an active alert to a terminal status. Returns false when
// the alert does not exist and ErrInvalidTransition when it is not active or
// the target is active.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status models.AlertStatus) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("%w: cannot move alert %s to %q", apperrors.ErrInvalidTransition, id, status)
	}

	now := s.timestamp()
	var triggeredAt interface{}
	if status == models.StatusTriggered {
		triggeredAt = now
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = ?, updated_at = ?, triggered_at = COALESCE(?, triggered_at)
		WHERE id = ? AND status = 'active'
	`, string(status), now, triggeredAt, id)
	if err != nil {
		return false, apperrors.NewPersistenceError("update_status", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewPersistenceError("update_status", err)
	}
	if n > 0 {
		return true, nil
	}

	current, err := s.GetAlert(ctx, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return false, fmt.Errorf("%w: alert %s is %s", apperrors.ErrInvalidTransition, id, current.Status)
}

// MarkTriggered atomically moves an alert from active to triggered.
func (s *SQLiteStore) MarkTriggered(ctx context.Context, id string) (bool, error) {
	now := s.timestamp()
	result, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = 'triggered', triggered_at = ?, updated_at = ?
		WHERE id = ? AND status = 'active'
	`, now, now, id)
	if err != nil {
		return false, apperrors.NewPersistenceError("mark_triggered", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewPersistenceError("mark_triggered", err)
	}
	return n > 0, nil
}

// CountByUser returns how many alerts userID owns.
func (s *SQLiteStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, apperrors.NewPersistenceError("count_by_user", err)
	}
	return count, nil
}

// ActiveSymbols returns the distinct symbols with at least one active alert.
func (s *SQLiteStore) ActiveSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT symbol FROM alerts WHERE status = 'active' ORDER BY symbol
	`)
	if err != nil {
		return nil, apperrors.NewPersistenceError("active_symbols", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, apperrors.NewPersistenceError("active_symbols", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// ActiveAlertsForSymbol returns the active alerts watching symbol.
func (s *SQLiteStore) ActiveAlertsForSymbol(ctx context.Context, symbol string) ([]models.Alert, error) {
	return s.queryAlerts(ctx, "active_alerts_for_symbol", "WHERE symbol = ? AND status = 'active'", symbol)
}

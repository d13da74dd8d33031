package store

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "trade-alert/internal/errors"
	"trade-alert/internal/models"
)

// ============================================================================
// Price History Methods
// ============================================================================

// SavePrice upserts a daily bar keyed by (symbol, date).
func (s *SQLiteStore) SavePrice(ctx context.Context, bar models.PriceBar) error {
	createdAt := bar.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.timestamp()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO price_history
			(symbol, date, open_price, high_price, low_price, close_price, volume, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, bar.Symbol, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, createdAt.UTC())
	if err != nil {
		return apperrors.NewPersistenceError("save_price", err)
	}
	return nil
}

// LatestPrice returns the most recent bar stored for symbol.
func (s *SQLiteStore) LatestPrice(ctx context.Context, symbol string) (*models.PriceBar, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, date, open_price, high_price, low_price, close_price, volume, created_at
		FROM price_history WHERE symbol = ?
		ORDER BY date DESC LIMIT 1
	`, symbol)

	bar, err := scanBar(row)
	if apperrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("price history for %s: %w", symbol, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("latest_price", err)
	}
	return bar, nil
}

// PriceHistory returns up to limit bars for symbol, newest first.
func (s *SQLiteStore) PriceHistory(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, date, open_price, high_price, low_price, close_price, volume, created_at
		FROM price_history WHERE symbol = ?
		ORDER BY date DESC LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, apperrors.NewPersistenceError("price_history", err)
	}
	defer rows.Close()

	bars := []models.PriceBar{}
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("price_history", fmt.Errorf("failed to scan bar: %w", err))
		}
		bars = append(bars, *bar)
	}
	return bars, rows.Err()
}

func scanBar(row rowScanner) (*models.PriceBar, error) {
	var b models.PriceBar
	if err := row.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"trade-alert/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Property: creating an alert and reading it back by id yields the same
// symbol, condition, price and notification email.
func TestProperty_AlertRoundTrip(t *testing.T) {
	store := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"AAPL", "MSFT", "000001.SZ", "600519.SS", "BTC-USD", "TSLA"}
	conditionGen := gen.OneConstOf(models.ConditionAbove, models.ConditionBelow)
	centsGen := gen.Int64Range(1, 100_000_000)

	properties.Property("create then get preserves alert fields", prop.ForAll(
		func(symbolIdx int, condition models.AlertCondition, cents int64, withEmail bool) bool {
			ctx := context.Background()
			req := models.CreateAlertRequest{
				UserID:    "user-1",
				Symbol:    symbols[symbolIdx%len(symbols)],
				Condition: condition,
				Price:     decimal.New(cents, -2),
			}
			if withEmail {
				req.NotificationEmail = "someone@example.com"
			}

			created, err := store.CreateAlert(ctx, req)
			if err != nil {
				t.Logf("Failed to create alert: %v", err)
				return false
			}

			got, err := store.GetAlert(ctx, created.ID)
			if err != nil {
				t.Logf("Failed to get alert: %v", err)
				return false
			}

			return got.Symbol == req.Symbol &&
				got.Condition == req.Condition &&
				got.Price.Equal(req.Price) &&
				got.NotificationEmail == req.NotificationEmail &&
				got.Status == models.StatusActive &&
				got.TriggeredAt == nil
		},
		gen.IntRange(0, len(symbols)-1),
		conditionGen,
		centsGen,
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property: at most one price_history row exists per (symbol, date) and the
// last write for a day wins.
func TestProperty_PriceUpsertLastWriteWins(t *testing.T) {
	store := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("repeated saves on one day leave one row holding the last price", prop.ForAll(
		func(prices []int64, day int) bool {
			ctx := context.Background()
			symbol := "UPSERT"
			date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day).Format(models.DateLayout)

			var last decimal.Decimal
			for _, cents := range prices {
				last = decimal.New(cents, -2)
				bar := models.PriceBar{
					Symbol: symbol, Date: date,
					Open: last, High: last, Low: last, Close: last,
					Volume: cents,
				}
				if err := store.SavePrice(ctx, bar); err != nil {
					t.Logf("Failed to save price: %v", err)
					return false
				}
			}

			bars, err := store.PriceHistory(ctx, symbol, 1000)
			if err != nil {
				return false
			}
			matches := 0
			for _, b := range bars {
				if b.Date == date {
					matches++
					if !b.Close.Equal(last) || !b.Open.Equal(last) {
						return false
					}
				}
			}
			return matches == 1
		},
		gen.SliceOfN(3, gen.Int64Range(1, 1_000_000)),
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}

// Package alerts evaluates fresh prices against active alerts.
package alerts

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-alert/internal/logging"
	"trade-alert/internal/metrics"
	"trade-alert/internal/models"
	"trade-alert/internal/store"
)

// Notifier delivers a triggered alert.
type Notifier interface {
	SendAlertNotification(ctx context.Context, alert models.Alert, price decimal.Decimal) error
}

// Evaluator triggers active alerts whose condition a sample satisfies.
//
// The active-to-triggered transition is a conditional write, so when two
// evaluators race on the same alert exactly one of them wins and notifies.
type Evaluator struct {
	store    store.AlertStore
	notifier Notifier
	logger   zerolog.Logger

	// Callback for alert triggers
	onTrigger func(models.Alert, models.PriceSample)
}

// NewEvaluator creates an evaluator. notifier may be nil.
func NewEvaluator(alertStore store.AlertStore, notifier Notifier, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		store:    alertStore,
		notifier: notifier,
		logger:   logging.WithComponent(logger, "evaluator"),
	}
}

// SetOnTrigger sets a callback run after each successful trigger.
func (e *Evaluator) SetOnTrigger(fn func(models.Alert, models.PriceSample)) {
	e.onTrigger = fn
}

// Evaluate checks every active alert of the sample's symbol and returns how
// many this call triggered.
func (e *Evaluator) Evaluate(ctx context.Context, sample models.PriceSample) int {
	active, err := e.store.ActiveAlertsForSymbol(ctx, sample.Symbol)
	if err != nil {
		e.logger.Error().Err(err).Str("symbol", sample.Symbol).Msg("Failed to load active alerts")
		return 0
	}

	triggered := 0
	for i := range active {
		alert := active[i]
		if !alert.IsTriggeredBy(sample.Price) {
			continue
		}
		if e.trigger(ctx, alert, sample) {
			triggered++
		}
	}
	return triggered
}

// trigger performs the guarded transition and, if this call won it,
// dispatches exactly one notification. Errors stop only this alert.
func (e *Evaluator) trigger(ctx context.Context, alert models.Alert, sample models.PriceSample) bool {
	log := logging.WithAlertID(logging.WithSymbol(e.logger, alert.Symbol), alert.ID)

	won, err := e.store.MarkTriggered(ctx, alert.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to mark alert triggered")
		return false
	}
	if !won {
		log.Debug().Msg("Alert already handled")
		return false
	}

	// Notify with the row as stored so triggered_at matches the database.
	if stored, err := e.store.GetAlert(ctx, alert.ID); err == nil {
		alert = *stored
	} else {
		log.Warn().Err(err).Msg("Failed to reload triggered alert")
		now := sample.Timestamp
		alert.Status = models.StatusTriggered
		alert.TriggeredAt = &now
	}

	metrics.AlertsTriggeredTotal.Inc()
	logging.LogAlert(log, alert.ID, alert.Symbol, string(alert.Condition), alert.Price.String(), sample.Price.String())
	if sample.Source.IsSynthetic() {
		log.Warn().Msg("Alert triggered on a synthetic price")
	}

	if e.notifier != nil {
		if err := e.notifier.SendAlertNotification(ctx, alert, sample.Price); err != nil {
			log.Error().Err(err).Msg("Failed to send alert notification")
		}
	}

	if e.onTrigger != nil {
		e.onTrigger(alert, sample)
	}
	return true
}

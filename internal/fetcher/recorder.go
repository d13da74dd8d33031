package fetcher

import (
	"context"

	"github.com/rs/zerolog"

	"trade-alert/internal/logging"
	"trade-alert/internal/models"
	"trade-alert/internal/store"
	"trade-alert/pkg/utils"
)

// Recorder persists samples into price history.
type Recorder struct {
	history store.PriceHistoryStore
	logger  zerolog.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(history store.PriceHistoryStore, logger zerolog.Logger) *Recorder {
	return &Recorder{history: history, logger: logger}
}

// Record upserts the sample as the day's bar. Failures are logged and
// returned; callers carry on with the in-memory sample. The pipeline's
// logger is taken from ctx when present.
func (r *Recorder) Record(ctx context.Context, s models.PriceSample) error {
	log := logging.FromContext(ctx, logging.WithSymbol(r.logger, s.Symbol))

	if err := r.history.SavePrice(ctx, models.BarFromSample(s)); err != nil {
		log.Error().Err(err).Msg("Failed to save price history")
		return err
	}

	log.Info().
		Str("name", s.Name).
		Str("price", utils.FormatPrice(s.Symbol, s.Price)).
		Int64("volume", s.Volume).
		Str("source", string(s.Source)).
		Msg("Price saved")
	return nil
}

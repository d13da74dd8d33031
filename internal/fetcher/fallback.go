package fetcher

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "trade-alert/internal/errors"
	"trade-alert/internal/logging"
	"trade-alert/internal/models"
	"trade-alert/internal/store"
)

var defaultBasePrice = decimal.NewFromInt(100)

const (
	// maxWalk is the full width of the relative move, i.e. ±1%.
	maxWalk = 0.02

	minSyntheticVolume  = 1000
	syntheticVolumeSpan = 10000
)

// FallbackGenerator fabricates a plausible sample from the last stored price
// when every real source has failed.
type FallbackGenerator struct {
	history store.PriceHistoryStore
	logger  zerolog.Logger
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFallbackGenerator creates a generator reading base prices from history.
func NewFallbackGenerator(history store.PriceHistoryStore, logger zerolog.Logger) *FallbackGenerator {
	seed := uint64(time.Now().UnixNano())
	return &FallbackGenerator{
		history: history,
		logger:  logger,
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

// Generate returns a synthetic sample within ±1% of the last stored close
// (100 when there is none), rounded to cents, with a volume in [1000, 11000).
func (g *FallbackGenerator) Generate(ctx context.Context, symbol string) models.PriceSample {
	base := defaultBasePrice
	last, err := g.history.LatestPrice(ctx, symbol)
	switch {
	case err == nil && last.Close.IsPositive():
		base = last.Close
	case err != nil && !apperrors.Is(err, apperrors.ErrNotFound):
		logger := logging.FromContext(ctx, logging.WithSymbol(g.logger, symbol))
		logger.Warn().Err(err).Msg("Could not read last price, using default base")
	}

	g.mu.Lock()
	change := (g.rng.Float64() - 0.5) * maxWalk
	volume := minSyntheticVolume + g.rng.Int64N(syntheticVolumeSpan)
	g.mu.Unlock()

	price := base.Mul(decimal.NewFromFloat(1 + change)).Round(2)
	if !price.IsPositive() {
		price = base
	}

	return models.PriceSample{
		Symbol:    symbol,
		Name:      symbol + " Corporation",
		Price:     price,
		Volume:    volume,
		Timestamp: g.now().UTC(),
		Source:    models.SourceFallback,
	}
}

package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"trade-alert/internal/config"
	apperrors "trade-alert/internal/errors"
	"trade-alert/internal/logging"
	"trade-alert/internal/metrics"
	"trade-alert/internal/models"
	"trade-alert/internal/quote"
	"trade-alert/internal/store"
	"trade-alert/pkg/utils"
)

// Evaluator checks a fresh sample against the active alerts of its symbol
// and returns how many alerts it triggered.
type Evaluator interface {
	Evaluate(ctx context.Context, sample models.PriceSample) int
}

// Result describes one pass of the pipeline for a symbol.
type Result struct {
	Symbol    string
	Sample    *models.PriceSample
	CacheHit  bool
	Triggered int
}

// Service is the scheduler and per-symbol pipeline. Each tick fans out one
// task per watched symbol; fetches are bounded by a permit pool and a shared
// hourly budget.
type Service struct {
	cfg       config.PriceFetcherConfig
	alerts    store.AlertStore
	sources   quote.Sources
	cache     *PriceCache
	budget    *RateBudget
	fallback  *FallbackGenerator
	recorder  *Recorder
	evaluator Evaluator
	permits   *semaphore.Weighted
	logger    zerolog.Logger

	budgetBackoff time.Duration
	retryBase     time.Duration
}

// NewService wires the pipeline. cfg is read once here.
func NewService(cfg config.PriceFetcherConfig, st store.Store, sources quote.Sources, evaluator Evaluator, logger zerolog.Logger) *Service {
	logger = logging.WithComponent(logger, "fetcher")
	return &Service{
		cfg:           cfg,
		alerts:        st,
		sources:       sources,
		cache:         NewPriceCache(cfg.CacheTTL()),
		budget:        NewRateBudget(cfg.MaxRequestsPerHour),
		fallback:      NewFallbackGenerator(st, logger),
		recorder:      NewRecorder(st, logger),
		evaluator:     evaluator,
		permits:       semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
		logger:        logger,
		budgetBackoff: cfg.RateLimitBackoff(),
		retryBase:     cfg.RetryBaseDelay(),
	}
}

// Cache exposes the price cache for read-only inspection.
func (s *Service) Cache() *PriceCache {
	return s.cache
}

// Start runs a pass immediately and then once per update interval until ctx
// is cancelled.
func (s *Service) Start(ctx context.Context) error {
	interval := s.cfg.UpdateInterval()
	s.logger.Info().
		Dur("interval", interval).
		Int("max_concurrent", s.cfg.MaxConcurrentRequests).
		Int("max_per_hour", s.cfg.MaxRequestsPerHour).
		Msg("Price service started")

	s.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Price service stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("Polling pass failed")
	}
}

// RunOnce processes every symbol with an active alert. A failure on one
// symbol is logged and never stops the others.
func (s *Service) RunOnce(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	s.budget.Reset()

	symbols, err := s.alerts.ActiveSymbols(ctx)
	if err != nil {
		return apperrors.Wrap(err, "loading watched symbols")
	}
	metrics.WatchedSymbols.Set(float64(len(symbols)))
	s.logger.Debug().Int("symbols", len(symbols)).Msg("Polling pass")

	var g errgroup.Group
	for _, symbol := range symbols {
		// Cancellation is checked between symbols, never mid-fetch.
		if ctx.Err() != nil {
			break
		}
		symbol := symbol
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().Str("symbol", symbol).Interface("panic", r).Msg("Symbol pipeline panicked")
				}
			}()
			if _, err := s.ProcessSymbol(ctx, symbol); err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Symbol pipeline failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

// ProcessSymbol runs cache check, fetch (or fallback), persist and evaluate
// for one symbol. A fresh cache entry makes it a no-op.
//
// ctx is honoured until the fetch starts. Once a sample is in hand it is
// always cached, persisted and evaluated, so shutdown never leaves a fetched
// price unrecorded.
func (s *Service) ProcessSymbol(ctx context.Context, symbol string) (Result, error) {
	res := Result{Symbol: symbol}
	log := logging.WithSymbol(s.logger, symbol)
	ctx = logging.WithLogger(ctx, log)

	if s.cache.IsFresh(symbol) {
		metrics.CacheHitsTotal.Inc()
		log.Debug().Msg("Cached price is fresh, skipping")
		res.CacheHit = true
		return res, nil
	}

	sample, err := s.acquire(ctx, symbol)
	if err != nil {
		return res, err
	}
	res.Sample = sample

	finish := context.WithoutCancel(ctx)
	s.cache.Put(*sample)
	_ = s.recorder.Record(finish, *sample)

	if s.evaluator != nil {
		res.Triggered = s.evaluator.Evaluate(finish, *sample)
	}
	return res, nil
}

// acquire returns a real sample, or a synthetic one once every source is
// exhausted. The only errors are cancellation while waiting.
func (s *Service) acquire(ctx context.Context, symbol string) (*models.PriceSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.permits.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.permits.Release(1)

	if err := s.waitForBudget(ctx, symbol); err != nil {
		return nil, err
	}

	sample, err := s.fetch(ctx, symbol)
	if err == nil {
		s.budget.Record()
		metrics.BudgetUsed.Set(float64(s.budget.Used()))
		return sample, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.logger.Warn().Err(err).Str("symbol", symbol).Msg("All sources failed, using synthetic price")
	metrics.FallbacksTotal.Inc()
	synthetic := s.fallback.Generate(context.WithoutCancel(ctx), symbol)
	return &synthetic, nil
}

// waitForBudget blocks this symbol only until the hourly budget has room.
func (s *Service) waitForBudget(ctx context.Context, symbol string) error {
	for !s.budget.Allow() {
		metrics.RateLimitDeferralsTotal.Inc()
		s.logger.Warn().
			Str("symbol", symbol).
			Int("used", s.budget.Used()).
			Dur("backoff", s.budgetBackoff).
			Msg("Hourly request budget exhausted, deferring fetch")

		if err := utils.Sleep(ctx, s.budgetBackoff); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrRateLimited, err)
		}
	}
	return nil
}

// fetch tries each source of the symbol's chain in order, each under its own
// retry loop. Cancellation is seen between sources and during retry backoff.
func (s *Service) fetch(ctx context.Context, symbol string) (*models.PriceSample, error) {
	chain := s.sources.Chain(symbol)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no price source configured for %s", symbol)
	}

	var lastErr error
	for _, src := range chain {
		sample, err := s.fetchWithRetry(ctx, src, symbol)
		if err == nil {
			return sample, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().Err(err).Str("symbol", symbol).Str("source", string(src.Name())).Msg("Source exhausted")
	}
	return nil, lastErr
}

func (s *Service) fetchWithRetry(ctx context.Context, src quote.Source, symbol string) (*models.PriceSample, error) {
	name := string(src.Name())
	log := logging.WithSource(logging.WithSymbol(s.logger, symbol), name)

	retryCfg := utils.RetryConfig{
		MaxAttempts: s.cfg.MaxRetries,
		BaseDelay:   s.retryBase,
		Retryable:   apperrors.IsRetryable,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("Retrying quote fetch")
		},
	}

	// A request in flight is bounded by the client timeout, not by ctx.
	request := context.WithoutCancel(ctx)
	return utils.RetryWithResult(ctx, retryCfg, func(attempt int) (*models.PriceSample, error) {
		start := time.Now()
		sample, err := src.Fetch(request, symbol)
		elapsed := time.Since(start)

		metrics.FetchAttemptsTotal.WithLabelValues(name, metrics.ResultLabel(err)).Inc()
		metrics.FetchDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		logging.LogFetch(s.logger, name, symbol, attempt, elapsed, err)
		return sample, err
	})
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
)

// RateProvider resolves a conversion rate between two ISO currency codes.
type RateProvider interface {
	Rate(ctx context.Context, from, to string) (float64, error)
}

type rateCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CurrencyConfig carries the static conversion table. Keys take the form
// "FROM:TO" with uppercase ISO codes.
type CurrencyConfig struct {
	BaseCurrency string
	Rates        map[string]float64
	CacheTTL     time.Duration
}

// CurrencyService converts expense amounts into the company currency. Rates
// come from a configured table; resolved rates are cached in Redis so the
// table can later be swapped for a live source without touching callers.
type CurrencyService struct {
	config CurrencyConfig
	cache  rateCache
	logger *zap.Logger
}

// NewCurrencyService constructs a CurrencyService.
func NewCurrencyService(config CurrencyConfig, cache rateCache, logger *zap.Logger) *CurrencyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = time.Hour
	}
	return &CurrencyService{config: config, cache: cache, logger: logger}
}

// Rate returns the conversion factor from one currency to another. Identical
// currencies convert at 1. Unknown pairs try the inverse before failing.
func (s *CurrencyService) Rate(ctx context.Context, from, to string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "currency codes are required")
	}
	if from == to {
		return 1, nil
	}

	cacheKey := fmt.Sprintf("currency:rate:%s:%s", from, to)
	if s.cache != nil {
		var cached float64
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil && cached > 0 {
			return cached, nil
		}
	}

	rate, err := s.lookup(from, to)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, rate, s.config.CacheTTL); err != nil {
			s.logger.Warn("failed to cache currency rate", zap.Error(err))
		}
	}
	return rate, nil
}

// Convert converts an amount between currencies.
func (s *CurrencyService) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	rate, err := s.Rate(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return amount * rate, nil
}

// Rates lists every configured rate relative to the base currency. An empty
// base falls back to the configured company default.
func (s *CurrencyService) Rates(ctx context.Context, base string) (string, map[string]float64, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		base = strings.ToUpper(s.config.BaseCurrency)
	}
	if base == "" {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "base currency is required")
	}

	rates := map[string]float64{base: 1}
	for pair := range s.config.Rates {
		from, to, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		var other string
		switch base {
		case from:
			other = to
		case to:
			other = from
		default:
			continue
		}
		rate, err := s.Rate(ctx, base, other)
		if err != nil {
			continue
		}
		rates[other] = rate
	}
	return base, rates, nil
}

func (s *CurrencyService) lookup(from, to string) (float64, error) {
	if rate, ok := s.config.Rates[from+":"+to]; ok && rate > 0 {
		return rate, nil
	}
	if inverse, ok := s.config.Rates[to+":"+from]; ok && inverse > 0 {
		return 1 / inverse, nil
	}
	return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("no conversion rate configured for %s to %s", from, to))
}

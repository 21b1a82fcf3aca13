// Package services holds cross-module application services.
package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/clientdata"
	"github.com/cfholanda/investrack/internal/domain"
)

// RateSource fetches a live conversion rate between two currency codes.
type RateSource interface {
	Rate(from, to string) (decimal.Decimal, error)
}

// CurrencyService converts amounts between currencies with a tiered
// fallback:
//  1. fresh cached rate
//  2. live rate from the API (cached on success)
//  3. stale cached rate, logged
//  4. hardcoded last-resort rate
//
// Rates are spot rates; the asOf instant of a conversion request selects no
// historical rate, the latest known rate is applied regardless.
type CurrencyService struct {
	source RateSource
	cache  *clientdata.Repository
	log    zerolog.Logger
}

// NewCurrencyService creates a currency conversion service.
func NewCurrencyService(source RateSource, cache *clientdata.Repository, log zerolog.Logger) *CurrencyService {
	return &CurrencyService{
		source: source,
		cache:  cache,
		log:    log.With().Str("service", "currency").Logger(),
	}
}

type cachedRate struct {
	Rate decimal.Decimal `json:"rate"`
}

// Convert translates an amount from one currency into another.
func (s *CurrencyService) Convert(amount decimal.Decimal, from, to domain.Currency, asOf time.Time) (decimal.Decimal, error) {
	if from == to || amount.IsZero() {
		return amount, nil
	}
	rate, err := s.rate(string(from), string(to))
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

func (s *CurrencyService) rate(from, to string) (decimal.Decimal, error) {
	pair := from + "-" + to

	if data, err := s.cache.GetIfFresh("exchangerate", pair); err == nil && data != nil {
		var cached cachedRate
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached.Rate, nil
		}
	}

	rate, err := s.source.Rate(from, to)
	if err == nil && rate.IsPositive() {
		if storeErr := s.cache.Store("exchangerate", pair, cachedRate{Rate: rate}, clientdata.TTLExchangeRate); storeErr != nil {
			s.log.Warn().Err(storeErr).Str("pair", pair).Msg("Failed to cache rate")
		}
		return rate, nil
	}
	s.log.Warn().Err(err).Str("pair", pair).Msg("Live rate fetch failed, trying stale cache")

	if data, cacheErr := s.cache.Get("exchangerate", pair); cacheErr == nil && data != nil {
		var cached cachedRate
		if err := json.Unmarshal(data, &cached); err == nil && cached.Rate.IsPositive() {
			s.log.Warn().Str("pair", pair).Str("rate", cached.Rate.String()).Msg("Using stale cached rate")
			return cached.Rate, nil
		}
	}

	if fallback := hardcodedRate(from, to); fallback.IsPositive() {
		s.log.Warn().Str("pair", pair).Str("rate", fallback.String()).Msg("Using hardcoded fallback rate")
		return fallback, nil
	}

	return decimal.Zero, fmt.Errorf("no rate available for %s/%s", from, to)
}

// hardcodedRate is the last-resort tier, rough figures kept loosely current.
func hardcodedRate(from, to string) decimal.Decimal {
	if from == "USD" && to == "BRL" {
		return decimal.NewFromFloat(5.0)
	}
	if from == "BRL" && to == "USD" {
		return decimal.NewFromFloat(0.2)
	}
	return decimal.Zero
}

// Package marketdata provides the gateway between the engine and the external
// market data provider. It layers per-key TTL caching, in-flight request
// de-duplication, and retry-with-backoff on top of a domain.MarketDataProvider.
package marketdata

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/clientdata"
	"github.com/cfholanda/investrack/internal/domain"
)

// Config holds gateway tuning parameters.
type Config struct {
	QuoteTTL   time.Duration // freshness window for cached current prices
	MaxRetries int           // quote fetch attempts before giving up
	RetryDelay time.Duration // backoff unit, multiplied by the attempt number
}

// DefaultConfig mirrors the documented defaults: 15 minute quote cache,
// 3 attempts, 1 second linear backoff.
func DefaultConfig() Config {
	return Config{
		QuoteTTL:   15 * time.Minute,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// call tracks one in-flight provider request shared by concurrent callers.
type call struct {
	done chan struct{}
	val  interface{}
	err  error
}

// Gateway wraps the market data provider with caching and de-duplication.
//
// The cache is the injected clientdata repository (constructed once at process
// startup); expired rows are swept by clientdata.CleanupJob, scheduled at the
// quote TTL interval. Provider failures surface as absent results (nil price,
// empty series) after logging - absence means "unknown", never "zero" - and
// are never cached.
type Gateway struct {
	provider domain.MarketDataProvider
	cache    *clientdata.Repository
	cfg      Config
	log      zerolog.Logger
	sleep    func(time.Duration) // swapped out in tests

	mu      sync.Mutex
	pending map[string]*call
}

// New creates a new market data gateway.
func New(provider domain.MarketDataProvider, cache *clientdata.Repository, cfg Config, log zerolog.Logger) *Gateway {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Gateway{
		provider: provider,
		cache:    cache,
		cfg:      cfg,
		log:      log.With().Str("service", "marketdata_gateway").Logger(),
		sleep:    time.Sleep,
		pending:  make(map[string]*call),
	}
}

// NormalizeSymbol is applied before any cache or lookup key use.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// windowKey builds the cache key for a symbol+window lookup. Any change to
// the window bounds is a cache miss; windows are not merged.
func windowKey(symbol string, from, to time.Time) string {
	return fmt.Sprintf("%s|%s|%s", symbol, from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
}

// do collapses concurrent requests for the same key into one provider call.
// All waiters observe the same resolved value or the same error. The pending
// entry is cleared when the call settles, success or failure.
func (g *Gateway) do(key string, fn func() (interface{}, error)) (interface{}, error) {
	g.mu.Lock()
	if c, ok := g.pending[key]; ok {
		g.mu.Unlock()
		<-c.done
		return c.val, c.err
	}
	c := &call{done: make(chan struct{})}
	g.pending[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	g.mu.Lock()
	delete(g.pending, key)
	g.mu.Unlock()
	close(c.done)

	return c.val, c.err
}

// cachedPrice is the structure stored in the current_prices table.
type cachedPrice struct {
	Price decimal.Decimal `json:"price"`
}

// GetCurrentPrice returns the current price for a symbol, or nil when the
// provider has no answer. Cached prices are served within the quote TTL;
// misses go through the retry chain (linear backoff, retryDelay * attempt).
func (g *Gateway) GetCurrentPrice(symbol string) *decimal.Decimal {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil
	}

	// Cache first
	if data, err := g.cache.GetIfFresh("current_prices", symbol); err == nil && data != nil {
		var cached cachedPrice
		if err := json.Unmarshal(data, &cached); err == nil {
			g.log.Debug().Str("symbol", symbol).Msg("Price cache hit")
			return &cached.Price
		}
	}

	val, err := g.do("price:"+symbol, func() (interface{}, error) {
		price, err := g.fetchQuoteWithRetry(symbol)
		if err != nil {
			return nil, err
		}

		if storeErr := g.cache.Store("current_prices", symbol, cachedPrice{Price: price}, g.cfg.QuoteTTL); storeErr != nil {
			g.log.Warn().Err(storeErr).Str("symbol", symbol).Msg("Failed to cache price")
		}
		return price, nil
	})
	if err != nil {
		// Exhausted retries. Not cached as a negative result, so the next
		// caller triggers a fresh attempt chain.
		g.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch price")
		return nil
	}

	price := val.(decimal.Decimal)
	return &price
}

// fetchQuoteWithRetry runs the quote attempt chain: up to MaxRetries attempts
// with linearly increasing backoff. On exhaustion the last error propagates.
func (g *Gateway) fetchQuoteWithRetry(symbol string) (decimal.Decimal, error) {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		price, err := g.provider.Quote(symbol)
		if err == nil {
			return price, nil
		}
		lastErr = err

		if attempt < g.cfg.MaxRetries {
			g.sleep(g.cfg.RetryDelay * time.Duration(attempt))
		}
	}
	return decimal.Zero, fmt.Errorf("quote failed after %d attempts: %w", g.cfg.MaxRetries, lastErr)
}

// GetDividendEvents returns provider dividend events for a symbol window.
// Provider failures yield an empty list after logging; callers must treat an
// empty result as "unknown", not "no dividends ever".
func (g *Gateway) GetDividendEvents(symbol string, from, to time.Time) []domain.DividendEvent {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil
	}
	key := windowKey(symbol, from, to)

	if data, err := g.cache.GetIfFresh("dividend_events", key); err == nil && data != nil {
		var cached []domain.DividendEvent
		if err := json.Unmarshal(data, &cached); err == nil {
			g.log.Debug().Str("window", key).Msg("Dividend events cache hit")
			return cached
		}
	}

	val, err := g.do("dividends:"+key, func() (interface{}, error) {
		events, err := g.provider.DividendEvents(symbol, from, to)
		if err != nil {
			return nil, err
		}

		if storeErr := g.cache.Store("dividend_events", key, events, clientdata.TTLDividendEvents); storeErr != nil {
			g.log.Warn().Err(storeErr).Str("window", key).Msg("Failed to cache dividend events")
		}
		return events, nil
	})
	if err != nil {
		g.log.Warn().Err(err).Str("window", key).Msg("Failed to fetch dividend events")
		return nil
	}

	return val.([]domain.DividendEvent)
}

// GetMonthlyCloses returns month-end closing prices keyed by "YYYY-MM" for a
// symbol window. Provider failures yield an empty map after logging.
func (g *Gateway) GetMonthlyCloses(symbol string, from, to time.Time) map[string]decimal.Decimal {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil
	}
	key := windowKey(symbol, from, to)

	if data, err := g.cache.GetIfFresh("monthly_closes", key); err == nil && data != nil {
		var cached map[string]decimal.Decimal
		if err := json.Unmarshal(data, &cached); err == nil {
			g.log.Debug().Str("window", key).Msg("Monthly closes cache hit")
			return cached
		}
	}

	val, err := g.do("closes:"+key, func() (interface{}, error) {
		closes, err := g.provider.MonthlyCloses(symbol, from, to)
		if err != nil {
			return nil, err
		}

		if storeErr := g.cache.Store("monthly_closes", key, closes, clientdata.TTLMonthlyCloses); storeErr != nil {
			g.log.Warn().Err(storeErr).Str("window", key).Msg("Failed to cache monthly closes")
		}
		return closes, nil
	})
	if err != nil {
		g.log.Warn().Err(err).Str("window", key).Msg("Failed to fetch monthly closes")
		return nil
	}

	return val.(map[string]decimal.Decimal)
}

// Invalidate drops the cached current price for a symbol.
func (g *Gateway) Invalidate(symbol string) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return
	}
	if err := g.cache.Delete("current_prices", symbol); err != nil {
		g.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to invalidate cached price")
	}
}

package marketdata

import (
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfholanda/investrack/internal/clientdata"
	"github.com/cfholanda/investrack/internal/database"
	"github.com/cfholanda/investrack/internal/domain"
)

// fakeProvider counts calls and serves scripted responses.
type fakeProvider struct {
	mu            sync.Mutex
	quoteCalls    int
	quoteErrs     int // fail this many leading Quote calls
	quote         decimal.Decimal
	closesCalls   int
	closes        map[string]decimal.Decimal
	dividendCalls int
	dividends     []domain.DividendEvent
	block         chan struct{} // when set, Quote waits on it
}

func (f *fakeProvider) Quote(symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	f.quoteCalls++
	shouldFail := f.quoteCalls <= f.quoteErrs
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if shouldFail {
		return decimal.Zero, errors.New("provider unavailable")
	}
	return f.quote, nil
}

func (f *fakeProvider) MonthlyCloses(symbol string, from, to time.Time) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closesCalls++
	if f.closes == nil {
		return nil, errors.New("provider unavailable")
	}
	return f.closes, nil
}

func (f *fakeProvider) DividendEvents(symbol string, from, to time.Time) ([]domain.DividendEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dividendCalls++
	if f.dividends == nil {
		return nil, errors.New("provider unavailable")
	}
	return f.dividends, nil
}

func (f *fakeProvider) calls() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteCalls, f.closesCalls, f.dividendCalls
}

func setupGateway(t *testing.T, provider domain.MarketDataProvider, cfg Config) *Gateway {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(database.Schema("client_data"))
	require.NoError(t, err)

	gw := New(provider, clientdata.NewRepository(db), cfg, zerolog.Nop())
	gw.sleep = func(time.Duration) {} // no real backoff in tests
	return gw
}

func TestGetCurrentPriceCachesResult(t *testing.T) {
	provider := &fakeProvider{quote: decimal.NewFromFloat(187.44)}
	gw := setupGateway(t, provider, DefaultConfig())

	price := gw.GetCurrentPrice("aapl")
	require.NotNil(t, price)
	assert.True(t, price.Equal(decimal.NewFromFloat(187.44)))

	// Second call within the TTL is served from cache
	price = gw.GetCurrentPrice("AAPL")
	require.NotNil(t, price)
	assert.True(t, price.Equal(decimal.NewFromFloat(187.44)))

	quotes, _, _ := provider.calls()
	assert.Equal(t, 1, quotes)
}

func TestGetCurrentPriceEmptySymbol(t *testing.T) {
	provider := &fakeProvider{quote: decimal.NewFromInt(1)}
	gw := setupGateway(t, provider, DefaultConfig())

	assert.Nil(t, gw.GetCurrentPrice("   "))
	quotes, _, _ := provider.calls()
	assert.Equal(t, 0, quotes)
}

func TestGetCurrentPriceRetries(t *testing.T) {
	provider := &fakeProvider{quote: decimal.NewFromInt(42), quoteErrs: 2}
	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	gw := setupGateway(t, provider, cfg)

	var delays []time.Duration
	gw.sleep = func(d time.Duration) { delays = append(delays, d) }

	price := gw.GetCurrentPrice("VTI")
	require.NotNil(t, price)
	assert.True(t, price.Equal(decimal.NewFromInt(42)))

	quotes, _, _ := provider.calls()
	assert.Equal(t, 3, quotes)
	// Linear backoff: delay * attempt
	assert.Equal(t, []time.Duration{cfg.RetryDelay, 2 * cfg.RetryDelay}, delays)
}

func TestGetCurrentPriceExhaustedRetries(t *testing.T) {
	provider := &fakeProvider{quoteErrs: 100}
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	gw := setupGateway(t, provider, cfg)

	assert.Nil(t, gw.GetCurrentPrice("FAIL"))
	quotes, _, _ := provider.calls()
	assert.Equal(t, 2, quotes)

	// Failure is not cached: the next call runs a fresh attempt chain
	assert.Nil(t, gw.GetCurrentPrice("FAIL"))
	quotes, _, _ = provider.calls()
	assert.Equal(t, 4, quotes)
}

func TestGetCurrentPriceDeduplicatesConcurrentCalls(t *testing.T) {
	provider := &fakeProvider{quote: decimal.NewFromInt(99), block: make(chan struct{})}
	gw := setupGateway(t, provider, DefaultConfig())

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*decimal.Decimal, callers)

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = gw.GetCurrentPrice("MSFT")
		}(i)
	}

	// Let all callers pile up on the pending entry before releasing
	time.Sleep(50 * time.Millisecond)
	close(provider.block)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NotNil(t, results[i])
		assert.True(t, results[i].Equal(decimal.NewFromInt(99)))
	}
	quotes, _, _ := provider.calls()
	assert.Equal(t, 1, quotes)
}

func TestGetMonthlyClosesCachesByWindow(t *testing.T) {
	provider := &fakeProvider{closes: map[string]decimal.Decimal{
		"2024-01": decimal.NewFromInt(100),
		"2024-02": decimal.NewFromInt(110),
	}}
	gw := setupGateway(t, provider, DefaultConfig())

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	closes := gw.GetMonthlyCloses("VOO", from, to)
	require.Len(t, closes, 2)
	assert.True(t, closes["2024-01"].Equal(decimal.NewFromInt(100)))

	gw.GetMonthlyCloses("VOO", from, to)
	_, closeCalls, _ := provider.calls()
	assert.Equal(t, 1, closeCalls)

	// A different window is a distinct cache key
	gw.GetMonthlyCloses("VOO", from, to.AddDate(0, 1, 0))
	_, closeCalls, _ = provider.calls()
	assert.Equal(t, 2, closeCalls)
}

func TestGetMonthlyClosesProviderFailure(t *testing.T) {
	provider := &fakeProvider{}
	gw := setupGateway(t, provider, DefaultConfig())

	closes := gw.GetMonthlyCloses("VOO", time.Now().AddDate(-1, 0, 0), time.Now())
	assert.Empty(t, closes)
}

func TestGetDividendEventsCachesByWindow(t *testing.T) {
	exDate := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	provider := &fakeProvider{dividends: []domain.DividendEvent{
		{Date: exDate, Amount: decimal.NewFromFloat(0.50)},
	}}
	gw := setupGateway(t, provider, DefaultConfig())

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	events := gw.GetDividendEvents("KO", from, to)
	require.Len(t, events, 1)
	assert.True(t, events[0].Amount.Equal(decimal.NewFromFloat(0.50)))
	assert.True(t, events[0].Date.Equal(exDate))

	gw.GetDividendEvents("KO", from, to)
	_, _, divCalls := provider.calls()
	assert.Equal(t, 1, divCalls)
}

func TestGetDividendEventsProviderFailure(t *testing.T) {
	provider := &fakeProvider{}
	gw := setupGateway(t, provider, DefaultConfig())

	events := gw.GetDividendEvents("KO", time.Now().AddDate(-1, 0, 0), time.Now())
	assert.Empty(t, events)
}

func TestInvalidateDropsCachedPrice(t *testing.T) {
	provider := &fakeProvider{quote: decimal.NewFromInt(10)}
	gw := setupGateway(t, provider, DefaultConfig())

	require.NotNil(t, gw.GetCurrentPrice("NVDA"))
	gw.Invalidate("NVDA")
	require.NotNil(t, gw.GetCurrentPrice("NVDA"))

	quotes, _, _ := provider.calls()
	assert.Equal(t, 2, quotes)
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "AAPL", NormalizeSymbol("  aapl "))
	assert.Equal(t, "BRK-B", NormalizeSymbol("brk-b"))
	assert.Equal(t, "", NormalizeSymbol("   "))
}

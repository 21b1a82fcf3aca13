package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketDataProvider defines provider-agnostic market data operations.
// The concrete adapter (Yahoo chart API) lives in internal/clients; the
// gateway and everything above it depend only on this interface so tests can
// substitute doubles.
type MarketDataProvider interface {
	// Quote returns the current market price for a symbol.
	Quote(symbol string) (decimal.Decimal, error)

	// MonthlyCloses returns month-end closing prices keyed by "YYYY-MM"
	// for the window [from, to].
	MonthlyCloses(symbol string, from, to time.Time) (map[string]decimal.Decimal, error)

	// DividendEvents returns dividend corporate actions (ex-date plus raw
	// per-share amount) for the window [from, to].
	DividendEvents(symbol string, from, to time.Time) ([]DividendEvent, error)
}

// CurrencyConverter converts an amount between currencies. asOf is advisory:
// implementations backed by a spot-rate API may ignore it and use the latest
// known rate.
type CurrencyConverter interface {
	Convert(amount decimal.Decimal, from, to Currency, asOf time.Time) (decimal.Decimal, error)
}

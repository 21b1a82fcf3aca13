// Package equity builds month-by-month portfolio value series, per
// instrument and aggregated across a whole portfolio.
package equity

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/domain"
	"github.com/cfholanda/investrack/internal/modules/position"
)

// PriceSource supplies historical and live prices. Backed by the market
// data gateway in production.
type PriceSource interface {
	GetMonthlyCloses(symbol string, from, to time.Time) map[string]decimal.Decimal
	GetCurrentPrice(symbol string) *decimal.Decimal
}

// Point is one month of an equity series. Month is formatted "MM/YYYY".
// Value and Dividends are rounded to 2 decimals; Invested is the cumulative
// buy cost through the month.
type Point struct {
	Month     string          `json:"month"`
	Value     decimal.Decimal `json:"value"`
	Dividends decimal.Decimal `json:"dividends"`
	Invested  decimal.Decimal `json:"invested"`
}

// Options controls series construction.
type Options struct {
	// StopWhenZero ends the series at full liquidation: once a month with
	// positive shares has been emitted, the first later month at zero or
	// negative shares terminates the loop. Without it zero-share months are
	// skipped silently.
	StopWhenZero bool
}

// Builder produces monthly equity series.
type Builder struct {
	prices PriceSource
	now    func() time.Time
	log    zerolog.Logger
}

// NewBuilder creates an equity series builder.
func NewBuilder(prices PriceSource, log zerolog.Logger) *Builder {
	return &Builder{
		prices: prices,
		now:    time.Now,
		log:    log.With().Str("service", "equity_series").Logger(),
	}
}

const monthKeyFormat = "01/2006"

// MonthlySeries walks calendar months from the earliest transaction through
// the current month and values the position held at each month end. The
// in-progress month is valued as of now, falling back to a live quote when
// the close map has no entry for it yet. Months without a resolvable price
// are dropped, never emitted as zero.
func (b *Builder) MonthlySeries(symbol string, transactions []domain.Transaction, dividends []domain.Dividend, opts Options) []Point {
	if len(transactions) == 0 {
		return nil
	}

	sorted := make([]domain.Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	now := b.now()
	start := monthStart(sorted[0].Date)
	currentMonth := monthStart(now)

	// One batched fetch covering the whole series, not a call per month
	closes := b.prices.GetMonthlyCloses(symbol, start, now)

	var series []Point
	hadPositive := false

	for cursor := start; !cursor.After(currentMonth); cursor = cursor.AddDate(0, 1, 0) {
		isCurrent := cursor.Equal(currentMonth)
		monthEnd := cursor.AddDate(0, 1, 0).Add(-time.Millisecond)
		if isCurrent {
			monthEnd = now
		}

		shares := position.SharesAt(sorted, monthEnd)
		if !shares.IsPositive() {
			if opts.StopWhenZero && hadPositive {
				break
			}
			continue
		}
		hadPositive = true

		price, ok := closes[cursor.Format("2006-01")]
		if !ok && isCurrent {
			if live := b.prices.GetCurrentPrice(symbol); live != nil {
				price, ok = *live, true
			}
		}
		if !ok {
			b.log.Debug().Str("symbol", symbol).Str("month", cursor.Format(monthKeyFormat)).Msg("No price for month, dropping")
			continue
		}

		monthDividends := decimal.Zero
		for _, d := range dividends {
			if !d.Date.Before(cursor) && !d.Date.After(monthEnd) {
				monthDividends = monthDividends.Add(d.Amount)
			}
		}

		invested := decimal.Zero
		for _, tx := range sorted {
			if tx.Date.After(monthEnd) {
				break
			}
			if tx.Type == domain.TransactionBuy {
				invested = invested.Add(tx.Quantity.Mul(tx.Price).Add(tx.TaxOrZero()))
			}
		}

		series = append(series, Point{
			Month:     cursor.Format(monthKeyFormat),
			Value:     price.Mul(shares).Round(2),
			Dividends: monthDividends.Round(2),
			Invested:  invested.Round(2),
		})
	}

	return series
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

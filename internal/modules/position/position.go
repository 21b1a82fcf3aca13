// Package position reconstructs share holdings from transaction history.
// A holding is never stored as a snapshot for a past date; it is always
// derived by replaying buys and sells up to the instant of interest.
package position

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/domain"
)

// SharesAt replays the transaction history and returns the net share count
// held at the given instant. Transactions dated exactly at the instant are
// included. Sells subtract, buys add; the result can go negative if the
// history itself is inconsistent, callers decide how to treat that.
func SharesAt(transactions []domain.Transaction, at time.Time) decimal.Decimal {
	shares := decimal.Zero
	for _, tx := range transactions {
		if tx.Date.After(at) {
			continue
		}
		switch tx.Type {
		case domain.TransactionBuy:
			shares = shares.Add(tx.Quantity)
		case domain.TransactionSell:
			shares = shares.Sub(tx.Quantity)
		}
	}
	return shares
}

// SharesNow returns the current net share count across the full history.
func SharesNow(transactions []domain.Transaction) decimal.Decimal {
	return SharesAt(transactions, time.Now())
}

// AvgBuyPriceThrough computes the weighted average buy price, taxes included,
// over all buy transactions dated at or before the given instant. Returns zero
// when no buys qualify. Used to value the cost basis of a sale at the moment
// it happens.
func AvgBuyPriceThrough(transactions []domain.Transaction, at time.Time) decimal.Decimal {
	totalCost := decimal.Zero
	totalQty := decimal.Zero
	for _, tx := range transactions {
		if tx.Type != domain.TransactionBuy || tx.Date.After(at) {
			continue
		}
		totalCost = totalCost.Add(tx.Quantity.Mul(tx.Price).Add(tx.TaxOrZero()))
		totalQty = totalQty.Add(tx.Quantity)
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalCost.Div(totalQty)
}

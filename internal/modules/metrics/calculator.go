// Package metrics computes valuation and profit figures for a single
// investment from a snapshot of its history. Pure computation, no I/O;
// given identical decimal inputs the output is reproducible exactly.
package metrics

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Input is the snapshot a metrics computation runs over. CurrentPrice may be
// nil when the market data provider has no answer; the valuation then treats
// the price as zero while cost basis figures stay intact.
type Input struct {
	Transactions []domain.Transaction
	Dividends    []domain.Dividend
	SellGainLoss []domain.SellGainLoss
	CurrentPrice *decimal.Decimal
	Shares       decimal.Decimal
}

// Compute derives the full metrics set for one investment.
//
// Cost basis is history-wide: the average buy price spans every buy ever
// made, not just the currently held lots. Percentage figures are zero when
// nothing was invested, never a division error.
func Compute(in Input) (domain.Metrics, error) {
	totalInvested := decimal.Zero
	totalQtyBought := decimal.Zero

	for _, tx := range in.Transactions {
		if tx.Quantity.IsNegative() {
			return domain.Metrics{}, fmt.Errorf("transaction %s has negative quantity %s", tx.ID, tx.Quantity)
		}
		if tx.Type != domain.TransactionBuy {
			continue
		}
		totalInvested = totalInvested.Add(tx.Quantity.Mul(tx.Price).Add(tx.TaxOrZero()))
		totalQtyBought = totalQtyBought.Add(tx.Quantity)
	}

	avgBuyPrice := decimal.Zero
	if totalQtyBought.IsPositive() {
		avgBuyPrice = totalInvested.Div(totalQtyBought)
	}

	totalDividends := decimal.Zero
	for _, d := range in.Dividends {
		totalDividends = totalDividends.Add(d.Amount.Sub(d.TaxOrZero()))
	}

	realized := decimal.Zero
	for _, s := range in.SellGainLoss {
		realized = realized.Add(s.RealizedProfitLoss)
	}

	price := decimal.Zero
	if in.CurrentPrice != nil {
		price = *in.CurrentPrice
	}
	currentValue := in.Shares.Mul(price)

	unrealized := currentValue.Sub(avgBuyPrice.Mul(in.Shares))
	totalPL := unrealized.Add(totalDividends).Add(realized)

	plPct := decimal.Zero
	roi := decimal.Zero
	if totalInvested.IsPositive() {
		plPct = totalPL.Div(totalInvested).Mul(hundred)
		roi = currentValue.Add(totalDividends).Add(realized).
			Div(totalInvested).Sub(decimal.NewFromInt(1)).Mul(hundred)
	}

	return domain.Metrics{
		Shares:              in.Shares,
		TotalQuantityBought: totalQtyBought,
		AvgBuyPrice:         avgBuyPrice,
		TotalInvested:       totalInvested,
		CurrentValue:        currentValue,
		TotalDividends:      totalDividends,
		RealizedGainLoss:    realized,
		UnrealizedGainLoss:  unrealized,
		TotalProfitLoss:     totalPL,
		ProfitLossPct:       plPct,
		ReturnOnInvestment:  roi,
	}, nil
}

// Package domain provides core domain models and types.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyBRL Currency = "BRL"
)

// InvestmentType represents the kind of instrument being tracked
type InvestmentType string

const (
	InvestmentTypeStock      InvestmentType = "STOCK"
	InvestmentTypeETF        InvestmentType = "ETF"
	InvestmentTypeCrypto     InvestmentType = "CRYPTO"
	InvestmentTypeFund       InvestmentType = "FUND"
	InvestmentTypeRealEstate InvestmentType = "REAL_ESTATE"
	InvestmentTypeOther      InvestmentType = "OTHER"
)

// TransactionType is the direction of a transaction
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// Investment is a tracked holding for one user.
//
// Shares is a cached running total, maintained incrementally on every
// transaction create/delete. It is never recomputed from full history on the
// mutation path; only the position reconstructor walks history, and only for
// point-in-time queries. Invariant: Shares == sum(BUY.Quantity) - sum(SELL.Quantity).
type Investment struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Type         InvestmentType  `json:"type"`
	Currency     Currency        `json:"currency"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	Shares       decimal.Decimal `json:"shares"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Transaction is an immutable buy/sell event. Transactions are never updated
// in place, only created and deleted. Ordering key is Date, ties broken by
// insertion order.
type Transaction struct {
	ID           string           `json:"id"`
	InvestmentID string           `json:"investmentId"`
	Type         TransactionType  `json:"type"`
	Quantity     decimal.Decimal  `json:"quantity"`
	Price        decimal.Decimal  `json:"price"`
	Date         time.Time        `json:"date"`
	Tax          *decimal.Decimal `json:"tax"`
	Observation  *string          `json:"observation"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// TaxOrZero returns the transaction tax, or zero when unset.
func (t Transaction) TaxOrZero() decimal.Decimal {
	if t.Tax == nil {
		return decimal.Zero
	}
	return *t.Tax
}

// Dividend is a dividend record. Amount is already scaled by the shares held
// at the ex-date. Records can be user-entered or created by the synchronizer;
// the synchronizer treats both kinds as update/delete candidates keyed by
// exact date match.
type Dividend struct {
	ID           string           `json:"id"`
	InvestmentID string           `json:"investmentId"`
	Amount       decimal.Decimal  `json:"amount"`
	Date         time.Time        `json:"date"`
	Tax          *decimal.Decimal `json:"tax"`
	Observation  *string          `json:"observation"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// TaxOrZero returns the dividend tax, or zero when unset.
func (d Dividend) TaxOrZero() decimal.Decimal {
	if d.Tax == nil {
		return decimal.Zero
	}
	return *d.Tax
}

// SellGainLoss is the realized P&L captured when a SELL transaction is
// created. It is computed once, from the weighted average buy price of all
// BUY transactions up to and including the sell date, and is never recomputed
// if earlier buys are later deleted. Known limitation, kept on purpose.
type SellGainLoss struct {
	ID                 string          `json:"id"`
	InvestmentID       string          `json:"investmentId"`
	TransactionID      string          `json:"transactionId"`
	RealizedProfitLoss decimal.Decimal `json:"realizedProfitLoss"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// Metrics is the aggregate investment summary computed from the full
// transaction/dividend/sell-event history plus the current price and cached
// share count.
type Metrics struct {
	Shares              decimal.Decimal `json:"shares"`
	TotalQuantityBought decimal.Decimal `json:"totalQuantityBought"`
	AvgBuyPrice         decimal.Decimal `json:"avgBuyPrice"`
	TotalInvested       decimal.Decimal `json:"totalInvested"`
	CurrentValue        decimal.Decimal `json:"currentValue"`
	TotalDividends      decimal.Decimal `json:"totalDividends"`
	RealizedGainLoss    decimal.Decimal `json:"realizedGainLoss"`
	UnrealizedGainLoss  decimal.Decimal `json:"unrealizedGainLoss"`
	TotalProfitLoss     decimal.Decimal `json:"totalProfitLoss"`
	ProfitLossPct       decimal.Decimal `json:"profitLossPercentage"`
	ReturnOnInvestment  decimal.Decimal `json:"returnOnInvestment"`
}

// DividendEvent is a provider-reported corporate action: the ex-date and the
// raw per-share amount, before any share scaling.
type DividendEvent struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

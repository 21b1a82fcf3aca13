package dividends

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/domain"
	"github.com/cfholanda/investrack/internal/modules/position"
)

const amountScale = 6

// TransactionSource lists an investment's transactions, oldest first.
type TransactionSource interface {
	ListByInvestment(investmentID string) ([]domain.Transaction, error)
}

// EventSource fetches provider dividend events for a symbol window.
// Retries and caching live behind this interface, not here.
type EventSource interface {
	GetDividendEvents(symbol string, from, to time.Time) []domain.DividendEvent
}

// SyncResult summarizes one synchronization run.
type SyncResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted"`
	Errors  []string `json:"errors,omitempty"`
}

// Synchronizer reconciles stored dividend rows against provider events so
// the local records converge to provider truth. Both auto-synced and
// user-entered rows are update/delete candidates; matching is by exact
// millisecond date equality, so a manual dividend dated exactly on a
// provider ex-date will be overwritten.
type Synchronizer struct {
	repo         *Repository
	transactions TransactionSource
	events       EventSource
	taxRate      decimal.Decimal
	now          func() time.Time
	log          zerolog.Logger
}

// NewSynchronizer creates a dividend synchronizer. taxRate is the flat
// withholding applied to USD dividends (0.30 by default in config).
func NewSynchronizer(repo *Repository, transactions TransactionSource, events EventSource, taxRate float64, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		repo:         repo,
		transactions: transactions,
		events:       events,
		taxRate:      decimal.NewFromFloat(taxRate),
		now:          time.Now,
		log:          log.With().Str("service", "dividend_sync").Logger(),
	}
}

// SyncInvestment runs one reconciliation pass for an investment.
//
// The sync window starts at the most recent stored dividend, or at the
// earliest transaction when no dividends exist, and ends now. Each provider
// event is scaled by the shares held at its ex-date; events landing on dates
// where no shares were held delete any stale stored row. Per-event failures
// are collected and do not abort the remaining events.
func (s *Synchronizer) SyncInvestment(inv domain.Investment) (SyncResult, error) {
	var result SyncResult

	transactions, err := s.transactions.ListByInvestment(inv.ID)
	if err != nil {
		return result, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(transactions) == 0 {
		return result, nil
	}

	stored, err := s.repo.ListByInvestment(inv.ID)
	if err != nil {
		return result, fmt.Errorf("failed to load dividends: %w", err)
	}

	// stored is newest-first, so the window start is the head when present
	windowStart := transactions[0].Date
	for _, tx := range transactions[1:] {
		if tx.Date.Before(windowStart) {
			windowStart = tx.Date
		}
	}
	if len(stored) > 0 {
		windowStart = stored[0].Date
	}

	events := s.events.GetDividendEvents(inv.Symbol, windowStart, s.now())
	if len(events) == 0 {
		return result, nil
	}

	byDate := make(map[int64]domain.Dividend, len(stored))
	for _, d := range stored {
		byDate[d.Date.UnixMilli()] = d
	}

	for _, event := range events {
		if err := s.applyEvent(inv, transactions, byDate, event, &result); err != nil {
			s.log.Warn().Err(err).
				Str("symbol", inv.Symbol).
				Time("ex_date", event.Date).
				Msg("Failed to apply dividend event")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", event.Date.Format("2006-01-02"), err))
		}
	}

	s.log.Info().
		Str("symbol", inv.Symbol).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("deleted", result.Deleted).
		Int("errors", len(result.Errors)).
		Msg("Dividend sync complete")
	return result, nil
}

func (s *Synchronizer) applyEvent(inv domain.Investment, transactions []domain.Transaction, byDate map[int64]domain.Dividend, event domain.DividendEvent, result *SyncResult) error {
	shares := position.SharesAt(transactions, event.Date)
	existing, exists := byDate[event.Date.UnixMilli()]

	if !shares.IsPositive() {
		// No entitlement at the ex-date. A stored row on that exact date
		// carries an invalidated scaling and goes away.
		if !exists {
			return nil
		}
		if err := s.repo.Delete(existing.ID); err != nil {
			return err
		}
		delete(byDate, event.Date.UnixMilli())
		result.Deleted++
		return nil
	}

	amount := event.Amount.Mul(shares).Round(amountScale)
	var tax *decimal.Decimal
	if inv.Currency == domain.CurrencyUSD {
		t := amount.Mul(s.taxRate).Round(amountScale)
		tax = &t
	}

	if exists {
		if existing.Amount.Equal(amount) && existing.TaxOrZero().Equal(taxOrZero(tax)) {
			return nil
		}
		if err := s.repo.UpdateAmounts(existing.ID, amount, tax); err != nil {
			return err
		}
		result.Updated++
		return nil
	}

	observation := fmt.Sprintf("Auto-synced dividend for %s on %s", inv.Symbol, event.Date.Format("2006-01-02"))
	dividend := domain.Dividend{
		InvestmentID: inv.ID,
		Amount:       amount,
		Date:         event.Date,
		Tax:          tax,
		Observation:  &observation,
	}
	if err := s.repo.Create(&dividend); err != nil {
		return err
	}
	byDate[event.Date.UnixMilli()] = dividend
	result.Created++
	return nil
}

func taxOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

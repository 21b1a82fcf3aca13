package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/domain"
	"github.com/cfholanda/investrack/internal/modules/dividends"
)

// InvestmentSource lists holdings and stores refreshed prices.
type InvestmentSource interface {
	ListAll() ([]domain.Investment, error)
	UpdateCurrentPrice(id string, price decimal.Decimal) error
}

// QuoteSource fetches the current price for a symbol.
type QuoteSource interface {
	GetCurrentPrice(symbol string) *decimal.Decimal
}

// DividendSyncer reconciles one investment's dividends with provider events.
type DividendSyncer interface {
	SyncInvestment(inv domain.Investment) (dividends.SyncResult, error)
}

// PriceRefreshJob re-quotes every tracked holding and stores the result, so
// read paths have a recent price even when the provider is briefly down.
type PriceRefreshJob struct {
	investments InvestmentSource
	quotes      QuoteSource
	log         zerolog.Logger
}

// NewPriceRefreshJob creates the price refresh job.
func NewPriceRefreshJob(investments InvestmentSource, quotes QuoteSource, log zerolog.Logger) *PriceRefreshJob {
	return &PriceRefreshJob{
		investments: investments,
		quotes:      quotes,
		log:         log.With().Str("job", "price_refresh").Logger(),
	}
}

// Name returns the job name
func (j *PriceRefreshJob) Name() string {
	return "price_refresh"
}

// Run refreshes prices for all holdings. Individual quote failures are
// logged and skipped; the job fails only when every quote fails.
func (j *PriceRefreshJob) Run() error {
	list, err := j.investments.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list investments: %w", err)
	}
	if len(list) == 0 {
		return nil
	}

	failed := 0
	for _, inv := range list {
		price := j.quotes.GetCurrentPrice(inv.Symbol)
		if price == nil {
			j.log.Warn().Str("symbol", inv.Symbol).Msg("No quote available")
			failed++
			continue
		}
		if err := j.investments.UpdateCurrentPrice(inv.ID, *price); err != nil {
			j.log.Warn().Err(err).Str("symbol", inv.Symbol).Msg("Failed to store price")
			failed++
		}
	}

	j.log.Info().
		Int("total", len(list)).
		Int("failed", failed).
		Msg("Price refresh completed")

	if failed == len(list) {
		return fmt.Errorf("all %d price refreshes failed", failed)
	}
	return nil
}

// DividendSyncJob reconciles dividends for every tracked holding.
type DividendSyncJob struct {
	investments InvestmentSource
	syncer      DividendSyncer
	log         zerolog.Logger
}

// NewDividendSyncJob creates the dividend sync job.
func NewDividendSyncJob(investments InvestmentSource, syncer DividendSyncer, log zerolog.Logger) *DividendSyncJob {
	return &DividendSyncJob{
		investments: investments,
		syncer:      syncer,
		log:         log.With().Str("job", "dividend_sync").Logger(),
	}
}

// Name returns the job name
func (j *DividendSyncJob) Name() string {
	return "dividend_sync"
}

// Run syncs dividends for all holdings. Per-holding failures are logged and
// do not stop the rest.
func (j *DividendSyncJob) Run() error {
	list, err := j.investments.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list investments: %w", err)
	}

	created, updated, deleted, failed := 0, 0, 0, 0
	for _, inv := range list {
		result, err := j.syncer.SyncInvestment(inv)
		if err != nil {
			j.log.Warn().Err(err).Str("symbol", inv.Symbol).Msg("Sync failed")
			failed++
			continue
		}
		created += result.Created
		updated += result.Updated
		deleted += result.Deleted
	}

	j.log.Info().
		Int("holdings", len(list)).
		Int("created", created).
		Int("updated", updated).
		Int("deleted", deleted).
		Int("failed", failed).
		Msg("Dividend sync completed")
	return nil
}

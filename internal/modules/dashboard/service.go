// Package dashboard aggregates portfolio-wide valuation: the headline
// summary and the historical equity chart across all of a user's holdings.
package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/clientdata"
	"github.com/cfholanda/investrack/internal/domain"
	"github.com/cfholanda/investrack/internal/modules/dividends"
	"github.com/cfholanda/investrack/internal/modules/equity"
	"github.com/cfholanda/investrack/internal/modules/investments"
	"github.com/cfholanda/investrack/internal/modules/metrics"
)

// PriceSource supplies a live quote for summary valuation.
type PriceSource interface {
	GetCurrentPrice(symbol string) *decimal.Decimal
}

// SeriesBuilder builds per-instrument monthly series for the chart.
type SeriesBuilder interface {
	MonthlySeries(symbol string, transactions []domain.Transaction, divs []domain.Dividend, opts equity.Options) []equity.Point
}

// Summary is the portfolio headline, all figures in the display currency.
//
// TotalInvested is proportional to the shares still held: for each holding
// the full invested amount is scaled by heldShares/totalBoughtShares, so
// sold-off capital does not inflate the figure.
type Summary struct {
	Currency         domain.Currency `json:"currency"`
	TotalValue       decimal.Decimal `json:"totalValue"`
	TotalInvested    decimal.Decimal `json:"totalInvested"`
	TotalDividends   decimal.Decimal `json:"totalDividends"`
	RealizedGainLoss decimal.Decimal `json:"realizedGainLoss"`
	TotalProfitLoss  decimal.Decimal `json:"totalProfitLoss"`
	ProfitLossPct    decimal.Decimal `json:"profitLossPercentage"`
	FormattedValue   string          `json:"formattedValue"`
	Holdings         int             `json:"holdings"`
	BestPerformer    *Performer      `json:"bestPerformer"`
}

// Performer names the holding with the highest profit/loss percentage.
type Performer struct {
	Symbol        string          `json:"symbol"`
	ProfitLossPct decimal.Decimal `json:"profitLossPercentage"`
}

// Service computes portfolio-wide figures.
type Service struct {
	repo         *investments.Repository
	transactions *investments.TransactionRepository
	sellRecords  *investments.SellGainLossRepository
	dividendRepo *dividends.Repository
	prices       PriceSource
	series       SeriesBuilder
	converter    domain.CurrencyConverter
	cache        *clientdata.Repository
	now          func() time.Time
	log          zerolog.Logger
}

// NewService creates the dashboard service.
func NewService(
	repo *investments.Repository,
	transactions *investments.TransactionRepository,
	sellRecords *investments.SellGainLossRepository,
	dividendRepo *dividends.Repository,
	prices PriceSource,
	series SeriesBuilder,
	converter domain.CurrencyConverter,
	cache *clientdata.Repository,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		transactions: transactions,
		sellRecords:  sellRecords,
		dividendRepo: dividendRepo,
		prices:       prices,
		series:       series,
		converter:    converter,
		cache:        cache,
		now:          time.Now,
		log:          log.With().Str("service", "dashboard").Logger(),
	}
}

// Summary computes the portfolio headline in the display currency.
func (s *Service) Summary(userID string, display domain.Currency) (Summary, error) {
	list, err := s.repo.ListByUser(userID)
	if err != nil {
		return Summary{}, err
	}

	now := s.now()
	out := Summary{
		Currency:         display,
		TotalValue:       decimal.Zero,
		TotalInvested:    decimal.Zero,
		TotalDividends:   decimal.Zero,
		RealizedGainLoss: decimal.Zero,
		TotalProfitLoss:  decimal.Zero,
		Holdings:         len(list),
	}

	for _, inv := range list {
		m, err := s.metricsFor(inv)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to compute metrics for %s: %w", inv.Symbol, err)
		}

		heldInvested := decimal.Zero
		if m.TotalQuantityBought.IsPositive() {
			heldInvested = m.Shares.Div(m.TotalQuantityBought).Mul(m.TotalInvested)
		}

		// Only still-held positions compete for best performer.
		if m.Shares.IsPositive() &&
			(out.BestPerformer == nil || m.ProfitLossPct.GreaterThan(out.BestPerformer.ProfitLossPct)) {
			out.BestPerformer = &Performer{Symbol: inv.Symbol, ProfitLossPct: m.ProfitLossPct.Round(2)}
		}

		for _, item := range []struct {
			amount decimal.Decimal
			target *decimal.Decimal
		}{
			{m.CurrentValue, &out.TotalValue},
			{heldInvested, &out.TotalInvested},
			{m.TotalDividends, &out.TotalDividends},
			{m.RealizedGainLoss, &out.RealizedGainLoss},
			{m.TotalProfitLoss, &out.TotalProfitLoss},
		} {
			converted, err := s.converter.Convert(item.amount, inv.Currency, display, now)
			if err != nil {
				return Summary{}, fmt.Errorf("failed to convert %s amount: %w", inv.Currency, err)
			}
			*item.target = item.target.Add(converted)
		}
	}

	if out.BestPerformer == nil {
		out.BestPerformer = &Performer{Symbol: "N/A", ProfitLossPct: decimal.Zero}
	}

	if out.TotalInvested.IsPositive() {
		out.ProfitLossPct = out.TotalProfitLoss.Div(out.TotalInvested).Mul(decimal.NewFromInt(100)).Round(2)
	}
	out.TotalValue = out.TotalValue.Round(2)
	out.TotalInvested = out.TotalInvested.Round(2)
	out.TotalDividends = out.TotalDividends.Round(2)
	out.RealizedGainLoss = out.RealizedGainLoss.Round(2)
	out.TotalProfitLoss = out.TotalProfitLoss.Round(2)
	out.FormattedValue = formatMoney(out.TotalValue, display)

	return out, nil
}

func (s *Service) metricsFor(inv domain.Investment) (domain.Metrics, error) {
	transactions, err := s.transactions.ListByInvestment(inv.ID)
	if err != nil {
		return domain.Metrics{}, err
	}
	divs, err := s.dividendRepo.ListByInvestment(inv.ID)
	if err != nil {
		return domain.Metrics{}, err
	}
	sells, err := s.sellRecords.ListByInvestment(inv.ID)
	if err != nil {
		return domain.Metrics{}, err
	}

	price := s.prices.GetCurrentPrice(inv.Symbol)
	if price == nil && !inv.CurrentPrice.IsZero() {
		price = &inv.CurrentPrice
	}

	return metrics.Compute(metrics.Input{
		Transactions: transactions,
		Dividends:    divs,
		SellGainLoss: sells,
		CurrentPrice: price,
		Shares:       inv.Shares,
	})
}

// ErrUnknownPeriod is returned when a chart is requested for a period name
// that is not one of the accepted filters.
var ErrUnknownPeriod = errors.New("unknown period")

// Chart builds the aggregated monthly equity series for a user, filtered to
// the requested period. Results are cached per user/currency/period.
func (s *Service) Chart(userID string, display domain.Currency, period string) ([]equity.Point, error) {
	if !equity.ValidPeriod(period) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}

	cacheKey := fmt.Sprintf("%s|%s|%s", userID, display, period)
	if data, err := s.cache.GetIfFresh("dashboard_chart", cacheKey); err == nil && data != nil {
		var cached []equity.Point
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
	}

	list, err := s.repo.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	var instrumentSeries []equity.InstrumentSeries
	for _, inv := range list {
		transactions, err := s.transactions.ListByInvestment(inv.ID)
		if err != nil {
			return nil, err
		}
		divs, err := s.dividendRepo.ListByInvestment(inv.ID)
		if err != nil {
			return nil, err
		}

		// Full history per instrument. A liquidated position may be
		// re-bought later, and its re-entry months still belong on the
		// portfolio chart.
		points := s.series.MonthlySeries(inv.Symbol, transactions, divs, equity.Options{StopWhenZero: false})
		if len(points) == 0 {
			continue
		}
		instrumentSeries = append(instrumentSeries, equity.InstrumentSeries{
			Currency: inv.Currency,
			Points:   points,
		})
	}

	aggregated, err := equity.Aggregate(instrumentSeries, display, s.converter)
	if err != nil {
		return nil, err
	}
	filtered := equity.FilterPeriod(aggregated, period, s.now())

	if err := s.cache.Store("dashboard_chart", cacheKey, filtered, clientdata.TTLDashboardChart); err != nil {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("Failed to cache chart")
	}
	return filtered, nil
}

// formatMoney renders an amount for display in its currency's conventions.
func formatMoney(amount decimal.Decimal, currency domain.Currency) string {
	minor := amount.Shift(2).Round(0).IntPart()
	return money.New(minor, string(currency)).Display()
}

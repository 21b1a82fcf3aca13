package investments

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/database"
	"github.com/cfholanda/investrack/internal/domain"
	"github.com/cfholanda/investrack/internal/modules/dividends"
	"github.com/cfholanda/investrack/internal/modules/equity"
	"github.com/cfholanda/investrack/internal/modules/metrics"
	"github.com/cfholanda/investrack/internal/modules/position"
)

// PriceGateway is the slice of the market data gateway the service uses.
type PriceGateway interface {
	GetCurrentPrice(symbol string) *decimal.Decimal
	Invalidate(symbol string)
}

// DividendSyncer reconciles an investment's dividends with provider events.
type DividendSyncer interface {
	SyncInvestment(inv domain.Investment) (dividends.SyncResult, error)
}

// SeriesBuilder builds a monthly equity series for one instrument.
type SeriesBuilder interface {
	MonthlySeries(symbol string, transactions []domain.Transaction, divs []domain.Dividend, opts equity.Options) []equity.Point
}

// Service coordinates investment mutations and derived computations.
//
// Mutations that touch the cached share count run as one atomic unit against
// the store: the transaction row, the share adjustment, the realized P&L
// capture, and the cascading dividend deletion all commit or roll back
// together. Dividend resynchronization runs after commit and is best effort.
type Service struct {
	db           *sql.DB
	repo         *Repository
	transactions *TransactionRepository
	sellRecords  *SellGainLossRepository
	dividendRepo *dividends.Repository
	gateway      PriceGateway
	syncer       DividendSyncer
	series       SeriesBuilder
	log          zerolog.Logger
}

// NewService creates the investment service.
func NewService(
	db *sql.DB,
	repo *Repository,
	transactions *TransactionRepository,
	sellRecords *SellGainLossRepository,
	dividendRepo *dividends.Repository,
	gateway PriceGateway,
	syncer DividendSyncer,
	series SeriesBuilder,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:           db,
		repo:         repo,
		transactions: transactions,
		sellRecords:  sellRecords,
		dividendRepo: dividendRepo,
		gateway:      gateway,
		syncer:       syncer,
		series:       series,
		log:          log.With().Str("service", "investments").Logger(),
	}
}

// NewInvestmentInput describes a new holding and its opening buy.
type NewInvestmentInput struct {
	Symbol      string                `json:"symbol"`
	Name        string                `json:"name"`
	Type        domain.InvestmentType `json:"type"`
	Currency    domain.Currency       `json:"currency"`
	Quantity    decimal.Decimal       `json:"quantity"`
	Price       decimal.Decimal       `json:"price"`
	Date        time.Time             `json:"date"`
	Tax         *decimal.Decimal      `json:"tax"`
	Observation *string               `json:"observation"`
}

// NewTransactionInput describes a buy or sell to record.
type NewTransactionInput struct {
	Type        domain.TransactionType `json:"type"`
	Quantity    decimal.Decimal        `json:"quantity"`
	Price       decimal.Decimal        `json:"price"`
	Date        time.Time              `json:"date"`
	Tax         *decimal.Decimal       `json:"tax"`
	Observation *string                `json:"observation"`
}

// CreateInvestment creates a holding together with its opening BUY
// transaction, then fetches a first quote and synchronizes dividends.
func (s *Service) CreateInvestment(userID string, in NewInvestmentInput) (domain.Investment, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		return domain.Investment{}, errors.New("symbol is required")
	}
	if !in.Quantity.IsPositive() {
		return domain.Investment{}, errors.New("quantity must be positive")
	}
	if in.Price.IsNegative() {
		return domain.Investment{}, errors.New("price cannot be negative")
	}
	if in.Type == "" {
		in.Type = domain.InvestmentTypeStock
	}
	if in.Currency == "" {
		in.Currency = domain.CurrencyUSD
	}
	if in.Date.IsZero() {
		in.Date = time.Now()
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = symbol
	}

	inv := domain.Investment{
		UserID:       userID,
		Symbol:       symbol,
		Name:         name,
		Type:         in.Type,
		Currency:     in.Currency,
		CurrentPrice: in.Price,
		Shares:       in.Quantity,
	}

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.repo.CreateTx(tx, &inv); err != nil {
			return err
		}
		opening := domain.Transaction{
			InvestmentID: inv.ID,
			Type:         domain.TransactionBuy,
			Quantity:     in.Quantity,
			Price:        in.Price,
			Date:         in.Date,
			Tax:          in.Tax,
			Observation:  in.Observation,
		}
		return s.transactions.CreateTx(tx, &opening)
	})
	if err != nil {
		return domain.Investment{}, err
	}

	if price := s.gateway.GetCurrentPrice(symbol); price != nil {
		if err := s.repo.UpdateCurrentPrice(inv.ID, *price); err == nil {
			inv.CurrentPrice = *price
		}
	}
	s.resync(inv)

	s.log.Info().Str("symbol", symbol).Str("investment_id", inv.ID).Msg("Investment created")
	return s.repo.GetByID(inv.ID)
}

// UpdateInvestmentInput carries the editable fields of a holding. Nil fields
// keep their current value.
type UpdateInvestmentInput struct {
	Symbol *string                `json:"symbol"`
	Name   *string                `json:"name"`
	Type   *domain.InvestmentType `json:"type"`
}

// UpdateInvestment edits a holding's symbol, name, or type. A symbol change
// invalidates the cached quote and re-runs the dividend sync, since both are
// keyed by symbol.
func (s *Service) UpdateInvestment(userID, investmentID string, in UpdateInvestmentInput) (domain.Investment, error) {
	inv, err := s.Get(userID, investmentID)
	if err != nil {
		return domain.Investment{}, err
	}

	symbol := inv.Symbol
	if in.Symbol != nil {
		symbol = strings.ToUpper(strings.TrimSpace(*in.Symbol))
		if symbol == "" {
			return domain.Investment{}, errors.New("symbol cannot be empty")
		}
	}
	name := inv.Name
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
		if name == "" {
			name = symbol
		}
	}
	typ := inv.Type
	if in.Type != nil && *in.Type != "" {
		typ = *in.Type
	}

	if err := s.repo.UpdateDetails(investmentID, symbol, name, typ); err != nil {
		return domain.Investment{}, err
	}

	oldSymbol := inv.Symbol
	inv, err = s.repo.GetByID(investmentID)
	if err != nil {
		return domain.Investment{}, err
	}

	if symbol != oldSymbol {
		s.gateway.Invalidate(oldSymbol)
		if price := s.gateway.GetCurrentPrice(inv.Symbol); price != nil {
			if err := s.repo.UpdateCurrentPrice(inv.ID, *price); err == nil {
				inv.CurrentPrice = *price
			}
		}
		s.resync(inv)
	}

	s.log.Info().Str("investment_id", investmentID).Str("symbol", symbol).Msg("Investment updated")
	return inv, nil
}

// ListByUser returns a user's investments.
func (s *Service) ListByUser(userID string) ([]domain.Investment, error) {
	return s.repo.ListByUser(userID)
}

// Get returns one investment owned by the user.
func (s *Service) Get(userID, investmentID string) (domain.Investment, error) {
	inv, err := s.repo.GetByID(investmentID)
	if err != nil {
		return domain.Investment{}, err
	}
	if inv.UserID != userID {
		return domain.Investment{}, fmt.Errorf("investment %s: %w", investmentID, ErrNotFound)
	}
	return inv, nil
}

// DeleteInvestment removes a holding and all of its children.
func (s *Service) DeleteInvestment(userID, investmentID string) error {
	if _, err := s.Get(userID, investmentID); err != nil {
		return err
	}
	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return s.repo.DeleteTx(tx, investmentID)
	})
}

// AddTransaction records a buy or sell against an investment.
//
// For sells the realized P&L is captured in the same atomic unit, valued at
// the weighted average buy price through the sell date. It is computed once
// here and never recomputed, even if earlier buys are deleted later; the
// stored figure is the figure. All dividends dated after the transaction are
// deleted since the share count they were scaled by is no longer the share
// count at their date, and a resync repopulates them.
func (s *Service) AddTransaction(userID, investmentID string, in NewTransactionInput) (domain.Transaction, error) {
	inv, err := s.Get(userID, investmentID)
	if err != nil {
		return domain.Transaction{}, err
	}

	if in.Type != domain.TransactionBuy && in.Type != domain.TransactionSell {
		return domain.Transaction{}, fmt.Errorf("invalid transaction type %q", in.Type)
	}
	if !in.Quantity.IsPositive() {
		return domain.Transaction{}, errors.New("quantity must be positive")
	}
	if in.Price.IsNegative() {
		return domain.Transaction{}, errors.New("price cannot be negative")
	}
	if in.Date.IsZero() {
		in.Date = time.Now()
	}

	var realized *decimal.Decimal
	if in.Type == domain.TransactionSell {
		if in.Quantity.GreaterThan(inv.Shares) {
			return domain.Transaction{}, fmt.Errorf("cannot sell %s shares, only %s held", in.Quantity, inv.Shares)
		}
		history, err := s.transactions.ListByInvestment(investmentID)
		if err != nil {
			return domain.Transaction{}, err
		}
		avgBuy := position.AvgBuyPriceThrough(history, in.Date)
		var tax decimal.Decimal
		if in.Tax != nil {
			tax = *in.Tax
		}
		r := in.Quantity.Mul(in.Price).Sub(in.Quantity.Mul(avgBuy)).Sub(tax)
		realized = &r
	}

	record := domain.Transaction{
		InvestmentID: investmentID,
		Type:         in.Type,
		Quantity:     in.Quantity,
		Price:        in.Price,
		Date:         in.Date,
		Tax:          in.Tax,
		Observation:  in.Observation,
	}

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.transactions.CreateTx(tx, &record); err != nil {
			return err
		}

		delta := in.Quantity
		if in.Type == domain.TransactionSell {
			delta = delta.Neg()
		}
		if err := s.repo.AdjustSharesTx(tx, investmentID, delta); err != nil {
			return err
		}

		if realized != nil {
			if err := s.sellRecords.CreateTx(tx, &domain.SellGainLoss{
				InvestmentID:       investmentID,
				TransactionID:      record.ID,
				RealizedProfitLoss: *realized,
			}); err != nil {
				return err
			}
		}

		_, err := dividends.DeleteAfter(tx, investmentID, in.Date)
		return err
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.resync(inv)
	return record, nil
}

// DeleteTransaction removes a transaction, reverses its share delta, drops
// its realized P&L row if any, and deletes all dividends dated after it.
// Resynchronization repopulates the deleted dividend range afterwards.
func (s *Service) DeleteTransaction(userID, investmentID, transactionID string) error {
	inv, err := s.Get(userID, investmentID)
	if err != nil {
		return err
	}

	record, err := s.transactions.GetByID(transactionID)
	if err != nil {
		return err
	}
	if record.InvestmentID != investmentID {
		return fmt.Errorf("transaction %s: %w", transactionID, ErrNotFound)
	}

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.sellRecords.DeleteByTransactionTx(tx, transactionID); err != nil {
			return err
		}
		if err := s.transactions.DeleteTx(tx, transactionID); err != nil {
			return err
		}

		delta := record.Quantity.Neg()
		if record.Type == domain.TransactionSell {
			delta = record.Quantity
		}
		if err := s.repo.AdjustSharesTx(tx, investmentID, delta); err != nil {
			return err
		}

		_, err := dividends.DeleteAfter(tx, investmentID, record.Date)
		return err
	})
	if err != nil {
		return err
	}

	s.resync(inv)
	return nil
}

// Transactions returns an investment's transaction history, oldest first.
func (s *Service) Transactions(userID, investmentID string) ([]domain.Transaction, error) {
	if _, err := s.Get(userID, investmentID); err != nil {
		return nil, err
	}
	return s.transactions.ListByInvestment(investmentID)
}

// Dividends returns an investment's dividends, newest first.
func (s *Service) Dividends(userID, investmentID string) ([]domain.Dividend, error) {
	if _, err := s.Get(userID, investmentID); err != nil {
		return nil, err
	}
	return s.dividendRepo.ListByInvestment(investmentID)
}

// AddDividend records a user-entered dividend. The amount is the total
// received, already scaled by shares held.
func (s *Service) AddDividend(userID, investmentID string, d domain.Dividend) (domain.Dividend, error) {
	if _, err := s.Get(userID, investmentID); err != nil {
		return domain.Dividend{}, err
	}
	if d.Amount.IsNegative() {
		return domain.Dividend{}, errors.New("amount cannot be negative")
	}
	if d.Date.IsZero() {
		d.Date = time.Now()
	}
	d.InvestmentID = investmentID
	if err := s.dividendRepo.Create(&d); err != nil {
		return domain.Dividend{}, err
	}
	return d, nil
}

// DeleteDividend removes a dividend row.
func (s *Service) DeleteDividend(userID, investmentID, dividendID string) error {
	if _, err := s.Get(userID, investmentID); err != nil {
		return err
	}
	return s.dividendRepo.Delete(dividendID)
}

// Metrics computes the full metrics set for one investment using a live
// quote when available, falling back to the last cached price.
func (s *Service) Metrics(userID, investmentID string) (domain.Metrics, error) {
	inv, err := s.Get(userID, investmentID)
	if err != nil {
		return domain.Metrics{}, err
	}

	transactions, err := s.transactions.ListByInvestment(investmentID)
	if err != nil {
		return domain.Metrics{}, err
	}
	divs, err := s.dividendRepo.ListByInvestment(investmentID)
	if err != nil {
		return domain.Metrics{}, err
	}
	sells, err := s.sellRecords.ListByInvestment(investmentID)
	if err != nil {
		return domain.Metrics{}, err
	}

	price := s.gateway.GetCurrentPrice(inv.Symbol)
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

// EquitySeries builds the monthly value series for one investment.
func (s *Service) EquitySeries(userID, investmentID string, opts equity.Options) ([]equity.Point, error) {
	inv, err := s.Get(userID, investmentID)
	if err != nil {
		return nil, err
	}
	transactions, err := s.transactions.ListByInvestment(investmentID)
	if err != nil {
		return nil, err
	}
	divs, err := s.dividendRepo.ListByInvestment(investmentID)
	if err != nil {
		return nil, err
	}
	return s.series.MonthlySeries(inv.Symbol, transactions, divs, opts), nil
}

// SyncDividends runs a dividend reconciliation pass for one investment.
func (s *Service) SyncDividends(userID, investmentID string) (dividends.SyncResult, error) {
	inv, err := s.Get(userID, investmentID)
	if err != nil {
		return dividends.SyncResult{}, err
	}
	return s.syncer.SyncInvestment(inv)
}

// RefreshPrices re-quotes every investment of a user and updates the cached
// prices. Returns the symbols that could not be quoted.
func (s *Service) RefreshPrices(userID string) ([]string, error) {
	list, err := s.repo.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	var failed []string
	for _, inv := range list {
		price := s.gateway.GetCurrentPrice(inv.Symbol)
		if price == nil {
			failed = append(failed, inv.Symbol)
			continue
		}
		if err := s.repo.UpdateCurrentPrice(inv.ID, *price); err != nil {
			s.log.Warn().Err(err).Str("symbol", inv.Symbol).Msg("Failed to store refreshed price")
			failed = append(failed, inv.Symbol)
		}
	}
	return failed, nil
}

// resync runs a best-effort dividend synchronization after a mutation.
// Failures are logged, never surfaced: the mutation already committed.
func (s *Service) resync(inv domain.Investment) {
	if _, err := s.syncer.SyncInvestment(inv); err != nil {
		s.log.Warn().Err(err).Str("symbol", inv.Symbol).Msg("Post-mutation dividend sync failed")
	}
}

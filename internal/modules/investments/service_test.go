package investments

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfholanda/investrack/internal/database"
	"github.com/cfholanda/investrack/internal/domain"
	"github.com/cfholanda/investrack/internal/modules/dividends"
	"github.com/cfholanda/investrack/internal/modules/equity"
)

type stubGateway struct {
	price       *decimal.Decimal
	invalidated []string
}

func (s *stubGateway) GetCurrentPrice(string) *decimal.Decimal { return s.price }

func (s *stubGateway) Invalidate(symbol string) {
	s.invalidated = append(s.invalidated, symbol)
}

type stubSyncer struct {
	calls int
}

func (s *stubSyncer) SyncInvestment(domain.Investment) (dividends.SyncResult, error) {
	s.calls++
	return dividends.SyncResult{}, nil
}

type stubSeries struct {
	points []equity.Point
}

func (s *stubSeries) MonthlySeries(string, []domain.Transaction, []domain.Dividend, equity.Options) []equity.Point {
	return s.points
}

type fixture struct {
	service      *Service
	db           *sql.DB
	gateway      *stubGateway
	syncer       *stubSyncer
	dividendRepo *dividends.Repository
	transactions *TransactionRepository
	sellRecords  *SellGainLossRepository
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setupService(t *testing.T) *fixture {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(database.Schema("app"))
	require.NoError(t, err)

	log := zerolog.Nop()
	f := &fixture{
		db:           db,
		gateway:      &stubGateway{},
		syncer:       &stubSyncer{},
		dividendRepo: dividends.NewRepository(db, log),
		transactions: NewTransactionRepository(db, log),
		sellRecords:  NewSellGainLossRepository(db, log),
	}
	f.service = NewService(db,
		NewRepository(db, log), f.transactions, f.sellRecords, f.dividendRepo,
		f.gateway, f.syncer, &stubSeries{}, log)
	return f
}

func createHolding(t *testing.T, f *fixture) domain.Investment {
	inv, err := f.service.CreateInvestment("user-1", NewInvestmentInput{
		Symbol:   "vti",
		Name:     "Total Market",
		Type:     domain.InvestmentTypeETF,
		Currency: domain.CurrencyUSD,
		Quantity: dec("10"),
		Price:    dec("100"),
		Date:     time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return inv
}

func TestCreateInvestment(t *testing.T) {
	f := setupService(t)
	live := dec("105.50")
	f.gateway.price = &live

	inv := createHolding(t, f)

	assert.Equal(t, "VTI", inv.Symbol)
	assert.Equal(t, "10", inv.Shares.String())
	assert.True(t, inv.CurrentPrice.Equal(dec("105.50")))
	assert.Equal(t, 1, f.syncer.calls)

	history, err := f.transactions.ListByInvestment(inv.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.TransactionBuy, history[0].Type)
	assert.True(t, history[0].Quantity.Equal(dec("10")))
}

func TestCreateInvestmentValidation(t *testing.T) {
	f := setupService(t)

	_, err := f.service.CreateInvestment("user-1", NewInvestmentInput{Symbol: " ", Quantity: dec("1")})
	assert.ErrorContains(t, err, "symbol")

	_, err = f.service.CreateInvestment("user-1", NewInvestmentInput{Symbol: "VTI", Quantity: dec("0")})
	assert.ErrorContains(t, err, "quantity")

	_, err = f.service.CreateInvestment("user-1", NewInvestmentInput{Symbol: "VTI", Quantity: dec("1"), Price: dec("-5")})
	assert.ErrorContains(t, err, "price")
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)

	_, err := f.service.Get("someone-else", inv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.service.Get("user-1", inv.ID)
	assert.NoError(t, err)
}

func TestAddBuyTransaction(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)

	_, err := f.service.AddTransaction("user-1", inv.ID, NewTransactionInput{
		Type:     domain.TransactionBuy,
		Quantity: dec("5"),
		Price:    dec("110"),
		Date:     time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	updated, err := f.service.Get("user-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "15", updated.Shares.String())
}

func TestAddSellCapturesRealizedGain(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)

	tax := dec("2")
	_, err := f.service.AddTransaction("user-1", inv.ID, NewTransactionInput{
		Type:     domain.TransactionSell,
		Quantity: dec("5"),
		Price:    dec("120"),
		Date:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Tax:      &tax,
	})
	require.NoError(t, err)

	updated, err := f.service.Get("user-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "5", updated.Shares.String())

	records, err := f.sellRecords.ListByInvestment(inv.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	// 5*120 - 5*100 - 2
	assert.Equal(t, "98", records[0].RealizedProfitLoss.String())
}

func TestAddSellRejectsOversell(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)

	_, err := f.service.AddTransaction("user-1", inv.ID, NewTransactionInput{
		Type:     domain.TransactionSell,
		Quantity: dec("11"),
		Price:    dec("120"),
	})
	assert.ErrorContains(t, err, "cannot sell")
}

func TestAddTransactionDeletesLaterDividends(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)

	txDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.dividendRepo.Create(&domain.Dividend{
		InvestmentID: inv.ID, Amount: dec("5"), Date: txDate.AddDate(0, -1, 0),
	}))
	require.NoError(t, f.dividendRepo.Create(&domain.Dividend{
		InvestmentID: inv.ID, Amount: dec("5"), Date: txDate.AddDate(0, 1, 0),
	}))

	_, err := f.service.AddTransaction("user-1", inv.ID, NewTransactionInput{
		Type:     domain.TransactionBuy,
		Quantity: dec("5"),
		Price:    dec("105"),
		Date:     txDate,
	})
	require.NoError(t, err)

	remaining, err := f.dividendRepo.ListByInvestment(inv.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.True(t, remaining[0].Date.Before(txDate))
}

func TestDeleteTransaction(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)

	sellDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	sold, err := f.service.AddTransaction("user-1", inv.ID, NewTransactionInput{
		Type:     domain.TransactionSell,
		Quantity: dec("4"),
		Price:    dec("120"),
		Date:     sellDate,
	})
	require.NoError(t, err)

	require.NoError(t, f.dividendRepo.Create(&domain.Dividend{
		InvestmentID: inv.ID, Amount: dec("5"), Date: sellDate.AddDate(0, 1, 0),
	}))

	require.NoError(t, f.service.DeleteTransaction("user-1", inv.ID, sold.ID))

	// Share delta reversed, realized P&L row gone, later dividends gone
	updated, err := f.service.Get("user-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", updated.Shares.String())

	records, err := f.sellRecords.ListByInvestment(inv.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	divs, err := f.dividendRepo.ListByInvestment(inv.ID)
	require.NoError(t, err)
	assert.Empty(t, divs)
}

func TestDeleteTransactionWrongInvestment(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)
	other, err := f.service.CreateInvestment("user-1", NewInvestmentInput{
		Symbol: "VOO", Quantity: dec("1"), Price: dec("400"),
	})
	require.NoError(t, err)

	history, err := f.transactions.ListByInvestment(other.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	err = f.service.DeleteTransaction("user-1", inv.ID, history[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteInvestmentCascades(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)
	require.NoError(t, f.dividendRepo.Create(&domain.Dividend{
		InvestmentID: inv.ID, Amount: dec("5"), Date: time.Now(),
	}))

	require.NoError(t, f.service.DeleteInvestment("user-1", inv.ID))

	_, err := f.service.Get("user-1", inv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var count int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&count))
	assert.Zero(t, count)
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM dividends`).Scan(&count))
	assert.Zero(t, count)
}

func TestMetricsUsesLiveQuote(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)

	live := dec("150")
	f.gateway.price = &live

	m, err := f.service.Metrics("user-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "1500", m.CurrentValue.String())
	assert.Equal(t, "500", m.UnrealizedGainLoss.String())
	assert.Equal(t, "50", m.ProfitLossPct.String())
}

func TestMetricsFallsBackToCachedPrice(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)

	// Quote unavailable; the stored current_price column backs the valuation
	f.gateway.price = nil

	m, err := f.service.Metrics("user-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000", m.CurrentValue.String())
}

func TestRefreshPrices(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)

	live := dec("111")
	f.gateway.price = &live
	failed, err := f.service.RefreshPrices("user-1")
	require.NoError(t, err)
	assert.Empty(t, failed)

	updated, err := f.service.Get("user-1", inv.ID)
	require.NoError(t, err)
	assert.True(t, updated.CurrentPrice.Equal(dec("111")))

	f.gateway.price = nil
	failed, err = f.service.RefreshPrices("user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"VTI"}, failed)
}

func TestUpdateInvestmentDetails(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)

	name := "Vanguard Total Market"
	updated, err := f.service.UpdateInvestment("user-1", inv.ID, UpdateInvestmentInput{Name: &name})
	require.NoError(t, err)

	assert.Equal(t, "Vanguard Total Market", updated.Name)
	assert.Equal(t, "VTI", updated.Symbol)
	assert.Empty(t, f.gateway.invalidated)
}

func TestUpdateInvestmentSymbolChange(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)
	syncsBefore := f.syncer.calls

	live := dec("210")
	f.gateway.price = &live

	symbol := "voo"
	updated, err := f.service.UpdateInvestment("user-1", inv.ID, UpdateInvestmentInput{Symbol: &symbol})
	require.NoError(t, err)

	assert.Equal(t, "VOO", updated.Symbol)
	assert.True(t, updated.CurrentPrice.Equal(dec("210")))
	assert.Equal(t, []string{"VTI"}, f.gateway.invalidated)
	assert.Equal(t, syncsBefore+1, f.syncer.calls)
}

func TestUpdateInvestmentValidation(t *testing.T) {
	f := setupService(t)
	inv := createHolding(t, f)

	empty := "  "
	_, err := f.service.UpdateInvestment("user-1", inv.ID, UpdateInvestmentInput{Symbol: &empty})
	assert.ErrorContains(t, err, "symbol")

	name := "x"
	_, err = f.service.UpdateInvestment("other-user", inv.ID, UpdateInvestmentInput{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

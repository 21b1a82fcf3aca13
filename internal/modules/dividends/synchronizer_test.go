package dividends

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfholanda/investrack/internal/domain"
)

type stubTransactions struct {
	transactions []domain.Transaction
}

func (s *stubTransactions) ListByInvestment(string) ([]domain.Transaction, error) {
	return s.transactions, nil
}

type stubEvents struct {
	events   []domain.DividendEvent
	lastFrom time.Time
	lastTo   time.Time
	calls    int
}

func (s *stubEvents) GetDividendEvents(symbol string, from, to time.Time) []domain.DividendEvent {
	s.calls++
	s.lastFrom, s.lastTo = from, to
	return s.events
}

func usdInvestment() domain.Investment {
	return domain.Investment{ID: "inv-1", Symbol: "KO", Currency: domain.CurrencyUSD}
}

func setupSync(t *testing.T, txs []domain.Transaction, events []domain.DividendEvent) (*Synchronizer, *Repository, *stubEvents) {
	repo, _ := setupRepo(t)
	eventSource := &stubEvents{events: events}
	sync := NewSynchronizer(repo, &stubTransactions{transactions: txs}, eventSource, 0.30, zerolog.Nop())
	return sync, repo, eventSource
}

func TestSyncCreatesScaledDividend(t *testing.T) {
	buyDate := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	exDate := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	sync, repo, _ := setupSync(t,
		[]domain.Transaction{{Type: domain.TransactionBuy, Quantity: dec("20"), Price: dec("60"), Date: buyDate}},
		[]domain.DividendEvent{{Date: exDate, Amount: dec("0.50")}},
	)

	result, err := sync.SyncInvestment(usdInvestment())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Created: 1}, result)

	list, err := repo.ListByInvestment("inv-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	// $0.50/share x 20 shares, 30% withholding on USD
	assert.True(t, list[0].Amount.Equal(dec("10")), "amount: %s", list[0].Amount)
	require.NotNil(t, list[0].Tax)
	assert.True(t, list[0].Tax.Equal(dec("3")), "tax: %s", list[0].Tax)
	require.NotNil(t, list[0].Observation)
	assert.Contains(t, *list[0].Observation, "KO")
	assert.Contains(t, *list[0].Observation, "2024-03-15")
}

func TestSyncNoWithholdingOutsideUSD(t *testing.T) {
	buyDate := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	sync, repo, _ := setupSync(t,
		[]domain.Transaction{{Type: domain.TransactionBuy, Quantity: dec("100"), Price: dec("30"), Date: buyDate}},
		[]domain.DividendEvent{{Date: buyDate.AddDate(0, 2, 0), Amount: dec("0.75")}},
	)

	inv := usdInvestment()
	inv.Currency = domain.CurrencyBRL

	result, err := sync.SyncInvestment(inv)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	list, err := repo.ListByInvestment("inv-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Amount.Equal(dec("75")))
	assert.Nil(t, list[0].Tax)
}

func TestSyncIdempotent(t *testing.T) {
	buyDate := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	sync, _, _ := setupSync(t,
		[]domain.Transaction{{Type: domain.TransactionBuy, Quantity: dec("20"), Price: dec("60"), Date: buyDate}},
		[]domain.DividendEvent{{Date: buyDate.AddDate(0, 2, 0), Amount: dec("0.50")}},
	)

	first, err := sync.SyncInvestment(usdInvestment())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Created: 1}, first)

	second, err := sync.SyncInvestment(usdInvestment())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, second)
}

func TestSyncUpdatesChangedAmount(t *testing.T) {
	buyDate := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	exDate := buyDate.AddDate(0, 2, 0)
	sync, repo, _ := setupSync(t,
		[]domain.Transaction{{Type: domain.TransactionBuy, Quantity: dec("20"), Price: dec("60"), Date: buyDate}},
		[]domain.DividendEvent{{Date: exDate, Amount: dec("0.50")}},
	)

	// A stored row on the exact ex-date with stale amounts gets rewritten
	stale := dec("1")
	require.NoError(t, repo.Create(&domain.Dividend{
		InvestmentID: "inv-1", Amount: dec("99"), Tax: &stale, Date: exDate,
	}))

	result, err := sync.SyncInvestment(usdInvestment())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Updated: 1}, result)

	list, err := repo.ListByInvestment("inv-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Amount.Equal(dec("10")))
	assert.True(t, list[0].Tax.Equal(dec("3")))
}

func TestSyncDeletesWhenNoSharesAtExDate(t *testing.T) {
	buyDate := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	exDate := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	sync, repo, _ := setupSync(t,
		[]domain.Transaction{
			{Type: domain.TransactionBuy, Quantity: dec("20"), Price: dec("60"), Date: buyDate},
			{Type: domain.TransactionSell, Quantity: dec("20"), Price: dec("70"), Date: exDate.AddDate(0, -1, 0)},
		},
		[]domain.DividendEvent{{Date: exDate, Amount: dec("0.50")}},
	)

	require.NoError(t, repo.Create(&domain.Dividend{InvestmentID: "inv-1", Amount: dec("10"), Date: exDate}))

	result, err := sync.SyncInvestment(usdInvestment())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Deleted: 1}, result)

	list, err := repo.ListByInvestment("inv-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSyncSkipsEventBeforeFirstBuy(t *testing.T) {
	buyDate := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
	sync, repo, _ := setupSync(t,
		[]domain.Transaction{{Type: domain.TransactionBuy, Quantity: dec("20"), Price: dec("60"), Date: buyDate}},
		[]domain.DividendEvent{{Date: buyDate.AddDate(0, -2, 0), Amount: dec("0.50")}},
	)

	result, err := sync.SyncInvestment(usdInvestment())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, result)

	list, err := repo.ListByInvestment("inv-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSyncNoTransactionsIsNoOp(t *testing.T) {
	sync, _, eventSource := setupSync(t, nil, []domain.DividendEvent{
		{Date: time.Now(), Amount: dec("1")},
	})

	result, err := sync.SyncInvestment(usdInvestment())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, result)
	assert.Equal(t, 0, eventSource.calls)
}

func TestSyncWindowStartsAtLatestStoredDividend(t *testing.T) {
	buyDate := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	latestDiv := time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)

	sync, repo, eventSource := setupSync(t,
		[]domain.Transaction{{Type: domain.TransactionBuy, Quantity: dec("20"), Price: dec("60"), Date: buyDate}},
		nil,
	)
	require.NoError(t, repo.Create(&domain.Dividend{InvestmentID: "inv-1", Amount: dec("5"), Date: latestDiv.AddDate(0, -3, 0)}))
	require.NoError(t, repo.Create(&domain.Dividend{InvestmentID: "inv-1", Amount: dec("5"), Date: latestDiv}))

	_, err := sync.SyncInvestment(usdInvestment())
	require.NoError(t, err)

	require.Equal(t, 1, eventSource.calls)
	assert.Equal(t, latestDiv.UnixMilli(), eventSource.lastFrom.UnixMilli())
}

func TestSyncWindowStartsAtEarliestTransactionWhenNoDividends(t *testing.T) {
	first := time.Date(2023, 11, 20, 0, 0, 0, 0, time.UTC)
	sync, _, eventSource := setupSync(t,
		[]domain.Transaction{
			{Type: domain.TransactionBuy, Quantity: dec("5"), Price: dec("10"), Date: first.AddDate(0, 1, 0)},
			{Type: domain.TransactionBuy, Quantity: dec("5"), Price: dec("10"), Date: first},
		},
		nil,
	)

	_, err := sync.SyncInvestment(usdInvestment())
	require.NoError(t, err)

	require.Equal(t, 1, eventSource.calls)
	assert.Equal(t, first.UnixMilli(), eventSource.lastFrom.UnixMilli())
}

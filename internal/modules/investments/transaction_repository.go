package investments

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/domain"
)

// TransactionRepository handles transaction persistence. Transactions are
// immutable: created and deleted, never updated.
type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("repository", "transactions").Logger(),
	}
}

const transactionColumns = `id, investment_id, type, quantity, price, date, tax, observation, created_at`

// ListByInvestment returns all transactions for an investment, oldest first.
// Date ties keep insertion order.
func (r *TransactionRepository) ListByInvestment(investmentID string) ([]domain.Transaction, error) {
	rows, err := r.db.Query(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE investment_id = ?
		ORDER BY date ASC, created_at ASC, rowid ASC`, investmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// GetByID returns one transaction, or ErrNotFound.
func (r *TransactionRepository) GetByID(id string) (domain.Transaction, error) {
	row := r.db.QueryRow(`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransactionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return t, err
}

// CreateTx inserts a transaction inside an open database transaction.
// Generates the ID when empty.
func (r *TransactionRepository) CreateTx(tx *sql.Tx, t *domain.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := tx.Exec(`
		INSERT INTO transactions (id, investment_id, type, quantity, price, date, tax, observation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.InvestmentID, string(t.Type), t.Quantity.String(), t.Price.String(),
		t.Date.UnixMilli(), nullableDecimal(t.Tax), nullableString(t.Observation), t.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// DeleteTx removes a transaction row inside an open database transaction.
func (r *TransactionRepository) DeleteTx(tx *sql.Tx, id string) error {
	result, err := tx.Exec(`DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanTransaction(rows *sql.Rows) (domain.Transaction, error) {
	return scanTransactionRow(rows)
}

func scanTransactionRow(row rowScanner) (domain.Transaction, error) {
	var t domain.Transaction
	var typ, quantity, price string
	var dateMs, createdMs int64
	var tax, observation sql.NullString

	if err := row.Scan(&t.ID, &t.InvestmentID, &typ, &quantity, &price, &dateMs, &tax, &observation, &createdMs); err != nil {
		return domain.Transaction{}, err
	}

	var err error
	if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if tax.Valid {
		d, err := decimal.NewFromString(tax.String)
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("invalid tax %q: %w", tax.String, err)
		}
		t.Tax = &d
	}
	if observation.Valid {
		t.Observation = &observation.String
	}
	t.Type = domain.TransactionType(typ)
	t.Date = time.UnixMilli(dateMs).UTC()
	t.CreatedAt = time.UnixMilli(createdMs).UTC()
	return t, nil
}

func nullableDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

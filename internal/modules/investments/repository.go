// Package investments manages tracked holdings: the investment records
// themselves, their transaction history, and the realized gain/loss rows
// captured at sell time.
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

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Repository handles investment persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new investment repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "investments").Logger(),
	}
}

const investmentColumns = `id, user_id, symbol, name, type, currency, current_price, shares, created_at`

// ListByUser returns a user's investments, oldest first.
func (r *Repository) ListByUser(userID string) ([]domain.Investment, error) {
	rows, err := r.db.Query(`
		SELECT `+investmentColumns+`
		FROM investments
		WHERE user_id = ?
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query investments: %w", err)
	}
	defer rows.Close()

	var investments []domain.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		investments = append(investments, inv)
	}
	return investments, rows.Err()
}

// ListAll returns every investment across all users. Used by the background
// refresh jobs.
func (r *Repository) ListAll() ([]domain.Investment, error) {
	rows, err := r.db.Query(`SELECT ` + investmentColumns + ` FROM investments ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query investments: %w", err)
	}
	defer rows.Close()

	var investments []domain.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		investments = append(investments, inv)
	}
	return investments, rows.Err()
}

// GetByID returns one investment, or ErrNotFound.
func (r *Repository) GetByID(id string) (domain.Investment, error) {
	row := r.db.QueryRow(`SELECT `+investmentColumns+` FROM investments WHERE id = ?`, id)
	inv, err := scanInvestmentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Investment{}, fmt.Errorf("investment %s: %w", id, ErrNotFound)
	}
	return inv, err
}

// CreateTx inserts an investment inside an open transaction.
// Generates the ID when empty.
func (r *Repository) CreateTx(tx *sql.Tx, inv *domain.Investment) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}

	_, err := tx.Exec(`
		INSERT INTO investments (id, user_id, symbol, name, type, currency, current_price, shares, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.UserID, inv.Symbol, inv.Name, string(inv.Type), string(inv.Currency),
		inv.CurrentPrice.String(), inv.Shares.String(), inv.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert investment: %w", err)
	}
	return nil
}

// UpdateDetails rewrites the editable fields of an investment row.
func (r *Repository) UpdateDetails(id, symbol, name string, typ domain.InvestmentType) error {
	result, err := r.db.Exec(`UPDATE investments SET symbol = ?, name = ?, type = ? WHERE id = ?`,
		symbol, name, string(typ), id)
	if err != nil {
		return fmt.Errorf("failed to update investment %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("investment %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateCurrentPrice rewrites the cached quote on an investment row.
func (r *Repository) UpdateCurrentPrice(id string, price decimal.Decimal) error {
	result, err := r.db.Exec(`UPDATE investments SET current_price = ? WHERE id = ?`, price.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update price for %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("investment %s: %w", id, ErrNotFound)
	}
	return nil
}

// AdjustSharesTx applies a signed delta to the cached share count inside an
// open transaction. The running total is maintained incrementally on every
// transaction mutation, never recomputed from history on this path.
func (r *Repository) AdjustSharesTx(tx *sql.Tx, id string, delta decimal.Decimal) error {
	var sharesStr string
	err := tx.QueryRow(`SELECT shares FROM investments WHERE id = ?`, id).Scan(&sharesStr)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("investment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read shares for %s: %w", id, err)
	}

	shares, err := decimal.NewFromString(sharesStr)
	if err != nil {
		return fmt.Errorf("invalid shares %q for %s: %w", sharesStr, id, err)
	}

	_, err = tx.Exec(`UPDATE investments SET shares = ? WHERE id = ?`, shares.Add(delta).String(), id)
	if err != nil {
		return fmt.Errorf("failed to adjust shares for %s: %w", id, err)
	}
	return nil
}

// DeleteTx removes an investment and all of its children inside an open
// transaction. Children are deleted explicitly so the cascade does not
// depend on the connection's foreign key mode.
func (r *Repository) DeleteTx(tx *sql.Tx, id string) error {
	for _, stmt := range []string{
		`DELETE FROM dividends WHERE investment_id = ?`,
		`DELETE FROM sell_gain_loss WHERE investment_id = ?`,
		`DELETE FROM transactions WHERE investment_id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("failed to delete investment children: %w", err)
		}
	}

	result, err := tx.Exec(`DELETE FROM investments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete investment %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("investment %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvestment(rows *sql.Rows) (domain.Investment, error) {
	return scanInvestmentRow(rows)
}

func scanInvestmentRow(row rowScanner) (domain.Investment, error) {
	var inv domain.Investment
	var typ, currency, price, shares string
	var createdMs int64

	if err := row.Scan(&inv.ID, &inv.UserID, &inv.Symbol, &inv.Name, &typ, &currency, &price, &shares, &createdMs); err != nil {
		return domain.Investment{}, err
	}

	var err error
	if inv.CurrentPrice, err = decimal.NewFromString(price); err != nil {
		return domain.Investment{}, fmt.Errorf("invalid current price %q: %w", price, err)
	}
	if inv.Shares, err = decimal.NewFromString(shares); err != nil {
		return domain.Investment{}, fmt.Errorf("invalid shares %q: %w", shares, err)
	}
	inv.Type = domain.InvestmentType(typ)
	inv.Currency = domain.Currency(currency)
	inv.CreatedAt = time.UnixMilli(createdMs).UTC()
	return inv, nil
}

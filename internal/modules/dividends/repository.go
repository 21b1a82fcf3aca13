// Package dividends stores dividend records and reconciles them against
// provider-reported dividend events.
package dividends

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/domain"
)

// Repository handles dividend persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new dividend repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "dividends").Logger(),
	}
}

// ListByInvestment returns all dividends for an investment, newest first.
func (r *Repository) ListByInvestment(investmentID string) ([]domain.Dividend, error) {
	rows, err := r.db.Query(`
		SELECT id, investment_id, amount, date, tax, observation, created_at
		FROM dividends
		WHERE investment_id = ?
		ORDER BY date DESC`, investmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	defer rows.Close()

	var dividends []domain.Dividend
	for rows.Next() {
		d, err := scanDividend(rows)
		if err != nil {
			return nil, err
		}
		dividends = append(dividends, d)
	}
	return dividends, rows.Err()
}

// Create inserts a dividend row. Generates the ID when empty.
func (r *Repository) Create(d *domain.Dividend) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(`
		INSERT INTO dividends (id, investment_id, amount, date, tax, observation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.InvestmentID, d.Amount.String(), d.Date.UnixMilli(),
		nullDecimal(d.Tax), nullString(d.Observation), d.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert dividend: %w", err)
	}
	return nil
}

// UpdateAmounts rewrites the amount and tax of a stored dividend.
func (r *Repository) UpdateAmounts(id string, amount decimal.Decimal, tax *decimal.Decimal) error {
	result, err := r.db.Exec(`UPDATE dividends SET amount = ?, tax = ? WHERE id = ?`,
		amount.String(), nullDecimal(tax), id)
	if err != nil {
		return fmt.Errorf("failed to update dividend %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("dividend %s not found", id)
	}
	return nil
}

// Delete removes a dividend row.
func (r *Repository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM dividends WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dividend %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("dividend %s not found", id)
	}
	return nil
}

// DeleteAfter removes all dividends for an investment dated strictly after
// the given instant. Runs inside the caller's transaction when one is open.
func DeleteAfter(tx *sql.Tx, investmentID string, after time.Time) (int64, error) {
	result, err := tx.Exec(`DELETE FROM dividends WHERE investment_id = ? AND date > ?`,
		investmentID, after.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete dividends after %s: %w", after, err)
	}
	return result.RowsAffected()
}

func scanDividend(rows *sql.Rows) (domain.Dividend, error) {
	var d domain.Dividend
	var amount string
	var dateMs, createdMs int64
	var tax, observation sql.NullString

	if err := rows.Scan(&d.ID, &d.InvestmentID, &amount, &dateMs, &tax, &observation, &createdMs); err != nil {
		return domain.Dividend{}, fmt.Errorf("failed to scan dividend: %w", err)
	}

	var err error
	if d.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Dividend{}, fmt.Errorf("invalid dividend amount %q: %w", amount, err)
	}
	if tax.Valid {
		t, err := decimal.NewFromString(tax.String)
		if err != nil {
			return domain.Dividend{}, fmt.Errorf("invalid dividend tax %q: %w", tax.String, err)
		}
		d.Tax = &t
	}
	if observation.Valid {
		d.Observation = &observation.String
	}
	d.Date = time.UnixMilli(dateMs).UTC()
	d.CreatedAt = time.UnixMilli(createdMs).UTC()
	return d, nil
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

package investments

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cfholanda/investrack/internal/domain"
)

// SellGainLossRepository stores realized P&L rows. One row per SELL
// transaction, written when the sale is recorded and never rewritten.
type SellGainLossRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSellGainLossRepository creates a new sell gain/loss repository.
func NewSellGainLossRepository(db *sql.DB, log zerolog.Logger) *SellGainLossRepository {
	return &SellGainLossRepository{
		db:  db,
		log: log.With().Str("repository", "sell_gain_loss").Logger(),
	}
}

// ListByInvestment returns all realized P&L rows for an investment.
func (r *SellGainLossRepository) ListByInvestment(investmentID string) ([]domain.SellGainLoss, error) {
	rows, err := r.db.Query(`
		SELECT id, investment_id, transaction_id, realized_profit_loss, created_at
		FROM sell_gain_loss
		WHERE investment_id = ?
		ORDER BY created_at ASC`, investmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sell gain/loss: %w", err)
	}
	defer rows.Close()

	var records []domain.SellGainLoss
	for rows.Next() {
		var s domain.SellGainLoss
		var realized string
		var createdMs int64
		if err := rows.Scan(&s.ID, &s.InvestmentID, &s.TransactionID, &realized, &createdMs); err != nil {
			return nil, fmt.Errorf("failed to scan sell gain/loss: %w", err)
		}
		if s.RealizedProfitLoss, err = decimal.NewFromString(realized); err != nil {
			return nil, fmt.Errorf("invalid realized profit/loss %q: %w", realized, err)
		}
		s.CreatedAt = time.UnixMilli(createdMs).UTC()
		records = append(records, s)
	}
	return records, rows.Err()
}

// CreateTx inserts a realized P&L row inside an open database transaction.
func (r *SellGainLossRepository) CreateTx(tx *sql.Tx, s *domain.SellGainLoss) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	_, err := tx.Exec(`
		INSERT INTO sell_gain_loss (id, investment_id, transaction_id, realized_profit_loss, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.InvestmentID, s.TransactionID, s.RealizedProfitLoss.String(), s.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert sell gain/loss: %w", err)
	}
	return nil
}

// DeleteByTransactionTx removes the realized P&L row tied to a transaction,
// inside an open database transaction. No-op when none exists.
func (r *SellGainLossRepository) DeleteByTransactionTx(tx *sql.Tx, transactionID string) error {
	if _, err := tx.Exec(`DELETE FROM sell_gain_loss WHERE transaction_id = ?`, transactionID); err != nil {
		return fmt.Errorf("failed to delete sell gain/loss for transaction %s: %w", transactionID, err)
	}
	return nil
}

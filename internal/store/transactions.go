package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"topup-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const transactionColumns = `
	t.id, t.user_id, t.merchandise_id, t.quantity, t.inputs, t.amount, t.created_at,
	t.server_response, t.is_accepted, t.status, t.external_order_id,
	u.user_id AS chat_id, m.name AS merchandise_name, m.reseller_id, m.reseller_category`

const transactionJoins = `
	FROM transactions t
	JOIN users u ON u.id = t.user_id
	JOIN merchandise m ON m.id = t.merchandise_id`

// Refund statuses are terminal; guarded updates never move a row out of them.
const notRefundedGuard = "status NOT IN ('refunded', 'incorrect-details')"

// CheckoutLine is one cart line priced by the caller
type CheckoutLine struct {
	MerchandiseID int64
	Quantity      int
	Amount        int64
}

// GetTransaction retrieves a transaction with its user chat id and merchandise
func (s *Store) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.GetContext(ctx, &tx,
		"SELECT "+transactionColumns+transactionJoins+" WHERE t.id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindTransactionIDByExternalOrderID resolves a reseller order id to our transaction
func (s *Store) FindTransactionIDByExternalOrderID(ctx context.Context, orderID string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		"SELECT id FROM transactions WHERE external_order_id = $1 ORDER BY id DESC LIMIT 1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: external order %s", ErrTransactionNotFound, orderID)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SaveOrderOutcome records the result of placing the reseller order
func (s *Store) SaveOrderOutcome(ctx context.Context, id int64, serverResponse string, accepted bool, status models.Status, externalOrderID *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions
		 SET server_response = $1, is_accepted = $2, status = $3,
		     external_order_id = COALESCE($4, external_order_id)
		 WHERE id = $5`,
		serverResponse, accepted, status, externalOrderID, id)
	if err != nil {
		return fmt.Errorf("failed to save order outcome: %w", err)
	}
	return expectRow(res, id)
}

// SaveRefreshOutcome stores a non-refund refresh result. It reports false when
// the transaction had already been refunded and was left untouched.
func (s *Store) SaveRefreshOutcome(ctx context.Context, id int64, serverResponse string, status models.Status, accepted bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions
		 SET server_response = $1, status = $2, is_accepted = $3
		 WHERE id = $4 AND `+notRefundedGuard,
		serverResponse, status, accepted, id)
	if err != nil {
		return false, fmt.Errorf("failed to save refresh outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ApplyRefund moves the transaction to a refund status and credits the amount
// back in one database transaction. Only the first caller wins; later callers
// get false and nothing changes.
func (s *Store) ApplyRefund(ctx context.Context, id int64, serverResponse string, status models.Status) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var row struct {
		UserID int64 `db:"user_id"`
		Amount int64 `db:"amount"`
	}
	err = tx.GetContext(ctx, &row,
		`UPDATE transactions
		 SET status = $1, is_accepted = FALSE, server_response = $2
		 WHERE id = $3 AND `+notRefundedGuard+`
		 RETURNING user_id, amount`,
		status, serverResponse, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to mark refund: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET balance = balance + $1 WHERE id = $2",
		row.Amount, row.UserID); err != nil {
		return false, fmt.Errorf("failed to credit refund: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit refund: %w", err)
	}
	return true, nil
}

// AnnotateServerResponse replaces server_response without touching status or balance
func (s *Store) AnnotateServerResponse(ctx context.Context, id int64, serverResponse string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET server_response = $1 WHERE id = $2",
		serverResponse, id)
	if err != nil {
		return fmt.Errorf("failed to annotate transaction: %w", err)
	}
	return expectRow(res, id)
}

// CreateCheckout debits the buyer and inserts one pending transaction per line
// atomically. Returns the created transaction ids in line order.
func (s *Store) CreateCheckout(ctx context.Context, telegramID string, lines []CheckoutLine, inputs models.Inputs) ([]int64, error) {
	var total int64
	for _, l := range lines {
		total += l.Amount
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var userID int64
	err = tx.GetContext(ctx, &userID,
		"UPDATE users SET balance = balance - $1 WHERE user_id = $2 AND balance >= $1 RETURNING id",
		total, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.debitFailure(ctx, tx, telegramID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}

	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		var id int64
		err := tx.GetContext(ctx, &id,
			`INSERT INTO transactions (user_id, merchandise_id, quantity, inputs, amount, is_accepted, status)
			 VALUES ($1, $2, $3, $4, $5, TRUE, $6)
			 RETURNING id`,
			userID, l.MerchandiseID, l.Quantity, inputs, l.Amount, models.StatusPendingDelivery)
		if err != nil {
			return nil, fmt.Errorf("failed to insert transaction: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}
	return ids, nil
}

func (s *Store) debitFailure(ctx context.Context, tx *sqlx.Tx, telegramID string) error {
	var exists bool
	err := tx.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)", telegramID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrUserNotFound, telegramID)
	}
	return ErrInsufficientBalance
}

func expectRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
	}
	return nil
}

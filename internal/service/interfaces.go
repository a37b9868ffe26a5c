package service

import (
	"context"
	"fmt"
	"time"

	"topup-service/internal/models"
	"topup-service/internal/reseller"
	"topup-service/internal/store"
)

// TransactionStore is the persistence the tasks need
type TransactionStore interface {
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	SaveOrderOutcome(ctx context.Context, id int64, serverResponse string, accepted bool, status models.Status, externalOrderID *string) error
	SaveRefreshOutcome(ctx context.Context, id int64, serverResponse string, status models.Status, accepted bool) (bool, error)
	ApplyRefund(ctx context.Context, id int64, serverResponse string, status models.Status) (bool, error)
	AnnotateServerResponse(ctx context.Context, id int64, serverResponse string) error
}

// CheckoutStore is the persistence checkout needs
type CheckoutStore interface {
	GetMerchandiseByIDs(ctx context.Context, ids []int64) ([]models.Merchandise, error)
	CreateCheckout(ctx context.Context, telegramID string, lines []store.CheckoutLine, inputs models.Inputs) ([]int64, error)
}

// BalanceStore credits approved top-ups
type BalanceStore interface {
	CreditUser(ctx context.Context, telegramID string, amount int64) (int64, error)
}

// ExternalOrderLookup resolves reseller order ids
type ExternalOrderLookup interface {
	FindTransactionIDByExternalOrderID(ctx context.Context, orderID string) (int64, error)
}

// ResellerClient places and inspects reseller orders
type ResellerClient interface {
	Call(ctx context.Context, path string, payload interface{}) (reseller.Result, error)
}

// Notifier tells the buyer what happened to a transaction
type Notifier interface {
	Notify(ctx context.Context, tx *models.Transaction, kind models.NotificationKind) error
}

// TaskGuard provides the per-transaction lock and submission markers
type TaskGuard interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// TaskQueue enqueues background tasks
type TaskQueue interface {
	EnqueueFulfillment(ctx context.Context, transactionID int64) error
	EnqueueRefresh(ctx context.Context, transactionID int64) error
}

// TaskResult is what a task reports instead of an error
type TaskResult struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	TransactionID int64         `json:"transaction_id"`
	OrderID       string        `json:"order_id,omitempty"`
	OldStatus     models.Status `json:"old_status,omitempty"`
	NewStatus     models.Status `json:"new_status,omitempty"`
}

func failure(id int64, format string, args ...interface{}) TaskResult {
	return TaskResult{TransactionID: id, Message: fmt.Sprintf(format, args...)}
}

func outcomeLabel(r TaskResult) string {
	if r.Success {
		return "success"
	}
	return "failure"
}

func transactionLockKey(id int64) string {
	return fmt.Sprintf("txn:%d", id)
}

func submissionMarkerKey(id int64) string {
	return fmt.Sprintf("fulfill:%d", id)
}

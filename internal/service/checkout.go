package service

import (
	"context"
	"errors"
	"fmt"

	"topup-service/internal/models"
	"topup-service/internal/store"
	"topup-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// CheckoutService turns a mini-app cart into paid pending transactions
type CheckoutService struct {
	store  CheckoutStore
	queue  TaskQueue
	logger *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(store CheckoutStore, queue TaskQueue, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{store: store, queue: queue, logger: logger}
}

// CartLine is one merchandise and quantity from the cart
type CartLine struct {
	MerchandiseID int64
	Quantity      int
}

// CheckoutRequest represents a checkout from the mini-app
type CheckoutRequest struct {
	TelegramUserID string
	Cart           []CartLine
	Inputs         models.Inputs
}

// CheckoutResponse represents the created transactions
type CheckoutResponse struct {
	TransactionIDs []int64 `json:"transaction_ids"`
	TotalAmount    int64   `json:"total_amount"`
}

// Checkout prices the cart, debits the buyer and creates one transaction per
// line in one database transaction, then enqueues fulfillment for each.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout", attribute.String("user_id", req.TelegramUserID))
	defer span.End()

	if len(req.Cart) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]int64, 0, len(req.Cart))
	for _, line := range req.Cart {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: merchandise %d", ErrInvalidQuantity, line.MerchandiseID)
		}
		ids = append(ids, line.MerchandiseID)
	}

	items, err := s.store.GetMerchandiseByIDs(ctx, ids)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to load merchandise: %w", err)
	}
	byID := make(map[int64]models.Merchandise, len(items))
	for _, m := range items {
		byID[m.ID] = m
	}

	lines := make([]store.CheckoutLine, 0, len(req.Cart))
	var total int64
	for _, line := range req.Cart {
		m, ok := byID[line.MerchandiseID]
		if !ok {
			util.CheckoutTransactionsTotal.WithLabelValues("merchandise_not_found").Inc()
			return nil, fmt.Errorf("%w: %d", store.ErrMerchandiseNotFound, line.MerchandiseID)
		}
		amount := m.Price * int64(line.Quantity)
		total += amount
		lines = append(lines, store.CheckoutLine{
			MerchandiseID: m.ID,
			Quantity:      line.Quantity,
			Amount:        amount,
		})
	}

	txIDs, err := s.store.CreateCheckout(ctx, req.TelegramUserID, lines, req.Inputs)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientBalance):
			util.CheckoutTransactionsTotal.WithLabelValues("insufficient_balance").Inc()
		case errors.Is(err, store.ErrUserNotFound):
			util.CheckoutTransactionsTotal.WithLabelValues("user_not_found").Inc()
		default:
			util.FailSpan(span, err)
			util.CheckoutTransactionsTotal.WithLabelValues("db_error").Inc()
		}
		return nil, err
	}

	util.CheckoutTransactionsTotal.WithLabelValues("created").Add(float64(len(txIDs)))
	s.logger.Info("Checkout completed",
		zap.String("user_id", req.TelegramUserID),
		zap.Int64s("transaction_ids", txIDs),
		zap.Int64("total_amount", total))

	for _, id := range txIDs {
		// The debit is committed; a failed enqueue leaves the row pending for re-enqueue.
		if err := s.queue.EnqueueFulfillment(ctx, id); err != nil {
			s.logger.Error("Failed to enqueue fulfillment",
				zap.Int64("transaction_id", id),
				zap.Error(err))
		}
	}

	return &CheckoutResponse{TransactionIDs: txIDs, TotalAmount: total}, nil
}

package service

import (
	"context"
	"fmt"
	"time"

	"topup-service/internal/util"

	"go.uber.org/zap"
)

// RefreshTrigger turns user and reseller signals into refresh tasks
type RefreshTrigger struct {
	limiter *RefreshRateLimiter
	queue   TaskQueue
	lookup  ExternalOrderLookup
	logger  *zap.Logger
	now     func() time.Time
}

// NewRefreshTrigger creates a new refresh trigger
func NewRefreshTrigger(limiter *RefreshRateLimiter, queue TaskQueue, lookup ExternalOrderLookup, logger *zap.Logger) *RefreshTrigger {
	return &RefreshTrigger{
		limiter: limiter,
		queue:   queue,
		lookup:  lookup,
		logger:  logger,
		now:     time.Now,
	}
}

// RequestRefresh applies the cooldown and enqueues a refresh when allowed
func (t *RefreshTrigger) RequestRefresh(ctx context.Context, transactionID int64, requestedAt time.Time) (Decision, error) {
	decision := t.limiter.Check(requestedAt, t.now())
	if !decision.Allowed {
		util.RefreshRateLimitedTotal.Inc()
		t.logger.Debug("Refresh rate limited",
			zap.Int64("transaction_id", transactionID),
			zap.Int64("remaining_seconds", decision.RemainingSeconds()))
		return decision, nil
	}

	if err := t.queue.EnqueueRefresh(ctx, transactionID); err != nil {
		return decision, fmt.Errorf("failed to enqueue refresh: %w", err)
	}
	return decision, nil
}

// HandleResellerCallback enqueues a refresh for the transaction behind orderID,
// so callbacks go through the same refund-once reconciliation.
func (t *RefreshTrigger) HandleResellerCallback(ctx context.Context, orderID string) (int64, error) {
	id, err := t.lookup.FindTransactionIDByExternalOrderID(ctx, orderID)
	if err != nil {
		return 0, err
	}

	if err := t.queue.EnqueueRefresh(ctx, id); err != nil {
		return id, fmt.Errorf("failed to enqueue refresh: %w", err)
	}

	t.logger.Info("Reseller callback queued refresh",
		zap.String("order_id", orderID),
		zap.Int64("transaction_id", id))
	return id, nil
}

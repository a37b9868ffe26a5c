package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"topup-service/internal/models"
	"topup-service/internal/reseller"
	"topup-service/internal/store"
	"topup-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RefreshService reconciles transactions with the reseller's order status
type RefreshService struct {
	store    TransactionStore
	reseller ResellerClient
	notifier Notifier
	guard    TaskGuard
	lockTTL  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewRefreshService creates a new refresh service
func NewRefreshService(
	store TransactionStore,
	resellerClient ResellerClient,
	notifier Notifier,
	guard TaskGuard,
	lockTTL time.Duration,
	logger *zap.Logger,
) *RefreshService {
	return &RefreshService{
		store:    store,
		reseller: resellerClient,
		notifier: notifier,
		guard:    guard,
		lockTTL:  lockTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Refresh runs the status refresh task for one transaction. A refund is
// credited at most once no matter how often this runs.
func (s *RefreshService) Refresh(ctx context.Context, transactionID int64) (result TaskResult) {
	ctx, span := util.StartSpan(ctx, "RefreshService.Refresh", attribute.Int64("transaction_id", transactionID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.TaskProcessingLatency.WithLabelValues(models.TaskTypeRefreshStatus).Observe(time.Since(start).Seconds())
		util.StatusRefreshTotal.WithLabelValues(outcomeLabel(result)).Inc()
		span.SetAttributes(attribute.Bool("task.success", result.Success))
	}()

	token, err := s.guard.AcquireLock(ctx, transactionLockKey(transactionID), s.lockTTL)
	if err != nil {
		s.logger.Error("Failed to acquire transaction lock", zap.Int64("transaction_id", transactionID), zap.Error(err))
		return failure(transactionID, "lock unavailable: %v", err)
	}
	if token == "" {
		s.logger.Warn("Transaction is busy", zap.Int64("transaction_id", transactionID))
		return failure(transactionID, "busy")
	}
	defer func() {
		if err := s.guard.ReleaseLock(context.Background(), transactionLockKey(transactionID), token); err != nil {
			s.logger.Warn("Failed to release transaction lock", zap.Int64("transaction_id", transactionID), zap.Error(err))
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Refresh panicked", zap.Int64("transaction_id", transactionID), zap.Any("panic", r))
			result = s.annotateFailure(ctx, transactionID, nil, fmt.Errorf("panic: %v", r))
		}
	}()

	return s.refresh(ctx, transactionID)
}

func (s *RefreshService) refresh(ctx context.Context, transactionID int64) TaskResult {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if errors.Is(err, store.ErrTransactionNotFound) {
		s.logger.Error("Transaction not found for refresh", zap.Int64("transaction_id", transactionID))
		return failure(transactionID, "transaction not found")
	}
	if err != nil {
		return s.annotateFailure(ctx, transactionID, nil, err)
	}

	if tx.Status.IsRefunded() {
		s.notify(ctx, tx, models.NotifyAlreadyResolved)
		return TaskResult{
			Success:       true,
			TransactionID: tx.ID,
			Message:       "already resolved",
			OldStatus:     tx.Status,
			NewStatus:     tx.Status,
		}
	}

	orderID, ok := reseller.OrderIDFromResponse(tx.ServerResponse)
	if !ok && tx.ExternalOrderID != nil && *tx.ExternalOrderID != "" {
		orderID, ok = *tx.ExternalOrderID, true
	}
	if !ok {
		s.logger.Error("No reseller order id on transaction", zap.Int64("transaction_id", tx.ID))
		return failure(tx.ID, "no reseller order id")
	}

	result, callErr := s.reseller.Call(ctx, reseller.PathOrderDetail, reseller.OrderDetailPayload(orderID))
	if callErr == nil {
		if opaque, isOpaque := result.(reseller.Opaque); isOpaque {
			callErr = fmt.Errorf("unparseable order detail response: %s", truncate(string(opaque), 200))
		}
	}
	if callErr != nil {
		return s.annotateFailure(ctx, tx.ID, tx, callErr)
	}

	serverResponse := reseller.MergeResponse(tx.ServerResponse, reseller.RefreshResultFields(result, s.now()))
	rawStatus, _ := result.(reseller.Structured).Text("order_status")
	status, refund := reseller.ClassifyOrderStatus(rawStatus)

	oldStatus := tx.Status
	if refund {
		applied, err := s.store.ApplyRefund(ctx, tx.ID, serverResponse, status)
		if err != nil {
			return s.annotateFailure(ctx, tx.ID, tx, err)
		}
		if !applied {
			return s.alreadyResolved(ctx, tx)
		}
		util.RefundsTotal.WithLabelValues(string(status)).Inc()
		util.RefundedAmountTotal.Add(float64(tx.Amount))
		s.logger.Info("Refund applied",
			zap.Int64("transaction_id", tx.ID),
			zap.Int64("amount", tx.Amount),
			zap.String("status", string(status)))
		tx.IsAccepted = false
	} else {
		accepted := status.AcceptedFlag(tx.IsAccepted)
		updated, err := s.store.SaveRefreshOutcome(ctx, tx.ID, serverResponse, status, accepted)
		if err != nil {
			return s.annotateFailure(ctx, tx.ID, tx, err)
		}
		if !updated {
			return s.alreadyResolved(ctx, tx)
		}
		tx.IsAccepted = accepted
	}
	tx.Status = status
	tx.ServerResponse = serverResponse

	s.notify(ctx, tx, models.NotifyStatusFresh)

	return TaskResult{
		Success:       true,
		TransactionID: tx.ID,
		OrderID:       orderID,
		Message:       "status refreshed",
		OldStatus:     oldStatus,
		NewStatus:     status,
	}
}

// alreadyResolved handles losing a race against a refund committed elsewhere
func (s *RefreshService) alreadyResolved(ctx context.Context, tx *models.Transaction) TaskResult {
	old := tx.Status
	if latest, err := s.store.GetTransaction(ctx, tx.ID); err == nil {
		tx = latest
	}
	s.logger.Info("Transaction was resolved concurrently", zap.Int64("transaction_id", tx.ID))
	s.notify(ctx, tx, models.NotifyAlreadyResolved)
	return TaskResult{
		Success:       true,
		TransactionID: tx.ID,
		Message:       "already resolved",
		OldStatus:     old,
		NewStatus:     tx.Status,
	}
}

// annotateFailure records cause in server_response and leaves status and balance alone
func (s *RefreshService) annotateFailure(ctx context.Context, transactionID int64, tx *models.Transaction, cause error) (result TaskResult) {
	result = failure(transactionID, "refresh failed: %v", cause)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Failure annotation panicked", zap.Int64("transaction_id", transactionID), zap.Any("panic", r))
		}
	}()

	s.logger.Warn("Status refresh failed", zap.Int64("transaction_id", transactionID), zap.Error(cause))

	if tx == nil {
		reloaded, err := s.store.GetTransaction(ctx, transactionID)
		if err != nil {
			s.logger.Error("Cannot reload transaction after failure", zap.Int64("transaction_id", transactionID), zap.Error(err))
			return result
		}
		tx = reloaded
	}
	result.OldStatus = tx.Status
	result.NewStatus = tx.Status

	annotated := reseller.MergeResponse(tx.ServerResponse, reseller.RefreshErrorFields(cause, s.now()))
	if err := s.store.AnnotateServerResponse(ctx, tx.ID, annotated); err != nil {
		s.logger.Error("Cannot annotate transaction", zap.Int64("transaction_id", tx.ID), zap.Error(err))
	}
	return result
}

func (s *RefreshService) notify(ctx context.Context, tx *models.Transaction, kind models.NotificationKind) {
	if err := s.notifier.Notify(ctx, tx, kind); err != nil {
		s.logger.Warn("Failed to notify user",
			zap.Int64("transaction_id", tx.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

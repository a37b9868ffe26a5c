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

// FulfillmentService places reseller orders for pending transactions
type FulfillmentService struct {
	store     TransactionStore
	reseller  ResellerClient
	notifier  Notifier
	guard     TaskGuard
	lockTTL   time.Duration
	markerTTL time.Duration
	logger    *zap.Logger
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(
	store TransactionStore,
	resellerClient ResellerClient,
	notifier Notifier,
	guard TaskGuard,
	lockTTL, markerTTL time.Duration,
	logger *zap.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		store:     store,
		reseller:  resellerClient,
		notifier:  notifier,
		guard:     guard,
		lockTTL:   lockTTL,
		markerTTL: markerTTL,
		logger:    logger,
	}
}

// Fulfill runs the order fulfillment task for one transaction. It never panics
// and never returns an error; the outcome is in the result.
func (s *FulfillmentService) Fulfill(ctx context.Context, transactionID int64) (result TaskResult) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.Fulfill", attribute.Int64("transaction_id", transactionID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.TaskProcessingLatency.WithLabelValues(models.TaskTypeFulfillOrder).Observe(time.Since(start).Seconds())
		util.FulfillmentOrdersTotal.WithLabelValues(outcomeLabel(result)).Inc()
		span.SetAttributes(attribute.Bool("task.success", result.Success))
	}()

	token, err := s.guard.AcquireLock(ctx, transactionLockKey(transactionID), s.lockTTL)
	if err != nil {
		s.logger.Error("Failed to acquire transaction lock", zap.Int64("transaction_id", transactionID), zap.Error(err))
		return s.failIfPending(ctx, transactionID, fmt.Errorf("lock unavailable: %w", err))
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
			s.logger.Error("Fulfillment panicked", zap.Int64("transaction_id", transactionID), zap.Any("panic", r))
			result = s.failUnexpected(ctx, transactionID, fmt.Errorf("panic: %v", r))
		}
	}()

	return s.fulfill(ctx, transactionID)
}

func (s *FulfillmentService) fulfill(ctx context.Context, transactionID int64) TaskResult {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if errors.Is(err, store.ErrTransactionNotFound) {
		s.logger.Error("Transaction not found for fulfillment", zap.Int64("transaction_id", transactionID))
		return failure(transactionID, "transaction not found")
	}
	if err != nil {
		return s.failUnexpected(ctx, transactionID, err)
	}

	if tx.Status != models.StatusPendingDelivery {
		s.logger.Info("Transaction already processed, skipping",
			zap.Int64("transaction_id", tx.ID),
			zap.String("status", string(tx.Status)))
		return TaskResult{
			TransactionID: tx.ID,
			Message:       "already processed",
			OldStatus:     tx.Status,
			NewStatus:     tx.Status,
		}
	}

	first, err := s.guard.MarkOnce(ctx, submissionMarkerKey(tx.ID), s.markerTTL)
	if err != nil {
		s.logger.Error("Failed to set submission marker", zap.Int64("transaction_id", tx.ID), zap.Error(err))
		return s.failUnexpected(ctx, tx.ID, fmt.Errorf("submission marker unavailable: %w", err))
	}
	if !first {
		// A previous delivery may have reached the reseller before crashing.
		s.logger.Warn("Order was already submitted once, leaving for operator",
			zap.Int64("transaction_id", tx.ID))
		return TaskResult{
			TransactionID: tx.ID,
			Message:       "already submitted, needs operator review",
			OldStatus:     tx.Status,
			NewStatus:     tx.Status,
		}
	}

	s.notify(ctx, tx, models.NotifyOrderInfo)

	payload := reseller.CreateOrderPayload(tx.ResellerCategory, tx.ResellerID, tx.Quantity, tx.Inputs)
	result, callErr := s.reseller.Call(ctx, reseller.PathCreateOrder, payload)

	serverResponse := ""
	switch {
	case result != nil:
		serverResponse = result.String()
	case callErr != nil:
		serverResponse = callErr.Error()
	}

	oldStatus := tx.Status
	var externalOrderID *string
	if callErr == nil && reseller.Accepted(result) {
		orderID, _ := reseller.OrderID(result)
		externalOrderID = &orderID
		tx.IsAccepted = true
		tx.Status = models.StatusOnTheWay
		tx.ExternalOrderID = externalOrderID
	} else {
		tx.IsAccepted = false
		tx.Status = models.StatusFailed
		if callErr != nil {
			s.logger.Warn("Reseller order call failed", zap.Int64("transaction_id", tx.ID), zap.Error(callErr))
		} else {
			s.logger.Info("Reseller rejected order", zap.Int64("transaction_id", tx.ID), zap.String("response", serverResponse))
		}
	}
	tx.ServerResponse = serverResponse

	if err := s.store.SaveOrderOutcome(ctx, tx.ID, serverResponse, tx.IsAccepted, tx.Status, externalOrderID); err != nil {
		return s.failUnexpected(ctx, tx.ID, err)
	}

	s.notify(ctx, tx, models.NotifyStatusFresh)

	res := TaskResult{
		Success:       tx.Status == models.StatusOnTheWay,
		TransactionID: tx.ID,
		OldStatus:     oldStatus,
		NewStatus:     tx.Status,
		Message:       "order rejected",
	}
	if externalOrderID != nil {
		res.OrderID = *externalOrderID
		res.Message = "order placed"
	}

	s.logger.Info("Fulfillment finished",
		zap.Int64("transaction_id", tx.ID),
		zap.String("status", string(tx.Status)),
		zap.Bool("accepted", tx.IsAccepted))
	return res
}

// failIfPending fails the transaction only while it still waits for
// submission. Without the lock a settled transaction must not be touched.
func (s *FulfillmentService) failIfPending(ctx context.Context, transactionID int64, cause error) TaskResult {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		s.logger.Error("Cannot load transaction after guard failure", zap.Int64("transaction_id", transactionID), zap.Error(err))
		return failure(transactionID, "%v", cause)
	}
	if tx.Status != models.StatusPendingDelivery {
		return TaskResult{
			TransactionID: tx.ID,
			Message:       cause.Error(),
			OldStatus:     tx.Status,
			NewStatus:     tx.Status,
		}
	}
	return s.failUnexpected(ctx, transactionID, cause)
}

// failUnexpected forces the transaction into failed with the error text kept
// for the operator, then tells the buyer.
func (s *FulfillmentService) failUnexpected(ctx context.Context, transactionID int64, cause error) (result TaskResult) {
	result = failure(transactionID, "unexpected error: %v", cause)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Failure handling panicked", zap.Int64("transaction_id", transactionID), zap.Any("panic", r))
		}
	}()

	s.logger.Error("Fulfillment failed unexpectedly", zap.Int64("transaction_id", transactionID), zap.Error(cause))

	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		s.logger.Error("Cannot reload transaction after failure", zap.Int64("transaction_id", transactionID), zap.Error(err))
		return result
	}
	result.OldStatus = tx.Status

	serverResponse := "Error: " + cause.Error()
	if err := s.store.SaveOrderOutcome(ctx, tx.ID, serverResponse, false, models.StatusFailed, nil); err != nil {
		s.logger.Error("Cannot mark transaction failed", zap.Int64("transaction_id", tx.ID), zap.Error(err))
		return result
	}

	tx.Status = models.StatusFailed
	tx.IsAccepted = false
	tx.ServerResponse = serverResponse
	result.NewStatus = tx.Status

	s.notify(ctx, tx, models.NotifyStatusFresh)
	return result
}

func (s *FulfillmentService) notify(ctx context.Context, tx *models.Transaction, kind models.NotificationKind) {
	if err := s.notifier.Notify(ctx, tx, kind); err != nil {
		s.logger.Warn("Failed to notify user",
			zap.Int64("transaction_id", tx.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

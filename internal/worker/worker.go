package worker

import (
	"context"

	"topup-service/internal/broker"
	"topup-service/internal/models"
	"topup-service/internal/service"

	"go.uber.org/zap"
)

// Fulfiller runs the order fulfillment task
type Fulfiller interface {
	Fulfill(ctx context.Context, transactionID int64) service.TaskResult
}

// Refresher runs the status refresh task
type Refresher interface {
	Refresh(ctx context.Context, transactionID int64) service.TaskResult
}

// TaskWorker consumes the task topic and runs fulfillment and refresh tasks
type TaskWorker struct {
	consumer *broker.Consumer
	handler  *broker.TaskHandler
	logger   *zap.Logger
}

// NewTaskWorker creates a new task worker
func NewTaskWorker(consumer *broker.Consumer, fulfiller Fulfiller, refresher Refresher, logger *zap.Logger) *TaskWorker {
	handler := broker.NewTaskHandler(logger)

	handler.OnFulfillOrder(func(ctx context.Context, task *models.TaskMessage) {
		logResult(logger, task, fulfiller.Fulfill(ctx, task.TransactionID))
	})
	handler.OnRefreshStatus(func(ctx context.Context, task *models.TaskMessage) {
		logResult(logger, task, refresher.Refresh(ctx, task.TransactionID))
	})

	return &TaskWorker{
		consumer: consumer,
		handler:  handler,
		logger:   logger,
	}
}

// Start starts the worker
func (w *TaskWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting task worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *TaskWorker) Stop() error {
	w.logger.Info("Stopping task worker")
	return w.consumer.Close()
}

func logResult(logger *zap.Logger, task *models.TaskMessage, result service.TaskResult) {
	fields := []zap.Field{
		zap.String("type", task.EventType),
		zap.String("event_id", task.EventID),
		zap.Int64("transaction_id", result.TransactionID),
		zap.String("message", result.Message),
		zap.String("old_status", string(result.OldStatus)),
		zap.String("new_status", string(result.NewStatus)),
	}
	if result.Success {
		logger.Info("Task succeeded", fields...)
		return
	}
	logger.Warn("Task failed", fields...)
}

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"topup-service/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventProducer publishes a keyed event
type EventProducer interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// TaskPublisher enqueues fulfillment and refresh tasks
type TaskPublisher struct {
	producer EventProducer
	now      func() time.Time
}

// NewTaskPublisher creates a new task publisher
func NewTaskPublisher(producer EventProducer) *TaskPublisher {
	return &TaskPublisher{producer: producer, now: time.Now}
}

// EnqueueFulfillment asks a worker to place the reseller order for a transaction
func (tp *TaskPublisher) EnqueueFulfillment(ctx context.Context, transactionID int64) error {
	return tp.publish(ctx, models.TaskTypeFulfillOrder, transactionID)
}

// EnqueueRefresh asks a worker to reconcile a transaction's status
func (tp *TaskPublisher) EnqueueRefresh(ctx context.Context, transactionID int64) error {
	return tp.publish(ctx, models.TaskTypeRefreshStatus, transactionID)
}

func (tp *TaskPublisher) publish(ctx context.Context, taskType string, transactionID int64) error {
	msg := &models.TaskMessage{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: taskType,
			Timestamp: tp.now(),
		},
		TransactionID: transactionID,
	}
	// Same key per transaction keeps its tasks on one partition, in order.
	key := fmt.Sprintf("txn-%d", transactionID)
	return tp.producer.PublishEvent(ctx, key, msg)
}

// TaskFunc runs one task. Task outcomes are reported through results, not errors.
type TaskFunc func(context.Context, *models.TaskMessage)

// TaskHandler routes incoming task messages
type TaskHandler struct {
	onFulfillOrder  TaskFunc
	onRefreshStatus TaskFunc
	logger          *zap.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(logger *zap.Logger) *TaskHandler {
	return &TaskHandler{logger: logger}
}

// OnFulfillOrder registers a handler for FULFILL_ORDER tasks
func (th *TaskHandler) OnFulfillOrder(handler TaskFunc) {
	th.onFulfillOrder = handler
}

// OnRefreshStatus registers a handler for REFRESH_STATUS tasks
func (th *TaskHandler) OnRefreshStatus(handler TaskFunc) {
	th.onRefreshStatus = handler
}

// HandleMessage routes a message to its task. Malformed messages are logged
// and acknowledged so they do not block the partition.
func (th *TaskHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var task models.TaskMessage
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		th.logger.Error("Dropping undecodable task message",
			zap.String("key", string(msg.Key)),
			zap.Error(err))
		return nil
	}

	th.logger.Info("Handling task",
		zap.String("type", task.EventType),
		zap.String("event_id", task.EventID),
		zap.Int64("transaction_id", task.TransactionID))

	switch task.EventType {
	case models.TaskTypeFulfillOrder:
		if th.onFulfillOrder != nil {
			th.onFulfillOrder(ctx, &task)
		}
	case models.TaskTypeRefreshStatus:
		if th.onRefreshStatus != nil {
			th.onRefreshStatus(ctx, &task)
		}
	default:
		th.logger.Warn("Unhandled task type", zap.String("type", task.EventType))
	}

	return nil
}

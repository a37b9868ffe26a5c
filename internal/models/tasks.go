package models

import "time"

// Task types carried on the task queue
const (
	TaskTypeFulfillOrder  = "FULFILL_ORDER"
	TaskTypeRefreshStatus = "REFRESH_STATUS"
)

// BaseEvent contains common fields for all queued tasks
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskMessage asks a worker to run a task against one transaction
type TaskMessage struct {
	BaseEvent
	TransactionID int64 `json:"transaction_id"`
}

// NotificationKind tells the notifier which message to render
type NotificationKind string

const (
	NotifyOrderInfo       NotificationKind = "order-info"
	NotifyStatusFresh     NotificationKind = "status-fresh"
	NotifyAlreadyResolved NotificationKind = "status-already-resolved"
)

package reseller

import (
	"strings"

	"topup-service/internal/models"
)

// ClassifyOrderStatus maps a reseller order_status to the internal status and
// reports whether reaching it requires refunding the buyer.
func ClassifyOrderStatus(raw string) (models.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed":
		return models.StatusDelivered, false
	case "processing":
		return models.StatusOnTheWay, false
	case "refunded":
		return models.StatusRefunded, true
	case "incorrect-details":
		return models.StatusIncorrectDetails, true
	default:
		return models.StatusFailed, false
	}
}

// Accepted reports whether a create_order result means the reseller took the order
func Accepted(r Result) bool {
	if _, ok := OrderID(r); !ok {
		return false
	}
	status, ok := r.(Structured).Text("status")
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "true", "processing":
		return true
	}
	return false
}

// OrderID returns the reseller order id carried by r, if any
func OrderID(r Result) (string, bool) {
	s, ok := r.(Structured)
	if !ok {
		return "", false
	}
	id, ok := s.Text("order_id")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

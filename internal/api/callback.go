package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"topup-service/internal/reseller"
	"topup-service/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// resellerCallback queues a status refresh for the order the reseller reports on
func (h *Handler) resellerCallback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	orderID, ok := reseller.OrderID(reseller.Structured(payload))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id is required"})
		return
	}

	transactionID, err := h.callbacks.HandleResellerCallback(c.Request.Context(), orderID)
	if errors.Is(err, store.ErrTransactionNotFound) {
		h.logger.Warn("Callback for unknown order", zap.String("order_id", orderID))
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to handle reseller callback", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue refresh"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":         "queued",
		"transaction_id": transactionID,
	})
}

package reseller

import (
	"encoding/json"
	"strconv"
	"time"

	"topup-service/internal/models"
)

// CreateOrderPayload builds the create_order body. Buyer inputs are applied in
// order after the fixed fields, so a repeated key keeps its last value.
func CreateOrderPayload(category, productID string, quantity int, inputs models.Inputs) map[string]interface{} {
	data := map[string]interface{}{
		"category":   category,
		"product-id": productID,
		"quantity":   strconv.Itoa(quantity),
	}
	for _, f := range inputs {
		data[f.Key] = f.Value
	}

	return map[string]interface{}{
		"path": PathCreateOrder,
		"data": data,
	}
}

// OrderDetailPayload builds the order_detail body
func OrderDetailPayload(orderID string) map[string]interface{} {
	return map[string]interface{}{
		"path":     PathOrderDetail,
		"order_id": orderID,
	}
}

// OrderIDFromResponse reads order_id back from a stored server_response
func OrderIDFromResponse(serverResponse string) (string, bool) {
	obj, ok := decodeObject([]byte(serverResponse))
	if !ok {
		return "", false
	}
	return OrderID(obj)
}

// MergeResponse adds fields to the JSON object stored in serverResponse.
// Text that is not a JSON object is kept under "previous_response".
func MergeResponse(serverResponse string, fields map[string]interface{}) string {
	obj, ok := decodeObject([]byte(serverResponse))
	if !ok {
		obj = Structured{}
		if serverResponse != "" {
			obj["previous_response"] = serverResponse
		}
	}
	for k, v := range fields {
		obj[k] = v
	}

	b, err := json.Marshal(map[string]interface{}(obj))
	if err != nil {
		return serverResponse
	}
	return string(b)
}

// RefreshResultFields are the keys merged after a successful order_detail call
func RefreshResultFields(r Result, at time.Time) map[string]interface{} {
	var value interface{} = r.String()
	if s, ok := r.(Structured); ok {
		value = map[string]interface{}(s)
	}
	return map[string]interface{}{
		"refresh_result": value,
		"last_refreshed": at.UTC().Format(time.RFC3339),
	}
}

// RefreshErrorFields are the keys merged when a refresh could not be completed
func RefreshErrorFields(err error, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"refresh_error":           err.Error(),
		"refresh_error_timestamp": at.UTC().Format(time.RFC3339),
	}
}

package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"topup-service/internal/models"
	"topup-service/internal/service"
	"topup-service/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMalformed   = errors.New("malformed parameter")
	errMissingUser = errors.New("missing user header")
	errInvalidUser = errors.New("invalid user data")
)

// createTransactions handles the mini-app checkout:
// GET /api/v1/transactions/create?inputs=k:v,...&cart=id:qty,... with X-User-ID.
func (h *Handler) createTransactions(c *gin.Context) {
	userID, err := decodeUserHeader(c.GetHeader("X-User-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inputsRaw := c.Query("inputs")
	cartRaw := c.Query("cart")
	if inputsRaw == "" || cartRaw == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "O'yinchi ma'lumotlaringizni kiriting",
		})
		return
	}

	inputs, err := parseInputs(inputsRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": fmt.Sprintf("Invalid data format: %v", err),
		})
		return
	}
	cart, err := parseCart(cartRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": fmt.Sprintf("Invalid data format: %v", err),
		})
		return
	}

	resp, err := h.checkout.Checkout(c.Request.Context(), &service.CheckoutRequest{
		TelegramUserID: userID,
		Cart:           cart,
		Inputs:         inputs,
	})
	if err != nil {
		status, message := checkoutErrorResponse(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Checkout failed", zap.String("user_id", userID), zap.Error(err))
		}
		c.JSON(status, gin.H{
			"success": false,
			"message": message,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         "✅ Buyurtmangiz muvaffaqiyatli qabul qilindi!",
		"transaction_ids": resp.TransactionIDs,
		"total_amount":    strconv.FormatInt(resp.TotalAmount, 10),
	})
}

func checkoutErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, store.ErrMerchandiseNotFound):
		return http.StatusBadRequest, "Bu mahsulot topilmadi"
	case errors.Is(err, store.ErrInsufficientBalance):
		return http.StatusBadRequest, "Hisobingizda mablag' yetarli emas!"
	case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, service.ErrEmptyCart):
		return http.StatusBadRequest, fmt.Sprintf("Invalid data format: %v", err)
	default:
		return http.StatusInternalServerError, "Qandaydir xatolik yuz berdi, qaytadan urinib ko'ring"
	}
}

// decodeUserHeader reads the Telegram user id from base64 JSON {"id": ...}
func decodeUserHeader(header string) (string, error) {
	if header == "" {
		return "", errMissingUser
	}

	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return "", errInvalidUser
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var user map[string]interface{}
	if err := dec.Decode(&user); err != nil {
		return "", errInvalidUser
	}

	switch id := user["id"].(type) {
	case json.Number:
		return id.String(), nil
	case string:
		if id != "" {
			return id, nil
		}
	}
	return "", errInvalidUser
}

// parseInputs parses k:v,k2:v2 keeping order and duplicates
func parseInputs(raw string) (models.Inputs, error) {
	items := strings.Split(raw, ",")
	inputs := make(models.Inputs, 0, len(items))
	for _, item := range items {
		kv := strings.SplitN(item, ":", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, fmt.Errorf("%w: input %q", errMalformed, item)
		}
		inputs = append(inputs, models.InputField{Key: kv[0], Value: kv[1]})
	}
	return inputs, nil
}

// parseCart parses id:qty,id2:qty2
func parseCart(raw string) ([]service.CartLine, error) {
	items := strings.Split(raw, ",")
	cart := make([]service.CartLine, 0, len(items))
	for _, item := range items {
		kv := strings.Split(item, ":")
		if len(kv) != 2 {
			return nil, fmt.Errorf("%w: cart item %q", errMalformed, item)
		}
		id, err := strconv.ParseInt(kv[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: cart item %q", errMalformed, item)
		}
		qty, err := strconv.Atoi(kv[1])
		if err != nil {
			return nil, fmt.Errorf("%w: cart item %q", errMalformed, item)
		}
		cart = append(cart, service.CartLine{MerchandiseID: id, Quantity: qty})
	}
	return cart, nil
}

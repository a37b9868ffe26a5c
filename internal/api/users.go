package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"topup-service/internal/models"
	"topup-service/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxProofBytes = 10 << 20

// getCurrentUser returns the caller's wallet balance
func (h *Handler) getCurrentUser(c *gin.Context) {
	userID, err := decodeUserHeader(c.GetHeader("X-User-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	user, err := h.repo.GetUserByTelegramID(c.Request.Context(), userID)
	if errors.Is(err, store.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "User not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load user", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Qandaydir xatolik yuz berdi, qaytadan urinib ko'ring",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"user_id":    user.TelegramID,
		"first_name": user.FirstName,
		"username":   user.Username,
		"balance":    strconv.FormatInt(user.Balance, 10),
	})
}

// updateUser registers the mini-app user or refreshes their profile:
// GET /api/v1/users/update?id=&username=&first_name=&photo_url=
func (h *Handler) updateUser(c *gin.Context) {
	user := &models.User{
		TelegramID: strings.TrimSpace(c.Query("id")),
		Username:   c.Query("username"),
		FirstName:  c.Query("first_name"),
		PhotoURL:   c.Query("photo_url"),
	}
	if user.TelegramID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "User ID missing",
		})
		return
	}

	if err := h.repo.UpsertUser(c.Request.Context(), user); err != nil {
		h.logger.Error("Failed to upsert user", zap.String("user_id", user.TelegramID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update user",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"updated": []string{user.TelegramID, user.Username, user.FirstName, user.PhotoURL},
		"balance": strconv.FormatInt(user.Balance, 10),
	})
}

// submitTopUpProof forwards a payment screenshot to the admin chat.
// Multipart form: amount, image; caller from X-User-ID.
func (h *Handler) submitTopUpProof(c *gin.Context) {
	userID, err := decodeUserHeader(c.GetHeader("X-User-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxProofBytes)

	amount, err := strconv.ParseInt(c.PostForm("amount"), 10, 64)
	if err != nil || amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "invalid amount",
		})
		return
	}

	header, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "image is required",
		})
		return
	}
	image, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "unreadable image",
		})
		return
	}
	defer image.Close()

	if err := h.proofs.SubmitProof(c.Request.Context(), userID, amount, image); err != nil {
		h.logger.Error("Failed to forward top-up proof",
			zap.String("user_id", userID),
			zap.Int64("amount", amount),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"ok":    false,
			"error": "failed to forward proof",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

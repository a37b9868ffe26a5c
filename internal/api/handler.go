package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"topup-service/internal/models"
	"topup-service/internal/service"
	"topup-service/internal/store"
	"topup-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// Checkouter creates transactions from a cart
type Checkouter interface {
	Checkout(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResponse, error)
}

// Repository loads transactions and keeps mini-app users up to date
type Repository interface {
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	GetUserByTelegramID(ctx context.Context, telegramID string) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error
}

// ProofSubmitter forwards top-up payment proofs for admin approval
type ProofSubmitter interface {
	SubmitProof(ctx context.Context, telegramUserID string, amount int64, image io.Reader) error
}

// UpdateProcessor handles Telegram updates
type UpdateProcessor interface {
	ProcessUpdate(u tele.Update)
}

// ResellerCallbackHandler reacts to reseller order callbacks
type ResellerCallbackHandler interface {
	HandleResellerCallback(ctx context.Context, orderID string) (int64, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	checkout      Checkouter
	repo          Repository
	updates       UpdateProcessor
	callbacks     ResellerCallbackHandler
	proofs        ProofSubmitter
	dependencies  map[string]Pinger
	webhookSecret string
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout Checkouter,
	repo Repository,
	updates UpdateProcessor,
	callbacks ResellerCallbackHandler,
	proofs ProofSubmitter,
	dependencies map[string]Pinger,
	webhookSecret string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		checkout:      checkout,
		repo:          repo,
		updates:       updates,
		callbacks:     callbacks,
		proofs:        proofs,
		dependencies:  dependencies,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/telegram/webhook", h.telegramWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/transactions/create", h.createTransactions)
		v1.GET("/transactions/:id", h.getTransaction)
		v1.GET("/users/me", h.getCurrentUser)
		v1.GET("/users/update", h.updateUser)
		v1.POST("/users/verify", h.submitTopUpProof)
		v1.POST("/reseller/callback", h.resellerCallback)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// getTransaction returns one of the caller's transactions
func (h *Handler) getTransaction(c *gin.Context) {
	userID, err := decodeUserHeader(c.GetHeader("X-User-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid transaction ID",
		})
		return
	}

	tx, err := h.repo.GetTransaction(c.Request.Context(), id)
	if err != nil && !errors.Is(err, store.ErrTransactionNotFound) {
		h.logger.Error("Failed to load transaction", zap.Int64("transaction_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load transaction",
		})
		return
	}
	// Other users' transactions look the same as missing ones.
	if err != nil || tx.ChatID != userID {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Transaction not found",
		})
		return
	}

	c.JSON(http.StatusOK, tx)
}

// telegramWebhook feeds a Telegram update to the bot dispatcher. Only
// requests carrying the secret registered with setWebhook are accepted.
func (h *Handler) telegramWebhook(c *gin.Context) {
	if !h.validWebhookSecret(c.GetHeader("X-Telegram-Bot-Api-Secret-Token")) {
		h.logger.Warn("Rejected Telegram webhook with a bad secret", zap.String("remote_addr", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false})
		return
	}

	var update tele.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.Warn("Invalid Telegram update", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": false})
		return
	}

	h.updates.ProcessUpdate(update)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) validWebhookSecret(got string) bool {
	if h.webhookSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) == 1
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

package service

import (
	"context"
	"errors"
	"fmt"

	"topup-service/internal/util"

	"go.uber.org/zap"
)

var ErrInvalidAmount = errors.New("top-up amount must be positive")

// TopUpService credits wallet top-ups approved by the admin
type TopUpService struct {
	store  BalanceStore
	logger *zap.Logger
}

// NewTopUpService creates a new top-up service
func NewTopUpService(store BalanceStore, logger *zap.Logger) *TopUpService {
	return &TopUpService{store: store, logger: logger}
}

// Approve credits amount to the Telegram user and returns the new balance
func (s *TopUpService) Approve(ctx context.Context, telegramUserID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	balance, err := s.store.CreditUser(ctx, telegramUserID, amount)
	if err != nil {
		return 0, fmt.Errorf("failed to approve top-up: %w", err)
	}

	util.TopUpsTotal.Inc()
	s.logger.Info("Top-up approved",
		zap.String("user_id", telegramUserID),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance))
	return balance, nil
}

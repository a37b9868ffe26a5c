package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"topup-service/internal/models"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// Notifier sends transaction updates to the buyer's Telegram chat
type Notifier struct {
	bot    *tele.Bot
	logger *zap.Logger
	now    func() time.Time
}

// NewNotifier creates a new Telegram notifier
func NewNotifier(bot *tele.Bot, logger *zap.Logger) *Notifier {
	return &Notifier{bot: bot, logger: logger, now: time.Now}
}

// Notify renders kind for tx and sends it
func (n *Notifier) Notify(ctx context.Context, tx *models.Transaction, kind models.NotificationKind) error {
	chatID, err := strconv.ParseInt(tx.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", tx.ChatID, err)
	}

	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown}

	var text string
	switch kind {
	case models.NotifyOrderInfo:
		text = RenderOrderInfo(tx)
	case models.NotifyStatusFresh:
		text = RenderStatus(tx, false)
		opts.ReplyMarkup = RefreshMarkup(tx, n.now().Unix())
	case models.NotifyAlreadyResolved:
		text = RenderStatus(tx, true)
		opts.ReplyMarkup = RefreshMarkup(tx, n.now().Unix())
	default:
		return fmt.Errorf("unknown notification kind %q", kind)
	}

	if _, err := n.bot.Send(tele.ChatID(chatID), text, opts); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}

	n.logger.Debug("Notification sent",
		zap.Int64("transaction_id", tx.ID),
		zap.String("kind", string(kind)))
	return nil
}

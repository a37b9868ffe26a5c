package telegram

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

const (
	acceptButtonText   = "Hammasi to'g'ri ✅"
	proofCaptionPrefix = "Summa"
	proofCaptionSuffix = "so'm"
)

// TopUpDesk forwards payment proofs to the admin chat for approval
type TopUpDesk struct {
	bot         *tele.Bot
	adminChatID string
	logger      *zap.Logger
}

// NewTopUpDesk creates a new top-up desk
func NewTopUpDesk(bot *tele.Bot, adminChatID string, logger *zap.Logger) *TopUpDesk {
	return &TopUpDesk{bot: bot, adminChatID: adminChatID, logger: logger}
}

// SubmitProof uploads the payment screenshot to the admin chat with an
// accept button for the claimed amount.
func (d *TopUpDesk) SubmitProof(ctx context.Context, telegramUserID string, amount int64, image io.Reader) error {
	adminID, err := strconv.ParseInt(d.adminChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid admin chat id %q: %w", d.adminChatID, err)
	}

	photo := &tele.Photo{File: tele.FromReader(image), Caption: ProofCaption(amount)}
	if _, err := d.bot.Send(tele.ChatID(adminID), photo, &tele.SendOptions{ReplyMarkup: AcceptMarkup(amount, telegramUserID)}); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}

	d.logger.Info("Top-up proof forwarded",
		zap.String("user_id", telegramUserID),
		zap.Int64("amount", amount))
	return nil
}

// ProofCaption is the caption the admin sees under a payment proof
func ProofCaption(amount int64) string {
	return fmt.Sprintf("%s: %d %s", proofCaptionPrefix, amount, proofCaptionSuffix)
}

// AcceptData builds the approval button payload: accept_<amount>_<telegramUserID>
func AcceptData(amount int64, telegramUserID string) string {
	return fmt.Sprintf("accept_%d_%s", amount, telegramUserID)
}

// AcceptMarkup returns the single approval button
func AcceptMarkup(amount int64, telegramUserID string) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{{
			{Text: acceptButtonText, Data: AcceptData(amount, telegramUserID)},
		}},
	}
}

func isProofCaption(caption string) bool {
	return strings.HasPrefix(caption, proofCaptionPrefix) && strings.HasSuffix(caption, proofCaptionSuffix)
}

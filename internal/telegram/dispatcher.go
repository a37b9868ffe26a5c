package telegram

import (
	"context"
	"strconv"
	"strings"
	"time"

	"topup-service/internal/service"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

const genericErrorText = "Qandaydir xatolik yuz berdi, qaytadan urinib ko'ring"

// RefreshRequester applies the refresh cooldown and enqueues refreshes
type RefreshRequester interface {
	RequestRefresh(ctx context.Context, transactionID int64, requestedAt time.Time) (service.Decision, error)
}

// TopUpApprover credits approved top-ups
type TopUpApprover interface {
	Approve(ctx context.Context, telegramUserID string, amount int64) (int64, error)
}

// Dispatcher handles updates delivered through the webhook
type Dispatcher struct {
	bot         *tele.Bot
	refresh     RefreshRequester
	topUp       TopUpApprover
	adminChatID string
	logger      *zap.Logger
}

// NewDispatcher creates a dispatcher and registers its handlers on bot
func NewDispatcher(bot *tele.Bot, refresh RefreshRequester, topUp TopUpApprover, adminChatID string, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		bot:         bot,
		refresh:     refresh,
		topUp:       topUp,
		adminChatID: adminChatID,
		logger:      logger,
	}
	bot.Handle(tele.OnCallback, d.handleCallback)
	bot.Handle(tele.OnText, d.handleText)
	return d
}

// ProcessUpdate runs one webhook update through the registered handlers
func (d *Dispatcher) ProcessUpdate(u tele.Update) {
	d.bot.ProcessUpdate(u)
}

func (d *Dispatcher) handleCallback(c tele.Context) error {
	data := c.Callback().Data

	switch {
	case strings.HasPrefix(data, "refresh_"):
		return d.handleRefresh(c, data)
	case strings.HasPrefix(data, "accept_"):
		return d.handleAccept(c, data)
	default:
		return c.Respond()
	}
}

func (d *Dispatcher) handleRefresh(c tele.Context, data string) error {
	transactionID, issuedAt, ok := ParseRefreshData(data)
	if !ok {
		d.logger.Warn("Malformed refresh callback", zap.String("data", data))
		return c.Respond()
	}

	decision, err := d.refresh.RequestRefresh(context.Background(), transactionID, issuedAt)
	if err != nil {
		d.logger.Error("Refresh request failed", zap.Int64("transaction_id", transactionID), zap.Error(err))
		return c.Respond(&tele.CallbackResponse{Text: genericErrorText})
	}
	if !decision.Allowed {
		return c.Respond(&tele.CallbackResponse{Text: RateLimitedText(decision.RemainingSeconds())})
	}
	return c.Respond()
}

func (d *Dispatcher) handleAccept(c tele.Context, data string) error {
	if !d.fromAdmin(c) {
		d.logger.Warn("Top-up approval from non-admin chat", zap.String("data", data))
		return c.Respond()
	}

	amount, userID, ok := ParseAcceptData(data)
	if !ok {
		d.logger.Warn("Malformed accept callback", zap.String("data", data))
		return c.Respond()
	}

	if _, err := d.topUp.Approve(context.Background(), userID, amount); err != nil {
		d.logger.Error("Top-up approval failed", zap.String("user_id", userID), zap.Error(err))
	}

	if err := c.Delete(); err != nil {
		d.logger.Warn("Failed to delete approval message", zap.Error(err))
	}
	return c.Respond()
}

// handleText lets the admin correct a claimed amount by replying to a proof
// with the real number. The proof is posted again with a new accept button.
func (d *Dispatcher) handleText(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.ReplyTo == nil || !d.fromAdmin(c) {
		return nil
	}

	proof := msg.ReplyTo
	if !isProofCaption(proof.Caption) || proof.Photo == nil || proof.ReplyMarkup == nil {
		return nil
	}
	keyboard := proof.ReplyMarkup.InlineKeyboard
	if len(keyboard) != 1 || len(keyboard[0]) == 0 {
		return nil
	}

	_, userID, ok := ParseAcceptData(keyboard[0][0].Data)
	if !ok {
		d.logger.Warn("Proof without a valid accept button", zap.String("data", keyboard[0][0].Data))
		return nil
	}

	amount, err := strconv.ParseInt(strings.TrimSpace(msg.Text), 10, 64)
	if err != nil || amount <= 0 {
		return nil
	}

	photo := &tele.Photo{File: tele.File{FileID: proof.Photo.FileID}, Caption: ProofCaption(amount)}
	if err := c.Send(photo, &tele.SendOptions{ReplyMarkup: AcceptMarkup(amount, userID)}); err != nil {
		d.logger.Error("Failed to repost corrected proof", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

func (d *Dispatcher) fromAdmin(c tele.Context) bool {
	chat := c.Chat()
	if chat == nil || d.adminChatID == "" {
		return false
	}
	return strconv.FormatInt(chat.ID, 10) == d.adminChatID
}

// ParseRefreshData decodes refresh_<txid>_<unix>
func ParseRefreshData(data string) (int64, time.Time, bool) {
	parts := strings.Split(data, "_")
	if len(parts) != 3 || parts[0] != "refresh" {
		return 0, time.Time{}, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	return id, time.Unix(ts, 0), true
}

// ParseAcceptData decodes accept_<amount>_<telegramUserID>
func ParseAcceptData(data string) (int64, string, bool) {
	parts := strings.Split(data, "_")
	if len(parts) != 3 || parts[0] != "accept" || parts[2] == "" {
		return 0, "", false
	}
	amount, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return amount, parts[2], true
}

package telegram

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// NewBot creates a telebot instance that is fed by our own webhook route
// rather than its poller. apiURL may be empty for the public Bot API.
func NewBot(token, apiURL string, logger *zap.Logger) (*tele.Bot, error) {
	bot, err := tele.NewBot(tele.Settings{
		URL:         apiURL,
		Token:       token,
		Offline:     true,
		Synchronous: true,
		Client:      &http.Client{Timeout: 15 * time.Second},
		OnError: func(err error, c tele.Context) {
			logger.Error("telebot error", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}
	return bot, nil
}

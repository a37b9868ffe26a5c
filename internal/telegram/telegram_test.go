package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"topup-service/internal/models"
	"topup-service/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

type apiCall struct {
	method string
	params map[string]interface{}
}

type fakeBotAPI struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeBotAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := map[string]interface{}{}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				for k, v := range r.MultipartForm.Value {
					params[k] = v[0]
				}
				for k := range r.MultipartForm.File {
					params[k] = "<upload>"
				}
			}
		} else {
			_ = json.NewDecoder(r.Body).Decode(&params)
		}

		f.mu.Lock()
		f.calls = append(f.calls, apiCall{method: r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], params: params})
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":900100,"type":"private"}}}`))
	}
}

func (f *fakeBotAPI) byMethod(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func newTestBot(t *testing.T) (*tele.Bot, *fakeBotAPI) {
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	bot, err := NewBot("test-token", srv.URL, zap.NewNop())
	require.NoError(t, err)
	return bot, api
}

func sampleTransaction(status models.Status) *models.Transaction {
	return &models.Transaction{
		ID:              7,
		Quantity:        2,
		Amount:          5000,
		Status:          status,
		ChatID:          "900100",
		MerchandiseName: "86 Diamonds",
		Timestamp:       time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Inputs:          models.Inputs{{Key: "User ID", Value: "42"}},
	}
}

func TestRenderOrderInfo(t *testing.T) {
	text := RenderOrderInfo(sampleTransaction(models.StatusPendingDelivery))

	assert.Contains(t, text, "#zakaz7")
	assert.Contains(t, text, "86 Diamonds | 2 dona")
	assert.Contains(t, text, "💵 Narx: 5000")
	assert.Contains(t, text, "2024-05-01 10:00:00")
	assert.Contains(t, text, `"User ID": "42"`)
	assert.Contains(t, text, "Yo‘lda")
}

func TestRenderStatus(t *testing.T) {
	assert.Contains(t, RenderStatus(sampleTransaction(models.StatusDelivered), false), "Muvaffaqiyatli bajarildi")
	assert.Contains(t, RenderStatus(sampleTransaction(models.StatusIncorrectDetails), false), "Noto‘g‘ri ma’lumot")
	assert.Contains(t, RenderStatus(sampleTransaction(models.StatusIncorrectDetails), true), "Noto‘g‘ri ma’lumot")
	assert.Contains(t, RenderStatus(sampleTransaction(models.StatusRefunded), true), "Yetkazib berilmadi")
	assert.Contains(t, RenderStatus(sampleTransaction(models.StatusRefunded), false), "Rad etildi")
	assert.Contains(t, RenderStatus(sampleTransaction(models.StatusFailed), false), "#buyurtma7")
}

func TestRefreshMarkupOnlyForChangeableStatuses(t *testing.T) {
	markup := RefreshMarkup(sampleTransaction(models.StatusOnTheWay), 1700000000)
	require.NotNil(t, markup)
	assert.Equal(t, "refresh_7_1700000000", markup.InlineKeyboard[0][0].Data)

	assert.NotNil(t, RefreshMarkup(sampleTransaction(models.StatusFailed), 1))
	assert.Nil(t, RefreshMarkup(sampleTransaction(models.StatusDelivered), 1))
	assert.Nil(t, RefreshMarkup(sampleTransaction(models.StatusRefunded), 1))
}

func TestNotifierSendsWithRefreshButton(t *testing.T) {
	bot, api := newTestBot(t)
	notifier := NewNotifier(bot, zap.NewNop())
	notifier.now = func() time.Time { return time.Unix(1700000000, 0) }

	err := notifier.Notify(context.Background(), sampleTransaction(models.StatusOnTheWay), models.NotifyStatusFresh)
	require.NoError(t, err)

	sent := api.byMethod("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "900100", sent[0].params["chat_id"])
	assert.Equal(t, "Markdown", sent[0].params["parse_mode"])
	assert.Contains(t, sent[0].params["text"], "Jarayonda")
	assert.Contains(t, sent[0].params["reply_markup"], "refresh_7_1700000000")
}

func TestNotifierRejectsBadChatID(t *testing.T) {
	bot, api := newTestBot(t)
	notifier := NewNotifier(bot, zap.NewNop())

	tx := sampleTransaction(models.StatusDelivered)
	tx.ChatID = "not-a-number"

	assert.Error(t, notifier.Notify(context.Background(), tx, models.NotifyStatusFresh))
	assert.Empty(t, api.byMethod("sendMessage"))
}

type fakeRefresher struct {
	decision service.Decision
	err      error
	calls    []int64
	issued   []time.Time
}

func (f *fakeRefresher) RequestRefresh(_ context.Context, id int64, requestedAt time.Time) (service.Decision, error) {
	f.calls = append(f.calls, id)
	f.issued = append(f.issued, requestedAt)
	return f.decision, f.err
}

type fakeApprover struct {
	approved map[string]int64
	err      error
}

func (f *fakeApprover) Approve(_ context.Context, userID string, amount int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.approved[userID] += amount
	return f.approved[userID], nil
}

func callbackUpdate(chatID int64, data string) tele.Update {
	return tele.Update{
		ID: 1,
		Callback: &tele.Callback{
			ID:     "cb-1",
			Sender: &tele.User{ID: chatID},
			Message: &tele.Message{
				ID:   55,
				Chat: &tele.Chat{ID: chatID},
			},
			Data: data,
		},
	}
}

func TestDispatcherRefreshRateLimited(t *testing.T) {
	bot, api := newTestBot(t)
	refresher := &fakeRefresher{decision: service.Decision{Remaining: 5 * time.Second}}
	d := NewDispatcher(bot, refresher, &fakeApprover{}, "1", zap.NewNop())

	d.ProcessUpdate(callbackUpdate(900100, "refresh_7_1700000000"))

	assert.Equal(t, []int64{7}, refresher.calls)
	assert.Equal(t, time.Unix(1700000000, 0), refresher.issued[0])

	answers := api.byMethod("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Equal(t, "5 soniyada qayta bosishingiz mumkin", answers[0].params["text"])
}

func TestDispatcherRefreshAllowed(t *testing.T) {
	bot, api := newTestBot(t)
	refresher := &fakeRefresher{decision: service.Decision{Allowed: true}}
	d := NewDispatcher(bot, refresher, &fakeApprover{}, "1", zap.NewNop())

	d.ProcessUpdate(callbackUpdate(900100, "refresh_7_1700000000"))

	answers := api.byMethod("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Empty(t, answers[0].params["text"])
}

func TestDispatcherRefreshEnqueueFailure(t *testing.T) {
	bot, api := newTestBot(t)
	refresher := &fakeRefresher{decision: service.Decision{Allowed: true}, err: errors.New("kafka down")}
	d := NewDispatcher(bot, refresher, &fakeApprover{}, "1", zap.NewNop())

	d.ProcessUpdate(callbackUpdate(900100, "refresh_7_1700000000"))

	answers := api.byMethod("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Equal(t, genericErrorText, answers[0].params["text"])
}

func TestDispatcherAcceptFromAdmin(t *testing.T) {
	bot, api := newTestBot(t)
	approver := &fakeApprover{approved: map[string]int64{}}
	d := NewDispatcher(bot, &fakeRefresher{}, approver, "8146970004", zap.NewNop())

	d.ProcessUpdate(callbackUpdate(8146970004, "accept_50000_900100"))

	assert.Equal(t, int64(50000), approver.approved["900100"])
	assert.Len(t, api.byMethod("deleteMessage"), 1)
	assert.Len(t, api.byMethod("answerCallbackQuery"), 1)
}

func TestDispatcherAcceptIgnoresOtherChats(t *testing.T) {
	bot, _ := newTestBot(t)
	approver := &fakeApprover{approved: map[string]int64{}}
	d := NewDispatcher(bot, &fakeRefresher{}, approver, "8146970004", zap.NewNop())

	d.ProcessUpdate(callbackUpdate(900100, "accept_50000_900100"))

	assert.Empty(t, approver.approved)
}

func proofReply(chatID int64, text, caption, data string) tele.Update {
	return tele.Update{
		ID: 2,
		Message: &tele.Message{
			ID:     60,
			Chat:   &tele.Chat{ID: chatID},
			Sender: &tele.User{ID: chatID},
			Text:   text,
			ReplyTo: &tele.Message{
				ID:      59,
				Chat:    &tele.Chat{ID: chatID},
				Caption: caption,
				Photo:   &tele.Photo{File: tele.File{FileID: "proof-file"}},
				ReplyMarkup: &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{{
					{Text: "Hammasi to'g'ri ✅", Data: data},
				}}},
			},
		},
	}
}

func TestTopUpDeskSubmitProof(t *testing.T) {
	bot, api := newTestBot(t)
	desk := NewTopUpDesk(bot, "8146970004", zap.NewNop())

	err := desk.SubmitProof(context.Background(), "900100", 50000, strings.NewReader("png-bytes"))
	require.NoError(t, err)

	sent := api.byMethod("sendPhoto")
	require.Len(t, sent, 1)
	assert.Equal(t, "8146970004", sent[0].params["chat_id"])
	assert.Equal(t, "Summa: 50000 so'm", sent[0].params["caption"])
	assert.Equal(t, "<upload>", sent[0].params["photo"])
	assert.Contains(t, sent[0].params["reply_markup"], "accept_50000_900100")
}

func TestTopUpDeskRequiresAdminChat(t *testing.T) {
	bot, api := newTestBot(t)
	desk := NewTopUpDesk(bot, "", zap.NewNop())

	assert.Error(t, desk.SubmitProof(context.Background(), "900100", 50000, strings.NewReader("png-bytes")))
	assert.Empty(t, api.byMethod("sendPhoto"))
}

func TestDispatcherAdminCorrectsProofAmount(t *testing.T) {
	bot, api := newTestBot(t)
	d := NewDispatcher(bot, &fakeRefresher{}, &fakeApprover{approved: map[string]int64{}}, "8146970004", zap.NewNop())

	d.ProcessUpdate(proofReply(8146970004, "45000", "Summa: 50000 so'm", "accept_50000_900100"))

	sent := api.byMethod("sendPhoto")
	require.Len(t, sent, 1)
	assert.Equal(t, "proof-file", sent[0].params["photo"])
	assert.Equal(t, "Summa: 45000 so'm", sent[0].params["caption"])
	assert.Contains(t, sent[0].params["reply_markup"], "accept_45000_900100")
}

func TestDispatcherIgnoresProofRepliesOutsideAdminChat(t *testing.T) {
	bot, api := newTestBot(t)
	d := NewDispatcher(bot, &fakeRefresher{}, &fakeApprover{approved: map[string]int64{}}, "8146970004", zap.NewNop())

	d.ProcessUpdate(proofReply(900100, "999999", "Summa: 50000 so'm", "accept_50000_900100"))
	d.ProcessUpdate(proofReply(8146970004, "not a number", "Summa: 50000 so'm", "accept_50000_900100"))
	d.ProcessUpdate(proofReply(8146970004, "45000", "Some other photo", "accept_50000_900100"))

	assert.Empty(t, api.byMethod("sendPhoto"))
}

func TestParseCallbackData(t *testing.T) {
	id, ts, ok := ParseRefreshData("refresh_12_1700000000")
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)
	assert.Equal(t, int64(1700000000), ts.Unix())

	_, _, ok = ParseRefreshData("refresh_12")
	assert.False(t, ok)
	_, _, ok = ParseRefreshData("refresh_x_1")
	assert.False(t, ok)

	amount, user, ok := ParseAcceptData("accept_50000_900100")
	assert.True(t, ok)
	assert.Equal(t, int64(50000), amount)
	assert.Equal(t, "900100", user)

	_, _, ok = ParseAcceptData("accept_lots_900100")
	assert.False(t, ok)
}

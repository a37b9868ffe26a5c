package telegram

import (
	"encoding/json"
	"fmt"
	"strings"

	"topup-service/internal/models"

	tele "gopkg.in/telebot.v3"
)

const (
	refreshButtonText = "🔄 Holatni yangilash"
	timestampLayout   = "2006-01-02 15:04:05"
)

var orderInfoStatus = map[models.Status]string{
	models.StatusPendingDelivery: "Yo‘lda, biroz kuting...",
	models.StatusOnTheWay:        "Yo‘lda, biroz kuting...",
	models.StatusDelivered:       "Yetkazib berildi ! 100% ",
	models.StatusFailed:          "Uzr, iloji bo'lmadi, operator bilan bog'laning!\nPastdan nima bo'lganini operatorga tushuntiring",
}

const incorrectDetailsText = "🛒 Buyurtma: #buyurtma%d\n" +
	"❌ Holat: Noto‘g‘ri ma’lumot\n\n" +
	"❗ Kiritilgan ma’lumotlar orqali akkauntingiz topilmadi.\n" +
	"Iltimos, ID va server nomini tekshirib, qayta urinib ko‘ring.\n" +
	"💸 To‘lovingiz qaytarildi."

var resolvedStatusText = map[models.Status]string{
	models.StatusRefunded: "🛒 Buyurtma: #buyurtma%d\n" +
		"🚫 Holat: Yetkazib berilmadi\n\n" +
		"Afsuski, texnik sabablarga ko‘ra mahsulotni yetkazib bera olmadik.\n" +
		"💸 Mablag‘ingiz avtomatik tarzda qaytarildi.",
	models.StatusIncorrectDetails: incorrectDetailsText,
}

var freshStatusText = map[models.Status]string{
	models.StatusDelivered: "🛒 Buyurtma: #buyurtma%d\n" +
		"✅ Holat: Muvaffaqiyatli bajarildi\n\n" +
		"🎉 Mahsulotingiz akkauntingizga to‘liq yetkazildi.\n" +
		"Xaridingiz uchun tashakkur!",
	models.StatusOnTheWay: "🛒 Buyurtma: #buyurtma%d\n" +
		"⏳ Holat: Jarayonda\n\n" +
		"🚚 Buyurtmangiz hozirda yetkazilmoqda.\n" +
		"Iltimos, biroz kuting — tez orada mahsulot akkauntingizda bo‘ladi.",
	models.StatusRefunded: "🛒 Buyurtma: #buyurtma%d\n" +
		"⚠️ Holat: Rad etildi\n\n" +
		"📛 Afsuski, siz tanlagan mahsulot siz o‘ynayotgan server uchun qo‘llab-quvvatlanmaydi.\n" +
		"💸 To‘lovingiz bekor qilindi va qaytarildi.",
	models.StatusIncorrectDetails: incorrectDetailsText,
	models.StatusFailed: "🛒 Buyurtma: #buyurtma%d\n" +
		"🔄 Holat: Yuborilmoqda\n\n" +
		"📦 Mahsulotingizni yetkazish jarayoni boshlandi.\n" +
		"⏱️ Iltimos, 10 soniyadan so‘ng holatni qayta tekshiring.",
}

// RenderOrderInfo renders the receipt sent when an order is being placed
func RenderOrderInfo(tx *models.Transaction) string {
	status, ok := orderInfoStatus[tx.Status]
	if !ok {
		status = orderInfoStatus[models.StatusFailed]
	}

	inputs, err := json.MarshalIndent(tx.Inputs, "", "  ")
	if err != nil {
		inputs = []byte("[]")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📦 *Siz sotib oldingiz* #zakaz%d\n", tx.ID)
	fmt.Fprintf(&b, "🛒 Mahsulot: %s | %d dona\n", tx.MerchandiseName, tx.Quantity)
	fmt.Fprintf(&b, "💵 Narx: %d\n", tx.Amount)
	fmt.Fprintf(&b, "🕒 Qachon ?: %s\n", tx.Timestamp.Format(timestampLayout))
	fmt.Fprintf(&b, "📥 Kalitlar:\n```json\n%s\n```\n", inputs)
	fmt.Fprintf(&b, "✅ Status: %s", status)
	return b.String()
}

// RenderStatus renders a status update. already selects the wording for a
// transaction whose refund was settled earlier.
func RenderStatus(tx *models.Transaction, already bool) string {
	texts := freshStatusText
	if already {
		texts = resolvedStatusText
	}

	tmpl, ok := texts[tx.Status]
	if !ok {
		tmpl = freshStatusText[models.StatusFailed]
	}
	return fmt.Sprintf(tmpl, tx.ID)
}

// RefreshData builds the refresh button payload: refresh_<txid>_<unix>
func RefreshData(transactionID, issuedAt int64) string {
	return fmt.Sprintf("refresh_%d_%d", transactionID, issuedAt)
}

// RefreshMarkup returns the refresh button for statuses that can still change
func RefreshMarkup(tx *models.Transaction, issuedAt int64) *tele.ReplyMarkup {
	if !tx.Status.Refreshable() {
		return nil
	}
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{{
			{Text: refreshButtonText, Data: RefreshData(tx.ID, issuedAt)},
		}},
	}
}

// RateLimitedText is the callback answer shown while the cooldown runs
func RateLimitedText(remainingSeconds int64) string {
	return fmt.Sprintf("%d soniyada qayta bosishingiz mumkin", remainingSeconds)
}

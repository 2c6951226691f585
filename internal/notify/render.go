package notify

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

// ErrUnknownKind возвращается для уведомления неизвестного типа.
var ErrUnknownKind = errors.New("notify: unknown notification kind")

const dateLayout = "02.01.2006 15:04"

var credentialTitles = map[models.CredentialKind]string{
	models.CredentialOutline: "OutLine",
	models.CredentialV2Ray:   "v2raytun",
	models.CredentialAmnezia: "AmneziaVPN",
}

// Renderer превращает уведомление в HTML-текст сообщения Telegram.
type Renderer struct {
	catalog *entitlement.Catalog
	policy  entitlement.Policy
	loc     *time.Location
}

// NewRenderer создаёт Renderer. Даты выводятся в часовом поясе loc (UTC, если nil).
func NewRenderer(catalog *entitlement.Catalog, policy entitlement.Policy, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{catalog: catalog, policy: policy, loc: loc}
}

func (r *Renderer) date(t *time.Time) string {
	if t == nil {
		return "—"
	}
	return t.In(r.loc).Format(dateLayout)
}

func (r *Renderer) tariff(code string) string {
	if code == "" {
		return "—"
	}
	return html.EscapeString(r.catalog.Title(&code))
}

func mention(id int64, name string) string {
	if strings.TrimSpace(name) == "" {
		name = "Без имени"
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, id, html.EscapeString(name))
}

func plural(days int) string {
	return fmt.Sprintf("%d дн.", days)
}

func (r *Renderer) Render(n models.Notification) (string, error) {
	switch n.Kind {
	case models.NotifyExpiringSoon:
		return fmt.Sprintf("⏳ До окончания подписки осталось меньше %s\n"+
			"Подписка действует до: <b>%s</b>\n"+
			"Пожалуйста, оплатите подписку, чтобы доступ не прервался.\n\n"+
			"Нажмите «Оплатить» в личном кабинете.",
			plural(int(r.policy.WarnBefore/entitlement.Day)), r.date(n.ExpiresAt)), nil

	case models.NotifyExpired:
		return fmt.Sprintf("⚠️ Подписка окончена.\n"+
			"Оплатите в течение %s, иначе ключ будет удалён.\n\n"+
			"Нажмите «Оплатить» в личном кабинете.",
			plural(int(r.policy.GracePeriod/entitlement.Day))), nil

	case models.NotifyKeysRevoked:
		return fmt.Sprintf("❌ Ключи удалены, так как подписка не была оплачена в течение %s после окончания.\n"+
			"Оплатите подписку, и администратор выдаст новый ключ.",
			plural(int(r.policy.GracePeriod/entitlement.Day))), nil

	case models.NotifyPaymentOK:
		return fmt.Sprintf("✅ <b>Оплата успешно подтверждена</b>\n\n"+
			"Вам начислено: <b>+%d дней</b>\n"+
			"Тариф: <b>%s</b>\n"+
			"Подписка действует до: <b>%s</b>",
			n.Days, r.tariff(n.Tariff), r.date(n.ExpiresAt)), nil

	case models.NotifyReferralBonus:
		return fmt.Sprintf("💳 Ваш реферал %s оплатил первый месяц.\n"+
			"🎁 Вам начислено <b>%d дней</b> бесплатной подписки.",
			mention(n.SubjectID, n.SubjectName), n.Days), nil

	case models.NotifyReferralJoined:
		return fmt.Sprintf("✅ Ваш реферал %s зарегистрировался в боте.",
			mention(n.SubjectID, n.SubjectName)), nil

	case models.NotifyCredentialSet:
		title, ok := credentialTitles[n.Credential]
		if !ok {
			title = string(n.Credential)
		}
		return fmt.Sprintf("✅ Администратор добавил вам ключ <b>%s</b>.\n"+
			"Откройте «Личный кабинет», ключ появится там.", html.EscapeString(title)), nil

	case models.NotifyTariffSet:
		return fmt.Sprintf("🧾 Администратор установил вам тариф: <b>%s</b>.", r.tariff(n.Tariff)), nil

	case models.NotifyOperatorNewUser:
		return fmt.Sprintf("🆕 <b>Новый пользователь</b>\n\n%s\nID: <code>%d</code>\n"+
			"Нужно выдать ключ(и) пользователю.",
			mention(n.SubjectID, n.SubjectName), n.SubjectID), nil

	case models.NotifyOperatorNewPayment:
		price := "—"
		if t, ok := r.catalog.Lookup(n.Tariff); ok {
			price = fmt.Sprintf("%s %s / месяц", t.Price.String(), t.Currency)
		}
		return fmt.Sprintf("📩 <b>Новый скриншот оплаты</b>\n\n%s\nID: <code>%d</code>\n\n"+
			"Тариф: <b>%s</b>\nСумма: <b>%s</b>\nСкриншот: <code>%s</code>",
			mention(n.SubjectID, n.SubjectName), n.SubjectID, r.tariff(n.Tariff),
			html.EscapeString(price), html.EscapeString(n.PaymentProof)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)
}

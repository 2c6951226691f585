package entitlement

import (
	"time"

	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

// Day задаёт длительность одного начисленного дня.
const Day = 24 * time.Hour

// MaxCreditDays ограничивает одно начисление в днях.
const MaxCreditDays = 3650

// ApplyCredit начисляет days дней подписке sub на момент now и возвращает новое состояние строки.
// sub == nil означает, что подписки ещё нет.
//
// Срок продлевается от expiresAt, только если он строго в будущем, иначе от now.
// Любое успешное начисление сбрасывает флаги уведомлений.
func ApplyCredit(sub *models.Subscription, userID int64, days int, now time.Time) (models.Subscription, error) {
	if days <= 0 || days > MaxCreditDays {
		return models.Subscription{}, ErrInvalidCredit
	}
	now = now.UTC()
	credit := time.Duration(days) * Day

	if sub == nil {
		expires := now.Add(credit)
		return models.Subscription{
			UserID:      userID,
			PurchasedAt: &now,
			PeriodDays:  days,
			ExpiresAt:   &expires,
		}, nil
	}

	next := *sub
	base := now
	if sub.ExpiresAt != nil && sub.ExpiresAt.After(now) {
		base = sub.ExpiresAt.UTC()
	}
	expires := base.Add(credit)
	next.ExpiresAt = &expires
	next.PeriodDays += days
	if next.PurchasedAt == nil {
		next.PurchasedAt = &now
	}
	next.WarnSent = false
	next.ExpiredSent = false
	next.KeysRevoked = false
	return next, nil
}

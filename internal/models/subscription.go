package models

import "time"

// Subscription — срок действия доступа пользователя (один к одному с User).
// Поля WarnSent, ExpiredSent и KeysRevoked хранят состояние уведомлений:
// KeysRevoked всегда влечёт ExpiredSent.
type Subscription struct {
	UserID      int64      `json:"user_id"`
	PurchasedAt *time.Time `json:"purchased_at,omitempty"`
	PeriodDays  int        `json:"period_days"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Tariff      *string    `json:"tariff,omitempty"`
	WarnSent    bool       `json:"warn_sent"`
	ExpiredSent bool       `json:"expired_sent"`
	KeysRevoked bool       `json:"keys_revoked"`
}

// Stats содержит сводку для панели оператора.
type Stats struct {
	TotalUsers          int `json:"total_users"`
	ActiveSubscriptions int `json:"active_subscriptions"`
}

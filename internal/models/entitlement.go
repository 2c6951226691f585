package models

import "time"

// Entitlement — сводка для личного кабинета пользователя.
type Entitlement struct {
	User         User             `json:"user"`
	Subscription *Subscription    `json:"subscription,omitempty"`
	TariffTitle  string           `json:"tariff_title,omitempty"`
	Credentials  []CredentialKind `json:"credentials"`
	State        string           `json:"state"`
	DaysLeft     int              `json:"days_left"`
}

// ContactResult описывает итог первого контакта пользователя с ботом.
type ContactResult struct {
	Created      bool  `json:"created"`
	TrialApplied bool  `json:"trial_applied"`
	ReferrerID   int64 `json:"referrer_id,omitempty"`
}

// ReferralSummary содержит приглашённых пользователем и заработанный бонус.
type ReferralSummary struct {
	Referrals []Referral `json:"referrals"`
	Count     int        `json:"count"`
	Paid      int        `json:"paid"`
	BonusDays int        `json:"bonus_days"`
}

// GrantResult описывает итог начисления месяцев оператором.
type GrantResult struct {
	DaysCredited     int       `json:"days_credited"`
	ExpiresAt        time.Time `json:"expires_at"`
	Tariff           string    `json:"tariff,omitempty"`
	ReferrerCredited int64     `json:"referrer_credited,omitempty"`
}

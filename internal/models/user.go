// Package models содержит доменные структуры хранилища прав доступа:
// пользователей, подписки, заявки на оплату и выданные ключи.
package models

import "time"

// User представляет пользователя бота. Создаётся при первом обращении и никогда не удаляется.
type User struct {
	ID                   int64      `json:"id"`                      // Telegram ID пользователя
	FirstName            string     `json:"first_name"`              // Имя
	LastName             string     `json:"last_name"`               // Фамилия
	Username             string     `json:"username"`                // Username без @
	CreatedAt            time.Time  `json:"created_at"`              // Дата первого обращения
	ReferrerID           *int64     `json:"referrer_id,omitempty"`   // Кто пригласил (устанавливается не более одного раза)
	FirstPaid            bool       `json:"first_paid"`              // Была ли первая оплата
	FirstPaidAt          *time.Time `json:"first_paid_at,omitempty"` // Когда была первая оплата
	ReferralBonusAwarded bool       `json:"referral_bonus_awarded"`  // Бонус рефереру за этого пользователя уже начислен
}

func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.LastName
	}
}

// Profile описывает данные пользователя, приходящие при первом контакте.
type Profile struct {
	ID        int64  `json:"id" validate:"required,gt=0"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// Referral описывает приглашённого пользователя в списке рефералов.
type Referral struct {
	UserID               int64      `json:"user_id"`
	FullName             string     `json:"full_name"`
	CreatedAt            time.Time  `json:"created_at"`
	FirstPaidAt          *time.Time `json:"first_paid_at,omitempty"`
	ReferralBonusAwarded bool       `json:"referral_bonus_awarded"`
}

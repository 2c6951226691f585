package models

import "time"

// NotificationKind тип уведомления. Текст уведомления формирует доставщик, ядро передаёт только данные.
type NotificationKind string

const (
	NotifyExpiringSoon       NotificationKind = "expiring_soon"
	NotifyExpired            NotificationKind = "expired"
	NotifyKeysRevoked        NotificationKind = "keys_revoked"
	NotifyPaymentOK          NotificationKind = "payment_approved"
	NotifyReferralBonus      NotificationKind = "referral_bonus"
	NotifyReferralJoined     NotificationKind = "referral_joined"
	NotifyCredentialSet      NotificationKind = "credential_set"
	NotifyTariffSet          NotificationKind = "tariff_set"
	NotifyOperatorNewUser    NotificationKind = "operator_new_user"
	NotifyOperatorNewPayment NotificationKind = "operator_new_payment"
)

// Notification сообщение для пользователя (или оператора), передаваемое в Notifier.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	UserID    int64            `json:"user_id"`
	CreatedAt time.Time        `json:"created_at"`

	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Days         int            `json:"days,omitempty"`
	Tariff       string         `json:"tariff,omitempty"`
	Credential   CredentialKind `json:"credential,omitempty"`
	SubjectID    int64          `json:"subject_id,omitempty"`
	SubjectName  string         `json:"subject_name,omitempty"`
	PaymentProof string         `json:"payment_proof,omitempty"`
}

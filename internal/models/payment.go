package models

import "time"

// PaymentStatus статус заявки на оплату.
type PaymentStatus string

const (
	// PaymentPending — заявка ожидает проверки оператором.
	PaymentPending PaymentStatus = "pending"
	// PaymentApproved — оператор подтвердил оплату.
	PaymentApproved PaymentStatus = "approved"
)

// PendingPayment — отправленное пользователем подтверждение оплаты (скриншот).
type PendingPayment struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"user_id"`
	CreatedAt time.Time     `json:"created_at"`
	ProofRef  string        `json:"proof_ref"`
	Tariff    string        `json:"tariff"`
	Note      string        `json:"note,omitempty"`
	Status    PaymentStatus `json:"status"`
}

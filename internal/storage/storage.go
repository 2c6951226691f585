// Package storage описывает контракт хранилища прав доступа.
// Реализации: repository (PostgreSQL) и memory (для тестов и локального запуска).
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

// ErrNotFound возвращается, когда запрошенной строки нет. Совпадает с entitlement.ErrNotFound по errors.Is.
var ErrNotFound = fmt.Errorf("storage: %w", entitlement.ErrNotFound)

// Tx — операции внутри одной транзакции. Чтения блокируют строку до конца транзакции.
type Tx interface {
	User(ctx context.Context, id int64) (*models.User, error)
	SaveUser(ctx context.Context, u models.User) error

	Subscription(ctx context.Context, userID int64) (*models.Subscription, error)
	SaveSubscription(ctx context.Context, sub models.Subscription) error

	LatestPendingPayment(ctx context.Context, userID int64) (*models.PendingPayment, error)
	SetPaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error

	SetCredential(ctx context.Context, userID int64, kind models.CredentialKind, secret string, at time.Time, by int64) error
	ClearCredentials(ctx context.Context, userID int64, at time.Time, by int64) error
}

// Store — хранилище пользователей, подписок, заявок и ключей.
type Store interface {
	// InTx выполняет fn в транзакции. Ошибка fn откатывает все изменения.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// EnsureUser создаёт пользователя, если его нет, и обновляет имя, если есть.
	EnsureUser(ctx context.Context, p models.Profile, now time.Time) (created bool, err error)
	User(ctx context.Context, id int64) (*models.User, error)
	Subscription(ctx context.Context, userID int64) (*models.Subscription, error)
	// TrackedSubscriptions возвращает подписки с заданным expiresAt.
	TrackedSubscriptions(ctx context.Context) ([]models.Subscription, error)

	CreatePendingPayment(ctx context.Context, p models.PendingPayment) (int64, error)
	Credentials(ctx context.Context, userID int64) (*models.Credentials, error)
	Referrals(ctx context.Context, referrerID int64) ([]models.Referral, error)
	Stats(ctx context.Context, now time.Time) (models.Stats, error)

	Ping(ctx context.Context) error
	Close()
}

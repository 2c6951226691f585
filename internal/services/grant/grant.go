// Package grant выполняет начисление оператором: продление подписки на N месяцев,
// одобрение последней заявки на оплату и реферальный бонус за первую оплату.
package grant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/metrics"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/notify"
	"github.com/magabrotheeeer/vpn-entitlements/internal/services/payment"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

// TxRunner выполняет функцию в транзакции хранилища.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

// Extender начисляет дни внутри открытой транзакции.
type Extender interface {
	ExtendTx(ctx context.Context, tx storage.Tx, userID int64, days int) (models.Subscription, error)
}

// BonusCreditor начисляет реферальный бонус внутри открытой транзакции.
type BonusCreditor interface {
	CreditFirstPaymentBonusTx(ctx context.Context, tx storage.Tx, userID int64) (int64, bool, error)
	RecordBonus(userID, referrerID int64)
}

// Service начисляет месяцы подписки по решению оператора.
type Service struct {
	store    TxRunner
	extender Extender
	bonus    BonusCreditor
	notifier notify.Notifier
	policy   entitlement.Policy
	log      *slog.Logger
}

// New создаёт Service.
func New(store TxRunner, extender Extender, bonus BonusCreditor, notifier notify.Notifier, policy entitlement.Policy, log *slog.Logger) *Service {
	return &Service{store: store, extender: extender, bonus: bonus, notifier: notifier, policy: policy, log: log}
}

// GrantMonths продлевает подписку userID на months месяцев. Продление, одобрение заявки
// и бонус рефереру фиксируются одной транзакцией; уведомления отправляются после неё.
func (s *Service) GrantMonths(ctx context.Context, actorID, userID int64, months int) (models.GrantResult, error) {
	const op = "grant.GrantMonths"
	log := s.log.With(slog.String("op", op), slog.Int64("user_id", userID), slog.Int64("actor_id", actorID))

	if err := s.policy.CheckGrantMonths(months); err != nil {
		return models.GrantResult{}, fmt.Errorf("%s: %w", op, err)
	}
	days, err := s.policy.MonthsToDays(months)
	if err != nil {
		return models.GrantResult{}, fmt.Errorf("%s: %w", op, err)
	}

	var (
		res      = models.GrantResult{DaysCredited: days}
		credited bool
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		sub, err := s.extender.ExtendTx(ctx, tx, userID, days)
		if err != nil {
			return err
		}
		res.ExpiresAt = *sub.ExpiresAt

		tariff, ok, err := payment.ApplyLatestPendingPaymentTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if ok {
			res.Tariff = tariff
		}

		referrerID, ok, err := s.bonus.CreditFirstPaymentBonusTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		res.ReferrerCredited, credited = referrerID, ok
		return nil
	})
	if err != nil {
		return models.GrantResult{}, fmt.Errorf("%s: %w", op, err)
	}

	metrics.CreditedDays.WithLabelValues("grant").Add(float64(days))
	if credited {
		s.bonus.RecordBonus(userID, res.ReferrerCredited)
	}
	log.Info("months granted", slog.Int("days", days), slog.String("tariff", res.Tariff),
		slog.Time("expires_at", res.ExpiresAt))

	expiresAt := res.ExpiresAt
	if !notify.Send(ctx, s.notifier, models.Notification{
		Kind:      models.NotifyPaymentOK,
		UserID:    userID,
		Days:      days,
		ExpiresAt: &expiresAt,
		Tariff:    res.Tariff,
	}, s.policy.NotifyTimeout) {
		log.Warn("payment approved notice was not delivered")
	}
	if credited {
		if !notify.Send(ctx, s.notifier, models.Notification{
			Kind:      models.NotifyReferralBonus,
			UserID:    res.ReferrerCredited,
			Days:      s.policy.ReferralBonusDays,
			SubjectID: userID,
		}, s.policy.NotifyTimeout) {
			log.Warn("referral bonus notice was not delivered", slog.Int64("referrer_id", res.ReferrerCredited))
		}
	}
	return res, nil
}

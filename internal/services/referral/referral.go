// Package referral ведёт реферальные начисления: пробный период приглашённому
// при первом контакте и однократный бонус рефереру за первую оплату.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/metrics"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

// PayloadPrefix — префикс реферального токена в ссылке приглашения.
const PayloadPrefix = "ref_"

// TxRunner выполняет функцию в транзакции хранилища.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

// Extender начисляет дни внутри открытой транзакции.
type Extender interface {
	ExtendTx(ctx context.Context, tx storage.Tx, userID int64, days int) (models.Subscription, error)
}

// Service реализует реферальные правила.
type Service struct {
	store    TxRunner
	extender Extender
	policy   entitlement.Policy
	log      *slog.Logger
	now      entitlement.Clock
}

// New создаёт Service.
func New(store TxRunner, extender Extender, policy entitlement.Policy, log *slog.Logger, now entitlement.Clock) *Service {
	if now == nil {
		now = entitlement.SystemClock
	}
	return &Service{store: store, extender: extender, policy: policy, log: log, now: now}
}

// ParseReferralPayload извлекает ID реферера из "/start ref_42" или "ref_42".
func ParseReferralPayload(payload string) (int64, bool) {
	fields := strings.Fields(payload)
	if len(fields) > 0 && strings.HasPrefix(fields[0], "/start") {
		fields = fields[1:]
	}
	if len(fields) == 0 || !strings.HasPrefix(fields[0], PayloadPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(fields[0], PayloadPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ApplyReferralTrialOnFirstContact привязывает пользователя к рефереру из payload
// и начисляет пробный период. Возвращает ID реферера, если привязка произошла.
func (s *Service) ApplyReferralTrialOnFirstContact(ctx context.Context, userID int64, payload string) (int64, bool, error) {
	const op = "referral.ApplyReferralTrialOnFirstContact"

	var (
		referrerID int64
		applied    bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		referrerID, applied, err = s.ApplyReferralTrialTx(ctx, tx, userID, payload)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	if applied {
		metrics.CreditedDays.WithLabelValues("referral_trial").Add(float64(s.policy.ReferralTrialDays))
		s.log.Info("referral trial applied",
			slog.String("op", op), slog.Int64("user_id", userID), slog.Int64("referrer_id", referrerID),
			slog.Int("days", s.policy.ReferralTrialDays))
	}
	return referrerID, applied, nil
}

// ApplyReferralTrialTx выполняет ApplyReferralTrialOnFirstContact внутри открытой транзакции.
func (s *Service) ApplyReferralTrialTx(ctx context.Context, tx storage.Tx, userID int64, payload string) (int64, bool, error) {
	referrerID, ok := ParseReferralPayload(payload)
	if !ok || referrerID == userID {
		return 0, false, nil
	}

	user, err := tx.User(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if user.ReferrerID != nil {
		return 0, false, nil
	}
	if _, err := tx.User(ctx, referrerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}

	user.ReferrerID = &referrerID
	if err := tx.SaveUser(ctx, *user); err != nil {
		return 0, false, err
	}
	if _, err := s.extender.ExtendTx(ctx, tx, userID, s.policy.ReferralTrialDays); err != nil {
		return 0, false, err
	}
	return referrerID, true, nil
}

// CreditFirstPaymentBonusIfDue отмечает первую оплату пользователя и, если есть реферер
// и бонус ещё не начислялся, продлевает подписку реферера на ReferralBonusDays.
// Возвращает ID реферера, получившего бонус.
func (s *Service) CreditFirstPaymentBonusIfDue(ctx context.Context, userID int64) (int64, bool, error) {
	const op = "referral.CreditFirstPaymentBonusIfDue"

	var (
		referrerID int64
		credited   bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		referrerID, credited, err = s.CreditFirstPaymentBonusTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	if credited {
		s.RecordBonus(userID, referrerID)
	}
	return referrerID, credited, nil
}

// CreditFirstPaymentBonusTx выполняет CreditFirstPaymentBonusIfDue внутри открытой транзакции.
// Все три изменения (firstPaid, продление реферера, referralBonusAwarded) фиксируются вместе.
func (s *Service) CreditFirstPaymentBonusTx(ctx context.Context, tx storage.Tx, userID int64) (int64, bool, error) {
	user, err := tx.User(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if user.FirstPaid {
		return 0, false, nil
	}

	now := s.now()
	user.FirstPaid = true
	user.FirstPaidAt = &now

	if user.ReferrerID == nil || user.ReferralBonusAwarded {
		return 0, false, tx.SaveUser(ctx, *user)
	}

	referrerID := *user.ReferrerID
	if _, err := s.extender.ExtendTx(ctx, tx, referrerID, s.policy.ReferralBonusDays); err != nil {
		return 0, false, err
	}
	user.ReferralBonusAwarded = true
	if err := tx.SaveUser(ctx, *user); err != nil {
		return 0, false, err
	}
	return referrerID, true, nil
}

// RecordBonus пишет метрику и лог о начисленном бонусе. Вызывается после фиксации транзакции.
func (s *Service) RecordBonus(userID, referrerID int64) {
	metrics.CreditedDays.WithLabelValues("referral_bonus").Add(float64(s.policy.ReferralBonusDays))
	s.log.Info("referral bonus credited",
		slog.Int64("user_id", userID), slog.Int64("referrer_id", referrerID),
		slog.Int("days", s.policy.ReferralBonusDays))
}

func (s *Service) BonusDays(count int) int {
	return count * s.policy.ReferralBonusDays
}

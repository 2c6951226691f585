// Package extension начисляет дни подписки (Period Extension Engine).
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/metrics"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

// TxRunner выполняет функцию в транзакции хранилища.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

// Service продлевает подписки.
type Service struct {
	store  TxRunner
	policy entitlement.Policy
	log    *slog.Logger
	now    entitlement.Clock
}

// New создаёт Service.
func New(store TxRunner, policy entitlement.Policy, log *slog.Logger, now entitlement.Clock) *Service {
	if now == nil {
		now = entitlement.SystemClock
	}
	return &Service{store: store, policy: policy, log: log, now: now}
}

// Extend начисляет days дней пользователю userID и возвращает новый срок окончания.
func (s *Service) Extend(ctx context.Context, userID int64, days int) (time.Time, error) {
	const op = "extension.Extend"

	var sub models.Subscription
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		sub, err = s.ExtendTx(ctx, tx, userID, days)
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.CreditedDays.WithLabelValues("extend").Add(float64(days))
	s.log.Info("subscription extended",
		slog.String("op", op), slog.Int64("user_id", userID), slog.Int("days", days),
		slog.Time("expires_at", *sub.ExpiresAt))
	return *sub.ExpiresAt, nil
}

// ExtendByMonths начисляет months × DaysPerMonth дней и возвращает число начисленных дней.
func (s *Service) ExtendByMonths(ctx context.Context, userID int64, months int) (int, error) {
	const op = "extension.ExtendByMonths"

	days, err := s.policy.MonthsToDays(months)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.Extend(ctx, userID, days); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return days, nil
}

// ExtendTx начисляет дни внутри уже открытой транзакции. Строка подписки создаётся, если её нет.
func (s *Service) ExtendTx(ctx context.Context, tx storage.Tx, userID int64, days int) (models.Subscription, error) {
	if days <= 0 || days > entitlement.MaxCreditDays {
		return models.Subscription{}, entitlement.ErrInvalidCredit
	}
	if _, err := tx.User(ctx, userID); err != nil {
		return models.Subscription{}, err
	}
	current, err := tx.Subscription(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return models.Subscription{}, err
	}
	next, err := entitlement.ApplyCredit(current, userID, days, s.now())
	if err != nil {
		return models.Subscription{}, err
	}
	if err := tx.SaveSubscription(ctx, next); err != nil {
		return models.Subscription{}, err
	}
	return next, nil
}

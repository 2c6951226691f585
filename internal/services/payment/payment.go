// Package payment принимает подтверждения оплаты от пользователей и связывает
// одобрение оператора с последней заявкой (Payment Approval Linker).
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/notify"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

// Repository описывает операции хранилища, нужные сервису.
type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
	CreatePendingPayment(ctx context.Context, p models.PendingPayment) (int64, error)
}

// Service обрабатывает заявки на оплату.
type Service struct {
	repo      Repository
	catalog   *entitlement.Catalog
	notifier  notify.Notifier
	operators []int64
	policy    entitlement.Policy
	log       *slog.Logger
	now       entitlement.Clock
}

// New создаёт Service. operators получают уведомление о каждой новой заявке.
func New(
	repo Repository,
	catalog *entitlement.Catalog,
	notifier notify.Notifier,
	operators []int64,
	policy entitlement.Policy,
	log *slog.Logger,
	now entitlement.Clock,
) *Service {
	if now == nil {
		now = entitlement.SystemClock
	}
	return &Service{
		repo:      repo,
		catalog:   catalog,
		notifier:  notifier,
		operators: operators,
		policy:    policy,
		log:       log,
		now:       now,
	}
}

// SubmitPendingPayment сохраняет заявку со ссылкой на подтверждение оплаты и
// уведомляет операторов. Пустой tariff допустим: тариф назначит оператор.
func (s *Service) SubmitPendingPayment(ctx context.Context, userID int64, proofRef, tariff, note string) (int64, error) {
	const op = "payment.SubmitPendingPayment"

	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return 0, fmt.Errorf("%s: %w", op, entitlement.ErrInvalidPaymentProof)
	}
	if tariff != "" {
		if err := s.catalog.Check(tariff); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}

	id, err := s.repo.CreatePendingPayment(ctx, models.PendingPayment{
		UserID:    userID,
		CreatedAt: s.now(),
		ProofRef:  proofRef,
		Tariff:    tariff,
		Note:      strings.TrimSpace(note),
		Status:    models.PaymentPending,
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log := s.log.With(slog.String("op", op), slog.Int64("user_id", userID), slog.Int64("payment_id", id))
	log.Info("pending payment submitted")

	delivered := notify.Broadcast(ctx, s.notifier, s.operators, models.Notification{
		Kind:         models.NotifyOperatorNewPayment,
		SubjectID:    userID,
		Tariff:       tariff,
		PaymentProof: proofRef,
	}, s.policy.NotifyTimeout)
	if delivered < len(s.operators) {
		log.Warn("not every operator was notified", slog.Int("delivered", delivered), slog.Int("operators", len(s.operators)))
	}
	return id, nil
}

// ApplyLatestPendingPayment одобряет последнюю заявку пользователя и назначает её тариф.
// Если заявок нет, ничего не меняет и возвращает ok=false.
func (s *Service) ApplyLatestPendingPayment(ctx context.Context, userID int64) (string, bool, error) {
	const op = "payment.ApplyLatestPendingPayment"

	var (
		tariff string
		ok     bool
	)
	err := s.repo.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		tariff, ok, err = ApplyLatestPendingPaymentTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		s.log.Info("pending payment approved",
			slog.String("op", op), slog.Int64("user_id", userID), slog.String("tariff", tariff))
	}
	return tariff, ok, nil
}

// ApplyLatestPendingPaymentTx выполняет ApplyLatestPendingPayment внутри открытой транзакции.
// Срок подписки не меняется; строка подписки создаётся, если её нет.
// Строка пользователя блокируется первой, так же как в extension.ExtendTx.
func ApplyLatestPendingPaymentTx(ctx context.Context, tx storage.Tx, userID int64) (string, bool, error) {
	if _, err := tx.User(ctx, userID); err != nil {
		return "", false, err
	}
	p, err := tx.LatestPendingPayment(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if p.Tariff != "" {
		sub, err := tx.Subscription(ctx, userID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			sub = &models.Subscription{UserID: userID}
		case err != nil:
			return "", false, err
		}
		tariff := p.Tariff
		sub.Tariff = &tariff
		if err := tx.SaveSubscription(ctx, *sub); err != nil {
			return "", false, err
		}
	}
	if err := tx.SetPaymentStatus(ctx, p.ID, models.PaymentApproved); err != nil {
		return "", false, err
	}
	return p.Tariff, p.Tariff != "", nil
}

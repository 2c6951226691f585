// Package scheduler реализует цикл сверки сроков подписок (Expiration Reconciliation Loop):
// предупреждение перед окончанием, уведомление об окончании и отзыв ключей после льготного периода.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-entitlements/internal/metrics"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/notify"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

// errMoved означает, что подписку продлили между чтением и записью. Строку обработает следующий проход.
var errMoved = errors.New("subscription expiry moved")

// Store описывает операции хранилища, нужные планировщику.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
	TrackedSubscriptions(ctx context.Context) ([]models.Subscription, error)
}

// Report содержит итог одного прохода.
type Report struct {
	Rows        int
	Reactivated int
	Warned      int
	Expired     int
	Revoked     int
	Failed      int
}

// Scheduler периодически сверяет подписки.
type Scheduler struct {
	store    Store
	notifier notify.Notifier
	policy   entitlement.Policy
	log      *slog.Logger
	now      entitlement.Clock
}

// New создаёт Scheduler.
func New(store Store, notifier notify.Notifier, policy entitlement.Policy, log *slog.Logger, now entitlement.Clock) *Scheduler {
	if now == nil {
		now = entitlement.SystemClock
	}
	return &Scheduler{store: store, notifier: notifier, policy: policy, log: log, now: now}
}

// Run выполняет проход сразу и затем каждые ScanInterval, пока ctx не отменён.
// Начатый проход всегда доводится до конца.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("reconciliation loop started", slog.Duration("interval", s.policy.ScanInterval))
	s.Scan(ctx)

	ticker := time.NewTicker(s.policy.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("reconciliation loop stopped")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan выполняет один проход по всем подпискам с заданным сроком.
// Ошибка одной строки записывается в лог и не прерывает проход.
func (s *Scheduler) Scan(ctx context.Context) Report {
	const op = "scheduler.Scan"
	ctx = context.WithoutCancel(ctx)
	log := s.log.With(slog.String("op", op))
	started := time.Now()

	var rep Report
	subs, err := s.store.TrackedSubscriptions(ctx)
	if err != nil {
		log.Error("failed to list subscriptions", sl.Err(err))
		return rep
	}

	now := s.now()
	for _, sub := range subs {
		rep.Rows++
		plan := entitlement.PlanReconciliation(sub, now, s.policy)
		if plan.Empty() {
			metrics.ScanRows.WithLabelValues(plan.State.String(), "noop").Inc()
			continue
		}
		if err := s.reconcile(ctx, sub, plan, &rep); err != nil {
			rep.Failed++
			metrics.ScanRows.WithLabelValues(plan.State.String(), "failed").Inc()
			log.Error("failed to reconcile subscription", sl.UserID(sub.UserID), sl.Err(err))
			continue
		}
		metrics.ScanRows.WithLabelValues(plan.State.String(), "updated").Inc()
	}

	metrics.ScanDuration.Observe(time.Since(started).Seconds())
	log.Info("scan finished",
		slog.Int("rows", rep.Rows), slog.Int("warned", rep.Warned), slog.Int("expired", rep.Expired),
		slog.Int("revoked", rep.Revoked), slog.Int("reactivated", rep.Reactivated), slog.Int("failed", rep.Failed))
	return rep
}

func (s *Scheduler) reconcile(ctx context.Context, sub models.Subscription, plan entitlement.Plan, rep *Report) error {
	if plan.Reactivate || plan.ClearWarning {
		err := s.update(ctx, sub, func(cur *models.Subscription) {
			if plan.Reactivate {
				cur.ExpiredSent, cur.KeysRevoked = false, false
			}
			if plan.ClearWarning {
				cur.WarnSent = false
			}
		})
		if err != nil {
			return err
		}
		if plan.Reactivate {
			rep.Reactivated++
		}
	}

	if plan.SendWarning && s.deliver(ctx, models.NotifyExpiringSoon, sub) {
		if err := s.update(ctx, sub, func(cur *models.Subscription) { cur.WarnSent = true }); err != nil {
			return err
		}
		rep.Warned++
	}

	if plan.SendExpired && s.deliver(ctx, models.NotifyExpired, sub) {
		if err := s.update(ctx, sub, func(cur *models.Subscription) { cur.ExpiredSent = true }); err != nil {
			return err
		}
		rep.Expired++
	}

	if plan.Revoke {
		revoked, err := s.revoke(ctx, sub)
		if err != nil || !revoked {
			return err
		}
		rep.Revoked++
		metrics.Revocations.Inc()
		s.log.Info("keys revoked", sl.UserID(sub.UserID))
		if !s.deliver(ctx, models.NotifyKeysRevoked, sub) {
			s.log.Warn("revocation notice was not delivered", sl.UserID(sub.UserID))
		}
	}
	return nil
}

// update меняет флаги подписки, если её срок не изменился с момента чтения.
func (s *Scheduler) update(ctx context.Context, observed models.Subscription, fn func(cur *models.Subscription)) error {
	const op = "scheduler.update"

	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.Subscription(ctx, observed.UserID)
		if err != nil {
			return err
		}
		if !sameInstant(cur.ExpiresAt, observed.ExpiresAt) {
			return errMoved
		}
		fn(cur)
		return tx.SaveSubscription(ctx, *cur)
	})
	if errors.Is(err, errMoved) {
		s.log.Debug("subscription changed during scan, skipping", sl.UserID(observed.UserID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// revoke очищает ключи и отмечает отзыв в одной транзакции. Возвращает false,
// если подписку успели продлить или отозвать.
func (s *Scheduler) revoke(ctx context.Context, observed models.Subscription) (bool, error) {
	const op = "scheduler.revoke"

	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.Subscription(ctx, observed.UserID)
		if err != nil {
			return err
		}
		if !sameInstant(cur.ExpiresAt, observed.ExpiresAt) || cur.KeysRevoked {
			return errMoved
		}
		if err := tx.ClearCredentials(ctx, observed.UserID, s.now(), models.SystemActor); err != nil {
			return err
		}
		cur.KeysRevoked, cur.ExpiredSent = true, true
		return tx.SaveSubscription(ctx, *cur)
	})
	if errors.Is(err, errMoved) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func (s *Scheduler) deliver(ctx context.Context, kind models.NotificationKind, sub models.Subscription) bool {
	expiresAt := *sub.ExpiresAt
	ok := notify.Send(ctx, s.notifier, models.Notification{
		Kind:      kind,
		UserID:    sub.UserID,
		ExpiresAt: &expiresAt,
	}, s.policy.NotifyTimeout)
	if !ok {
		s.log.Warn("notification was not delivered",
			slog.String("kind", string(kind)), sl.UserID(sub.UserID))
	}
	return ok
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Package account обслуживает пользователя: первый контакт, тариф, ключи доступа,
// личный кабинет, список рефералов и сводку для оператора.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/notify"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

// MinCredentialLength — минимальная длина значения ключа доступа после обрезки пробелов.
const MinCredentialLength = 5

// StateNone — состояние кабинета пользователя без срока подписки.
const StateNone = "none"

// Store описывает операции хранилища, нужные сервису.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
	EnsureUser(ctx context.Context, p models.Profile, now time.Time) (bool, error)
	User(ctx context.Context, id int64) (*models.User, error)
	Subscription(ctx context.Context, userID int64) (*models.Subscription, error)
	Credentials(ctx context.Context, userID int64) (*models.Credentials, error)
	Referrals(ctx context.Context, referrerID int64) ([]models.Referral, error)
	Stats(ctx context.Context, now time.Time) (models.Stats, error)
}

// ReferralTrial начисляет пробный период по реферальной ссылке.
type ReferralTrial interface {
	ApplyReferralTrialOnFirstContact(ctx context.Context, userID int64, payload string) (int64, bool, error)
	BonusDays(count int) int
}

// EntitlementCache кэширует личный кабинет.
type EntitlementCache interface {
	GetEntitlement(ctx context.Context, userID int64) (*models.Entitlement, bool, error)
	SetEntitlement(ctx context.Context, e *models.Entitlement) error
}

// Service выполняет операции над учётной записью пользователя.
type Service struct {
	store     Store
	referral  ReferralTrial
	cache     EntitlementCache
	notifier  notify.Notifier
	catalog   *entitlement.Catalog
	operators []int64
	policy    entitlement.Policy
	log       *slog.Logger
	now       entitlement.Clock
}

// Options содержит зависимости Service.
type Options struct {
	Store     Store
	Referral  ReferralTrial
	Cache     EntitlementCache // может быть nil
	Notifier  notify.Notifier
	Catalog   *entitlement.Catalog
	Operators []int64
	Policy    entitlement.Policy
	Log       *slog.Logger
	Now       entitlement.Clock
}

// New создаёт Service.
func New(o Options) *Service {
	if o.Now == nil {
		o.Now = entitlement.SystemClock
	}
	return &Service{
		store:     o.Store,
		referral:  o.Referral,
		cache:     o.Cache,
		notifier:  o.Notifier,
		catalog:   o.Catalog,
		operators: o.Operators,
		policy:    o.Policy,
		log:       o.Log,
		now:       o.Now,
	}
}

// FirstContact регистрирует пользователя (или обновляет имя) и для нового пользователя
// применяет реферальную ссылку из payload.
func (s *Service) FirstContact(ctx context.Context, p models.Profile, payload string) (models.ContactResult, error) {
	const op = "account.FirstContact"
	log := s.log.With(slog.String("op", op), slog.Int64("user_id", p.ID))

	created, err := s.store.EnsureUser(ctx, p, s.now())
	if err != nil {
		return models.ContactResult{}, fmt.Errorf("%s: %w", op, err)
	}
	res := models.ContactResult{Created: created}
	if !created {
		return res, nil
	}
	log.Info("new user registered")

	name := displayName(p)
	notify.Broadcast(ctx, s.notifier, s.operators, models.Notification{
		Kind:        models.NotifyOperatorNewUser,
		SubjectID:   p.ID,
		SubjectName: name,
	}, s.policy.NotifyTimeout)

	referrerID, applied, err := s.referral.ApplyReferralTrialOnFirstContact(ctx, p.ID, payload)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		return res, nil
	}
	res.TrialApplied, res.ReferrerID = true, referrerID

	if !notify.Send(ctx, s.notifier, models.Notification{
		Kind:        models.NotifyReferralJoined,
		UserID:      referrerID,
		SubjectID:   p.ID,
		SubjectName: name,
	}, s.policy.NotifyTimeout) {
		log.Warn("referral joined notice was not delivered", slog.Int64("referrer_id", referrerID))
	}
	return res, nil
}

// SetTariff назначает пользователю тариф, не меняя срок подписки.
func (s *Service) SetTariff(ctx context.Context, userID int64, tariff string) error {
	const op = "account.SetTariff"

	if err := s.catalog.Check(tariff); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.User(ctx, userID); err != nil {
			return err
		}
		sub, err := tx.Subscription(ctx, userID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			sub = &models.Subscription{UserID: userID}
		case err != nil:
			return err
		}
		sub.Tariff = &tariff
		return tx.SaveSubscription(ctx, *sub)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("tariff set", slog.String("op", op), slog.Int64("user_id", userID), slog.String("tariff", tariff))
	s.notifyUser(ctx, models.Notification{Kind: models.NotifyTariffSet, UserID: userID, Tariff: tariff})
	return nil
}

// SetCredential сохраняет значение ключа доступа kind, выданного оператором actorID.
func (s *Service) SetCredential(ctx context.Context, actorID, userID int64, kind models.CredentialKind, value string) error {
	const op = "account.SetCredential"

	if !kind.Valid() {
		return fmt.Errorf("%s: %w: %q", op, entitlement.ErrUnknownCredentialKind, kind)
	}
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) < MinCredentialLength {
		return fmt.Errorf("%s: %w", op, entitlement.ErrInvalidCredential)
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.User(ctx, userID); err != nil {
			return err
		}
		return tx.SetCredential(ctx, userID, kind, value, s.now(), actorID)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("credential set",
		slog.String("op", op), slog.Int64("user_id", userID), slog.String("kind", string(kind)), slog.Int64("actor_id", actorID))
	s.notifyUser(ctx, models.Notification{Kind: models.NotifyCredentialSet, UserID: userID, Credential: kind})
	return nil
}

// Entitlement возвращает личный кабинет пользователя. Результат кэшируется.
func (s *Service) Entitlement(ctx context.Context, userID int64) (*models.Entitlement, error) {
	const op = "account.Entitlement"
	log := s.log.With(slog.String("op", op), slog.Int64("user_id", userID))

	if s.cache != nil {
		e, found, err := s.cache.GetEntitlement(ctx, userID)
		if err != nil {
			log.Warn("failed to read entitlement from cache", sl.Err(err))
		} else if found {
			return e, nil
		}
	}

	user, err := s.store.User(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	e := &models.Entitlement{User: *user, State: StateNone, Credentials: []models.CredentialKind{}}

	sub, err := s.store.Subscription(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	default:
		e.Subscription = sub
		e.TariffTitle = s.catalog.Title(sub.Tariff)
		if sub.ExpiresAt != nil {
			now := s.now()
			e.State = entitlement.DeriveState(*sub.ExpiresAt, now, s.policy).String()
			e.DaysLeft = daysLeft(*sub.ExpiresAt, now)
		}
	}

	creds, err := s.store.Credentials(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if kinds := creds.Kinds(); kinds != nil {
		e.Credentials = kinds
	}

	if s.cache != nil {
		if err := s.cache.SetEntitlement(ctx, e); err != nil {
			log.Warn("failed to cache entitlement", sl.Err(err))
		}
	}
	return e, nil
}

func (s *Service) Referrals(ctx context.Context, referrerID int64) (models.ReferralSummary, error) {
	const op = "account.Referrals"

	if _, err := s.store.User(ctx, referrerID); err != nil {
		return models.ReferralSummary{}, fmt.Errorf("%s: %w", op, err)
	}
	refs, err := s.store.Referrals(ctx, referrerID)
	if err != nil {
		return models.ReferralSummary{}, fmt.Errorf("%s: %w", op, err)
	}
	out := models.ReferralSummary{Referrals: refs, Count: len(refs)}
	if out.Referrals == nil {
		out.Referrals = []models.Referral{}
	}
	awarded := 0
	for _, r := range refs {
		if r.FirstPaidAt != nil {
			out.Paid++
		}
		if r.ReferralBonusAwarded {
			awarded++
		}
	}
	out.BonusDays = s.referral.BonusDays(awarded)
	return out, nil
}

func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	const op = "account.Stats"

	st, err := s.store.Stats(ctx, s.now())
	if err != nil {
		return models.Stats{}, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}

func (s *Service) notifyUser(ctx context.Context, n models.Notification) {
	if !notify.Send(ctx, s.notifier, n, s.policy.NotifyTimeout) {
		s.log.Warn("notification was not delivered", slog.String("kind", string(n.Kind)), sl.UserID(n.UserID))
	}
}

func displayName(p models.Profile) string {
	u := models.User{FirstName: p.FirstName, LastName: p.LastName}
	if name := u.FullName(); name != "" {
		return name
	}
	if p.Username != "" {
		return "@" + p.Username
	}
	return ""
}

func daysLeft(expiresAt, now time.Time) int {
	if !expiresAt.After(now) {
		return 0
	}
	return int(math.Ceil(expiresAt.Sub(now).Hours() / 24))
}

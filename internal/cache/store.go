package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

// Invalidator удаляет ключи кэша.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// Store оборачивает storage.Store и после каждой успешной транзакции
// сбрасывает кэш личных кабинетов затронутых пользователей.
type Store struct {
	storage.Store
	cache Invalidator
	log   *slog.Logger
}

// NewStore создаёт обёртку.
func NewStore(next storage.Store, cache Invalidator, log *slog.Logger) *Store {
	return &Store{Store: next, cache: cache, log: log}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	var touched *trackingTx
	err := s.Store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		touched = &trackingTx{Tx: tx, users: make(map[int64]struct{})}
		return fn(ctx, touched)
	})
	if err != nil || touched == nil {
		return err
	}
	s.invalidate(ctx, touched.ids()...)
	return nil
}

func (s *Store) EnsureUser(ctx context.Context, p models.Profile, now time.Time) (bool, error) {
	created, err := s.Store.EnsureUser(ctx, p, now)
	if err == nil {
		s.invalidate(ctx, p.ID)
	}
	return created, err
}

func (s *Store) invalidate(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, EntitlementKey(id))
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), keys...); err != nil {
		s.log.Warn("failed to invalidate entitlement cache", slog.Any("user_ids", ids), sl.Err(err))
	}
}

type trackingTx struct {
	storage.Tx
	mu    sync.Mutex
	users map[int64]struct{}
}

func (t *trackingTx) touch(id int64) {
	t.mu.Lock()
	t.users[id] = struct{}{}
	t.mu.Unlock()
}

func (t *trackingTx) ids() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int64, 0, len(t.users))
	for id := range t.users {
		out = append(out, id)
	}
	return out
}

func (t *trackingTx) SaveUser(ctx context.Context, u models.User) error {
	t.touch(u.ID)
	return t.Tx.SaveUser(ctx, u)
}

func (t *trackingTx) SaveSubscription(ctx context.Context, sub models.Subscription) error {
	t.touch(sub.UserID)
	return t.Tx.SaveSubscription(ctx, sub)
}

func (t *trackingTx) SetCredential(ctx context.Context, userID int64, kind models.CredentialKind, secret string, at time.Time, by int64) error {
	t.touch(userID)
	return t.Tx.SetCredential(ctx, userID, kind, secret, at, by)
}

func (t *trackingTx) ClearCredentials(ctx context.Context, userID int64, at time.Time, by int64) error {
	t.touch(userID)
	return t.Tx.ClearCredentials(ctx, userID, at, by)
}

// Package memory — хранилище в памяти процесса. Транзакции сериализуются
// одним мьютексом и применяются целиком только при успешном завершении.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

type state struct {
	users         map[int64]models.User
	subs          map[int64]models.Subscription
	payments      []models.PendingPayment
	nextPaymentID int64
	creds         map[int64]models.Credentials
}

func (s *state) clone() *state {
	out := &state{
		users:         maps.Clone(s.users),
		subs:          maps.Clone(s.subs),
		payments:      append([]models.PendingPayment(nil), s.payments...),
		nextPaymentID: s.nextPaymentID,
		creds:         make(map[int64]models.Credentials, len(s.creds)),
	}
	for id, c := range s.creds {
		c.Secrets = maps.Clone(c.Secrets)
		out.creds[id] = c
	}
	return out
}

// Store реализует storage.Store.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ storage.Store = (*Store)(nil)

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{st: &state{
		users: make(map[int64]models.User),
		subs:  make(map[int64]models.Subscription),
		creds: make(map[int64]models.Credentials),
	}}
}

// InTx выполняет fn над копией состояния и подменяет состояние при успехе.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	const op = "memory.InTx"
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) EnsureUser(_ context.Context, p models.Profile, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.st.users[p.ID]
	if !ok {
		u = models.User{ID: p.ID, CreatedAt: now.UTC()}
	}
	u.FirstName, u.LastName, u.Username = p.FirstName, p.LastName, p.Username
	s.st.users[p.ID] = u
	return !ok, nil
}

func (s *Store) User(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).user(id)
}

func (s *Store) Subscription(_ context.Context, userID int64) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).subscription(userID)
}

func (s *Store) TrackedSubscriptions(_ context.Context) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Subscription, 0, len(s.st.subs))
	for _, sub := range s.st.subs {
		if sub.ExpiresAt != nil {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) CreatePendingPayment(_ context.Context, p models.PendingPayment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.users[p.UserID]; !ok {
		return 0, fmt.Errorf("memory.CreatePendingPayment: user %d: %w", p.UserID, storage.ErrNotFound)
	}
	s.st.nextPaymentID++
	p.ID = s.st.nextPaymentID
	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	s.st.payments = append(s.st.payments, p)
	return p.ID, nil
}

func (s *Store) Credentials(_ context.Context, userID int64) (*models.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.st.creds[userID]
	if !ok {
		return &models.Credentials{UserID: userID, Secrets: map[models.CredentialKind]string{}}, nil
	}
	c.Secrets = maps.Clone(c.Secrets)
	return &c, nil
}

func (s *Store) Referrals(_ context.Context, referrerID int64) ([]models.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Referral
	for _, u := range s.st.users {
		if u.ReferrerID == nil || *u.ReferrerID != referrerID {
			continue
		}
		out = append(out, models.Referral{
			UserID:               u.ID,
			FullName:             u.FullName(),
			CreatedAt:            u.CreatedAt,
			FirstPaidAt:          u.FirstPaidAt,
			ReferralBonusAwarded: u.ReferralBonusAwarded,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UserID > out[j].UserID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Stats(_ context.Context, now time.Time) (models.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := models.Stats{TotalUsers: len(s.st.users)}
	for _, sub := range s.st.subs {
		if sub.ExpiresAt != nil && sub.ExpiresAt.After(now) {
			st.ActiveSubscriptions++
		}
	}
	return st, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

type tx struct {
	st *state
}

func (t *tx) user(id int64) (*models.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, fmt.Errorf("memory.User: %d: %w", id, storage.ErrNotFound)
	}
	return &u, nil
}

func (t *tx) subscription(userID int64) (*models.Subscription, error) {
	sub, ok := t.st.subs[userID]
	if !ok {
		return nil, fmt.Errorf("memory.Subscription: %d: %w", userID, storage.ErrNotFound)
	}
	return &sub, nil
}

func (t *tx) User(_ context.Context, id int64) (*models.User, error) { return t.user(id) }

func (t *tx) SaveUser(_ context.Context, u models.User) error {
	if _, ok := t.st.users[u.ID]; !ok {
		return fmt.Errorf("memory.SaveUser: %d: %w", u.ID, storage.ErrNotFound)
	}
	t.st.users[u.ID] = u
	return nil
}

func (t *tx) Subscription(_ context.Context, userID int64) (*models.Subscription, error) {
	return t.subscription(userID)
}

func (t *tx) SaveSubscription(_ context.Context, sub models.Subscription) error {
	if _, ok := t.st.users[sub.UserID]; !ok {
		return fmt.Errorf("memory.SaveSubscription: user %d: %w", sub.UserID, storage.ErrNotFound)
	}
	t.st.subs[sub.UserID] = sub
	return nil
}

func (t *tx) LatestPendingPayment(_ context.Context, userID int64) (*models.PendingPayment, error) {
	for i := len(t.st.payments) - 1; i >= 0; i-- {
		p := t.st.payments[i]
		if p.UserID == userID && p.Status == models.PaymentPending {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("memory.LatestPendingPayment: %d: %w", userID, storage.ErrNotFound)
}

func (t *tx) SetPaymentStatus(_ context.Context, paymentID int64, status models.PaymentStatus) error {
	for i := range t.st.payments {
		if t.st.payments[i].ID == paymentID {
			t.st.payments[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("memory.SetPaymentStatus: %d: %w", paymentID, storage.ErrNotFound)
}

func (t *tx) SetCredential(_ context.Context, userID int64, kind models.CredentialKind, secret string, at time.Time, by int64) error {
	if _, ok := t.st.users[userID]; !ok {
		return fmt.Errorf("memory.SetCredential: user %d: %w", userID, storage.ErrNotFound)
	}
	c := t.st.creds[userID]
	c.UserID = userID
	c.Secrets = maps.Clone(c.Secrets)
	if c.Secrets == nil {
		c.Secrets = make(map[models.CredentialKind]string)
	}
	c.Secrets[kind] = secret
	at = at.UTC()
	c.UpdatedAt, c.UpdatedBy = &at, &by
	t.st.creds[userID] = c
	return nil
}

func (t *tx) ClearCredentials(_ context.Context, userID int64, at time.Time, by int64) error {
	c, ok := t.st.creds[userID]
	if !ok {
		return nil
	}
	c.Secrets = map[models.CredentialKind]string{}
	at = at.UTC()
	c.UpdatedAt, c.UpdatedBy = &at, &by
	t.st.creds[userID] = c
	return nil
}

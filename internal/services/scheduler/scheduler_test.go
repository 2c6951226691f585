package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/services/extension"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage/memory"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	sent   []models.Notification
	fail   bool
	before func(n models.Notification)
}

func (r *recorder) Notify(_ context.Context, n models.Notification) bool {
	if r.before != nil {
		r.before(n)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return false
	}
	r.sent = append(r.sent, n)
	return true
}

func (r *recorder) take() []models.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.NotificationKind
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	r.sent = nil
	return out
}

type fixture struct {
	sched    *Scheduler
	ext      *extension.Service
	store    *memory.Store
	notifier *recorder
	now      time.Time
}

func newFixture(t *testing.T, users ...int64) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), notifier: &recorder{}, now: t0}
	clock := func() time.Time { return f.now }
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := entitlement.DefaultPolicy()
	for _, id := range users {
		_, err := f.store.EnsureUser(context.Background(), models.Profile{ID: id}, t0)
		require.NoError(t, err)
	}
	f.ext = extension.New(f.store, policy, log, clock)
	f.sched = New(f.store, f.notifier, policy, log, clock)
	return f
}

func (f *fixture) sub(t *testing.T, userID int64) models.Subscription {
	t.Helper()
	sub, err := f.store.Subscription(context.Background(), userID)
	require.NoError(t, err)
	return *sub
}

func (f *fixture) save(t *testing.T, sub models.Subscription) {
	t.Helper()
	require.NoError(t, f.store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.SaveSubscription(ctx, sub)
	}))
}

func TestScan_Lifecycle(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.ext.Extend(ctx, 1, 30)
	require.NoError(t, err)
	require.NoError(t, f.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.SetCredential(ctx, 1, models.CredentialOutline, "ss://secret", t0, 500)
	}))

	f.now = t0.Add(29 * entitlement.Day)
	rep := f.sched.Scan(ctx)
	assert.Equal(t, 1, rep.Warned)
	assert.Equal(t, []models.NotificationKind{models.NotifyExpiringSoon}, f.notifier.take())
	assert.True(t, f.sub(t, 1).WarnSent)

	f.now = t0.Add(29*entitlement.Day + time.Minute)
	f.sched.Scan(ctx)
	assert.Empty(t, f.notifier.take(), "warning is not resent")

	f.now = t0.Add(31 * entitlement.Day)
	rep = f.sched.Scan(ctx)
	assert.Equal(t, 1, rep.Expired)
	assert.Equal(t, []models.NotificationKind{models.NotifyExpired}, f.notifier.take())
	sub := f.sub(t, 1)
	assert.True(t, sub.ExpiredSent)
	assert.False(t, sub.KeysRevoked)

	f.now = t0.Add(33 * entitlement.Day)
	rep = f.sched.Scan(ctx)
	assert.Equal(t, 1, rep.Revoked)
	assert.Equal(t, []models.NotificationKind{models.NotifyKeysRevoked}, f.notifier.take())
	assert.True(t, f.sub(t, 1).KeysRevoked)
	creds, err := f.store.Credentials(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, creds.Secrets)
	assert.Equal(t, models.SystemActor, *creds.UpdatedBy)

	f.now = t0.Add(34 * entitlement.Day)
	expires, err := f.ext.Extend(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(44*entitlement.Day), expires)
	sub = f.sub(t, 1)
	assert.False(t, sub.WarnSent)
	assert.False(t, sub.ExpiredSent)
	assert.False(t, sub.KeysRevoked)

	rep = f.sched.Scan(ctx)
	assert.Equal(t, Report{Rows: 1}, rep)
	assert.Empty(t, f.notifier.take())
}

func TestScan_Idempotent(t *testing.T) {
	f := newFixture(t, 1, 2, 3)
	ctx := context.Background()
	for id, days := range map[int64]int{1: 1, 2: 3, 3: 60} {
		_, err := f.ext.Extend(ctx, id, days)
		require.NoError(t, err)
	}

	f.now = t0.Add(2 * entitlement.Day)
	first := f.sched.Scan(ctx)
	assert.Equal(t, 1, first.Warned)
	assert.Equal(t, 1, first.Expired)
	f.notifier.take()

	second := f.sched.Scan(ctx)
	assert.Equal(t, Report{Rows: 3}, second)
	assert.Empty(t, f.notifier.take())
}

func TestScan_DeliveryFailureRetried(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	_, err := f.ext.Extend(ctx, 1, 1)
	require.NoError(t, err)

	f.notifier.fail = true
	rep := f.sched.Scan(ctx)
	assert.Zero(t, rep.Warned)
	assert.Zero(t, rep.Failed, "delivery failure is not a scan failure")
	assert.False(t, f.sub(t, 1).WarnSent)

	f.notifier.fail = false
	rep = f.sched.Scan(ctx)
	assert.Equal(t, 1, rep.Warned)
	assert.True(t, f.sub(t, 1).WarnSent)
}

func TestScan_RevokesOnceEvenWhenNoticesFail(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	_, err := f.ext.Extend(ctx, 1, 1)
	require.NoError(t, err)

	f.notifier.fail = true
	f.now = t0.Add(5 * entitlement.Day)
	rep := f.sched.Scan(ctx)
	assert.Equal(t, 1, rep.Revoked)
	sub := f.sub(t, 1)
	assert.True(t, sub.KeysRevoked)
	assert.True(t, sub.ExpiredSent, "revocation implies expiry bookkeeping")

	for range 3 {
		rep = f.sched.Scan(ctx)
		assert.Zero(t, rep.Revoked)
	}
}

func TestScan_PastGraceSendsExpiryThenRevokes(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	_, err := f.ext.Extend(ctx, 1, 1)
	require.NoError(t, err)

	f.now = t0.Add(10 * entitlement.Day)
	f.sched.Scan(ctx)
	assert.Equal(t, []models.NotificationKind{models.NotifyExpired, models.NotifyKeysRevoked}, f.notifier.take())
}

func TestScan_Hysteresis(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	_, err := f.ext.Extend(ctx, 1, 1)
	require.NoError(t, err)

	f.sched.Scan(ctx)
	require.True(t, f.sub(t, 1).WarnSent)

	// продление в обход движка: флаги остаются
	sub := f.sub(t, 1)
	later := t0.Add(20 * entitlement.Day)
	sub.ExpiresAt = &later
	f.save(t, sub)

	f.sched.Scan(ctx)
	assert.False(t, f.sub(t, 1).WarnSent)
	f.notifier.take()

	f.now = t0.Add(19 * entitlement.Day)
	rep := f.sched.Scan(ctx)
	assert.Equal(t, 1, rep.Warned, "re-entering the warning window notifies again")
}

func TestScan_ReactivationSafetyNet(t *testing.T) {
	f := newFixture(t, 1)
	expires := t0.Add(10 * entitlement.Day)
	f.save(t, models.Subscription{UserID: 1, PeriodDays: 10, ExpiresAt: &expires, ExpiredSent: true, KeysRevoked: true})

	rep := f.sched.Scan(context.Background())
	assert.Equal(t, 1, rep.Reactivated)
	sub := f.sub(t, 1)
	assert.False(t, sub.ExpiredSent)
	assert.False(t, sub.KeysRevoked)
}

func TestScan_ConcurrentExtensionWins(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	_, err := f.ext.Extend(ctx, 1, 1)
	require.NoError(t, err)

	once := sync.Once{}
	f.notifier.before = func(models.Notification) {
		once.Do(func() {
			_, err := f.ext.Extend(ctx, 1, 30)
			require.NoError(t, err)
		})
	}

	f.sched.Scan(ctx)
	sub := f.sub(t, 1)
	assert.False(t, sub.WarnSent, "flag is not written over a moved expiry")
	assert.Equal(t, t0.Add(31*entitlement.Day), *sub.ExpiresAt)
}

type flakyStore struct {
	*memory.Store
	failUser int64
}

func (s *flakyStore) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, &flakyTx{Tx: tx, failUser: s.failUser})
	})
}

type flakyTx struct {
	storage.Tx
	failUser int64
}

func (t *flakyTx) SaveSubscription(ctx context.Context, sub models.Subscription) error {
	if sub.UserID == t.failUser {
		return errors.New("connection reset")
	}
	return t.Tx.SaveSubscription(ctx, sub)
}

func TestScan_IsolatesRowFailures(t *testing.T) {
	f := newFixture(t, 1, 2)
	ctx := context.Background()
	for _, id := range []int64{1, 2} {
		_, err := f.ext.Extend(ctx, id, 1)
		require.NoError(t, err)
	}

	sched := New(&flakyStore{Store: f.store, failUser: 1}, f.notifier, entitlement.DefaultPolicy(),
		slog.New(slog.NewTextHandler(io.Discard, nil)), func() time.Time { return f.now })
	rep := sched.Scan(ctx)

	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Warned)
	assert.False(t, f.sub(t, 1).WarnSent)
	assert.True(t, f.sub(t, 2).WarnSent)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.ext.Extend(context.Background(), 1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sched.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		sub, err := f.store.Subscription(context.Background(), 1)
		return err == nil && sub.WarnSent
	}, time.Second, 10*time.Millisecond, "first scan runs immediately")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

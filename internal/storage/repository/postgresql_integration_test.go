package repository

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
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/notify"
	"github.com/magabrotheeeer/vpn-entitlements/internal/services/extension"
	"github.com/magabrotheeeer/vpn-entitlements/internal/services/payment"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

var now = time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)

func setupStorage(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("entitlements"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(ctx, dsn, 4, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate())
	return s
}

func TestStorage(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	t.Run("ensure user", func(t *testing.T) {
		created, err := s.EnsureUser(ctx, models.Profile{ID: 100, FirstName: "Ivan"}, now)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = s.EnsureUser(ctx, models.Profile{ID: 100, FirstName: "Ivan", LastName: "P"}, now.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, created)

		u, err := s.User(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, "Ivan P", u.FullName())
		assert.True(t, now.Equal(u.CreatedAt))
	})

	t.Run("missing rows map to not found", func(t *testing.T) {
		_, err := s.User(ctx, 404)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.Subscription(ctx, 404)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		err = s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.SaveSubscription(ctx, models.Subscription{UserID: 404})
		})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("subscription round trip", func(t *testing.T) {
		tariff := "bundle"
		exp := now.Add(30 * 24 * time.Hour)
		err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.SaveSubscription(ctx, models.Subscription{
				UserID: 100, PurchasedAt: &now, PeriodDays: 30, ExpiresAt: &exp,
				Tariff: &tariff, WarnSent: true,
			})
		})
		require.NoError(t, err)

		sub, err := s.Subscription(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, 30, sub.PeriodDays)
		assert.True(t, exp.Equal(*sub.ExpiresAt))
		assert.Equal(t, "bundle", *sub.Tariff)
		assert.True(t, sub.WarnSent)

		tracked, err := s.TrackedSubscriptions(ctx)
		require.NoError(t, err)
		require.Len(t, tracked, 1)

		stats, err := s.Stats(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.ActiveSubscriptions)
	})

	t.Run("rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			sub, err := tx.Subscription(ctx, 100)
			require.NoError(t, err)
			sub.PeriodDays = 999
			require.NoError(t, tx.SaveSubscription(ctx, *sub))
			return boom
		})
		require.ErrorIs(t, err, boom)

		sub, err := s.Subscription(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, 30, sub.PeriodDays)
	})

	t.Run("pending payments", func(t *testing.T) {
		first, err := s.CreatePendingPayment(ctx, models.PendingPayment{UserID: 100, CreatedAt: now, ProofRef: "file-1", Tariff: "outline"})
		require.NoError(t, err)
		_, err = s.CreatePendingPayment(ctx, models.PendingPayment{UserID: 100, CreatedAt: now, ProofRef: "file-2", Tariff: "v2ray"})
		require.NoError(t, err)

		err = s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			p, err := tx.LatestPendingPayment(ctx, 100)
			if err != nil {
				return err
			}
			assert.Equal(t, "v2ray", p.Tariff)
			return tx.SetPaymentStatus(ctx, p.ID, models.PaymentApproved)
		})
		require.NoError(t, err)

		err = s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			p, err := tx.LatestPendingPayment(ctx, 100)
			if err != nil {
				return err
			}
			assert.Equal(t, first, p.ID)
			return nil
		})
		require.NoError(t, err)

		_, err = s.CreatePendingPayment(ctx, models.PendingPayment{UserID: 404, CreatedAt: now, ProofRef: "x", Tariff: "outline"})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("credentials", func(t *testing.T) {
		err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := tx.SetCredential(ctx, 100, models.CredentialOutline, "ss://one", now, 7); err != nil {
				return err
			}
			return tx.SetCredential(ctx, 100, models.CredentialOutline, "ss://two", now, 7)
		})
		require.NoError(t, err)

		c, err := s.Credentials(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, "ss://two", c.Secrets[models.CredentialOutline])

		err = s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.ClearCredentials(ctx, 100, now.Add(time.Hour), models.SystemActor)
		})
		require.NoError(t, err)

		c, err = s.Credentials(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, c.Kinds())
		assert.Equal(t, models.SystemActor, *c.UpdatedBy)
	})

	t.Run("referrals", func(t *testing.T) {
		_, err := s.EnsureUser(ctx, models.Profile{ID: 200, FirstName: "Olga"}, now)
		require.NoError(t, err)

		referrer := int64(100)
		err = s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			u, err := tx.User(ctx, 200)
			if err != nil {
				return err
			}
			u.ReferrerID = &referrer
			u.FirstPaid = true
			u.FirstPaidAt = &now
			return tx.SaveUser(ctx, *u)
		})
		require.NoError(t, err)

		refs, err := s.Referrals(ctx, 100)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, "Olga", refs[0].FullName)
		assert.NotNil(t, refs[0].FirstPaidAt)
		assert.False(t, refs[0].ReferralBonusAwarded)

		stats, err := s.Stats(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalUsers)
	})
}

func TestStorage_ExtendRacesPaymentApproval(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := entitlement.DefaultPolicy()
	clock := func() time.Time { return now }

	ext := extension.New(s, policy, log, clock)
	pay := payment.New(s, entitlement.DefaultCatalog(),
		notify.NotifierFunc(func(context.Context, models.Notification) bool { return true }),
		nil, policy, log, clock)

	for id := int64(1000); id < 1020; id++ {
		_, err := s.EnsureUser(ctx, models.Profile{ID: id}, now)
		require.NoError(t, err)
		_, err = s.CreatePendingPayment(ctx, models.PendingPayment{UserID: id, CreatedAt: now, ProofRef: "file", Tariff: "bundle"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := ext.Extend(ctx, id, 30)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, _, err := pay.ApplyLatestPendingPayment(ctx, id)
			assert.NoError(t, err)
		}()
		wg.Wait()

		sub, err := s.Subscription(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, sub.ExpiresAt, "user %d lost the credit", id)
		assert.True(t, now.Add(30*entitlement.Day).Equal(*sub.ExpiresAt))
		assert.Equal(t, 30, sub.PeriodDays)
		require.NotNil(t, sub.Tariff)
		assert.Equal(t, "bundle", *sub.Tariff)
	}
}

package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage/memory"
)

var now = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n models.Notification) bool {
	return m.Called(ctx, n).Bool(0)
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return m.Called(ctx, fn).Error(0)
}

func (m *MockRepository) CreatePendingPayment(ctx context.Context, p models.PendingPayment) (int64, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(int64), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newService(repo Repository, notifier *MockNotifier, operators ...int64) *Service {
	return New(repo, entitlement.DefaultCatalog(), notifier, operators, entitlement.DefaultPolicy(),
		newNoopLogger(), func() time.Time { return now })
}

func seed(t *testing.T, users ...int64) *memory.Store {
	t.Helper()
	store := memory.New()
	for _, id := range users {
		_, err := store.EnsureUser(context.Background(), models.Profile{ID: id}, now)
		require.NoError(t, err)
	}
	return store
}

func TestSubmitPendingPayment(t *testing.T) {
	store := seed(t, 10)
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.Kind == models.NotifyOperatorNewPayment && n.SubjectID == 10 && n.PaymentProof == "file-1" && n.Tariff == "bundle"
	})).Return(true).Twice()

	svc := newService(store, notifier, 900, 901)
	id, err := svc.SubmitPendingPayment(context.Background(), 10, " file-1 ", "bundle", "card")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	notifier.AssertExpectations(t)
	notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(n models.Notification) bool { return n.UserID == 900 }))
	notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(n models.Notification) bool { return n.UserID == 901 }))
}

func TestSubmitPendingPayment_Validation(t *testing.T) {
	tests := []struct {
		name    string
		proof   string
		tariff  string
		wantErr error
	}{
		{name: "empty proof", proof: "  ", tariff: "bundle", wantErr: entitlement.ErrInvalidPaymentProof},
		{name: "unknown tariff", proof: "file", tariff: "gold", wantErr: entitlement.ErrUnknownTariff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			svc := newService(repo, new(MockNotifier), 900)

			_, err := svc.SubmitPendingPayment(context.Background(), 10, tt.proof, tt.tariff, "")
			assert.ErrorIs(t, err, tt.wantErr)
			repo.AssertNotCalled(t, "CreatePendingPayment", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitPendingPayment_StoreError(t *testing.T) {
	repo := new(MockRepository)
	repo.On("CreatePendingPayment", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down")).Once()
	notifier := new(MockNotifier)

	svc := newService(repo, notifier, 900)
	_, err := svc.SubmitPendingPayment(context.Background(), 10, "file", "", "")
	assert.EqualError(t, err, "payment.SubmitPendingPayment: db down")
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestSubmitPendingPayment_UnknownUser(t *testing.T) {
	svc := newService(seed(t), new(MockNotifier))
	_, err := svc.SubmitPendingPayment(context.Background(), 10, "file", "", "")
	assert.ErrorIs(t, err, entitlement.ErrNotFound)
}

func TestApplyLatestPendingPayment(t *testing.T) {
	store := seed(t, 10)
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(true)
	svc := newService(store, notifier)
	ctx := context.Background()

	_, err := svc.SubmitPendingPayment(ctx, 10, "old", "outline", "")
	require.NoError(t, err)
	_, err = svc.SubmitPendingPayment(ctx, 10, "new", "bundle", "")
	require.NoError(t, err)

	tariff, ok, err := svc.ApplyLatestPendingPayment(ctx, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bundle", tariff, "most recent payment wins")

	sub, err := store.Subscription(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, sub.Tariff)
	assert.Equal(t, "bundle", *sub.Tariff)
	assert.Nil(t, sub.ExpiresAt, "expiry is untouched")
	assert.Zero(t, sub.PeriodDays)

	// следующая по давности заявка остаётся в ожидании
	tariff, ok, err = svc.ApplyLatestPendingPayment(ctx, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "outline", tariff)

	_, ok, err = svc.ApplyLatestPendingPayment(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyLatestPendingPayment_KeepsExpiry(t *testing.T) {
	store := seed(t, 10)
	ctx := context.Background()
	expires := now.Add(5 * entitlement.Day)
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.SaveSubscription(ctx, models.Subscription{UserID: 10, PeriodDays: 5, ExpiresAt: &expires})
	}))
	_, err := store.CreatePendingPayment(ctx, models.PendingPayment{UserID: 10, ProofRef: "f", Tariff: "v2ray"})
	require.NoError(t, err)

	svc := newService(store, new(MockNotifier))
	tariff, ok, err := svc.ApplyLatestPendingPayment(ctx, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2ray", tariff)

	sub, err := store.Subscription(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, expires, *sub.ExpiresAt)
	assert.Equal(t, 5, sub.PeriodDays)
}

func TestApplyLatestPendingPayment_WithoutTariff(t *testing.T) {
	store := seed(t, 10)
	ctx := context.Background()
	_, err := store.CreatePendingPayment(ctx, models.PendingPayment{UserID: 10, ProofRef: "f"})
	require.NoError(t, err)

	svc := newService(store, new(MockNotifier))
	_, ok, err := svc.ApplyLatestPendingPayment(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Subscription(ctx, 10)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// заявка одобрена, повторно не применяется
	err = store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.LatestPendingPayment(ctx, 10)
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplyLatestPendingPayment_UnknownUser(t *testing.T) {
	svc := newService(seed(t), new(MockNotifier))
	_, ok, err := svc.ApplyLatestPendingPayment(context.Background(), 404)
	assert.ErrorIs(t, err, entitlement.ErrNotFound)
	assert.False(t, ok)
}

package infra

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vpn-entitlements/internal/config"
	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage/memory"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStore_InMemory(t *testing.T) {
	store, err := OpenStore(context.Background(), config.Storage{InMemory: true}, discard())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpenStore_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := OpenStore(ctx, config.Storage{DSN: "postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1"}, discard())
	require.Error(t, err)
}

func TestOpenCache(t *testing.T) {
	c, err := OpenCache(context.Background(), config.RedisConnection{}, discard())
	require.NoError(t, err)
	assert.Nil(t, c)

	mr := miniredis.RunT(t)
	c, err = OpenCache(context.Background(), config.RedisConnection{Address: mr.Addr(), TTL: time.Minute}, discard())
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.NoError(t, c.Close())
}

func TestOpenNotifier_Direct(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	cfg := &config.Config{
		NotifyMode: config.NotifyModeDirect,
		Telegram:   config.Telegram{Token: "t", BaseURL: srv.URL, Timeout: time.Second},
		Policy:     config.Policy{NotifyTimeout: time.Second},
	}
	n, err := OpenNotifier(context.Background(), cfg, entitlement.DefaultCatalog(), discard())
	require.NoError(t, err)
	defer n.Close()

	ok := n.Notify(context.Background(), models.Notification{Kind: models.NotifyCredentialSet, UserID: 5, Credential: models.CredentialOutline})
	assert.True(t, ok)
	assert.EqualValues(t, 1, calls.Load())
}

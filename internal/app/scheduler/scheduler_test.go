package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vpn-entitlements/internal/cache"
	"github.com/magabrotheeeer/vpn-entitlements/internal/config"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

const configTemplate = `
env: test
notify_mode: direct
metrics_address: "127.0.0.1:0"
storage:
  in_memory: true
redis:
  address: %q
telegram:
  token: test-token
  base_url: %q
  timeout: 1s
jwt:
  secret_key: secret
`

func loadConfig(t *testing.T, redisAddr, telegramURL string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(configTemplate, redisAddr, telegramURL)), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestScanOnce_InvalidatesCachedEntitlement(t *testing.T) {
	var sent atomic.Int32
	telegram := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sent.Add(1)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer telegram.Close()
	mr := miniredis.RunT(t)

	ctx := context.Background()
	app, err := New(ctx, loadConfig(t, mr.Addr(), telegram.URL), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NotNil(t, app.cache)

	now := time.Now().UTC()
	expires := now.Add(time.Hour)
	_, err = app.db.EnsureUser(ctx, models.Profile{ID: 7}, now)
	require.NoError(t, err)
	require.NoError(t, app.db.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.SaveSubscription(ctx, models.Subscription{UserID: 7, PurchasedAt: &now, PeriodDays: 30, ExpiresAt: &expires})
	}))
	require.NoError(t, mr.Set(cache.EntitlementKey(7), `{"state":"active"}`))

	report := app.ScanOnce(ctx)

	assert.Equal(t, 1, report.Warned)
	assert.Zero(t, report.Failed)
	assert.EqualValues(t, 1, sent.Load())
	assert.False(t, mr.Exists(cache.EntitlementKey(7)), "warning flag change must drop the cached view")
}

func TestNew_WithoutRedis(t *testing.T) {
	app, err := New(context.Background(), loadConfig(t, "", "http://127.0.0.1:1"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Nil(t, app.cache)

	report := app.ScanOnce(context.Background())
	assert.Zero(t, report.Rows)
}

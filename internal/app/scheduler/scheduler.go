// Package scheduler собирает процесс цикла сверки сроков подписок.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/vpn-entitlements/internal/app/infra"
	"github.com/magabrotheeeer/vpn-entitlements/internal/cache"
	"github.com/magabrotheeeer/vpn-entitlements/internal/config"
	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-entitlements/internal/metrics"
	schedulerservice "github.com/magabrotheeeer/vpn-entitlements/internal/services/scheduler"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.Scheduler
	metricsServer    *http.Server
	db               storage.Store
	cache            *cache.Cache
	notifier         *infra.Notifier
	logger           *slog.Logger
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	metrics.InitMetrics()

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	db, err := infra.OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	cacheRedis, err := infra.OpenCache(ctx, cfg.Redis, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect cache: %w", err)
	}

	notifier, err := infra.OpenNotifier(ctx, cfg, catalog, logger)
	if err != nil {
		infra.CloseCache(cacheRedis, logger)
		db.Close()
		return nil, fmt.Errorf("failed to setup notifications: %w", err)
	}
	store := infra.CachedStore(db, cacheRedis, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &App{
		schedulerService: schedulerservice.New(store, notifier, cfg.EntitlementPolicy(), logger, nil),
		metricsServer:    &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		db:               db,
		cache:            cacheRedis,
		notifier:         notifier,
		logger:           logger,
	}, nil
}

// Run запускает планировщик и сервер метрик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	go func() {
		a.logger.Info("metrics server starting on", slog.String("address", a.metricsServer.Addr))
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", sl.Err(err))
		}
	}()

	a.schedulerService.Run(ctx)

	a.logger.Info("shutting down scheduler service")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metricsServer.Shutdown(timeoutCtx); err != nil {
		a.logger.Error("failed to stop metrics server", sl.Err(err))
	}
	a.close()
	return nil
}

// ScanOnce выполняет один проход сверки и освобождает ресурсы.
func (a *App) ScanOnce(ctx context.Context) schedulerservice.Report {
	defer a.close()
	return a.schedulerService.Scan(ctx)
}

func (a *App) close() {
	a.notifier.Close()
	infra.CloseCache(a.cache, a.logger)
	a.db.Close()
}

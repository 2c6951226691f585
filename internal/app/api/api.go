// Package api собирает HTTP API прав доступа: хранилище, кэш, уведомления, сервисы и маршруты.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/vpn-entitlements/internal/app/infra"
	"github.com/magabrotheeeer/vpn-entitlements/internal/cache"
	"github.com/magabrotheeeer/vpn-entitlements/internal/config"
	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/jwt"
	"github.com/magabrotheeeer/vpn-entitlements/internal/metrics"
	"github.com/magabrotheeeer/vpn-entitlements/internal/services/account"
	"github.com/magabrotheeeer/vpn-entitlements/internal/services/extension"
	"github.com/magabrotheeeer/vpn-entitlements/internal/services/grant"
	"github.com/magabrotheeeer/vpn-entitlements/internal/services/payment"
	"github.com/magabrotheeeer/vpn-entitlements/internal/services/referral"
	"github.com/magabrotheeeer/vpn-entitlements/internal/services/scheduler"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
)

const shutdownTimeout = 15 * time.Second

// App обслуживает HTTP API и, если включено, запускает встроенный планировщик.
type App struct {
	server    *http.Server
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	db        storage.Store
	cache     *cache.Cache
	notifier  *infra.Notifier
}

// New создаёт приложение по конфигу.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "api.New"

	metrics.InitMetrics()

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	policy := cfg.EntitlementPolicy()

	db, err := infra.OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cacheRedis, err := infra.OpenCache(ctx, cfg.Redis, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	notifier, err := infra.OpenNotifier(ctx, cfg, catalog, logger)
	if err != nil {
		infra.CloseCache(cacheRedis, logger)
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	store := infra.CachedStore(db, cacheRedis, logger)
	var viewCache account.EntitlementCache
	if cacheRedis != nil {
		viewCache = cacheRedis
	}

	extensionService := extension.New(store, policy, logger, nil)
	referralService := referral.New(store, extensionService, policy, logger, nil)
	paymentService := payment.New(store, catalog, notifier, cfg.OperatorIDs, policy, logger, nil)
	accountService := account.New(account.Options{
		Store:     store,
		Referral:  referralService,
		Cache:     viewCache,
		Notifier:  notifier,
		Catalog:   catalog,
		Operators: cfg.OperatorIDs,
		Policy:    policy,
		Log:       logger,
	})
	grantService := grant.New(store, extensionService, referralService, notifier, policy, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Services{
		Account:    accountService,
		Payment:    paymentService,
		Extension:  extensionService,
		Grant:      grantService,
		Health:     store,
		Tokens:     jwt.NewJWTMaker(cfg.JWTToken.SecretKey, cfg.JWTToken.TokenTTL),
		IsOperator: cfg.IsOperator,
	}, Limits{Rate: cfg.HTTPServer.RateLimit, Burst: cfg.HTTPServer.RateBurst})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	app := &App{
		server:   srv,
		logger:   logger,
		db:       db,
		cache:    cacheRedis,
		notifier: notifier,
	}
	if cfg.EmbeddedScheduler {
		app.scheduler = scheduler.New(store, notifier, policy, logger, nil)
	}
	return app, nil
}

// Run обслуживает запросы до отмены ctx, затем останавливает сервер и освобождает ресурсы.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		return a.server.Shutdown(timeoutCtx)
	})
	if a.scheduler != nil {
		g.Go(func() error {
			a.logger.Info("embedded scheduler started")
			a.scheduler.Run(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (a *App) close() {
	a.notifier.Close()
	infra.CloseCache(a.cache, a.logger)
	a.db.Close()
}

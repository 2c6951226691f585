package api

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/magabrotheeeer/vpn-entitlements/docs"

	"github.com/magabrotheeeer/vpn-entitlements/internal/http/handlers/admin/credential"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/handlers/admin/extend"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/handlers/admin/grant"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/handlers/admin/stats"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/handlers/admin/tariff"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/handlers/contact/create"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/handlers/entitlement/read"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/handlers/health"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/handlers/payment/submit"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/handlers/referral/list"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/jwt"
)

// Services содержит сервисы, которые обслуживает HTTP API.
type Services struct {
	Account   AccountService
	Payment   submit.Service
	Extension extend.Service
	Grant     grant.Service
	Health    health.Pinger
	Tokens    middlewarectx.TokenParser
	// IsOperator проверяет, что subject токена с ролью operator входит в список операторов.
	IsOperator func(id int64) bool
}

// AccountService объединяет операции личного кабинета и администрирования пользователя.
type AccountService interface {
	create.Service
	read.Service
	list.Service
	tariff.Service
	credential.Service
	stats.Service
}

// Limits задаёт ограничение частоты запросов.
type Limits struct {
	Rate  float64
	Burst int
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, log *slog.Logger, svc Services, limits Limits) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		middlewarectx.MetricsMiddleware,
	)

	r.Get("/health", health.New(log, svc.Health).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.JWTMiddleware(svc.Tokens, svc.IsOperator, log))
		r.Use(middlewarectx.RateLimitMiddleware(limits.Rate, limits.Burst, log))

		// Операции фронтенда бота
		r.Post("/contacts", create.New(log, svc.Account).ServeHTTP)
		r.Post("/users/{id}/payments", submit.New(log, svc.Payment).ServeHTTP)
		r.Get("/users/{id}/entitlement", read.New(log, svc.Account).ServeHTTP)
		r.Get("/users/{id}/referrals", list.New(log, svc.Account).ServeHTTP)

		// Операции оператора
		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewarectx.RequireRole(jwt.RoleOperator, log))
			r.Post("/users/{id}/grants", grant.New(log, svc.Grant).ServeHTTP)
			r.Post("/users/{id}/extensions", extend.New(log, svc.Extension).ServeHTTP)
			r.Put("/users/{id}/tariff", tariff.New(log, svc.Account).ServeHTTP)
			r.Put("/users/{id}/credentials/{kind}", credential.New(log, svc.Account).ServeHTTP)
			r.Get("/stats", stats.New(log, svc.Account).ServeHTTP)
		})
	})
}

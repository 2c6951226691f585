// Package grant реализует HTTP-обработчик начисления месяцев подписки оператором.
//
// Начисление продлевает подписку, одобряет последнюю заявку пользователя на оплату
// и при первой оплате начисляет бонус пригласившему.
package grant

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-entitlements/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/request"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/response"
	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

// Request содержит число начисляемых месяцев.
type Request struct {
	Months int `json:"months" validate:"required,gt=0"`
}

// Service описывает бизнес-логику начисления.
type Service interface {
	GrantMonths(ctx context.Context, actorID, userID int64, months int) (models.GrantResult, error)
}

// Handler управляет HTTP-запросами на начисление месяцев.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Подтверждение оплаты оператором
// @Description Продлевает подписку на N месяцев, одобряет последнюю заявку и начисляет бонус пригласившему.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param id path int true "Telegram ID пользователя"
// @Param request body Request true "Число месяцев"
// @Success 200 {object} response.Response "Подписка продлена"
// @Failure 400 {object} response.Response "Некорректный запрос"
// @Failure 401 {object} response.Response "Нет токена"
// @Failure 403 {object} response.Response "Нет роли оператора"
// @Failure 404 {object} response.Response "Пользователь не найден"
// @Failure 422 {object} response.Response "Недопустимое число месяцев"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /admin/users/{id}/grants [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.grant"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actorID, ok := middlewarectx.ActorID(r.Context())
	if !ok {
		log.Error("actor not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}
	userID, err := request.UserID(r)
	if err != nil {
		log.Error("failed to parse user id", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(err.Error()))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	res, err := h.service.GrantMonths(r.Context(), actorID, userID, req.Months)
	if err != nil {
		log.Error("failed to grant months", sl.Err(err), sl.UserID(userID))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("months granted", sl.UserID(userID), slog.Int64("actor_id", actorID), slog.Int("days", res.DaysCredited))
	render.JSON(w, r, response.OKWithData(res))
}

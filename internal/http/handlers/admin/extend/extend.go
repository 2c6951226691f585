// Package extend реализует HTTP-обработчик ручного продления подписки на N дней.
package extend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-entitlements/internal/http/request"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/response"
	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
)

// Request содержит число начисляемых дней.
type Request struct {
	Days int `json:"days" validate:"required,gt=0,lte=3650"`
}

// Service описывает бизнес-логику продления.
type Service interface {
	Extend(ctx context.Context, userID int64, days int) (time.Time, error)
}

// Handler управляет HTTP-запросами на продление.
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
// @Summary Ручное продление подписки
// @Description Начисляет пользователю от 1 до 3650 дней без привязки к оплате.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param id path int true "Telegram ID пользователя"
// @Param request body Request true "Число дней"
// @Success 200 {object} response.Response "Новый срок действия"
// @Failure 400 {object} response.Response "Некорректный запрос"
// @Failure 403 {object} response.Response "Нет роли оператора"
// @Failure 404 {object} response.Response "Пользователь не найден"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /admin/users/{id}/extensions [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.extend"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

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

	expiresAt, err := h.service.Extend(r.Context(), userID, req.Days)
	if err != nil {
		log.Error("failed to extend subscription", sl.Err(err), sl.UserID(userID))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"expires_at": expiresAt,
	}))
}

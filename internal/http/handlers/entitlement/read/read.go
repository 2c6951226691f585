// Package read реализует HTTP-обработчик личного кабинета пользователя.
package read

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-entitlements/internal/http/request"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/response"
	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

// Service описывает бизнес-логику чтения личного кабинета.
type Service interface {
	Entitlement(ctx context.Context, userID int64) (*models.Entitlement, error)
}

// Handler управляет HTTP-запросами на чтение личного кабинета.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Текущее право доступа пользователя
// @Description Возвращает состояние подписки, срок действия, тариф и выданные ключи.
// @Tags Entitlements
// @Produce  json
// @Security BearerAuth
// @Param id path int true "Telegram ID пользователя"
// @Success 200 {object} response.Response "Право доступа"
// @Failure 400 {object} response.Response "Некорректный ID"
// @Failure 404 {object} response.Response "Пользователь не найден"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /users/{id}/entitlement [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlement.read"
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

	e, err := h.service.Entitlement(r.Context(), userID)
	if err != nil {
		log.Error("failed to read entitlement", sl.Err(err), sl.UserID(userID))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.OKWithData(e))
}

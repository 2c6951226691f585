// Package list реализует HTTP-обработчик списка приглашённых пользователем.
package list

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

// Service описывает бизнес-логику списка рефералов.
type Service interface {
	Referrals(ctx context.Context, referrerID int64) (models.ReferralSummary, error)
}

// Handler управляет HTTP-запросами на получение рефералов.
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
// @Summary Рефералы пользователя
// @Description Возвращает приглашённых пользователей, число оплативших и начисленные бонусные дни.
// @Tags Referrals
// @Produce  json
// @Security BearerAuth
// @Param id path int true "Telegram ID пользователя"
// @Success 200 {object} response.Response "Сводка по рефералам"
// @Failure 400 {object} response.Response "Некорректный ID"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /users/{id}/referrals [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.referral.list"
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

	summary, err := h.service.Referrals(r.Context(), userID)
	if err != nil {
		log.Error("failed to list referrals", sl.Err(err), sl.UserID(userID))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("referrals listed", sl.UserID(userID), slog.Int("count", summary.Count))
	render.JSON(w, r, response.OKWithData(summary))
}

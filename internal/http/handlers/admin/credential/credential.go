// Package credential реализует HTTP-обработчик выдачи ключа доступа пользователю.
//
// Тип ключа передаётся в пути ({kind}), значение — в теле запроса.
package credential

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-entitlements/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/request"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/response"
	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

// Request содержит значение ключа доступа.
type Request struct {
	Value string `json:"value" validate:"required"`
}

// Service описывает бизнес-логику выдачи ключа.
type Service interface {
	SetCredential(ctx context.Context, actorID, userID int64, kind models.CredentialKind, value string) error
}

// Handler управляет HTTP-запросами на выдачу ключа.
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
// @Summary Выдача ключа доступа
// @Description Сохраняет ключ VPN указанного вида и отправляет его пользователю.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param id path int true "Telegram ID пользователя"
// @Param kind path string true "Вид ключа" Enums(outline, v2ray, amnezia)
// @Param request body Request true "Значение ключа"
// @Success 200 {object} response.Response "Ключ сохранён"
// @Failure 400 {object} response.Response "Некорректный запрос"
// @Failure 403 {object} response.Response "Нет роли оператора"
// @Failure 404 {object} response.Response "Пользователь не найден"
// @Failure 422 {object} response.Response "Неизвестный вид ключа или короткое значение"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /admin/users/{id}/credentials/{kind} [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.credential"
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
	kind := models.CredentialKind(chi.URLParam(r, "kind"))

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

	if err := h.service.SetCredential(r.Context(), actorID, userID, kind, req.Value); err != nil {
		log.Error("failed to set credential", sl.Err(err), sl.UserID(userID), slog.String("kind", string(kind)))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"kind": kind,
	}))
}

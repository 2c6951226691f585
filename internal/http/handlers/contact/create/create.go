// Package create реализует HTTP-обработчик первого контакта пользователя с ботом.
//
// Handler регистрирует пользователя (или обновляет его имя) и, если пользователь новый,
// применяет реферальную ссылку из payload.
package create

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-entitlements/internal/http/response"
	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

// Request описывает тело запроса первого контакта.
type Request struct {
	User    models.Profile `json:"user"`
	Payload string         `json:"payload"` // текст после команды /start
}

// Service описывает бизнес-логику первого контакта.
type Service interface {
	FirstContact(ctx context.Context, p models.Profile, payload string) (models.ContactResult, error)
}

// Handler управляет HTTP-запросами первого контакта.
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
// @Summary Регистрация контакта с ботом
// @Description Создаёт пользователя при первом /start или обновляет профиль. Payload вида ref_<id> связывает реферала.
// @Tags Contacts
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Профиль и payload команды /start"
// @Success 201 {object} response.Response "Пользователь создан"
// @Success 200 {object} response.Response "Профиль обновлён"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /contacts [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.contact.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

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

	res, err := h.service.FirstContact(r.Context(), req.User, req.Payload)
	if err != nil {
		log.Error("failed to register contact", sl.Err(err), sl.UserID(req.User.ID))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("contact registered", sl.UserID(req.User.ID), slog.Bool("created", res.Created))
	if res.Created {
		render.Status(r, http.StatusCreated)
	}
	render.JSON(w, r, response.OKWithData(res))
}

// Package submit реализует HTTP-обработчик отправки подтверждения оплаты.
package submit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-entitlements/internal/http/request"
	"github.com/magabrotheeeer/vpn-entitlements/internal/http/response"
	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
)

// Request — тело запроса: ссылка на файл подтверждения, выбранный тариф и комментарий.
type Request struct {
	ProofRef string `json:"proof_ref" validate:"required"`
	Tariff   string `json:"tariff"`
	Note     string `json:"note" validate:"max=1024"`
}

// Service описывает бизнес-логику приёма заявки на оплату.
type Service interface {
	SubmitPendingPayment(ctx context.Context, userID int64, proofRef, tariff, note string) (int64, error)
}

// Handler управляет HTTP-запросами на отправку подтверждения оплаты.
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
// @Summary Отправка подтверждения оплаты
// @Description Сохраняет заявку на оплату в статусе pending и уведомляет операторов.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param id path int true "Telegram ID пользователя"
// @Param request body Request true "Ссылка на подтверждение и тариф"
// @Success 201 {object} response.Response "Заявка принята"
// @Failure 400 {object} response.Response "Некорректный запрос"
// @Failure 404 {object} response.Response "Пользователь не найден"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /users/{id}/payments [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.submit"
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

	id, err := h.service.SubmitPendingPayment(r.Context(), userID, req.ProofRef, req.Tariff, req.Note)
	if err != nil {
		log.Error("failed to submit payment", sl.Err(err), sl.UserID(userID))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("payment submitted", sl.UserID(userID), slog.Int64("payment_id", id))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"payment_id": id,
	}))
}

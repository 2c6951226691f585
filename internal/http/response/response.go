// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
)

// Response описывает стандартную структуру JSON‑ответа сервера.
// Поле Status — статус запроса ("OK" или "Error").
// Поле Error — текст ошибки (при неуспехе).
// Поле Data — данные ответа (при успехе).
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

const (
	// StatusOK — значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError — значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// OKWithData возвращает успешный Response с переданными данными.
func OKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
	}
}

// ValidationError формирует Response на основе ошибок валидации.
// Каждое нарушение переводится в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "gt":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be greater than %s", err.Field(), err.Param()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at least %s", err.Field(), err.Param()))
		case "max", "lte":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at most %s", err.Field(), err.Param()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(errsMsgs, ", "),
	}
}

// FromError сопоставляет ошибку сервиса HTTP-статусу и тексту ответа.
// Внутренние ошибки не раскрываются клиенту.
func FromError(err error) (int, Response) {
	switch {
	case errors.Is(err, entitlement.ErrNotFound):
		return http.StatusNotFound, Error("not found")
	case errors.Is(err, entitlement.ErrInvalidCredit),
		errors.Is(err, entitlement.ErrMonthsNotAllowed),
		errors.Is(err, entitlement.ErrUnknownTariff),
		errors.Is(err, entitlement.ErrUnknownCredentialKind),
		errors.Is(err, entitlement.ErrInvalidCredential),
		errors.Is(err, entitlement.ErrInvalidPaymentProof):
		return http.StatusUnprocessableEntity, Error(domainMessage(err))
	default:
		return http.StatusInternalServerError, Error("internal error, try again later")
	}
}

func domainMessage(err error) string {
	for _, target := range []error{
		entitlement.ErrInvalidCredit,
		entitlement.ErrMonthsNotAllowed,
		entitlement.ErrUnknownTariff,
		entitlement.ErrUnknownCredentialKind,
		entitlement.ErrInvalidCredential,
		entitlement.ErrInvalidPaymentProof,
	} {
		if errors.Is(err, target) {
			return strings.TrimPrefix(target.Error(), "entitlement: ")
		}
	}
	return err.Error()
}

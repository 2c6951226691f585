// Package request содержит разбор параметров HTTP-запроса, общий для обработчиков.
package request

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
)

// ErrBadUserID возвращается, если параметр {id} маршрута не положительное число.
var ErrBadUserID = errors.New("invalid user id in url")

// UserID возвращает параметр {id} маршрута.
func UserID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrBadUserID
	}
	return id, nil
}

package jwt

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// Роли клиентов API.
const (
	RoleBot      = "bot"      // фронтенд бота, действует от имени пользователей
	RoleOperator = "operator" // оператор, subject — его Telegram ID
)

// CustomClaims описывает данные, хранящиеся в JWT.
type CustomClaims struct {
	Role string `json:"role"` // Роль клиента
	jwt.RegisteredClaims
}

func (c *CustomClaims) ActorID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("jwt.ActorID: %w", err)
	}
	return id, nil
}

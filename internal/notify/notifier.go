// Package notify доставляет типизированные уведомления пользователям и операторам.
//
// Ядро передаёт models.Notification и получает только признак успеха. Текст
// сообщения формирует Renderer на стороне доставки. Доступны два режима:
// Queue публикует уведомление в RabbitMQ (успех — брокер принял сообщение),
// Direct сразу отправляет его через Telegram Bot API.
package notify

import (
	"context"
	"time"

	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

// Notifier доставляет одно уведомление. Возвращает false, если доставка не удалась;
// ошибки доставки не выходят за пределы реализации.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) bool
}

// NotifierFunc позволяет использовать функцию как Notifier.
type NotifierFunc func(ctx context.Context, n models.Notification) bool

func (f NotifierFunc) Notify(ctx context.Context, n models.Notification) bool {
	return f(ctx, n)
}

// Broadcast отправляет копию n каждому получателю, ограничивая каждую доставку timeout.
// Возвращает число успешных доставок.
func Broadcast(ctx context.Context, notifier Notifier, recipients []int64, n models.Notification, timeout time.Duration) int {
	delivered := 0
	for _, id := range recipients {
		msg := n
		msg.UserID = id
		if Send(ctx, notifier, msg, timeout) {
			delivered++
		}
	}
	return delivered
}

// Send доставляет одно уведомление с ограничением по времени.
func Send(ctx context.Context, notifier Notifier, n models.Notification, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return notifier.Notify(ctx, n)
}

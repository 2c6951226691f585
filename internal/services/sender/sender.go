// Package sender доставляет уведомления из очереди через Telegram Bot API.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
	"github.com/magabrotheeeer/vpn-entitlements/internal/notify"
	"github.com/magabrotheeeer/vpn-entitlements/internal/rabbitmq"
)

// Renderer формирует текст уведомления.
type Renderer interface {
	Render(n models.Notification) (string, error)
}

// SenderService отправляет уведомления пользователям.
type SenderService struct {
	renderer Renderer
	sender   notify.MessageSender
	log      *slog.Logger
}

// NewSenderService создаёт SenderService.
func NewSenderService(renderer Renderer, sender notify.MessageSender, log *slog.Logger) *SenderService {
	return &SenderService{renderer: renderer, sender: sender, log: log}
}

// Handle обрабатывает одно сообщение очереди. Ошибки, которые не исправит повтор
// (битое сообщение, неизвестный тип, отказ Telegram 4xx), оборачивают rabbitmq.ErrDiscard.
func (s *SenderService) Handle(ctx context.Context, d amqp.Delivery) error {
	const op = "sender.Handle"
	log := s.log.With(slog.String("op", op), slog.String("message_id", d.MessageId))

	var n models.Notification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, rabbitmq.ErrDiscard, err)
	}
	return s.Deliver(ctx, n)
}

func (s *SenderService) Deliver(ctx context.Context, n models.Notification) error {
	const op = "sender.Deliver"
	log := s.log.With(slog.String("op", op), slog.String("kind", string(n.Kind)), sl.UserID(n.UserID))

	text, err := s.renderer.Render(n)
	if err != nil {
		log.Error("failed to render notification", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, rabbitmq.ErrDiscard, err)
	}

	if err := s.sender.SendMessage(ctx, n.UserID, text); err != nil {
		if notify.IsPermanent(err) {
			log.Warn("telegram rejected message, dropping", sl.Err(err))
			return fmt.Errorf("%s: %w: %w", op, rabbitmq.ErrDiscard, err)
		}
		if after := notify.RetryAfter(err); after > 0 {
			log.Warn("telegram flood control, will retry", slog.Duration("retry_after", after))
			return fmt.Errorf("%s: %w", op, &rabbitmq.RetryLater{Err: err, After: after})
		}
		log.Warn("failed to send message, will retry", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("notification delivered")
	return nil
}

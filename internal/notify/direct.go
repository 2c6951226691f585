package notify

import (
	"context"
	"log/slog"

	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-entitlements/internal/metrics"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

// MessageSender отправляет готовый текст в чат.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Direct формирует текст и сразу отправляет его в Telegram.
type Direct struct {
	log      *slog.Logger
	renderer *Renderer
	sender   MessageSender
}

// NewDirect создаёт Direct.
func NewDirect(log *slog.Logger, renderer *Renderer, sender MessageSender) *Direct {
	return &Direct{log: log, renderer: renderer, sender: sender}
}

func (d *Direct) Notify(ctx context.Context, n models.Notification) bool {
	log := d.log.With(slog.String("kind", string(n.Kind)), sl.UserID(n.UserID))

	text, err := d.renderer.Render(n)
	if err != nil {
		log.Error("failed to render notification", sl.Err(err))
		metrics.NotificationsTotal.WithLabelValues(string(n.Kind), metrics.Result(false)).Inc()
		return false
	}
	err = d.sender.SendMessage(ctx, n.UserID, text)
	metrics.NotificationsTotal.WithLabelValues(string(n.Kind), metrics.Result(err == nil)).Inc()
	if err != nil {
		log.Warn("failed to deliver notification", sl.Err(err))
		return false
	}
	return true
}

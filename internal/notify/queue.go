package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-entitlements/internal/metrics"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

// Publisher публикует сообщение и ждёт подтверждения брокера.
type Publisher interface {
	Publish(ctx context.Context, messageID string, body []byte) error
}

// Queue публикует уведомления в очередь доставки.
type Queue struct {
	log       *slog.Logger
	publisher Publisher
	now       func() time.Time
}

// NewQueue создаёт Queue.
func NewQueue(log *slog.Logger, publisher Publisher) *Queue {
	return &Queue{log: log, publisher: publisher, now: time.Now}
}

func (q *Queue) Notify(ctx context.Context, n models.Notification) bool {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = q.now().UTC()
	}
	log := q.log.With(slog.String("kind", string(n.Kind)), sl.UserID(n.UserID), slog.String("message_id", n.ID))

	body, err := json.Marshal(n)
	if err != nil {
		log.Error("failed to marshal notification", sl.Err(err))
		return false
	}
	err = q.publisher.Publish(ctx, n.ID, body)
	metrics.NotificationsTotal.WithLabelValues(string(n.Kind), metrics.Result(err == nil)).Inc()
	if err != nil {
		log.Warn("failed to publish notification", sl.Err(err))
		return false
	}
	return true
}

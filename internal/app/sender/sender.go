// Package sender собирает процесс доставки уведомлений из очереди в Telegram.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vpn-entitlements/internal/app/infra"
	"github.com/magabrotheeeer/vpn-entitlements/internal/config"
	"github.com/magabrotheeeer/vpn-entitlements/internal/notify"
	"github.com/magabrotheeeer/vpn-entitlements/internal/rabbitmq"
	senderservice "github.com/magabrotheeeer/vpn-entitlements/internal/services/sender"
)

const retryDelay = 5 * time.Second

// App читает очередь уведомлений.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	queue         string
	concurrency   int
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

// New подключается к брокеру и создаёт сервис доставки.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("sender.New: telegram token is required")
	}

	conn, ch, err := infra.OpenAMQP(ctx, cfg.RabbitMQ, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	client := notify.NewTelegramClient(cfg.Telegram.BaseURL, cfg.Telegram.Token, cfg.Telegram.Timeout)
	renderer := notify.NewRenderer(catalog, cfg.EntitlementPolicy(), time.UTC)

	return &App{
		conn:          conn,
		ch:            ch,
		queue:         cfg.RabbitMQ.Queue,
		concurrency:   cfg.RabbitMQ.Prefetch,
		senderService: senderservice.NewSenderService(renderer, client, logger),
		logger:        logger,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer infra.CloseAMQP(a.ch, a.conn, a.logger)

	a.logger.Info("sender consuming", slog.String("queue", a.queue))
	err := rabbitmq.ConsumerMessage(ctx, a.ch, a.queue, rabbitmq.ConsumerOptions{
		Concurrency: a.concurrency,
		RetryDelay:  retryDelay,
	}, a.logger, a.senderService.Handle)
	if err != nil {
		a.logger.Error("failed to consume notifications", slog.Any("err", err))
		return err
	}

	a.logger.Info("sender service shutting down gracefully")
	return nil
}

// Package infra собирает общие для бинарников зависимости: хранилище, кэш и доставку уведомлений.
package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vpn-entitlements/internal/cache"
	"github.com/magabrotheeeer/vpn-entitlements/internal/config"
	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-entitlements/internal/notify"
	"github.com/magabrotheeeer/vpn-entitlements/internal/rabbitmq"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage/memory"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage/repository"
)

const (
	connectRetries = 10
	connectDelay   = 3 * time.Second
)

// OpenStore открывает хранилище из настроек: в памяти или PostgreSQL с миграциями.
func OpenStore(ctx context.Context, cfg config.Storage, log *slog.Logger) (storage.Store, error) {
	const op = "infra.OpenStore"

	if cfg.InMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	}

	var (
		db  *repository.Storage
		err error
	)
	for attempt := 1; attempt <= connectRetries; attempt++ {
		db, err = repository.New(ctx, cfg.DSN, cfg.MaxConns, log)
		if err == nil {
			break
		}
		log.Warn("database is not ready", slog.Int("attempt", attempt), sl.Err(err))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(connectDelay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.AutoMigrate {
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("migrations applied")
	}
	return db, nil
}

// OpenCache подключается к Redis. Пустой адрес отключает кэш: возвращается nil без ошибки.
func OpenCache(ctx context.Context, cfg config.RedisConnection, log *slog.Logger) (*cache.Cache, error) {
	if cfg.Address == "" {
		log.Info("redis address is empty, entitlement cache disabled")
		return nil, nil
	}
	c, err := cache.InitServer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("infra.OpenCache: %w", err)
	}
	return c, nil
}

// CachedStore оборачивает хранилище инвалидацией кэша личных кабинетов. При c == nil возвращает db.
func CachedStore(db storage.Store, c *cache.Cache, log *slog.Logger) storage.Store {
	if c == nil {
		return db
	}
	return cache.NewStore(db, c, log)
}

// CloseCache закрывает клиент Redis, пропуская nil.
func CloseCache(c *cache.Cache, log *slog.Logger) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Error("failed to close redis", sl.Err(err))
	}
}

// Notifier оборачивает доставку уведомлений вместе с её соединениями.
type Notifier struct {
	notify.Notifier
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *slog.Logger
}

func (n *Notifier) Close() {
	CloseAMQP(n.ch, n.conn, n.log)
}

// OpenNotifier собирает доставку уведомлений по cfg.NotifyMode:
// queue публикует в RabbitMQ, direct отправляет сразу в Telegram.
func OpenNotifier(ctx context.Context, cfg *config.Config, catalog *entitlement.Catalog, log *slog.Logger) (*Notifier, error) {
	const op = "infra.OpenNotifier"

	if cfg.NotifyMode == config.NotifyModeDirect {
		client := notify.NewTelegramClient(cfg.Telegram.BaseURL, cfg.Telegram.Token, cfg.Telegram.Timeout)
		renderer := notify.NewRenderer(catalog, cfg.EntitlementPolicy(), time.UTC)
		return &Notifier{Notifier: notify.NewDirect(log, renderer, client), log: log}, nil
	}

	conn, ch, err := OpenAMQP(ctx, cfg.RabbitMQ, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	publisher, err := rabbitmq.NewPublisher(ch, Topology(cfg.RabbitMQ))
	if err != nil {
		CloseAMQP(ch, conn, log)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Notifier{Notifier: notify.NewQueue(log, publisher), conn: conn, ch: ch, log: log}, nil
}

// Topology строит топологию очереди уведомлений из настроек.
func Topology(cfg config.RabbitMQ) rabbitmq.Topology {
	return rabbitmq.NotificationTopology(cfg.Exchange, cfg.Queue, cfg.Prefetch)
}

// OpenAMQP подключается к брокеру и объявляет топологию очереди уведомлений.
func OpenAMQP(ctx context.Context, cfg config.RabbitMQ, log *slog.Logger) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := rabbitmq.Connect(ctx, cfg.URL, connectRetries, connectDelay, log)
	if err != nil {
		return nil, nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, Topology(cfg))
	if err != nil {
		CloseAMQP(nil, conn, log)
		return nil, nil, err
	}
	return conn, ch, nil
}

// CloseAMQP закрывает канал и соединение, пропуская nil.
func CloseAMQP(ch *amqp.Channel, conn *amqp.Connection, log *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			log.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Error("failed to close connection", sl.Err(err))
		}
	}
}

package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/sl"
)

// ErrDiscard оборачивается обработчиком, когда сообщение нельзя доставить никогда.
// Такое сообщение подтверждается отказом без возврата в очередь.
var ErrDiscard = errors.New("rabbitmq: discard message")

// maxRequeueDelay ограничивает паузу, которую может запросить обработчик.
const maxRequeueDelay = 5 * time.Minute

// RetryLater оборачивается обработчиком, когда источник ошибки сам назвал срок повтора.
type RetryLater struct {
	Err   error
	After time.Duration
}

func (e *RetryLater) Error() string { return e.Err.Error() }

func (e *RetryLater) Unwrap() error { return e.Err }

// Handler обрабатывает одно сообщение.
type Handler func(ctx context.Context, d amqp.Delivery) error

// ConsumerOptions настройки потребителя.
type ConsumerOptions struct {
	Concurrency int
	// RetryDelay задаёт паузу перед возвратом сообщения в очередь после временной ошибки.
	RetryDelay time.Duration
}

// ConsumerMessage читает очередь и вызывает handler не более чем в Concurrency горутинах.
// Блокируется до отмены ctx или закрытия канала и дожидается завершения обработчиков.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queue string, opts ConsumerOptions,
	log *slog.Logger, handler Handler) error {
	const op = "rabbitmq.ConsumerMessage"

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}

	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer func() {
					<-sem
					wg.Done()
				}()
				settle(ctx, d, handler(ctx, d), opts.RetryDelay, log)
			}(d)
		case <-ctx.Done():
			return nil
		}
	}
}

func settle(ctx context.Context, d amqp.Delivery, err error, retryDelay time.Duration, log *slog.Logger) {
	log = log.With(slog.String("message_id", d.MessageId))
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("failed to ack message", sl.Err(ackErr))
		}
	case errors.Is(err, ErrDiscard):
		log.Warn("message discarded", sl.Err(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
	default:
		delay := requeueDelay(err, retryDelay)
		log.Warn("message handling failed, requeue", sl.Err(err), slog.Duration("delay", delay))
		if delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
	}
}

func requeueDelay(err error, retryDelay time.Duration) time.Duration {
	var later *RetryLater
	if !errors.As(err, &later) || later.After <= retryDelay {
		return retryDelay
	}
	return min(later.After, maxRequeueDelay)
}

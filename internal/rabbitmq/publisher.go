package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
)

// ErrNotConfirmed возвращается, когда брокер отверг сообщение.
var ErrNotConfirmed = errors.New("rabbitmq: publish was not confirmed")

// Publisher публикует сообщения в режиме подтверждений: Publish возвращает nil
// только после того, как брокер принял сообщение.
type Publisher struct {
	mu         sync.Mutex
	ch         *amqp.Channel
	exchange   string
	routingKey string
	confirms   chan amqp.Confirmation
	nextTag    uint64
}

// NewPublisher переводит канал в режим подтверждений.
func NewPublisher(ch *amqp.Channel, topo Topology) (*Publisher, error) {
	const op = "rabbitmq.NewPublisher"
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Publisher{
		ch:         ch,
		exchange:   topo.Exchange,
		routingKey: topo.RoutingKey,
		confirms:   ch.NotifyPublish(make(chan amqp.Confirmation, 16)),
	}, nil
}

// Publish отправляет body с идентификатором messageID и ждёт подтверждения брокера.
func (p *Publisher) Publish(ctx context.Context, messageID string, body []byte) error {
	const op = "rabbitmq.Publish"
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Publish(p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    messageID,
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p.nextTag++
	tag := p.nextTag

	for {
		select {
		case c, ok := <-p.confirms:
			if !ok {
				return fmt.Errorf("%s: channel closed", op)
			}
			// подтверждения прошлых публикаций, не дождавшихся ответа
			if c.DeliveryTag < tag {
				continue
			}
			if !c.Ack {
				return fmt.Errorf("%s: %w", op, ErrNotConfirmed)
			}
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
}

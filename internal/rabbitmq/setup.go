package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// Topology описывает exchange и очередь доставки уведомлений.
type Topology struct {
	Exchange   string
	Queue      string
	RoutingKey string
	Prefetch   int
}

// NotificationTopology возвращает топологию очереди уведомлений.
func NotificationTopology(exchange, queue string, prefetch int) Topology {
	return Topology{Exchange: exchange, Queue: queue, RoutingKey: "deliver", Prefetch: prefetch}
}

// SetupChannel открывает канал и объявляет exchange, очередь и привязку. Объявления идемпотентны.
func SetupChannel(conn *amqp.Connection, topo Topology) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if topo.Prefetch > 0 {
		if err := ch.Qos(topo.Prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("%s: failed to set QoS: %w", op, err)
		}
	}
	if err = ch.ExchangeDeclare(topo.Exchange, "direct", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err = ch.QueueDeclare(topo.Queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, topo.Queue, err)
	}
	if err = ch.QueueBind(topo.Queue, topo.RoutingKey, topo.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w",
			op, topo.Queue, topo.RoutingKey, err)
	}
	return ch, nil
}

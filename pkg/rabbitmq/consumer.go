package rabbitmq

import (
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer binds a durable queue to a topic exchange and dispatches deliveries by
// routing key.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(amqpURL string) (*Consumer, error) {
	conn, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, ch: ch}, nil
}

// ConsumeWithBindings starts consuming in a goroutine. A handler returning true acks
// the delivery; false requeues it. Deliveries with no handler are acked and dropped.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]func([]byte) bool) error {
	if len(bindings) == 0 {
		return fmt.Errorf("no bindings provided")
	}

	if err := c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	if err := c.ch.Qos(10, 0, false); err != nil {
		return err
	}

	handlers := make(map[string]func([]byte) bool)
	for routingKey, handler := range bindings {
		if handler == nil {
			continue
		}
		handlers[routingKey] = handler
		if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			dispatch(d, handlers)
		}
		log.Printf("level=warn component=rabbitmq msg=\"delivery channel closed\" queue=%s", q.Name)
	}()

	return nil
}

// acknowledger is the subset of amqp.Delivery used by dispatch.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type delivery struct {
	acknowledger
	routingKey string
	body       []byte
}

func dispatch(d amqp.Delivery, handlers map[string]func([]byte) bool) {
	route(delivery{acknowledger: d, routingKey: d.RoutingKey, body: d.Body}, handlers)
}

func route(d delivery, handlers map[string]func([]byte) bool) {
	handler, ok := handlers[d.routingKey]
	if !ok {
		log.Printf("level=warn component=rabbitmq msg=\"no handler for routing key; dropping\" routing_key=%s", d.routingKey)
		_ = d.Ack(false)
		return
	}
	if handler(d.body) {
		_ = d.Ack(false)
		return
	}
	log.Printf("level=warn component=rabbitmq msg=\"handler failed; requeueing\" routing_key=%s", d.routingKey)
	_ = d.Nack(false, true)
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

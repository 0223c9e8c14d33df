package events

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher sends events to a topic exchange with the event type as routing key.
type AMQPPublisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex // amqp channels are not safe for concurrent publishes
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(uri, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx, p.exchange, e.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.Key + ":" + e.Type,
		Timestamp:    e.At,
		Type:         e.Type,
		Body:         body,
	})
	return errors.Wrapf(err, "publish %s", e.Type)
}

func (p *AMQPPublisher) Close() error {
	var first error
	if err := p.channel.Close(); err != nil {
		first = err
	}
	if err := p.conn.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

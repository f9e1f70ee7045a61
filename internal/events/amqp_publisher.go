package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/leadwire/leadwire/pkg/logging"
)

// AMQPPublisher publishes envelopes to a rabbitmq topic exchange, routing
// key = channel name, so downstream services bind per channel.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	logger   *logging.Logger
}

func NewAMQPPublisher(url, exchange string, logger *logging.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: amqp channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, exchange: exchange, logger: logger}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, evt Event) error {
	env, err := Wrap(evt)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("events: amqp channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(
		ctx, p.exchange, string(env.Channel), false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    env.EventID.String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("events: amqp publish %s: %w", env.Channel, err)
	}
	p.logger.Debug("event published", "channel", env.Channel, "exchange", p.exchange)
	return nil
}

func (p *AMQPPublisher) publishRaw(ctx context.Context, channel ChannelName, envelope []byte) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("events: amqp channel: %w", err)
	}
	defer ch.Close()
	err = ch.PublishWithContext(
		ctx, p.exchange, string(channel), false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         envelope,
		},
	)
	if err != nil {
		return fmt.Errorf("events: amqp publish %s: %w", channel, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNacked is returned when the broker refuses a published message.
var ErrNacked = errors.New("mail message was not confirmed by the broker")

// Publisher publishes one message and returns once the broker has
// confirmed it.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
	Close() error
}

// AMQPMailer hands messages to a mail-sending worker through RabbitMQ.
type AMQPMailer struct {
	pub        Publisher
	exchange   string
	routingKey string
	now        func() time.Time
}

func NewAMQPMailer(pub Publisher, exchange, routingKey string) *AMQPMailer {
	return &AMQPMailer{pub: pub, exchange: exchange, routingKey: routingKey, now: time.Now}
}

func (m *AMQPMailer) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return ErrNoRecipient
	}

	payload, err := json.Marshal(Message{To: to, Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("encode mail message: %w", err)
	}

	err = m.pub.Publish(ctx, m.exchange, m.routingKey, amqp.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
		Timestamp:    m.now(),
	})
	if err != nil {
		return fmt.Errorf("publish mail message: %w", err)
	}
	return nil
}

func (m *AMQPMailer) Close() error {
	return m.pub.Close()
}

// ChannelPublisher publishes on a confirm-mode channel and waits for each
// broker ack.
type ChannelPublisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialPublisher connects to url, declares a durable topic exchange and puts
// the channel into confirm mode.
func DialPublisher(url, exchange string) (*ChannelPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	return &ChannelPublisher{conn: conn, ch: ch}, nil
}

func (p *ChannelPublisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dc, err := p.ch.PublishWithDeferredConfirmWithContext(publishCtx, exchange, routingKey, false, false, msg)
	if err != nil {
		return err
	}

	acked, err := dc.WaitContext(publishCtx)
	if err != nil {
		return err
	}
	if !acked {
		return ErrNacked
	}
	return nil
}

func (p *ChannelPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	chErr := p.ch.Close()
	connErr := p.conn.Close()
	return errors.Join(chErr, connErr)
}

package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gabrielsolarenergy/server/internal/observability"
)

// QueuePublisher enqueues mail on a durable RabbitMQ queue. The connection
// is opened lazily and re-opened after broker failures; publishes are
// persistent so queued mail survives a broker restart.
type QueuePublisher struct {
	url       string
	queueName string
	logger    *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewQueuePublisher(url, queueName string, logger *slog.Logger) *QueuePublisher {
	return &QueuePublisher{url: url, queueName: queueName, logger: logger}
}

func (p *QueuePublisher) Enqueue(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		observability.RecordMailQueueEvent("publish_error")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, pub); err != nil {
		// The channel is unusable after a publish error; drop it so the
		// next call reconnects.
		p.reset()
		observability.RecordMailQueueEvent("publish_error")
		return fmt.Errorf("publish mail: %w", err)
	}
	observability.RecordMailQueueEvent("published")
	return nil
}

func (p *QueuePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// channel returns a usable channel, dialing and declaring the queue if
// needed. Callers must hold p.mu.
func (p *QueuePublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *QueuePublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Consumer drains the outbound mail queue and delivers each message through
// a Sender. It reconnects with exponential backoff until ctx is cancelled.
type Consumer struct {
	url       string
	queueName string
	sender    Sender
	logger    *slog.Logger
}

func NewConsumer(url, queueName string, sender Sender, logger *slog.Logger) *Consumer {
	return &Consumer{url: url, queueName: queueName, sender: sender, logger: logger}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("mail consumer dial failed", "error", err, "retry_in", backoff.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := c.consumeLoop(ctx, conn); err != nil {
			_ = conn.Close()
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.logger.Warn("mail consumer loop ended", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.logger.Warn("set consumer QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(c.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	deliveries, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(d.Body); err != nil {
				c.logger.Error("deliver mail failed", "error", err)
				observability.RecordMailQueueEvent("delivery_error")
				// Do not requeue: a message that cannot be delivered
				// would otherwise loop forever.
				_ = d.Nack(false, false)
				continue
			}
			observability.RecordMailQueueEvent("delivered")
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal mail message: %w", err)
	}
	if err := c.sender.Send(msg); err != nil {
		return fmt.Errorf("send to %s: %w", msg.To, err)
	}
	c.logger.Info("mail delivered", "to", msg.To, "subject", msg.Subject)
	return nil
}

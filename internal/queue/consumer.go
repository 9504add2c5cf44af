package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"picshare/internal/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one message body. A returned error rejects the delivery;
// it is requeued once and dropped when it fails again.
type Handler func(ctx context.Context, body []byte) error

type ConsumerOptions struct {
	Prefetch   int
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logger     *slog.Logger
}

type Consumer struct {
	url     string
	queue   string
	handler Handler
	opts    ConsumerOptions
	log     *slog.Logger

	dial func(url string) (*amqp.Connection, error)
}

func NewConsumer(url, queue string, handler Handler, opts ConsumerOptions) *Consumer {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 10
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		url:     url,
		queue:   queue,
		handler: handler,
		opts:    opts,
		log:     log.With("queue", queue),
		dial:    amqp.Dial,
	}
}

// Run consumes until ctx is done, reconnecting with exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.opts.MinBackoff
	for {
		conn, err := c.dial(c.url)
		if err == nil {
			backoff = c.opts.MinBackoff
			err = c.consume(ctx, conn)
			_ = conn.Close()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consumer disconnected", "err", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, c.opts.MaxBackoff)
	}
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	if cur *= 2; cur > limit {
		return limit
	}
	return cur
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	log := c.log.With("delivery_tag", d.DeliveryTag)
	if err := c.handler(logger.WithContext(ctx, log), d.Body); err != nil {
		requeue := !d.Redelivered
		log.Error("handle message failed", "err", err, "requeue", requeue)
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

// Package queue moves background jobs through RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrPublisherClosed = errors.New("queue: publisher closed")

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type opener func() (ch channel, closeConn func() error, err error)

// Publisher sends persistent JSON messages to durable queues on the default
// exchange. It dials lazily and redials after a failed publish.
type Publisher struct {
	open opener

	mu        sync.Mutex
	ch        channel
	closeConn func() error
	declared  map[string]bool
	closed    bool
}

func NewPublisher(url string) *Publisher {
	return newPublisher(func() (channel, func() error, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return ch, conn.Close, nil
	})
}

func newPublisher(open opener) *Publisher {
	return &Publisher{open: open, declared: map[string]bool{}}
}

func (p *Publisher) Publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPublisherClosed
	}
	if p.ch == nil {
		ch, closeConn, err := p.open()
		if err != nil {
			return fmt.Errorf("queue: dial: %w", err)
		}
		p.ch, p.closeConn = ch, closeConn
		p.declared = map[string]bool{}
	}

	if !p.declared[queue] {
		if _, err := p.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			p.reset()
			return fmt.Errorf("queue: declare %s: %w", queue, err)
		}
		p.declared[queue] = true
	}

	err = p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("queue: publish %s: %w", queue, err)
	}
	return nil
}

// reset drops the current channel; the next Publish redials. Caller holds mu.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeConn != nil {
		_ = p.closeConn()
	}
	p.ch, p.closeConn = nil, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.reset()
	return nil
}

// Package events publishes rating change notifications to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Kind names the change that happened to a rating. It doubles as the AMQP
// routing key.
type Kind string

const (
	RatingCreated Kind = "rating.created"
	RatingUpdated Kind = "rating.updated"
	RatingDeleted Kind = "rating.deleted"
)

// RatingChanged is emitted after a rating write commits. The aggregate
// fields carry the store's values after the write.
type RatingChanged struct {
	Type          Kind      `json:"type"`
	RatingID      string    `json:"ratingId"`
	StoreID       string    `json:"storeId"`
	UserID        string    `json:"userId"`
	Rating        int       `json:"rating"`
	AverageRating float64   `json:"averageRating"`
	TotalRatings  int64     `json:"totalRatings"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Publisher delivers rating events.
type Publisher interface {
	Publish(ctx context.Context, event RatingChanged) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, RatingChanged) error { return nil }
func (Nop) Close() error { return nil }

// Errors returned by AMQPPublisher.Publish without reaching the broker.
var (
	ErrUnavailable = errors.New("events: broker unavailable")
	ErrClosed      = errors.New("events: publisher closed")
)

// redialInterval spaces reconnect attempts while the broker is down.
const redialInterval = time.Second

type dialFunc func(url, exchange string) (*amqp.Connection, *amqp.Channel, error)

// AMQPPublisher publishes JSON events to a durable topic exchange. A dropped
// connection or channel is re-dialled lazily on the next Publish.
type AMQPPublisher struct {
	mu       sync.Mutex
	url      string
	exchange string
	conn     *amqp.Connection
	ch       *amqp.Channel
	dial     dialFunc
	now      func() time.Time
	nextDial time.Time
	closed   bool
}

// NewAMQPPublisher dials url and declares exchange as a durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, ch, err := dialExchange(url, exchange)
	if err != nil {
		return nil, err
	}
	return &AMQPPublisher{
		url:      url,
		exchange: exchange,
		conn:     conn,
		ch:       ch,
		dial:     dialExchange,
		now:      time.Now,
	}, nil
}

func dialExchange(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, ch, nil
}

// Publish sends event with its Type as routing key.
func (p *AMQPPublisher) Publish(ctx context.Context, event RatingChanged) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	// amqp channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	err = ch.PublishWithContext(ctx, p.exchange, string(event.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		if ch.IsClosed() {
			p.release()
		}
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// channel returns a live channel, re-dialling at most once per
// redialInterval. Callers hold p.mu.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.release()

	now := p.now()
	if now.Before(p.nextDial) {
		return nil, ErrUnavailable
	}
	conn, ch, err := p.dial(p.url, p.exchange)
	if err != nil {
		p.nextDial = now.Add(redialInterval)
		return nil, fmt.Errorf("reconnect: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) release() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the channel and connection. Later publishes fail with
// ErrClosed.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var err error
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		err = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
	return err
}

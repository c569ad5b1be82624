package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

// ExchangeEvents — topic exchange, в который публикуются события сервиса.
const ExchangeEvents = "shopqueue.events"

var (
	errPublishNack          = errors.New("publish NACK from broker")
	errConfirmChannelClosed = errors.New("publisher confirm channel closed")
	errConnectionClosed     = errors.New("rabbitmq connection is closed")
)

// Channel — подмножество *amqp.Channel, которое использует паблишер.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Option настраивает Publisher.
type Option func(*Publisher)

// WithLogger задаёт logger паблишера.
func WithLogger(logger *log.Entry) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithKeyPrefix добавляет префикс к routing key (например, "dlq").
func WithKeyPrefix(prefix string) Option {
	return func(p *Publisher) {
		p.keyPrefix = strings.Trim(prefix, ".")
	}
}

// Publisher публикует outbox-сообщения в RabbitMQ и ждёт publisher confirm на каждое сообщение.
type Publisher struct {
	conn      *amqp.Connection
	ch        Channel
	acks      <-chan amqp.Confirmation
	exchange  string
	keyPrefix string
	logger    *log.Entry

	// Publish сериализуется: подтверждения приходят в порядке публикации.
	mu sync.Mutex
}

// Dial открывает соединение и канал и создаёт паблишер.
func Dial(url string, options ...Option) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	p, err := NewPublisher(ch, options...)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher объявляет exchange, включает publisher confirms и возвращает паблишер.
func NewPublisher(ch Channel, options ...Option) (*Publisher, error) {
	p := &Publisher{
		ch:       ch,
		exchange: ExchangeEvents,
		logger:   log.WithField("component", "rabbitmq-publisher"),
	}
	for _, option := range options {
		option(p)
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	p.acks = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return p, nil
}

// RoutingKey возвращает ключ вида <aggregate>.<event> с необязательным префиксом.
func (p *Publisher) RoutingKey(event domain.OutboxMessage) string {
	key := event.AggregateType + "." + event.EventType
	if p.keyPrefix != "" {
		key = p.keyPrefix + "." + key
	}
	return key
}

// Publish публикует сообщение и ждёт ack/nack от брокера.
func (p *Publisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	body, err := json.Marshal(struct {
		ID            string          `json:"id"`
		AggregateType string          `json:"aggregate_type"`
		AggregateID   string          `json:"aggregate_id"`
		EventType     string          `json:"event_type"`
		Payload       json.RawMessage `json:"payload"`
	}{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       rawPayload(event.Payload),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := p.RoutingKey(event)
	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    event.ID,
		Type:         event.EventType,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	select {
	case conf, ok := <-p.acks:
		if !ok {
			return errConfirmChannelClosed
		}
		if !conf.Ack {
			p.logger.WithFields(log.Fields{
				"routing_key":  key,
				"outbox_id":    event.ID,
				"delivery_tag": conf.DeliveryTag,
			}).Warn("broker rejected message")
			return errPublishNack
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	p.logger.WithFields(log.Fields{
		"routing_key": key,
		"outbox_id":   event.ID,
	}).Debug("message confirmed by rabbitmq")
	return nil
}

// Ping сообщает, живо ли соединение.
func (p *Publisher) Ping() error {
	if p.conn != nil && p.conn.IsClosed() {
		return errConnectionClosed
	}
	return nil
}

// Close закрывает канал и соединение.
func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

func rawPayload(payload []byte) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(payload)
}

var _ domain.OutboxPublisher = (*Publisher)(nil)

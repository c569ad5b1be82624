package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher публикует outbox-сообщения в Kafka.
// Если topic пуст, топик выбирается по типу агрегата (TopicFor).
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер событий, маршрутизирующий по типу агрегата.
func NewOutboxPublisher(producer *Producer) *OutboxTopicPublisher {
	return &OutboxTopicPublisher{producer: producer}
}

// NewTopicPublisher создаёт паблишер фиксированного топика (например, DLQ).
func NewTopicPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	// Ключ по агрегату сохраняет порядок событий одного заказа или очереди внутри партиции.
	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	topic := p.topic
	if topic == "" {
		topic = TopicFor(event.AggregateType)
	}

	headers := map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
		HeaderOutboxID:      event.ID,
	}
	return p.producer.PublishEvent(ctx, topic, key, NewEnvelope(event, time.Now().UTC()), headers)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

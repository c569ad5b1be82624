package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "shopqueue.order.events"
	TopicQueueEvents     = "shopqueue.queue.events"
	TopicDeadLetterQueue = "shopqueue.dlq" // Dead Letter Queue для сообщений, исчерпавших retry
)

// Kafka headers, которые сопровождают каждое событие
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Envelope — формат сообщения в топиках событий.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение в конверт публикации.
func NewEnvelope(event domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt,
	}
}

// TopicFor возвращает топик для типа агрегата; неизвестные агрегаты идут в топик заказов.
func TopicFor(aggregateType string) string {
	switch aggregateType {
	case domain.AggregateQueue:
		return TopicQueueEvents
	default:
		return TopicOrderEvents
	}
}

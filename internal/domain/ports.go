package domain

import (
	"context"
	"time"
)

// Tx — единица работы. Все изменения внутри неё применяются атомарно либо не применяются вовсе.
type Tx interface {
	Orders() OrderRepository
	Queues() QueueRepository
	Entries() QueueEntryRepository
	Customers() CustomerRepository
	Outbox() OutboxRepository
	Timeline() TimelineRepository
	// LockedQueueID возвращает очередь, эксклюзивная секция которой удерживается транзакцией (пусто, если блокировки нет).
	LockedQueueID() string
}

// Store — долговременное хранилище с атомарными единицами работы.
type Store interface {
	// WithinQueue выполняет fn в эксклюзивной секции очереди queueID.
	// Ошибка fn откатывает все изменения, иначе они фиксируются целиком.
	WithinQueue(ctx context.Context, queueID string, fn func(ctx context.Context, tx Tx) error) error
	// Within выполняет fn в единице работы без блокировки очереди.
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// Типы агрегатов и событий, которые попадают в outbox.
const (
	AggregateOrder = "order"
	AggregateQueue = "queue"

	EventOrderCreated      = "OrderCreated"
	EventOrderCancelled    = "OrderCancelled"
	EventOrderCompleted    = "OrderCompleted"
	EventQueueRepositioned = "QueueRepositioned"
)

package domain

import (
	"fmt"
	"time"
)

// DefaultQueueMaxSize — вместимость очереди, если магазин не задал свою.
const DefaultQueueMaxSize = 50

// Queue — физическая очередь обслуживания в магазине.
// Occupancy всегда равна числу активных записей очереди; менять её может только леджер.
type Queue struct {
	ID        string
	ShopID    string
	Number    int
	Name      string
	MaxSize   int
	Occupancy int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewQueue создаёт очередь и сразу отклоняет некорректное состояние.
func NewQueue(id, shopID string, number int, name string, maxSize, occupancy int, active bool, now time.Time) (Queue, error) {
	switch {
	case id == "":
		return Queue{}, newError(ErrInvariantViolation, "queue id is required")
	case shopID == "":
		return Queue{}, newError(ErrInvariantViolation, "queue shop id is required")
	case number < 1:
		return Queue{}, newError(ErrInvariantViolation, "queue number must be positive")
	case maxSize < 1:
		return Queue{}, newError(ErrInvariantViolation, "queue max size must be positive")
	case occupancy < 0:
		return Queue{}, ErrNegativeOccupancy
	}
	if name == "" {
		name = fmt.Sprintf("Queue %d", number)
	}
	return Queue{
		ID:        id,
		ShopID:    shopID,
		Number:    number,
		Name:      name,
		MaxSize:   maxSize,
		Occupancy: occupancy,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Full сообщает, что в очереди нет свободных мест.
func (q Queue) Full() bool {
	return q.Occupancy >= q.MaxSize
}

// QueueEntry — членство одного заказа в очереди. Записи деактивируются, но не удаляются.
type QueueEntry struct {
	ID                   string
	QueueID              string
	OrderID              string
	CustomerID           string
	Position             int
	EstimatedWaitMinutes int
	Active               bool
	JoinedAt             time.Time
	LeftAt               *time.Time
}

// NewQueueEntry создаёт активную запись очереди, позиция нумеруется с единицы.
func NewQueueEntry(id, queueID, orderID, customerID string, position, waitMinutes int, joinedAt time.Time) (QueueEntry, error) {
	switch {
	case id == "" || queueID == "" || orderID == "" || customerID == "":
		return QueueEntry{}, newError(ErrInvariantViolation, "queue entry references are required")
	case position < 1:
		return QueueEntry{}, newError(ErrInvariantViolation, "queue position must be at least 1")
	case waitMinutes < 0:
		return QueueEntry{}, newError(ErrInvariantViolation, "estimated wait must be non-negative")
	}
	return QueueEntry{
		ID:                   id,
		QueueID:              queueID,
		OrderID:              orderID,
		CustomerID:           customerID,
		Position:             position,
		EstimatedWaitMinutes: waitMinutes,
		Active:               true,
		JoinedAt:             joinedAt,
	}, nil
}

// Clone возвращает копию записи без общего указателя LeftAt.
func (e QueueEntry) Clone() QueueEntry {
	e.LeftAt = cloneTime(e.LeftAt)
	return e
}

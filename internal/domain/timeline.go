package domain

import "time"

// Типы событий таймлайна заказа.
const (
	TimelineOrderCreated = "ORDER_CREATED"
	TimelineQueueJoined  = "QUEUE_JOINED"
	TimelineQueueMoved   = "QUEUE_MOVED"
	TimelineCancelled    = "ORDER_CANCELLED"
	TimelineCompleted    = "ORDER_COMPLETED"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

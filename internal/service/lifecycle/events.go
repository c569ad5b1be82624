package lifecycle

import "time"

// orderEventPayload — тело событий OrderCreated, OrderCancelled и OrderCompleted.
type orderEventPayload struct {
	OrderID              string    `json:"order_id"`
	OrderNumber          string    `json:"order_number"`
	CustomerID           string    `json:"customer_id"`
	ShopID               string    `json:"shop_id"`
	QueueID              string    `json:"queue_id,omitempty"`
	Status               string    `json:"status"`
	Position             int       `json:"position,omitempty"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
	TotalMinor           int64     `json:"total_minor"`
	OccurredAt           time.Time `json:"occurred_at"`
}

// queueRepositionedPayload — тело события QueueRepositioned.
type queueRepositionedPayload struct {
	QueueID         string    `json:"queue_id"`
	RemovedOrderID  string    `json:"removed_order_id"`
	RemovedPosition int       `json:"removed_position"`
	Renumbered      int       `json:"renumbered"`
	Occupancy       int       `json:"occupancy"`
	OccurredAt      time.Time `json:"occurred_at"`
}

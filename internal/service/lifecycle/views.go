package lifecycle

import (
	"time"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

// ItemInput — позиция запроса на создание заказа.
type ItemInput struct {
	MenuItemID string
	Qty        int32
	Notes      string
}

// CreateOrderInput — параметры создания заказа. QueueID опционален.
type CreateOrderInput struct {
	CustomerID string
	ShopID     string
	QueueID    string
	Items      []ItemInput
	Notes      string
}

// OrderView — снимок заказа для вызывающей стороны.
type OrderView struct {
	ID                   string
	Number               string
	CustomerID           string
	CustomerName         string
	ShopID               string
	ShopName             string
	QueueID              string
	QueueName            string
	Status               domain.OrderStatus
	TotalMinor           int64
	EstimatedWaitMinutes int
	// Position пуст, если заказ не стоит в очереди.
	Position    *int
	Items       []domain.OrderItem
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// QueuePosition — ответ на запрос позиции заказа в очереди.
type QueuePosition struct {
	OrderID              string
	OrderNumber          string
	QueueID              string
	QueueName            string
	Position             int
	TotalActive          int
	EstimatedWaitMinutes int
	Status               domain.OrderStatus
}

// QueueOverview — очередь с активными записями по возрастанию позиции.
type QueueOverview struct {
	Queue   domain.Queue
	Entries []domain.QueueEntry
	Full    bool
}

package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в очереди магазина.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, но ещё не поставлен в очередь.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusInQueue — заказ ожидает в очереди магазина.
	OrderStatusInQueue OrderStatus = "IN_QUEUE"
	// OrderStatusProcessing — заказ готовится.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusReady — заказ готов к выдаче.
	OrderStatusReady OrderStatus = "READY"
	// OrderStatusCompleted — заказ выдан клиенту (терминальный статус).
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusCancelled — заказ отменён (терминальный статус).
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusInQueue, OrderStatusProcessing,
		OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanCancel — отменить можно любой нетерминальный заказ.
func (s OrderStatus) CanCancel() bool {
	return s.Valid() && !s.Terminal()
}

// CanComplete — обслужить можно только заказ, стоящий в очереди.
func (s OrderStatus) CanComplete() bool {
	return s == OrderStatusInQueue
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID           string
	MenuItemID   string
	MenuItemName string
	Qty          int32
	// UnitPriceMinor — цена за единицу в минимальных денежных единицах.
	UnitPriceMinor int64
	SubtotalMinor  int64
	Notes          string
}

// Order агрегирует состояние заказа. Связи с очередью и магазином хранятся идентификаторами.
type Order struct {
	ID         string
	Number     string
	CustomerID string
	ShopID     string
	// QueueID пуст, если заказ не стоит в очереди (в том числе после завершения или отмены).
	QueueID              string
	Status               OrderStatus
	Notes                string
	TotalMinor           int64
	EstimatedWaitMinutes int
	Items                []OrderItem
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletedAt          *time.Time
	CancelledAt          *time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, newError(ErrInvariantViolation, "order customer is required"))
	}
	if o.ShopID == "" {
		errs = append(errs, newError(ErrInvariantViolation, "order shop is required"))
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 || item.SubtotalMinor != item.UnitPriceMinor*int64(item.Qty) {
			errs = append(errs, newError(ErrInvariantViolation, "order item subtotal does not match price"))
		}
		calc += item.SubtotalMinor
	}
	if calc != o.TotalMinor {
		errs = append(errs, newError(ErrInvariantViolation, "order total does not match items sum"))
	}

	return errs
}

// Clone возвращает глубокую копию заказа, чтобы хранилища не делили срезы и указатели с вызывающим кодом.
func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]OrderItem, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	o.CompletedAt = cloneTime(o.CompletedAt)
	o.CancelledAt = cloneTime(o.CancelledAt)
	return o
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

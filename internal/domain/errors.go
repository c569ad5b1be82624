package domain

import "errors"

// Виды ошибок ядра. Конкретные ошибки ниже разворачиваются (Unwrap) в один из них,
// поэтому вызывающий код проверяет вид через errors.Is(err, ErrNotFound) и т.п.
var (
	// ErrNotFound — запрошенная сущность (заказ, очередь, запись, магазин, позиция меню) не существует.
	ErrNotFound = errors.New("not found")
	// ErrRuleViolation — нарушено бизнес-предусловие.
	ErrRuleViolation = errors.New("rule violation")
	// ErrUnauthorized — вызывающий не владеет заказом.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvariantViolation — внутреннее нарушение согласованности, операция откатывается целиком.
	ErrInvariantViolation = errors.New("invariant violation")
)

// kindError — ошибка с человекочитаемым текстом и видом из таксономии выше.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrOrderNotFound      = newError(ErrNotFound, "order not found")
	ErrQueueNotFound      = newError(ErrNotFound, "queue not found")
	ErrQueueEntryNotFound = newError(ErrNotFound, "queue entry not found")
	ErrShopNotFound       = newError(ErrNotFound, "shop not found")
	ErrMenuItemNotFound   = newError(ErrNotFound, "menu item not found")
	ErrCustomerNotFound   = newError(ErrNotFound, "customer not found")

	ErrShopInactive        = newError(ErrRuleViolation, "shop is not active")
	ErrMenuItemForeignShop = newError(ErrRuleViolation, "menu item does not belong to shop")
	ErrMenuItemUnavailable = newError(ErrRuleViolation, "menu item is not available")
	ErrItemsRequired       = newError(ErrRuleViolation, "order must contain at least one item")
	ErrItemQtyInvalid      = newError(ErrRuleViolation, "item quantity must be greater than zero")
	ErrQueueForeignShop    = newError(ErrRuleViolation, "queue does not belong to shop")
	ErrQueueInactive       = newError(ErrRuleViolation, "queue is not active")
	ErrQueueFull           = newError(ErrRuleViolation, "queue is full")
	ErrNoActiveQueues      = newError(ErrRuleViolation, "no active queues")
	ErrAllQueuesFull       = newError(ErrRuleViolation, "all active queues are full")
	ErrOrderNotCancellable = newError(ErrRuleViolation, "order cannot be cancelled")
	ErrOrderNotServable    = newError(ErrRuleViolation, "order is not in queue")
	ErrOrderNotQueued      = newError(ErrRuleViolation, "order is not in a queue")
	// ErrOrderVersionConflict сигнализирует о параллельном изменении заказа (optimistic locking).
	ErrOrderVersionConflict = newError(ErrRuleViolation, "order was modified concurrently")

	ErrNotOrderOwner = newError(ErrUnauthorized, "caller does not own the order")

	ErrNegativeOccupancy = newError(ErrInvariantViolation, "queue occupancy would become negative")
	ErrPositionGap       = newError(ErrInvariantViolation, "active queue positions are not contiguous")
	ErrOccupancyMismatch = newError(ErrInvariantViolation, "queue occupancy does not match active entries")
	ErrEstimateInput     = newError(ErrInvariantViolation, "wait estimate input must be positive")
	ErrQueueNotLocked    = newError(ErrInvariantViolation, "queue is not locked by the unit of work")
	ErrEntryNotActive    = newError(ErrInvariantViolation, "queue entry is not active")
	ErrJoinOrder         = newError(ErrInvariantViolation, "queue positions do not follow join order")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// KindOf возвращает вид ошибки ядра либо nil, если ошибка инфраструктурная.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrRuleViolation, ErrUnauthorized, ErrInvariantViolation} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

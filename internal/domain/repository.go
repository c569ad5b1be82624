package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByCustomer возвращает заказы клиента (новые первыми) с опциональным ограничением на количество.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// ListByCustomerAndShop возвращает заказы клиента в одном магазине в том же порядке.
	ListByCustomerAndShop(ctx context.Context, customerID, shopID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking и увеличивает версию.
	Save(ctx context.Context, order Order) error
}

// QueueRepository хранит очереди магазинов.
type QueueRepository interface {
	Get(ctx context.Context, id string) (Queue, error)
	// ListActiveByShop возвращает активные очереди магазина, упорядоченные по номеру.
	ListActiveByShop(ctx context.Context, shopID string) ([]Queue, error)
	Create(ctx context.Context, queue Queue) error
	// UpdateOccupancy вызывается только леджером внутри эксклюзивной секции очереди.
	UpdateOccupancy(ctx context.Context, id string, occupancy int, updatedAt time.Time) error
}

// QueueEntryRepository хранит записи очередей. Записи не удаляются, только деактивируются.
type QueueEntryRepository interface {
	Create(ctx context.Context, entry QueueEntry) error
	// GetActiveByOrder возвращает активную запись заказа или ErrQueueEntryNotFound.
	GetActiveByOrder(ctx context.Context, orderID string) (QueueEntry, error)
	// ListActive возвращает активные записи очереди по возрастанию позиции.
	ListActive(ctx context.Context, queueID string) ([]QueueEntry, error)
	Update(ctx context.Context, entry QueueEntry) error
}

// CustomerRepository — справочник клиентов со счётчиками лояльности.
type CustomerRepository interface {
	Get(ctx context.Context, id string) (Customer, error)
	Create(ctx context.Context, customer Customer) error
	// RecordOrderPlaced увеличивает total_orders и loyalty_score на единицу.
	RecordOrderPlaced(ctx context.Context, id string) error
	// RecordOrderServed увеличивает loyalty_score на единицу.
	RecordOrderServed(ctx context.Context, id string) error
}

// ShopCatalog — внешний каталог магазинов и меню, ядро его только читает.
type ShopCatalog interface {
	GetShop(ctx context.Context, id string) (Shop, error)
	GetMenuItem(ctx context.Context, id string) (MenuItem, error)
}

// CatalogWriter наполняет каталог (фикстуры, миграции данных).
type CatalogWriter interface {
	PutShop(ctx context.Context, shop Shop) error
	PutMenuItem(ctx context.Context, item MenuItem) error
}

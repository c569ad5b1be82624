package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

// orderRepositoryInMemory — представление заказов внутри единицы работы.
type orderRepositoryInMemory struct {
	u *unitOfWork
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	if _, exists := r.u.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	r.u.store.mu.RLock()
	_, exists := r.u.store.orders[order.ID]
	r.u.store.mu.RUnlock()
	if exists {
		return domain.ErrOrderVersionConflict
	}

	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.u.orders[order.ID] = order.Clone()
	r.u.orderBase[order.ID] = createdVersion
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	if order, ok := r.u.orders[id]; ok {
		return order.Clone(), nil
	}

	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()

	order, ok := r.u.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// ListByCustomer возвращает заказы клиента (новые первыми), ограничивая выборку limit (если >0).
func (r orderRepositoryInMemory) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	return r.list(func(order domain.Order) bool {
		return order.CustomerID == customerID
	}, limit), nil
}

// ListByCustomerAndShop возвращает заказы клиента в магазине shopID (новые первыми).
func (r orderRepositoryInMemory) ListByCustomerAndShop(_ context.Context, customerID, shopID string, limit int) ([]domain.Order, error) {
	return r.list(func(order domain.Order) bool {
		return order.CustomerID == customerID && order.ShopID == shopID
	}, limit), nil
}

func (r orderRepositoryInMemory) list(match func(domain.Order) bool, limit int) []domain.Order {
	merged := make(map[string]domain.Order)

	r.u.store.mu.RLock()
	for id, order := range r.u.store.orders {
		if match(order) {
			merged[id] = order
		}
	}
	r.u.store.mu.RUnlock()

	// Изменения единицы работы перекрывают зафиксированное состояние.
	for id, order := range r.u.orders {
		if match(order) {
			merged[id] = order
		}
	}

	result := make([]domain.Order, 0, len(merged))
	for _, order := range merged {
		result = append(result, order.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Save перезаписывает заказ, проверяя версию (optimistic locking). Повторная проверка выполняется при фиксации.
func (r orderRepositoryInMemory) Save(ctx context.Context, order domain.Order) error {
	current, err := r.Get(ctx, order.ID)
	if err != nil {
		return err
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	if _, tracked := r.u.orderBase[order.ID]; !tracked {
		r.u.orderBase[order.ID] = current.Version
	}

	// Инкрементируем версию перед сохранением.
	order = order.Clone()
	order.Version++
	r.u.orders[order.ID] = order
	return nil
}

var _ domain.OrderRepository = orderRepositoryInMemory{}

package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

// customerRepositoryInMemory журналирует приращения счётчиков, а не абсолютные значения:
// заказы одного клиента могут стоять в разных очередях и фиксироваться параллельно.
type customerRepositoryInMemory struct {
	u *unitOfWork
}

func (r customerRepositoryInMemory) Get(_ context.Context, id string) (domain.Customer, error) {
	customer, ok := r.u.newCustomers[id]
	if !ok {
		r.u.store.mu.RLock()
		customer, ok = r.u.store.customers[id]
		r.u.store.mu.RUnlock()
	}
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}

	delta := r.u.customerDeltas[id]
	customer.TotalOrders += delta.orders
	customer.LoyaltyScore += delta.loyalty
	return customer, nil
}

func (r customerRepositoryInMemory) Create(ctx context.Context, customer domain.Customer) error {
	if _, err := r.Get(ctx, customer.ID); err == nil {
		return fmt.Errorf("customer %s already exists", customer.ID)
	}
	r.u.newCustomers[customer.ID] = customer
	return nil
}

func (r customerRepositoryInMemory) RecordOrderPlaced(ctx context.Context, id string) error {
	return r.bump(ctx, id, customerDelta{orders: 1, loyalty: 1})
}

func (r customerRepositoryInMemory) RecordOrderServed(ctx context.Context, id string) error {
	return r.bump(ctx, id, customerDelta{loyalty: 1})
}

func (r customerRepositoryInMemory) bump(ctx context.Context, id string, d customerDelta) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	delta := r.u.customerDeltas[id]
	delta.orders += d.orders
	delta.loyalty += d.loyalty
	r.u.customerDeltas[id] = delta
	return nil
}

var _ domain.CustomerRepository = customerRepositoryInMemory{}

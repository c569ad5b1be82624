package memory

import (
	"fmt"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

const createdVersion = int64(-1)

type customerDelta struct {
	orders  int
	loyalty int
}

// unitOfWork журналирует изменения поверх зафиксированного состояния Store.
type unitOfWork struct {
	store   *Store
	queueID string

	orders    map[string]domain.Order
	orderBase map[string]int64

	queues    map[string]domain.Queue
	newQueues map[string]struct{}

	entries    map[string]domain.QueueEntry
	newEntries map[string]struct{}

	newCustomers   map[string]domain.Customer
	customerDeltas map[string]customerDelta

	outbox   []domain.OutboxMessage
	timeline []domain.TimelineEvent
}

func newUnitOfWork(store *Store, queueID string) *unitOfWork {
	return &unitOfWork{
		store:          store,
		queueID:        queueID,
		orders:         make(map[string]domain.Order),
		orderBase:      make(map[string]int64),
		queues:         make(map[string]domain.Queue),
		newQueues:      make(map[string]struct{}),
		entries:        make(map[string]domain.QueueEntry),
		newEntries:     make(map[string]struct{}),
		newCustomers:   make(map[string]domain.Customer),
		customerDeltas: make(map[string]customerDelta),
	}
}

func (u *unitOfWork) Orders() domain.OrderRepository { return orderRepositoryInMemory{u} }
func (u *unitOfWork) Queues() domain.QueueRepository { return queueRepositoryInMemory{u} }
func (u *unitOfWork) Entries() domain.QueueEntryRepository { return entryRepositoryInMemory{u} }
func (u *unitOfWork) Customers() domain.CustomerRepository { return customerRepositoryInMemory{u} }
func (u *unitOfWork) Outbox() domain.OutboxRepository { return txOutboxRepository{u} }
func (u *unitOfWork) Timeline() domain.TimelineRepository { return txTimelineRepository{u} }
func (u *unitOfWork) LockedQueueID() string { return u.queueID }

// commit проверяет журнал против зафиксированного состояния и применяет его целиком.
func (u *unitOfWork) commit() error {
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, base := range u.orderBase {
		current, exists := s.orders[id]
		switch {
		case base == createdVersion && exists:
			return domain.ErrOrderVersionConflict
		case base != createdVersion && (!exists || current.Version != base):
			return domain.ErrOrderVersionConflict
		}
	}
	for id := range u.newQueues {
		if _, exists := s.queues[id]; exists {
			return fmt.Errorf("queue %s already exists", id)
		}
	}
	for id := range u.newEntries {
		if _, exists := s.entries[id]; exists {
			return fmt.Errorf("queue entry %s already exists", id)
		}
	}
	for id := range u.newCustomers {
		if _, exists := s.customers[id]; exists {
			return fmt.Errorf("customer %s already exists", id)
		}
	}

	for id, order := range u.orders {
		s.orders[id] = order
	}
	for id, q := range u.queues {
		s.queues[id] = q
	}
	for id, entry := range u.entries {
		if _, isNew := u.newEntries[id]; isNew {
			if s.byQueue[entry.QueueID] == nil {
				s.byQueue[entry.QueueID] = make(map[string]struct{})
			}
			s.byQueue[entry.QueueID][id] = struct{}{}
			s.byOrder[entry.OrderID] = append(s.byOrder[entry.OrderID], id)
		}
		s.entries[id] = entry
	}
	for id, customer := range u.newCustomers {
		s.customers[id] = customer
	}
	for id, delta := range u.customerDeltas {
		customer := s.customers[id]
		customer.TotalOrders += delta.orders
		customer.LoyaltyScore += delta.loyalty
		s.customers[id] = customer
	}
	for _, msg := range u.outbox {
		s.outbox.enqueue(msg)
	}
	for _, event := range u.timeline {
		s.timeline.append(event)
	}
	return nil
}

package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

// timelineRepositoryInMemory хранит зафиксированные события в памяти (для разработки/тестов).
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

func newTimelineRepository() *timelineRepositoryInMemory {
	return &timelineRepositoryInMemory{events: make(map[string][]domain.TimelineEvent)}
}

func (r *timelineRepositoryInMemory) append(event domain.TimelineEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[event.OrderID] = append(r.events[event.OrderID], event)
	sort.SliceStable(r.events[event.OrderID], func(i, j int) bool {
		return r.events[event.OrderID][i].Occurred.Before(r.events[event.OrderID][j].Occurred)
	})
}

func (r *timelineRepositoryInMemory) list(orderID string) []domain.TimelineEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result
}

// txTimelineRepository добавляет события при фиксации единицы работы.
type txTimelineRepository struct {
	u *unitOfWork
}

// Append откладывает событие до фиксации.
func (r txTimelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	r.u.timeline = append(r.u.timeline, event)
	return nil
}

// List возвращает события заказа в хронологическом порядке, включая ещё не зафиксированные.
func (r txTimelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	result := r.u.store.timeline.list(orderID)
	for _, event := range r.u.timeline {
		if event.OrderID == orderID {
			result = append(result, event)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Occurred.Before(result[j].Occurred)
	})
	return result, nil
}

var _ domain.TimelineRepository = txTimelineRepository{}

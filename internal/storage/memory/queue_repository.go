package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

type queueRepositoryInMemory struct {
	u *unitOfWork
}

func (r queueRepositoryInMemory) Get(_ context.Context, id string) (domain.Queue, error) {
	if q, ok := r.u.queues[id]; ok {
		return q, nil
	}

	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()

	q, ok := r.u.store.queues[id]
	if !ok {
		return domain.Queue{}, domain.ErrQueueNotFound
	}
	return q, nil
}

func (r queueRepositoryInMemory) ListActiveByShop(_ context.Context, shopID string) ([]domain.Queue, error) {
	merged := make(map[string]domain.Queue)

	r.u.store.mu.RLock()
	for id, q := range r.u.store.queues {
		if q.ShopID == shopID {
			merged[id] = q
		}
	}
	r.u.store.mu.RUnlock()

	for id, q := range r.u.queues {
		if q.ShopID == shopID {
			merged[id] = q
		}
	}

	result := make([]domain.Queue, 0, len(merged))
	for _, q := range merged {
		if q.Active {
			result = append(result, q)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Number != result[j].Number {
			return result[i].Number < result[j].Number
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r queueRepositoryInMemory) Create(ctx context.Context, q domain.Queue) error {
	if _, err := r.Get(ctx, q.ID); err == nil {
		return fmt.Errorf("queue %s already exists", q.ID)
	}
	r.u.queues[q.ID] = q
	r.u.newQueues[q.ID] = struct{}{}
	return nil
}

func (r queueRepositoryInMemory) UpdateOccupancy(ctx context.Context, id string, occupancy int, updatedAt time.Time) error {
	if occupancy < 0 {
		return domain.ErrNegativeOccupancy
	}
	q, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	q.Occupancy = occupancy
	q.UpdatedAt = updatedAt
	r.u.queues[id] = q
	return nil
}

var _ domain.QueueRepository = queueRepositoryInMemory{}

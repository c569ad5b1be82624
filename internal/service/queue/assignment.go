package queue

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

// AssignmentPolicy выбирает очередь магазина для нового заказа. Политика ничего не пишет.
type AssignmentPolicy struct{}

// Resolve возвращает явно запрошенную очередь или наименее загруженную активную очередь магазина.
// При равной загрузке выигрывает меньший номер очереди, затем меньший идентификатор.
func (AssignmentPolicy) Resolve(ctx context.Context, queues domain.QueueRepository, shop domain.Shop, queueID string) (domain.Queue, error) {
	if queueID != "" {
		q, err := queues.Get(ctx, queueID)
		if err != nil {
			return domain.Queue{}, err
		}
		if q.ShopID != shop.ID {
			return domain.Queue{}, domain.ErrQueueForeignShop
		}
		if !q.Active {
			return domain.Queue{}, domain.ErrQueueInactive
		}
		return q, nil
	}

	active, err := queues.ListActiveByShop(ctx, shop.ID)
	if err != nil {
		return domain.Queue{}, fmt.Errorf("list active queues: %w", err)
	}
	if len(active) == 0 {
		return domain.Queue{}, domain.ErrNoActiveQueues
	}

	var (
		best  domain.Queue
		found bool
	)
	for _, q := range active {
		if q.Full() {
			continue
		}
		if !found || lessLoaded(q, best) {
			best = q
			found = true
		}
	}
	if !found {
		return domain.Queue{}, domain.ErrAllQueuesFull
	}
	return best, nil
}

func lessLoaded(a, b domain.Queue) bool {
	if a.Occupancy != b.Occupancy {
		return a.Occupancy < b.Occupancy
	}
	if a.Number != b.Number {
		return a.Number < b.Number
	}
	return a.ID < b.ID
}

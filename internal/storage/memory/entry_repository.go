package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

type entryRepositoryInMemory struct {
	u *unitOfWork
}

func (r entryRepositoryInMemory) get(id string) (domain.QueueEntry, bool) {
	if entry, ok := r.u.entries[id]; ok {
		return entry.Clone(), true
	}

	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()

	entry, ok := r.u.store.entries[id]
	return entry.Clone(), ok
}

func (r entryRepositoryInMemory) Create(_ context.Context, entry domain.QueueEntry) error {
	if _, exists := r.get(entry.ID); exists {
		return fmt.Errorf("queue entry %s already exists", entry.ID)
	}
	r.u.entries[entry.ID] = entry.Clone()
	r.u.newEntries[entry.ID] = struct{}{}
	return nil
}

func (r entryRepositoryInMemory) GetActiveByOrder(_ context.Context, orderID string) (domain.QueueEntry, error) {
	for _, entry := range r.u.entries {
		if entry.OrderID == orderID && entry.Active {
			return entry.Clone(), nil
		}
	}

	r.u.store.mu.RLock()
	ids := append([]string(nil), r.u.store.byOrder[orderID]...)
	r.u.store.mu.RUnlock()

	for _, id := range ids {
		entry, ok := r.get(id)
		if ok && entry.Active {
			return entry, nil
		}
	}
	return domain.QueueEntry{}, domain.ErrQueueEntryNotFound
}

func (r entryRepositoryInMemory) ListActive(_ context.Context, queueID string) ([]domain.QueueEntry, error) {
	merged := make(map[string]domain.QueueEntry)

	r.u.store.mu.RLock()
	for id := range r.u.store.byQueue[queueID] {
		merged[id] = r.u.store.entries[id]
	}
	r.u.store.mu.RUnlock()

	for id, entry := range r.u.entries {
		if entry.QueueID == queueID {
			merged[id] = entry
		}
	}

	result := make([]domain.QueueEntry, 0, len(merged))
	for _, entry := range merged {
		if entry.Active {
			result = append(result, entry.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position < result[j].Position
		}
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result, nil
}

func (r entryRepositoryInMemory) Update(_ context.Context, entry domain.QueueEntry) error {
	if _, exists := r.get(entry.ID); !exists {
		return domain.ErrQueueEntryNotFound
	}
	r.u.entries[entry.ID] = entry.Clone()
	return nil
}

var _ domain.QueueEntryRepository = entryRepositoryInMemory{}

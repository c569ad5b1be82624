package queue_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
	"github.com/vladislavdragonenkov/shopqueue/internal/service/queue"
	"github.com/vladislavdragonenkov/shopqueue/internal/storage/memory"
)

const avgMinutes = 5

var orderSeq atomic.Int64

// tickingClock выдаёт строго возрастающее время, чтобы порядок присоединения был однозначным.
func tickingClock() func() time.Time {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newLedger() *queue.Ledger {
	return queue.NewLedger(queue.WithClock(tickingClock()))
}

func createQueue(t *testing.T, store *memory.Store, id, shopID string, number, maxSize int) {
	t.Helper()
	q, err := domain.NewQueue(id, shopID, number, "", maxSize, 0, true, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Within(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Queues().Create(ctx, q)
	}))
}

func appendOrders(t *testing.T, store *memory.Store, ledger *queue.Ledger, queueID string, n int) []domain.QueueEntry {
	t.Helper()
	entries := make([]domain.QueueEntry, 0, n)
	for i := 0; i < n; i++ {
		orderID := fmt.Sprintf("%s-order-%d", queueID, orderSeq.Add(1))
		require.NoError(t, store.WithinQueue(context.Background(), queueID, func(ctx context.Context, tx domain.Tx) error {
			entry, err := ledger.Append(ctx, tx, queueID, orderID, "customer-1", avgMinutes)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		}))
	}
	return entries
}

func removeOrder(t *testing.T, store *memory.Store, ledger *queue.Ledger, queueID, orderID string) int {
	t.Helper()
	var renumbered int
	require.NoError(t, store.WithinQueue(context.Background(), queueID, func(ctx context.Context, tx domain.Tx) error {
		entry, err := tx.Entries().GetActiveByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		renumbered, err = ledger.Remove(ctx, tx, entry, avgMinutes)
		return err
	}))
	return renumbered
}

type queueState struct {
	queue  domain.Queue
	active []domain.QueueEntry
}

func loadState(t *testing.T, store *memory.Store, queueID string) queueState {
	t.Helper()
	var state queueState
	require.NoError(t, store.Within(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		if state.queue, err = tx.Queues().Get(ctx, queueID); err != nil {
			return err
		}
		state.active, err = tx.Entries().ListActive(ctx, queueID)
		return err
	}))
	return state
}

func positionsByOrder(active []domain.QueueEntry) map[string]int {
	result := make(map[string]int, len(active))
	for _, e := range active {
		result[e.OrderID] = e.Position
	}
	return result
}

// requireConsistent проверяет заполненность, непрерывность позиций, порядок присоединения и оценки ожидания.
func requireConsistent(t *testing.T, state queueState) {
	t.Helper()
	require.Len(t, state.active, state.queue.Occupancy)
	for i, e := range state.active {
		require.Equal(t, i+1, e.Position)
		require.Equal(t, e.Position*avgMinutes, e.EstimatedWaitMinutes)
		if i > 0 {
			require.True(t, state.active[i-1].JoinedAt.Before(e.JoinedAt), "join order broken at position %d", e.Position)
		}
	}
}

package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

// Store — in-memory хранилище с атомарными единицами работы.
// Изменения единицы работы журналируются и применяются под mu только при успешном завершении fn.
type Store struct {
	mu sync.RWMutex

	orders    map[string]domain.Order
	queues    map[string]domain.Queue
	entries   map[string]domain.QueueEntry
	byQueue   map[string]map[string]struct{}
	byOrder   map[string][]string
	customers map[string]domain.Customer
	shops     map[string]domain.Shop
	menu      map[string]domain.MenuItem
	outbox    *outboxRepositoryInMemory
	timeline  *timelineRepositoryInMemory
	idem      *idempotencyRepositoryInMemory

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

// NewStore создаёт пустое in-memory хранилище для локальной разработки и тестов.
func NewStore() *Store {
	return &Store{
		orders:    make(map[string]domain.Order),
		queues:    make(map[string]domain.Queue),
		entries:   make(map[string]domain.QueueEntry),
		byQueue:   make(map[string]map[string]struct{}),
		byOrder:   make(map[string][]string),
		customers: make(map[string]domain.Customer),
		shops:     make(map[string]domain.Shop),
		menu:      make(map[string]domain.MenuItem),
		outbox:    newOutboxRepository(),
		timeline:  newTimelineRepository(),
		idem:      newIdempotencyRepository(),
		locks:     make(map[string]chan struct{}),
	}
}

// WithinQueue выполняет fn в эксклюзивной секции очереди. Секции разных очередей не пересекаются.
// Для неизвестной очереди возвращает domain.ErrQueueNotFound.
func (s *Store) WithinQueue(ctx context.Context, queueID string, fn func(ctx context.Context, tx domain.Tx) error) error {
	lock, err := s.queueLock(queueID)
	if err != nil {
		return err
	}
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	return s.run(ctx, queueID, fn)
}

// Within выполняет fn в единице работы без блокировки очереди.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.run(ctx, "", fn)
}

// Outbox возвращает репозиторий outbox для воркера публикации.
func (s *Store) Outbox() domain.OutboxRepository {
	return s.outbox
}

// Idempotency возвращает хранилище ключей идемпотентности HTTP-запросов.
func (s *Store) Idempotency() domain.IdempotencyRepository {
	return s.idem
}

func (s *Store) run(ctx context.Context, queueID string, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uow := newUnitOfWork(s, queueID)
	if err := fn(ctx, uow); err != nil {
		return err
	}
	return uow.commit()
}

// queueLock создаёт замок только для существующей очереди, иначе карта замков растёт на чужих id.
func (s *Store) queueLock(queueID string) (chan struct{}, error) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, ok := s.locks[queueID]; ok {
		return lock, nil
	}

	s.mu.RLock()
	_, exists := s.queues[queueID]
	s.mu.RUnlock()
	if !exists {
		return nil, domain.ErrQueueNotFound
	}

	lock := make(chan struct{}, 1)
	s.locks[queueID] = lock
	return lock, nil
}

var _ domain.Store = (*Store)(nil)

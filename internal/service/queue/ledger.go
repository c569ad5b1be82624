package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
	"github.com/vladislavdragonenkov/shopqueue/internal/metrics"
)

// LedgerOption настраивает Ledger.
type LedgerOption func(*Ledger)

// WithLogger задаёт logger леджера.
func WithLogger(logger *log.Entry) LedgerOption {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics включает метрики леджера.
func WithMetrics(m *metrics.QueueMetrics) LedgerOption {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithClock подменяет источник времени (используется в тестах).
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// Ledger — единственный писатель позиций и заполненности очередей.
// Все методы работают внутри единицы работы, удерживающей эксклюзивную секцию очереди.
type Ledger struct {
	logger  *log.Entry
	metrics *metrics.QueueMetrics
	now     func() time.Time
}

// NewLedger создаёт леджер.
func NewLedger(options ...LedgerOption) *Ledger {
	l := &Ledger{
		logger: log.WithField("component", "ledger"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Append ставит заказ в хвост очереди: позиция occupancy+1, заполненность +1.
func (l *Ledger) Append(ctx context.Context, tx domain.Tx, queueID, orderID, customerID string, avgMinutes int) (domain.QueueEntry, error) {
	start := time.Now()
	defer l.observe("append", start)

	if err := requireLock(tx, queueID); err != nil {
		return domain.QueueEntry{}, err
	}

	q, err := tx.Queues().Get(ctx, queueID)
	if err != nil {
		return domain.QueueEntry{}, err
	}
	if !q.Active {
		return domain.QueueEntry{}, domain.ErrQueueInactive
	}
	if q.Full() {
		return domain.QueueEntry{}, domain.ErrQueueFull
	}

	active, err := tx.Entries().ListActive(ctx, queueID)
	if err != nil {
		return domain.QueueEntry{}, fmt.Errorf("list active entries: %w", err)
	}
	if err := checkEntries(q, active); err != nil {
		return domain.QueueEntry{}, err
	}

	position := q.Occupancy + 1
	wait, err := Estimate(position, avgMinutes)
	if err != nil {
		return domain.QueueEntry{}, err
	}

	// Время присоединения не убывает вдоль очереди, даже если часы сдвинулись назад.
	now := l.now()
	if n := len(active); n > 0 && now.Before(active[n-1].JoinedAt) {
		now = active[n-1].JoinedAt
	}
	entry, err := domain.NewQueueEntry(uuid.NewString(), queueID, orderID, customerID, position, wait, now)
	if err != nil {
		return domain.QueueEntry{}, err
	}
	if err := tx.Entries().Create(ctx, entry); err != nil {
		return domain.QueueEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	if err := tx.Queues().UpdateOccupancy(ctx, queueID, position, now); err != nil {
		return domain.QueueEntry{}, fmt.Errorf("update occupancy: %w", err)
	}

	if l.metrics != nil {
		l.metrics.SetOccupancy(queueID, position)
	}
	l.logger.WithFields(log.Fields{
		"queue_id": queueID,
		"order_id": orderID,
		"position": position,
	}).Debug("entry appended")

	return entry, nil
}

// Remove деактивирует запись, уменьшает заполненность и сдвигает все записи позади неё на одну позицию.
// Возвращает количество перенумерованных записей.
func (l *Ledger) Remove(ctx context.Context, tx domain.Tx, entry domain.QueueEntry, avgMinutes int) (int, error) {
	start := time.Now()
	defer l.observe("remove", start)

	if err := requireLock(tx, entry.QueueID); err != nil {
		return 0, err
	}
	if !entry.Active {
		return 0, domain.ErrEntryNotActive
	}

	q, err := tx.Queues().Get(ctx, entry.QueueID)
	if err != nil {
		return 0, err
	}
	occupancy := q.Occupancy - 1
	if occupancy < 0 {
		return 0, domain.ErrNegativeOccupancy
	}

	active, err := tx.Entries().ListActive(ctx, entry.QueueID)
	if err != nil {
		return 0, fmt.Errorf("list active entries: %w", err)
	}
	if err := checkEntries(q, active); err != nil {
		return 0, err
	}

	var (
		removed domain.QueueEntry
		found   bool
	)
	for _, e := range active {
		if e.ID == entry.ID {
			removed, found = e.Clone(), true
			break
		}
	}
	if !found {
		return 0, domain.ErrEntryNotActive
	}

	now := l.now()
	removed.Active = false
	removed.LeftAt = &now
	if err := tx.Entries().Update(ctx, removed); err != nil {
		return 0, fmt.Errorf("deactivate entry: %w", err)
	}

	// Сдвиг идёт по возрастанию позиции: освобождённое место всегда занято не более чем одной записью.
	renumbered := 0
	for _, e := range active {
		if e.Position <= removed.Position {
			continue
		}
		e.Position--
		wait, err := Estimate(e.Position, avgMinutes)
		if err != nil {
			return 0, err
		}
		e.EstimatedWaitMinutes = wait
		if err := tx.Entries().Update(ctx, e); err != nil {
			return 0, fmt.Errorf("renumber entry %s: %w", e.ID, err)
		}
		renumbered++
	}

	if err := tx.Queues().UpdateOccupancy(ctx, entry.QueueID, occupancy, now); err != nil {
		return 0, fmt.Errorf("update occupancy: %w", err)
	}
	if err := l.Verify(ctx, tx, entry.QueueID); err != nil {
		return 0, err
	}

	if l.metrics != nil {
		l.metrics.SetOccupancy(entry.QueueID, occupancy)
		l.metrics.RecordRenumbered(renumbered)
	}
	l.logger.WithFields(log.Fields{
		"queue_id":   entry.QueueID,
		"order_id":   entry.OrderID,
		"position":   removed.Position,
		"renumbered": renumbered,
	}).Debug("entry removed")

	return renumbered, nil
}

// PositionOf возвращает активную запись заказа и общее число активных записей в её очереди.
func (l *Ledger) PositionOf(ctx context.Context, tx domain.Tx, orderID string) (domain.QueueEntry, int, error) {
	entry, err := tx.Entries().GetActiveByOrder(ctx, orderID)
	if err != nil {
		return domain.QueueEntry{}, 0, err
	}
	active, err := tx.Entries().ListActive(ctx, entry.QueueID)
	if err != nil {
		return domain.QueueEntry{}, 0, fmt.Errorf("list active entries: %w", err)
	}
	return entry, len(active), nil
}

// Verify проверяет инварианты очереди: заполненность равна числу активных записей,
// позиции образуют {1..occupancy} и следуют порядку присоединения.
func (l *Ledger) Verify(ctx context.Context, tx domain.Tx, queueID string) error {
	q, err := tx.Queues().Get(ctx, queueID)
	if err != nil {
		return err
	}
	active, err := tx.Entries().ListActive(ctx, queueID)
	if err != nil {
		return fmt.Errorf("list active entries: %w", err)
	}
	if err := checkEntries(q, active); err != nil {
		l.logger.WithError(err).WithField("queue_id", queueID).Error("queue invariant broken")
		return err
	}
	return nil
}

func (l *Ledger) observe(operation string, start time.Time) {
	if l.metrics != nil {
		l.metrics.RecordLedgerDuration(operation, time.Since(start))
	}
}

func requireLock(tx domain.Tx, queueID string) error {
	if tx == nil || queueID == "" || tx.LockedQueueID() != queueID {
		return domain.ErrQueueNotLocked
	}
	return nil
}

// checkEntries ожидает активные записи, отсортированные по позиции.
func checkEntries(q domain.Queue, active []domain.QueueEntry) error {
	if q.Occupancy < 0 {
		return domain.ErrNegativeOccupancy
	}
	if len(active) != q.Occupancy {
		return fmt.Errorf("%w: occupancy=%d active=%d", domain.ErrOccupancyMismatch, q.Occupancy, len(active))
	}
	for i, e := range active {
		if e.Position != i+1 {
			return fmt.Errorf("%w: expected position %d, got %d", domain.ErrPositionGap, i+1, e.Position)
		}
		if i > 0 && e.JoinedAt.Before(active[i-1].JoinedAt) {
			return domain.ErrJoinOrder
		}
	}
	return nil
}

package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
	"github.com/vladislavdragonenkov/shopqueue/internal/metrics"
	"github.com/vladislavdragonenkov/shopqueue/internal/service/queue"
)

const (
	opCreate   = "create"
	opCancel   = "cancel"
	opComplete = "complete"
	opPosition = "position"
)

// Option настраивает Manager.
type Option func(*Manager)

// WithLogger задаёт logger менеджера.
func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics включает метрики операций жизненного цикла.
func WithMetrics(qm *metrics.QueueMetrics) Option {
	return func(m *Manager) {
		m.metrics = qm
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager управляет жизненным циклом заказа: создание, отмена, выдача и запрос позиции.
// Все изменения очереди проходят через Ledger внутри эксклюзивной секции очереди.
type Manager struct {
	store   domain.Store
	catalog domain.ShopCatalog
	ledger  *queue.Ledger
	policy  queue.AssignmentPolicy
	logger  *log.Entry
	metrics *metrics.QueueMetrics
	now     func() time.Time
}

// NewManager создаёт менеджер жизненного цикла заказов.
func NewManager(store domain.Store, catalog domain.ShopCatalog, ledger *queue.Ledger, options ...Option) *Manager {
	m := &Manager{
		store:   store,
		catalog: catalog,
		ledger:  ledger,
		logger:  log.WithField("component", "lifecycle"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(m)
	}
	if m.ledger == nil {
		m.ledger = queue.NewLedger(queue.WithLogger(m.logger.WithField("component", "ledger")), queue.WithMetrics(m.metrics))
	}
	return m
}

// CreateOrder создаёт заказ и ставит его в хвост выбранной очереди.
func (m *Manager) CreateOrder(ctx context.Context, in CreateOrderInput) (view OrderView, err error) {
	defer func() { m.record(opCreate, err) }()

	shop, items, total, err := m.priceItems(ctx, in)
	if err != nil {
		return OrderView{}, err
	}

	var (
		customer domain.Customer
		target   domain.Queue
	)
	err = m.store.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		if customer, err = tx.Customers().Get(ctx, in.CustomerID); err != nil {
			return err
		}
		target, err = m.policy.Resolve(ctx, tx.Queues(), shop, in.QueueID)
		return err
	})
	if err != nil {
		return OrderView{}, err
	}

	now := m.now()
	order := domain.Order{
		ID:         uuid.NewString(),
		Number:     newOrderNumber(now),
		CustomerID: customer.ID,
		ShopID:     shop.ID,
		QueueID:    target.ID,
		Status:     domain.OrderStatusInQueue,
		Notes:      in.Notes,
		TotalMinor: total,
		Items:      items,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return OrderView{}, errors.Join(errs...)
	}

	var entry domain.QueueEntry
	err = m.store.WithinQueue(ctx, target.ID, func(ctx context.Context, tx domain.Tx) error {
		var err error
		entry, err = m.ledger.Append(ctx, tx, target.ID, order.ID, order.CustomerID, shop.AveragePrepMinutes)
		if err != nil {
			return err
		}
		order.EstimatedWaitMinutes = entry.EstimatedWaitMinutes

		if err := tx.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := tx.Customers().RecordOrderPlaced(ctx, order.CustomerID); err != nil {
			return err
		}
		if err := m.appendTimeline(ctx, tx, order.ID, domain.TimelineOrderCreated, "", now); err != nil {
			return err
		}
		reason := fmt.Sprintf("queue %s position %d", target.ID, entry.Position)
		if err := m.appendTimeline(ctx, tx, order.ID, domain.TimelineQueueJoined, reason, now); err != nil {
			return err
		}
		return m.emit(ctx, tx, domain.AggregateOrder, order.ID, domain.EventOrderCreated, orderPayload(order, entry.Position, now))
	})
	if err != nil {
		return OrderView{}, err
	}

	m.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"queue_id": target.ID,
		"position": entry.Position,
	}).Info("order created")

	position := entry.Position
	return buildView(order, customer.Name, shop.Name, target.Name, &position), nil
}

// CancelOrder отменяет заказ владельца. Если заказ стоит в очереди, запись удаляется через Ledger.
func (m *Manager) CancelOrder(ctx context.Context, customerID, orderID string) (view OrderView, err error) {
	defer func() { m.record(opCancel, err) }()

	err = m.withOrder(ctx, orderID, func(ctx context.Context, tx domain.Tx, order domain.Order) error {
		if order.CustomerID != customerID {
			return domain.ErrNotOrderOwner
		}
		if !order.Status.CanCancel() {
			return fmt.Errorf("%w: order status is %s", domain.ErrOrderNotCancellable, order.Status)
		}

		now := m.now()
		queueID := order.QueueID
		if queueID != "" {
			entry, err := tx.Entries().GetActiveByOrder(ctx, order.ID)
			switch {
			case err == nil:
				if err := m.leave(ctx, tx, order, entry, now); err != nil {
					return err
				}
			case !errors.Is(err, domain.ErrQueueEntryNotFound):
				return err
			}
		}

		order.Status = domain.OrderStatusCancelled
		order.CancelledAt = &now
		order.UpdatedAt = now
		order.QueueID = ""
		if err := tx.Orders().Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		if err := m.appendTimeline(ctx, tx, order.ID, domain.TimelineCancelled, "cancelled by customer", now); err != nil {
			return err
		}
		if err := m.emit(ctx, tx, domain.AggregateOrder, order.ID, domain.EventOrderCancelled, orderPayload(order, 0, now)); err != nil {
			return err
		}

		described, err := m.describe(ctx, tx, order, queueID, nil)
		view = described
		return err
	})
	if err != nil {
		return OrderView{}, err
	}

	m.logger.WithField("order_id", orderID).Info("order cancelled")
	return view, nil
}

// CompleteOrder выдаёт заказ, стоящий в очереди, и освобождает его место.
func (m *Manager) CompleteOrder(ctx context.Context, orderID string) (view OrderView, err error) {
	defer func() { m.record(opComplete, err) }()

	err = m.withOrder(ctx, orderID, func(ctx context.Context, tx domain.Tx, order domain.Order) error {
		if !order.Status.CanComplete() {
			return fmt.Errorf("%w: order status is %s", domain.ErrOrderNotServable, order.Status)
		}

		entry, err := tx.Entries().GetActiveByOrder(ctx, order.ID)
		if err != nil {
			return err
		}

		now := m.now()
		if err := m.leave(ctx, tx, order, entry, now); err != nil {
			return err
		}

		servedFrom := order.QueueID
		order.Status = domain.OrderStatusCompleted
		order.CompletedAt = &now
		order.UpdatedAt = now
		order.QueueID = ""
		if err := tx.Orders().Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		if err := tx.Customers().RecordOrderServed(ctx, order.CustomerID); err != nil {
			return err
		}
		if err := m.appendTimeline(ctx, tx, order.ID, domain.TimelineCompleted, "served", now); err != nil {
			return err
		}
		if err := m.emit(ctx, tx, domain.AggregateOrder, order.ID, domain.EventOrderCompleted, orderPayload(order, 0, now)); err != nil {
			return err
		}

		described, err := m.describe(ctx, tx, order, servedFrom, nil)
		view = described
		return err
	})
	if err != nil {
		return OrderView{}, err
	}

	m.logger.WithField("order_id", orderID).Info("order completed")
	return view, nil
}

// GetQueuePosition возвращает текущую позицию заказа владельца и число активных записей в очереди.
func (m *Manager) GetQueuePosition(ctx context.Context, customerID, orderID string) (pos QueuePosition, err error) {
	defer func() { m.record(opPosition, err) }()

	err = m.withOrder(ctx, orderID, func(ctx context.Context, tx domain.Tx, order domain.Order) error {
		if order.CustomerID != customerID {
			return domain.ErrNotOrderOwner
		}
		if order.QueueID == "" {
			return fmt.Errorf("%w: order status is %s", domain.ErrOrderNotQueued, order.Status)
		}

		entry, total, err := m.ledger.PositionOf(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		q, err := tx.Queues().Get(ctx, entry.QueueID)
		if err != nil {
			return err
		}

		pos = QueuePosition{
			OrderID:              order.ID,
			OrderNumber:          order.Number,
			QueueID:              q.ID,
			QueueName:            q.Name,
			Position:             entry.Position,
			TotalActive:          total,
			EstimatedWaitMinutes: entry.EstimatedWaitMinutes,
			Status:               order.Status,
		}
		return nil
	})
	if err != nil {
		return QueuePosition{}, err
	}
	return pos, nil
}

// GetOrder возвращает снимок заказа владельца с актуальной позицией.
func (m *Manager) GetOrder(ctx context.Context, customerID, orderID string) (OrderView, error) {
	var view OrderView
	err := m.store.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.CustomerID != customerID {
			return domain.ErrNotOrderOwner
		}
		position, err := livePosition(ctx, tx, order)
		if err != nil {
			return err
		}
		view, err = m.describe(ctx, tx, order, order.QueueID, position)
		return err
	})
	if err != nil {
		return OrderView{}, err
	}
	return view, nil
}

// ListCustomerOrders возвращает заказы клиента, новые первыми.
func (m *Manager) ListCustomerOrders(ctx context.Context, customerID string) ([]OrderView, error) {
	return m.listOrders(ctx, func(ctx context.Context, orders domain.OrderRepository) ([]domain.Order, error) {
		return orders.ListByCustomer(ctx, customerID, 0)
	})
}

// ListCustomerShopOrders возвращает заказы клиента в одном магазине, новые первыми.
func (m *Manager) ListCustomerShopOrders(ctx context.Context, customerID, shopID string) ([]OrderView, error) {
	if _, err := m.catalog.GetShop(ctx, shopID); err != nil {
		return nil, err
	}
	return m.listOrders(ctx, func(ctx context.Context, orders domain.OrderRepository) ([]domain.Order, error) {
		return orders.ListByCustomerAndShop(ctx, customerID, shopID, 0)
	})
}

func (m *Manager) listOrders(ctx context.Context, load func(ctx context.Context, orders domain.OrderRepository) ([]domain.Order, error)) ([]OrderView, error) {
	var views []OrderView
	err := m.store.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		orders, err := load(ctx, tx.Orders())
		if err != nil {
			return err
		}
		views = make([]OrderView, 0, len(orders))
		for _, order := range orders {
			position, err := livePosition(ctx, tx, order)
			if err != nil {
				return err
			}
			view, err := m.describe(ctx, tx, order, order.QueueID, position)
			if err != nil {
				return err
			}
			views = append(views, view)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// QueueOverview возвращает очередь и её активные записи (представление для персонала).
func (m *Manager) QueueOverview(ctx context.Context, queueID string) (QueueOverview, error) {
	var overview QueueOverview
	err := m.store.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		q, err := tx.Queues().Get(ctx, queueID)
		if err != nil {
			return err
		}
		entries, err := tx.Entries().ListActive(ctx, queueID)
		if err != nil {
			return err
		}
		overview = QueueOverview{Queue: q, Entries: entries, Full: q.Full()}
		return nil
	})
	if err != nil {
		return QueueOverview{}, err
	}
	return overview, nil
}

// withOrder перечитывает заказ внутри эксклюзивной секции его очереди (или обычной единицы работы,
// если заказ вне очереди) и передаёт свежий снимок в fn.
func (m *Manager) withOrder(ctx context.Context, orderID string, fn func(ctx context.Context, tx domain.Tx, order domain.Order) error) error {
	var queueID string
	err := m.store.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		queueID = order.QueueID
		return nil
	})
	if err != nil {
		return err
	}

	run := func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, order)
	}
	if queueID == "" {
		return m.store.Within(ctx, run)
	}
	return m.store.WithinQueue(ctx, queueID, run)
}

// leave удаляет запись заказа из очереди и публикует QueueRepositioned.
func (m *Manager) leave(ctx context.Context, tx domain.Tx, order domain.Order, entry domain.QueueEntry, now time.Time) error {
	shop, err := m.catalog.GetShop(ctx, order.ShopID)
	if err != nil {
		return err
	}

	renumbered, err := m.ledger.Remove(ctx, tx, entry, shop.AveragePrepMinutes)
	if err != nil {
		if errors.Is(err, domain.ErrInvariantViolation) {
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"queue_id": entry.QueueID,
			}).Error("queue removal aborted")
		}
		return err
	}

	q, err := tx.Queues().Get(ctx, entry.QueueID)
	if err != nil {
		return err
	}
	if renumbered > 0 {
		moved, err := tx.Entries().ListActive(ctx, entry.QueueID)
		if err != nil {
			return err
		}
		for _, e := range moved {
			if e.Position < entry.Position {
				continue
			}
			reason := fmt.Sprintf("position %d", e.Position)
			if err := m.appendTimeline(ctx, tx, e.OrderID, domain.TimelineQueueMoved, reason, now); err != nil {
				return err
			}
		}
		m.logger.WithFields(log.Fields{
			"queue_id":   entry.QueueID,
			"renumbered": renumbered,
		}).Debug("queue repositioned")
	}

	return m.emit(ctx, tx, domain.AggregateQueue, entry.QueueID, domain.EventQueueRepositioned, queueRepositionedPayload{
		QueueID:         entry.QueueID,
		RemovedOrderID:  order.ID,
		RemovedPosition: entry.Position,
		Renumbered:      renumbered,
		Occupancy:       q.Occupancy,
		OccurredAt:      now,
	})
}

func (m *Manager) priceItems(ctx context.Context, in CreateOrderInput) (domain.Shop, []domain.OrderItem, int64, error) {
	if len(in.Items) == 0 {
		return domain.Shop{}, nil, 0, domain.ErrItemsRequired
	}

	shop, err := m.catalog.GetShop(ctx, in.ShopID)
	if err != nil {
		return domain.Shop{}, nil, 0, err
	}
	if !shop.Active {
		return domain.Shop{}, nil, 0, domain.ErrShopInactive
	}

	items := make([]domain.OrderItem, 0, len(in.Items))
	var total int64
	for _, req := range in.Items {
		if req.Qty <= 0 {
			return domain.Shop{}, nil, 0, domain.ErrItemQtyInvalid
		}
		menuItem, err := m.catalog.GetMenuItem(ctx, req.MenuItemID)
		if err != nil {
			return domain.Shop{}, nil, 0, err
		}
		if menuItem.ShopID != shop.ID {
			return domain.Shop{}, nil, 0, fmt.Errorf("%w: %s", domain.ErrMenuItemForeignShop, menuItem.Name)
		}
		if !menuItem.Available {
			return domain.Shop{}, nil, 0, fmt.Errorf("%w: %s", domain.ErrMenuItemUnavailable, menuItem.Name)
		}

		subtotal := menuItem.PriceMinor * int64(req.Qty)
		total += subtotal
		items = append(items, domain.OrderItem{
			ID:             uuid.NewString(),
			MenuItemID:     menuItem.ID,
			MenuItemName:   menuItem.Name,
			Qty:            req.Qty,
			UnitPriceMinor: menuItem.PriceMinor,
			SubtotalMinor:  subtotal,
			Notes:          req.Notes,
		})
	}
	return shop, items, total, nil
}

// describe собирает снимок заказа; отсутствующие справочные записи дают пустые имена.
func (m *Manager) describe(ctx context.Context, tx domain.Tx, order domain.Order, queueID string, position *int) (OrderView, error) {
	var customerName, shopName, queueName string

	customer, err := tx.Customers().Get(ctx, order.CustomerID)
	switch {
	case err == nil:
		customerName = customer.Name
	case !errors.Is(err, domain.ErrNotFound):
		return OrderView{}, err
	}

	shop, err := m.catalog.GetShop(ctx, order.ShopID)
	switch {
	case err == nil:
		shopName = shop.Name
	case !errors.Is(err, domain.ErrNotFound):
		return OrderView{}, err
	}

	if queueID != "" {
		q, err := tx.Queues().Get(ctx, queueID)
		switch {
		case err == nil:
			queueName = q.Name
		case !errors.Is(err, domain.ErrNotFound):
			return OrderView{}, err
		}
	}

	view := buildView(order, customerName, shopName, queueName, position)
	view.QueueID = queueID
	return view, nil
}

func (m *Manager) appendTimeline(ctx context.Context, tx domain.Tx, orderID, eventType, reason string, at time.Time) error {
	err := tx.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: at,
	})
	if err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	if m.metrics != nil {
		m.metrics.RecordTimelineEvent()
	}
	return nil
}

func (m *Manager) emit(ctx context.Context, tx domain.Tx, aggregateType, aggregateID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	msg := domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	if m.metrics != nil {
		m.metrics.RecordOutboxEvent()
	}
	return nil
}

func (m *Manager) record(operation string, err error) {
	if m.metrics == nil {
		return
	}
	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
		if kind := domain.KindOf(err); kind != nil && kind != domain.ErrInvariantViolation {
			result = metrics.ResultRejected
		}
	}
	m.metrics.RecordOperation(operation, result)
}

func livePosition(ctx context.Context, tx domain.Tx, order domain.Order) (*int, error) {
	if order.QueueID == "" {
		return nil, nil
	}
	entry, err := tx.Entries().GetActiveByOrder(ctx, order.ID)
	if errors.Is(err, domain.ErrQueueEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	position := entry.Position
	return &position, nil
}

func buildView(order domain.Order, customerName, shopName, queueName string, position *int) OrderView {
	order = order.Clone()
	return OrderView{
		ID:                   order.ID,
		Number:               order.Number,
		CustomerID:           order.CustomerID,
		CustomerName:         customerName,
		ShopID:               order.ShopID,
		ShopName:             shopName,
		QueueID:              order.QueueID,
		QueueName:            queueName,
		Status:               order.Status,
		TotalMinor:           order.TotalMinor,
		EstimatedWaitMinutes: order.EstimatedWaitMinutes,
		Position:             position,
		Items:                order.Items,
		Notes:                order.Notes,
		CreatedAt:            order.CreatedAt,
		UpdatedAt:            order.UpdatedAt,
		CompletedAt:          order.CompletedAt,
		CancelledAt:          order.CancelledAt,
	}
}

func orderPayload(order domain.Order, position int, at time.Time) orderEventPayload {
	return orderEventPayload{
		OrderID:              order.ID,
		OrderNumber:          order.Number,
		CustomerID:           order.CustomerID,
		ShopID:               order.ShopID,
		QueueID:              order.QueueID,
		Status:               string(order.Status),
		Position:             position,
		EstimatedWaitMinutes: order.EstimatedWaitMinutes,
		TotalMinor:           order.TotalMinor,
		OccurredAt:           at,
	}
}

// newOrderNumber формирует номер вида ORD-<unix millis>-<8 hex>.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), strings.ToUpper(uuid.NewString()[:8]))
}

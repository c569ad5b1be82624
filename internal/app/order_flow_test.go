package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
	"github.com/vladislavdragonenkov/shopqueue/internal/metrics"
	"github.com/vladislavdragonenkov/shopqueue/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/shopqueue/internal/service/outbox"
	"github.com/vladislavdragonenkov/shopqueue/internal/service/queue"
)

// OrderFlowSuite прогоняет заказы через менеджер на демо-фикстурах и outbox worker.
type OrderFlowSuite struct {
	suite.Suite

	ctx       context.Context
	cancel    context.CancelFunc
	deps      *runtimeDependencies
	manager   *lifecycle.Manager
	publisher *recordingPublisher
	dlq       *recordingPublisher
	done      chan struct{}
}

func TestOrderFlow(t *testing.T) {
	suite.Run(t, new(OrderFlowSuite))
}

func (s *OrderFlowSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "flow-test")

	s.ctx, s.cancel = context.WithCancel(context.Background())

	deps, err := initRuntimeDependencies(s.ctx, DefaultConfig(), logger)
	s.Require().NoError(err)
	s.deps = deps

	queueMetrics := metrics.NewQueueMetricsWithRegisterer(prometheus.NewRegistry())
	s.manager = lifecycle.NewManager(deps.store, deps.catalog,
		queue.NewLedger(queue.WithLogger(logger), queue.WithMetrics(queueMetrics)),
		lifecycle.WithLogger(logger),
		lifecycle.WithMetrics(queueMetrics),
	)

	s.publisher = &recordingPublisher{}
	s.dlq = &recordingPublisher{}
	worker := outbox.NewWorker(deps.outboxRepo, s.publisher,
		outbox.WithLogger(logger),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())),
		outbox.WithDLQPublisher(s.dlq),
		outbox.WithPollInterval(5*time.Millisecond),
		outbox.WithMaxAttempts(2),
		outbox.WithRetryBaseDelay(0),
	)

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		worker.Run(s.ctx)
	}()
}

func (s *OrderFlowSuite) TearDownTest() {
	shutdownWorker(s.cancel, s.done, log.WithField("test", "flow"))
}

func (s *OrderFlowSuite) TestServeMovesNextCustomerUp() {
	first := s.place("alice")
	second := s.place("bob")
	s.Require().NotNil(second.Position)
	s.Equal(2, *second.Position)

	served, err := s.manager.CompleteOrder(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCompleted, served.Status)

	pos, err := s.manager.GetQueuePosition(s.ctx, "bob", second.ID)
	s.Require().NoError(err)
	s.Equal(1, pos.Position)
	s.Equal(1, pos.TotalActive)

	events := s.waitForEvents(4, time.Second)
	s.Equal([]string{
		domain.EventOrderCreated,
		domain.EventOrderCreated,
		domain.EventQueueRepositioned,
		domain.EventOrderCompleted,
	}, eventTypes(events))
	s.Equal(domain.AggregateQueue, events[2].AggregateType)
	s.Equal("downtown-q1", events[2].AggregateID)
	s.Zero(s.dlq.count())
}

func (s *OrderFlowSuite) TestCancelFreesSlot() {
	first := s.place("alice")
	second := s.place("bob")

	cancelled, err := s.manager.CancelOrder(s.ctx, "alice", first.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCancelled, cancelled.Status)

	overview, err := s.manager.QueueOverview(s.ctx, "downtown-q1")
	s.Require().NoError(err)
	s.Require().Len(overview.Entries, 1)
	s.Equal(second.ID, overview.Entries[0].OrderID)
	s.Equal(1, overview.Entries[0].Position)
	s.Equal(1, overview.Queue.Occupancy)

	events := s.waitForEvents(4, time.Second)
	s.Contains(eventTypes(events), domain.EventOrderCancelled)

	_, err = s.manager.CancelOrder(s.ctx, "alice", first.ID)
	s.ErrorIs(err, domain.ErrOrderNotCancellable)
}

func (s *OrderFlowSuite) TestBrokerFailureGoesToDLQ() {
	s.publisher.fail(errors.New("broker down"))

	order := s.place("alice")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && s.dlq.count() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	s.Require().Equal(1, s.dlq.count())
	s.Equal(order.ID, s.dlq.all()[0].AggregateID)

	s.Eventually(func() bool {
		pending, err := s.deps.outboxRepo.PullPending(s.ctx, 10)
		return err == nil && len(pending) == 0
	}, time.Second, 5*time.Millisecond)
}

func (s *OrderFlowSuite) place(customerID string) lifecycle.OrderView {
	view, err := s.manager.CreateOrder(s.ctx, lifecycle.CreateOrderInput{
		CustomerID: customerID,
		ShopID:     "shop-downtown",
		QueueID:    "downtown-q1",
		Items:      []lifecycle.ItemInput{{MenuItemID: "downtown-latte", Qty: 1}},
	})
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusInQueue, view.Status)
	return view
}

func (s *OrderFlowSuite) waitForEvents(n int, timeout time.Duration) []domain.OutboxMessage {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.publisher.count() >= n {
			return s.publisher.all()
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.T().Fatalf("expected %d published events within %v, got %d", n, timeout, s.publisher.count())
	return nil
}

func eventTypes(events []domain.OutboxMessage) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	return types
}

type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	events []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, msg)
	return nil
}

func (p *recordingPublisher) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *recordingPublisher) all() []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OutboxMessage(nil), p.events...)
}

package httpsvc

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
	"github.com/vladislavdragonenkov/shopqueue/internal/metrics"
	"github.com/vladislavdragonenkov/shopqueue/internal/service/lifecycle"
)

const shutdownTimeout = 10 * time.Second

// OrderService — операции жизненного цикла заказа, которые обслуживает HTTP API.
type OrderService interface {
	CreateOrder(ctx context.Context, in lifecycle.CreateOrderInput) (lifecycle.OrderView, error)
	CancelOrder(ctx context.Context, customerID, orderID string) (lifecycle.OrderView, error)
	CompleteOrder(ctx context.Context, orderID string) (lifecycle.OrderView, error)
	GetQueuePosition(ctx context.Context, customerID, orderID string) (lifecycle.QueuePosition, error)
	GetOrder(ctx context.Context, customerID, orderID string) (lifecycle.OrderView, error)
	ListCustomerOrders(ctx context.Context, customerID string) ([]lifecycle.OrderView, error)
	ListCustomerShopOrders(ctx context.Context, customerID, shopID string) ([]lifecycle.OrderView, error)
	QueueOverview(ctx context.Context, queueID string) (lifecycle.QueueOverview, error)
}

// Server — HTTP API очереди заказов на gin.
type Server struct {
	engine     *gin.Engine
	orders     OrderService
	logger     *log.Entry
	jwtSecret  []byte
	staffToken string

	idem        domain.IdempotencyRepository
	idemMetrics *metrics.IdempotencyMetrics
}

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт логгер сервера.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithJWTSecret включает проверку Bearer-токенов HS256; subject токена считается id клиента.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.jwtSecret = []byte(secret)
		}
	}
}

// WithStaffToken требует заголовок X-Staff-Token на маршрутах персонала.
func WithStaffToken(token string) Option {
	return func(s *Server) {
		s.staffToken = token
	}
}

// WithIdempotency включает повтор ответов по заголовку Idempotency-Key на изменяющих маршрутах.
func WithIdempotency(repo domain.IdempotencyRepository, m *metrics.IdempotencyMetrics) Option {
	return func(s *Server) {
		s.idem = repo
		s.idemMetrics = m
	}
}

// NewServer собирает gin-движок с маршрутами API.
func NewServer(orders OrderService, options ...Option) *Server {
	s := &Server{
		orders: orders,
		logger: log.WithField("component", "http"),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.idem != nil && s.idemMetrics == nil {
		s.idemMetrics = metrics.NewIdempotencyMetrics()
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.Use(gin.Recovery(), s.requestLogger())
	s.engine = engine
	s.routes()

	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")

	orders := api.Group("/orders", s.customerIdentity())
	orders.POST("", s.idempotent(), s.createOrder)
	orders.GET("", s.listOrders)
	orders.GET("/shop/:shopId", s.listShopOrders)
	orders.GET("/:id", s.getOrder)
	orders.POST("/:id/cancel", s.idempotent(), s.cancelOrder)
	orders.GET("/:id/queue", s.queuePosition)

	staff := api.Group("/staff", s.staffOnly())
	staff.POST("/orders/:id/serve", s.idempotent(), s.serveOrder)
	staff.GET("/queues/:id", s.queueOverview)
}

// Handler возвращает http.Handler для встраивания в http.Server или httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve слушает адрес до отмены контекста, затем корректно завершает соединения.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.WithField("addr", addr).Info("http server starting")
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server is shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/shopqueue/internal/health"
	"github.com/vladislavdragonenkov/shopqueue/internal/metrics"
	httpsvc "github.com/vladislavdragonenkov/shopqueue/internal/service/http"
	"github.com/vladislavdragonenkov/shopqueue/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shopqueue/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/shopqueue/internal/service/outbox"
	"github.com/vladislavdragonenkov/shopqueue/internal/service/queue"
	"github.com/vladislavdragonenkov/shopqueue/internal/version"
)

const (
	grpcStopTimeout    = 5 * time.Second
	healthSyncInterval = 5 * time.Second

	// grpcHealthService — имя сервиса в grpc.health.v1 для проверок оркестратора.
	grpcHealthService = "shopqueue.QueueService"
)

// Run поднимает хранилище, HTTP API, gRPC health, метрики и outbox worker и ждёт отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	pubs, err := initPublishers(cfg, logger)
	if err != nil {
		return err
	}
	defer pubs.close(logger)

	queueMetrics := metrics.NewQueueMetrics()
	ledger := queue.NewLedger(
		queue.WithLogger(log.WithField("component", "ledger")),
		queue.WithMetrics(queueMetrics),
	)
	manager := lifecycle.NewManager(deps.store, deps.catalog, ledger,
		lifecycle.WithLogger(log.WithField("component", "lifecycle")),
		lifecycle.WithMetrics(queueMetrics),
	)
	idemMetrics := metrics.NewIdempotencyMetrics()
	api := httpsvc.NewServer(manager,
		httpsvc.WithLogger(log.WithField("component", "http")),
		httpsvc.WithJWTSecret(cfg.JWTSecret),
		httpsvc.WithStaffToken(cfg.StaffToken),
		httpsvc.WithIdempotency(deps.idemRepo, idemMetrics),
	)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(deps.outboxRepo, cfg.OutboxMaxAge))
	if pubs.checker != nil {
		healthHandler.RegisterChecker("broker", pubs.checker)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	workerCtx, cancelWorker := context.WithCancel(runCtx)
	workerDone := startOutboxWorker(workerCtx, cfg, deps, pubs)
	defer shutdownWorker(cancelWorker, workerDone, logger)

	cleanupDone := startIdempotencyCleanup(workerCtx, cfg, deps, idemMetrics)
	defer shutdownWorker(cancelWorker, cleanupDone, logger)

	grpcServer, healthServer := newGRPCServer(logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go syncGRPCHealth(runCtx, healthServer, healthHandler)

	metricsSrv := startMetricsServer(runCtx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC health сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		errCh <- api.Serve(runCtx, cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
	case err = <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.WithError(err).Error("server stopped unexpectedly")
		}
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(grpcHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	stopGRPC(grpcServer, logger)
	cancelRun()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

func startOutboxWorker(ctx context.Context, cfg Config, deps *runtimeDependencies, pubs *publishers) <-chan struct{} {
	done := make(chan struct{})
	if pubs.main == nil {
		close(done)
		return done
	}

	options := []outbox.Option{
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if pubs.dlq != nil {
		options = append(options, outbox.WithDLQPublisher(pubs.dlq))
	}

	worker := outbox.NewWorker(deps.outboxRepo, pubs.main, options...)
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

func startIdempotencyCleanup(ctx context.Context, cfg Config, deps *runtimeDependencies, m *metrics.IdempotencyMetrics) <-chan struct{} {
	done := make(chan struct{})
	if deps.idemRepo == nil || cfg.IdempotencyCleanupInterval <= 0 {
		close(done)
		return done
	}

	worker := idempotency.NewCleanupWorker(deps.idemRepo,
		idempotency.WithLogger(log.WithField("component", "idempotency-cleanup")),
		idempotency.WithMetrics(m),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
	)
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

// shutdownWorker отменяет контекст фонового воркера и ждёт его завершения.
func shutdownWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(grpcStopTimeout):
		logger.Warn("background worker did not stop in time")
	}
}

func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcHealthService, healthpb.HealthCheckResponse_SERVING)

	// grpcurl и пробы оркестратора.
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

// syncGRPCHealth переносит результат HTTP health checks в статус grpc.health.v1.
func syncGRPCHealth(ctx context.Context, healthServer *health.Server, checks *healthcheck.Handler) {
	ticker := time.NewTicker(healthSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			overall, _ := checks.Run(ctx)
			status := healthpb.HealthCheckResponse_SERVING
			if overall == healthcheck.StatusUnhealthy {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			healthServer.SetServingStatus(grpcHealthService, status)
		}
	}
}

func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(grpcStopTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics и health-пробы.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}

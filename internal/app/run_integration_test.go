package app

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/shopqueue/internal/health"
	"github.com/vladislavdragonenkov/shopqueue/internal/metrics"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("SHOPQUEUE_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.SeedDemo = true

	ctx := context.Background()
	deps, err := initRuntimeDependencies(ctx, cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer deps.close(log.WithField("test", "postgres-init"))

	require.NotNil(t, deps.closeFn)
	assert.Equal(t, healthcheck.StatusHealthy, deps.storageChecker.Check(ctx).Status)

	shop, err := deps.catalog.GetShop(ctx, "shop-downtown")
	require.NoError(t, err)
	assert.Equal(t, 5, shop.AveragePrepMinutes)
}

func TestShutdownWorker(t *testing.T) {
	logger := log.WithField("test", "shutdown")

	cancelCalled := false
	done := make(chan struct{})
	close(done)
	shutdownWorker(func() { cancelCalled = true }, done, logger)
	assert.True(t, cancelCalled)

	shutdownWorker(nil, nil, logger)
}

func TestStartIdempotencyCleanup(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), log.WithField("test", "cleanup"))
	require.NoError(t, err)
	m := metrics.NewIdempotencyMetricsWithRegisterer(prometheus.NewRegistry())

	disabled := DefaultConfig()
	disabled.IdempotencyCleanupInterval = 0
	select {
	case <-startIdempotencyCleanup(context.Background(), disabled, deps, m):
	case <-time.After(time.Second):
		t.Fatal("disabled cleanup should finish immediately")
	}

	cfg := DefaultConfig()
	cfg.IdempotencyCleanupInterval = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := startIdempotencyCleanup(ctx, cfg, deps, m)
	shutdownWorker(cancel, done, log.WithField("test", "cleanup"))

	select {
	case <-done:
	default:
		t.Fatal("cleanup worker did not stop")
	}
}

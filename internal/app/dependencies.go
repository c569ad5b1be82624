package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/shopqueue/internal/health"
	"github.com/vladislavdragonenkov/shopqueue/internal/seed"
	"github.com/vladislavdragonenkov/shopqueue/internal/storage/memory"
	"github.com/vladislavdragonenkov/shopqueue/internal/storage/postgres"
)

// catalogStore — хранилище, которое одновременно отдаёт каталог и принимает фикстуры.
type catalogStore interface {
	domain.ShopCatalog
	domain.CatalogWriter
}

// runtimeDependencies — хранилище и всё, что из него выводится для запуска сервиса.
type runtimeDependencies struct {
	store          domain.Store
	catalog        catalogStore
	outboxRepo     domain.OutboxRepository
	idemRepo       domain.IdempotencyRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

// initRuntimeDependencies поднимает выбранное хранилище и применяет фикстуры.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	var deps *runtimeDependencies

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		store := memory.NewStore()
		deps = &runtimeDependencies{
			store:      store,
			catalog:    store,
			outboxRepo: store.Outbox(),
			idemRepo:   store.Idempotency(),
			storageChecker: healthcheck.NewSimpleChecker("storage", func(context.Context) error {
				return nil
			}),
		}
		logger.Info("using in-memory storage")

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires dsn")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		deps = &runtimeDependencies{
			store:          store,
			catalog:        store,
			outboxRepo:     store.Outbox(),
			idemRepo:       store.Idempotency(),
			storageChecker: healthcheck.NewSimpleChecker("storage", store.Ping),
			closeFn:        store.Close,
		}
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if err := applySeed(ctx, cfg, deps, logger); err != nil {
		deps.close(logger)
		return nil, err
	}
	return deps, nil
}

func applySeed(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	var (
		fx  seed.Fixtures
		err error
	)
	switch {
	case cfg.SeedFile != "":
		fx, err = seed.LoadFile(cfg.SeedFile)
	case cfg.SeedDemo:
		fx, err = seed.Default()
	default:
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := seed.Apply(ctx, deps.store, deps.catalog, fx, logger.WithField("component", "seed")); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	return nil
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

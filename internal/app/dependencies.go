package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orders/internal/health"
	"github.com/vladislavdragonenkov/orders/internal/storage/memory"
	"github.com/vladislavdragonenkov/orders/internal/storage/postgres"
)

// runtimeDependencies — репозитории выбранного драйвера хранения.
type runtimeDependencies struct {
	orders domain.OrderRepository
	users  domain.UserRepository
	items  domain.ItemRepository
	outbox domain.OutboxRepository

	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
		return
	}
	logger.Info("storage closed")
}

// initRuntimeDependencies открывает хранилище по cfg.StorageDriver и при необходимости
// применяет миграции и загружает справочник.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	var deps *runtimeDependencies
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		deps = &runtimeDependencies{
			orders: memory.NewOrderRepository(),
			users:  memory.NewUserRepository(),
			items:  memory.NewItemRepository(),
			outbox: memory.NewOutboxRepository(),
			storageChecker: healthcheck.NewSimpleChecker("storage", func(context.Context) error {
				return nil
			}),
		}
		logger.Info("using in-memory storage")

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", StorageDriverPostgres)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres schema: %w", err)
			}
			logger.Info("postgres schema is up to date")
		}
		deps = &runtimeDependencies{
			orders:         postgres.NewOrderRepository(store),
			users:          postgres.NewUserRepository(store),
			items:          postgres.NewItemRepository(store),
			outbox:         postgres.NewOutboxRepository(store),
			storageChecker: healthcheck.NewPingChecker("storage", store),
			closeFn:        store.Close,
		}
		logger.Info("using postgres storage")

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.SeedFile != "" {
		if err := seedCatalogFile(ctx, cfg.SeedFile, deps.users, deps.items, logger); err != nil {
			deps.close(logger)
			return nil, err
		}
	}

	return deps, nil
}

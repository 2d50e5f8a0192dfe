package container

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/spend-requests/internal/application/dispatcher"
	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/application/service"
	"github.com/garyjia/spend-requests/internal/application/store"
	"github.com/garyjia/spend-requests/internal/application/workflow"
	"github.com/garyjia/spend-requests/internal/infrastructure/export"
	"github.com/garyjia/spend-requests/internal/infrastructure/persistence/repository"
	"github.com/garyjia/spend-requests/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/spend-requests/internal/infrastructure/worker"
	httpapi "github.com/garyjia/spend-requests/internal/interfaces/http"
	"github.com/garyjia/spend-requests/pkg/database"
	"github.com/garyjia/spend-requests/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database and applies the embedded migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Request:      repository.NewRequestRepository(sqlDB, logger),
		History:      repository.NewHistoryRepository(sqlDB, logger),
		Event:        repository.NewEventRepository(sqlDB, logger),
		Sequence:     repository.NewSequenceRepository(sqlDB, logger),
		Idempotency:  repository.NewIdempotencyRepository(sqlDB, logger),
		SubRegistrar: repository.NewSubRegistrarRepository(sqlDB, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))),
	), nil
}

// ProvideWorkflowEngine creates the transition engine.
func ProvideWorkflowEngine(repos *RepositoryBundle, tx port.TransactionManager, disp dispatcher.Dispatcher, logger *zap.Logger) (workflow.Engine, error) {
	if repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}

	return workflow.NewEngine(
		repos.Request,
		repos.History,
		repos.Event,
		repos.Sequence,
		tx,
		workflow.WithDispatcher(disp),
		workflow.WithLogger(utils.NewKVLogger(logger.Named("workflow"))),
	), nil
}

// ProvideRequestService creates the request service with the register exporter.
func ProvideRequestService(repos *RepositoryBundle, tx port.TransactionManager, engine workflow.Engine, disp dispatcher.Dispatcher, logger *zap.Logger) (service.RequestService, error) {
	if engine == nil {
		return nil, fmt.Errorf("workflow engine is required")
	}

	return service.NewRequestService(
		repos.Request,
		repos.History,
		repos.Event,
		tx,
		engine,
		service.WithDispatcher(disp),
		service.WithExporter(export.NewRegisterExporter(logger.Named("export"))),
		service.WithLogger(utils.NewKVLogger(logger.Named("service"))),
	), nil
}

// ProvideSubRegistrarService creates the document collection service.
func ProvideSubRegistrarService(repos *RepositoryBundle, tx port.TransactionManager, logger *zap.Logger) (service.SubRegistrarService, error) {
	if repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}

	return service.NewSubRegistrarService(
		repos.Request,
		repos.SubRegistrar,
		repos.Event,
		tx,
		utils.NewKVLogger(logger.Named("sub_registrar")),
		nil,
	), nil
}

// ProvideStore creates the request store, fills it from persistence and
// subscribes it to request events.
func ProvideStore(ctx context.Context, svc service.RequestService, disp dispatcher.Dispatcher) (*store.Store, error) {
	st := store.New()

	items, err := svc.Summaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate request store: %w", err)
	}
	st.Replace(items)
	st.Register(disp)

	return st, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Config      *WorkerConfig
	Idempotency port.IdempotencyRepository
	Service     service.RequestService
	Store       *store.Store
	Logger      *zap.Logger
}

// ProvideWorkers creates the worker manager with the periodic maintenance workers.
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, error) {
	if deps == nil || deps.Config == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}

	m := worker.NewManager(deps.Logger)
	m.Register(worker.NewPeriodicWorker(
		worker.IdempotencySweeperName,
		deps.Config.IdempotencySweepInterval,
		worker.SweepIdempotencyKeys(deps.Idempotency, time.Now, deps.Logger),
		deps.Logger,
	))
	m.Register(worker.NewPeriodicWorker(
		worker.StoreRefresherName,
		deps.Config.StoreRefreshInterval,
		worker.RefreshStore(deps.Service, deps.Store),
		deps.Logger,
	))
	return m, nil
}

// ProvideHTTPServer creates the REST server.
func ProvideHTTPServer(cfg *ServerConfig, version string, svc service.RequestService, subs service.SubRegistrarService, st *store.Store, idem port.IdempotencyRepository, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(httpapi.ServerConfig{
		Host:           cfg.Host,
		Port:           cfg.Port,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Version:        version,
	}, svc, st, idem, utils.NewKVLogger(logger.Named("http")), httpapi.WithSubRegistrar(subs))
}

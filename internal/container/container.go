package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/spend-requests/internal/application/dispatcher"
	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/application/service"
	"github.com/garyjia/spend-requests/internal/application/store"
	"github.com/garyjia/spend-requests/internal/application/workflow"
	"github.com/garyjia/spend-requests/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/spend-requests/internal/infrastructure/worker"
	httpapi "github.com/garyjia/spend-requests/internal/interfaces/http"
	"github.com/garyjia/spend-requests/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	db           *database.DB
	tx           *sqlite.DB
	repositories *RepositoryBundle

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.Engine
	service    service.RequestService
	subs       service.SubRegistrarService
	store      *store.Store

	// Interfaces
	server  *httpapi.Server
	workers *worker.Manager

	mu     sync.Mutex
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Request      port.RequestRepository
	History      port.HistoryRepository
	Event        port.EventRepository
	Sequence     port.SequenceRepository
	Idempotency  port.IdempotencyRepository
	SubRegistrar port.SubRegistrarRepository
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components; call Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes every component and starts the workers. The HTTP server is
// built but not listening; call Run for that.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized", zap.String("path", c.config.Database.Path))

	if err := c.initApplication(ctx); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	c.logger.Info("Application initialized", zap.Int("requests", c.store.Len()))

	c.server = ProvideHTTPServer(&c.config.Server, c.config.Version, c.service, c.subs, c.store, c.repositories.Idempotency, c.logger)

	if err := c.initWorkers(ctx); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers started", zap.Int("count", c.workers.Count()))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Run serves HTTP until ctx is cancelled or the listener fails
func (c *Container) Run(ctx context.Context) error {
	if !c.ready.Load() {
		return fmt.Errorf("container is not started")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.server.Start(gctx)
	})
	return g.Wait()
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Swap(true) {
		return fmt.Errorf("container already closed")
	}
	c.ready.Store(false)

	c.logger.Info("Closing container")
	if c.cancel != nil {
		c.cancel()
	}

	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	if c.server != nil {
		if err := c.server.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return errors.Join(errs...)
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	if c.db == nil {
		set("database", false, "not initialized")
	} else if err := c.db.PingContext(ctx); err != nil {
		set("database", false, fmt.Sprintf("ping failed: %v", err))
	} else if v, err := database.NewMigrator(c.db, c.logger).Current(); err != nil {
		set("database", false, fmt.Sprintf("schema: %v", err))
	} else {
		set("database", true, fmt.Sprintf("schema v%d", v))
	}

	if c.workers == nil {
		set("workers", false, "not initialized")
	} else {
		set("workers", c.workers.IsRunning(), fmt.Sprintf("worker count: %d", c.workers.Count()))
	}

	if c.store == nil {
		set("store", false, "not initialized")
	} else {
		set("store", true, fmt.Sprintf("requests: %d", c.store.Len()))
	}

	set("dispatcher", c.dispatcher != nil, "")
	return status
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = bundle.DB
	c.tx = bundle.TransactionMgr

	repos, err := ProvideRepositories(c.db.DB, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initApplication(ctx context.Context) error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	engine, err := ProvideWorkflowEngine(c.repositories, c.tx, c.dispatcher, c.logger)
	if err != nil {
		return err
	}
	c.engine = engine

	svc, err := ProvideRequestService(c.repositories, c.tx, c.engine, c.dispatcher, c.logger)
	if err != nil {
		return err
	}
	c.service = svc

	subs, err := ProvideSubRegistrarService(c.repositories, c.tx, c.logger)
	if err != nil {
		return err
	}
	c.subs = subs

	st, err := ProvideStore(ctx, c.service, c.dispatcher)
	if err != nil {
		return err
	}
	c.store = st
	return nil
}

func (c *Container) initWorkers(ctx context.Context) error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Config:      &c.config.Worker,
		Idempotency: c.repositories.Idempotency,
		Service:     c.service,
		Store:       c.store,
		Logger:      c.logger.Named("worker"),
	})
	if err != nil {
		return err
	}
	c.workers = workers
	return c.workers.StartAll(ctx)
}

// Service returns the request service.
func (c *Container) Service() service.RequestService {
	return c.service
}

// SubRegistrar returns the document collection service.
func (c *Container) SubRegistrar() service.SubRegistrarService {
	return c.subs
}

// Store returns the in-memory request store.
func (c *Container) Store() *store.Store {
	return c.store
}

// Server returns the HTTP server.
func (c *Container) Server() *httpapi.Server {
	return c.server
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/dingsen2/micronutrient-radar/internal/config"
	"github.com/dingsen2/micronutrient-radar/internal/events"
	"github.com/dingsen2/micronutrient-radar/internal/platform/cache"
	"github.com/dingsen2/micronutrient-radar/internal/platform/gemini"
	"github.com/dingsen2/micronutrient-radar/internal/platform/postgres"
	"github.com/dingsen2/micronutrient-radar/internal/platform/storage"
	"github.com/dingsen2/micronutrient-radar/internal/service"
	"github.com/dingsen2/micronutrient-radar/internal/service/auth"
	"github.com/dingsen2/micronutrient-radar/internal/store"
	"github.com/dingsen2/micronutrient-radar/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores
	userStore        store.UserStore
	foodImageStore   store.FoodImageStore
	foodHistoryStore store.FoodHistoryStore
	ledgerStore      store.LedgerStore
	receiptStore     store.ReceiptStore
	taskStore        task.TaskStore
	transactor       store.Transactor

	// Infrastructure
	objects      storage.ObjectStore
	profileCache cache.NutrientCache
	llm          *gemini.Client

	// Services
	jwtService         auth.JWTService
	passwordVerifier   auth.PasswordVerifier
	userService        service.UserService
	foodImageService   service.FoodImageService
	nutrientService    service.NutrientEstimationService
	foodHistoryService service.FoodHistoryService
	receiptService     service.ReceiptService
	ledgerService      service.LedgerService
	taskService        service.TaskService

	// Event system and task handling
	eventEmitter *events.InMemoryEventEmitter
	taskRunner   *task.TaskRunner

	closers []io.Closer
}

// newApplication creates a new application instance with all dependencies
// initialized and the task runner started.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:     cfg,
		logger:     logger,
		db:         db,
		transactor: store.NewSQLTransactor(db),
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	app.passwordVerifier = auth.NewBcryptVerifier()
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	app.userStore = postgres.NewPostgresUserStore(db, cfg.Auth.BCryptCost, logger)
	app.foodImageStore = postgres.NewPostgresFoodImageStore(db, logger)
	app.foodHistoryStore = postgres.NewPostgresFoodHistoryStore(db, logger)
	app.ledgerStore = postgres.NewPostgresLedgerStore(db, logger)
	app.receiptStore = postgres.NewPostgresReceiptStore(db, logger)
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)

	if app.objects, err = newObjectStore(ctx, cfg.Storage); err != nil {
		return nil, err
	}
	if app.profileCache, err = app.newProfileCache(ctx); err != nil {
		return nil, err
	}

	app.llm, err = gemini.NewClient(ctx, logger.With("component", "gemini"), cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	logger.Info("Gemini client initialized", "model", app.llm.ModelName())

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)

	if err := app.setupServices(); err != nil {
		return nil, err
	}
	if err := app.setupTaskRunner(); err != nil {
		return nil, err
	}

	logger.Info("application initialized")
	return app, nil
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case "s3":
		s, err := storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		return s, nil
	default:
		s, err := storage.NewLocalStore(cfg.UploadDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		return s, nil
	}
}

// newProfileCache returns the Redis cache when a URL is configured and the
// in-process cache otherwise.
func (app *application) newProfileCache(ctx context.Context) (cache.NutrientCache, error) {
	cfg := app.config.Cache
	if cfg.RedisURL == "" {
		app.logger.Info("using in-memory nutrient cache", "ttl", cfg.TTL)
		return cache.NewMemoryCache(cfg.TTL), nil
	}

	rc, err := cache.NewRedisCache(cfg.RedisURL, cfg.TTL, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis cache: %w", err)
	}
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	app.closers = append(app.closers, rc)
	app.logger.Info("using redis nutrient cache", "ttl", cfg.TTL)
	return rc, nil
}

func (app *application) setupServices() error {
	var err error
	maxUpload := app.config.Storage.MaxUploadSize

	if app.userService, err = service.NewUserService(app.userStore, app.transactor, app.logger); err != nil {
		return fmt.Errorf("failed to create user service: %w", err)
	}

	app.foodImageService, err = service.NewFoodImageService(service.FoodImageDeps{
		Images:        app.foodImageStore,
		Transactor:    app.transactor,
		Objects:       app.objects,
		Recognizer:    app.llm,
		Emitter:       app.eventEmitter,
		MaxUploadSize: maxUpload,
	}, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create food image service: %w", err)
	}

	app.nutrientService, err = service.NewNutrientEstimationService(app.profileCache, app.llm, app.eventEmitter, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create nutrient estimation service: %w", err)
	}

	app.foodHistoryService, err = service.NewFoodHistoryService(
		app.foodHistoryStore,
		app.ledgerStore,
		app.foodImageStore,
		app.transactor,
		app.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create food history service: %w", err)
	}

	app.receiptService, err = service.NewReceiptService(service.ReceiptDeps{
		Receipts:      app.receiptStore,
		Transactor:    app.transactor,
		Objects:       app.objects,
		Reader:        app.llm,
		Emitter:       app.eventEmitter,
		MaxUploadSize: maxUpload,
	}, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create receipt service: %w", err)
	}

	if app.ledgerService, err = service.NewLedgerService(app.ledgerStore, app.transactor, app.logger); err != nil {
		return fmt.Errorf("failed to create ledger service: %w", err)
	}

	if app.taskService, err = service.NewTaskService(app.taskStore, app.logger); err != nil {
		return fmt.Errorf("failed to create task service: %w", err)
	}
	return nil
}

// setupTaskRunner registers the task factories, connects the event emitter
// to the runner and starts the workers. Unfinished tasks from the last run
// are loaded before Start returns and fed to the queues as room frees up.
func (app *application) setupTaskRunner() error {
	registry := task.NewRegistry()
	registry.Register(task.TaskTypeProcessFoodImage,
		task.NewProcessFoodImageFactory(app.foodImageService, app.nutrientService, app.ledgerService, app.logger))
	registry.Register(task.TaskTypeEstimateNutrients,
		task.NewEstimateNutrientsFactory(app.nutrientService, app.logger))
	registry.Register(task.TaskTypeProcessReceipt,
		task.NewProcessReceiptFactory(app.receiptService, app.logger))

	tc := app.config.Task
	app.taskRunner = task.NewTaskRunner(app.taskStore, registry, task.TaskRunnerConfig{
		Queues: map[string]int{
			task.QueueFoodImage: tc.FoodImageWorkers,
			task.QueueNutrients: tc.NutrientWorkers,
			task.QueueReceipts:  tc.ReceiptWorkers,
		},
		QueueSize:              tc.QueueSize,
		MaxRetries:             tc.MaxRetries,
		RetryDelay:             tc.RetryDelay,
		TimeLimit:              tc.TimeLimit,
		StuckTaskAge:           tc.StuckTaskAge,
		StuckTaskCheckInterval: tc.StuckCheckInterval,
	}, app.logger)

	app.eventEmitter.RegisterHandler(task.NewTaskFactoryEventHandler(registry, app.taskRunner, app.logger))

	if err := app.taskRunner.Start(); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}
	app.logger.Info("task runner started", "task_types", registry.Types())
	return nil
}

// Run serves HTTP until ctx is canceled, then shuts down.
func (app *application) Run(ctx context.Context) error {
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			app.logger.Error("error closing resource", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"commission_backend/database"
	"commission_backend/internal/config"
	"commission_backend/internal/events"
	"commission_backend/internal/handlers"
	"commission_backend/internal/logger"
	"commission_backend/internal/middleware"
	"commission_backend/internal/redis"
	"commission_backend/internal/repositories"
	"commission_backend/internal/routes"
	"commission_backend/internal/services"
	"commission_backend/internal/storage"
	"commission_backend/internal/validator"
	"commission_backend/internal/workers"
	"commission_backend/pkg/apperrors"
)

const shutdownTimeout = 15 * time.Second

// App holds everything the process owns so it can be shut down in order.
type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      *redis.Client
	Publisher  events.Publisher
	Dispatcher *services.Dispatcher
	Services   *services.ServiceContainer
	Archive    *workers.ArchiveWorker
	Router     *gin.Engine
}

func Run() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize application", "error", err)
	}
	defer a.Close()

	if cfg.Archive.Enabled {
		a.Archive.Start(ctx)
		logger.Info("Archive worker started", "interval_minutes", cfg.Archive.IntervalMinutes)
	}

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              address,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "address", address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server startup error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
}

// New connects the database and builds every component. Redis, Kafka and blob
// storage are optional; the features that need them degrade when absent.
func New(cfg *config.Config) (*App, error) {
	apperrors.SetDebug(cfg.Server.Debug && !cfg.IsProduction())

	db, err := OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	migrator, err := database.NewMigrator(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	defer migrator.Close()
	if err := migrator.Run(); err != nil {
		return nil, fmt.Errorf("run sql migrations: %w", err)
	}

	a := &App{Config: cfg, DB: db}

	if cfg.Redis.URL != "" {
		client, err := redis.Initialize(cfg.Redis.URL)
		if err != nil {
			logger.Warn("Redis unavailable, rate limiting and the scheduler lock are disabled", "error", err)
		} else {
			a.Redis = client
		}
	}

	blobs, backend, err := newBlobStore(cfg)
	if err != nil {
		return nil, err
	}

	a.Publisher = newPublisher(cfg)
	repos := repositories.NewRepositoryContainer()
	a.Dispatcher = services.NewDispatcher(db, repos.NotificationRepo, a.Publisher)

	defaults, err := services.CommerceDefaultsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.Services = services.NewServiceContainer(repos, blobs, a.Dispatcher, defaults)

	var locker workers.Locker
	if a.Redis != nil {
		locker = a.Redis
	}
	a.Archive = workers.NewArchiveWorker(db, repos, blobs, a.Dispatcher, locker, workers.ArchiveConfigFrom(cfg))

	a.Router = a.setupRouter(backend)
	return a, nil
}

// OpenDatabase opens the gorm connection pool and checks it is reachable.
func OpenDatabase(cfg *config.Config) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.Database.LogQueries {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(logger.GormWriter{}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB from gorm: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxOpenConns / 2)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database unavailable: %w", err)
	}
	logger.Info("Database connected")
	return db, nil
}

func newBlobStore(cfg *config.Config) (storage.BlobStore, storage.Storage, error) {
	backend, err := storage.NewStorage(storage.Config{
		Type:        cfg.Storage.Type,
		BasePath:    cfg.Storage.BasePath,
		BaseURL:     cfg.Storage.BaseURL,
		Bucket:      cfg.Storage.Bucket,
		Region:      cfg.Storage.Region,
		AccessKey:   cfg.Storage.AccessKey,
		SecretKey:   cfg.Storage.SecretKey,
		Endpoint:    cfg.Storage.Endpoint,
		PublicRead:  cfg.Storage.PublicRead,
		SupabaseURL: cfg.Storage.SupabaseURL,
		SupabaseKey: cfg.Storage.SupabaseKey,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize storage: %w", err)
	}
	if backend == nil {
		logger.Warn("No storage configured, plan uploads are disabled")
	} else {
		logger.Info("Storage initialized", "type", cfg.Storage.Type)
	}
	return storage.NewBlobStore(backend, cfg.Upload.MaxSize, cfg.Upload.AllowedTypes), backend, nil
}

func newPublisher(cfg *config.Config) events.Publisher {
	brokers := cfg.KafkaBrokers()
	if len(brokers) == 0 {
		return events.NoopPublisher{}
	}
	publisher, err := events.NewKafkaPublisher(brokers, cfg.Kafka.Topic)
	if err != nil {
		logger.Warn("Kafka publisher unavailable, order events are not published", "error", err)
		return events.NoopPublisher{}
	}
	logger.Info("Kafka publisher initialized", "brokers", brokers, "topic", cfg.Kafka.Topic)
	return publisher
}

func (a *App) setupRouter(backend storage.Storage) *gin.Engine {
	cfg := a.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.DBMiddleware(a.DB))

	if local, ok := backend.(*storage.LocalStorage); ok && strings.HasPrefix(cfg.Storage.BaseURL, "/") {
		router.Static(cfg.Storage.BaseURL, local.BasePath())
	}

	routes.RegisterRoutes(router, a.handlers(), cfg.JWT.Secret)
	return router
}

func (a *App) handlers() *handlers.AppHandlers {
	base := handlers.NewBaseHandler(validator.New())

	var (
		limiter gin.HandlerFunc
		pinger  handlers.Pinger
	)
	if a.Redis != nil {
		pinger = a.Redis
		if a.Config.RateLimit.Enabled {
			limiter = middleware.RateLimit(a.Redis, middleware.RateLimitConfig{
				Scope:    "ledger",
				Requests: a.Config.RateLimit.Requests,
				Window:   time.Duration(a.Config.RateLimit.WindowSeconds) * time.Second,
			})
		}
	}

	return &handlers.AppHandlers{
		OrderHandler:        handlers.NewOrderHandler(base, a.Services.OrderService),
		LedgerHandler:       handlers.NewLedgerHandler(base, a.Services.LedgerService, limiter),
		PlanHandler:         handlers.NewPlanHandler(base, a.Services.PlanService),
		AdminHandler:        handlers.NewAdminHandler(base, a.Services.SettingsService, a.Archive),
		NotificationHandler: handlers.NewNotificationHandler(base, a.Services.NotificationService),
		HealthHandler:       handlers.NewHealthHandler(a.DB, pinger),
	}
}

// Close waits for in-flight notifications and releases connections.
func (a *App) Close() {
	if a.Dispatcher != nil {
		a.Dispatcher.Wait()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			logger.Error("Failed to close publisher", "error", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Error("Failed to close redis", "error", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

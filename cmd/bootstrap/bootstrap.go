package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opd-token-allocation/config"
	deliveryHttp "opd-token-allocation/internal/delivery/http"
	"opd-token-allocation/internal/delivery/http/handler"
	"opd-token-allocation/internal/delivery/http/middleware"
	"opd-token-allocation/internal/domain/entity"
	domainRepo "opd-token-allocation/internal/domain/repository"
	"opd-token-allocation/internal/infrastructure/cache"
	"opd-token-allocation/internal/infrastructure/database"
	"opd-token-allocation/internal/infrastructure/telemetry"
	"opd-token-allocation/internal/repository"
	"opd-token-allocation/internal/seed"
	"opd-token-allocation/internal/service"
	"opd-token-allocation/internal/usecase"
	"opd-token-allocation/pkg/jwt"
	"opd-token-allocation/pkg/validator"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"
)

// App holds all dependencies for the application
type App struct {
	Config      *config.Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	Server      *http.Server

	repos      repositories
	queue      *service.SlotQueueService
	reconciler *service.QueueReconcileService

	shutdownTracing func(context.Context) error
}

type repositories struct {
	tokens   domainRepo.TokenRepository
	doctors  domainRepo.DoctorRepository
	patients domainRepo.PatientRepository
	events   domainRepo.TokenEventRepository
}

// LoadConfig reads configuration and builds the process logger from it.
func LoadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, NewLogger(cfg.App), nil
}

// NewLogger configures the logrus logger
func NewLogger(cfg config.AppConfig) *logrus.Logger {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// New connects to Postgres and Redis and wires every layer.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	app := &App{Config: cfg, Log: log}

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.DB, cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = db

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	app.RedisClient = redisClient

	app.repos = repositories{
		tokens:   repository.NewTokenRepository(db),
		doctors:  repository.NewDoctorRepository(db),
		patients: repository.NewPatientRepository(db),
		events:   repository.NewTokenEventRepository(db),
	}
	app.queue = service.NewSlotQueueService(redisClient, log, cfg.Engine)
	app.reconciler = service.NewQueueReconcileService(redisClient, log, app.repos.tokens, app.queue)

	return app, nil
}

// initializeServer creates and configures the HTTP server
func (app *App) initializeServer() *http.Server {
	cfg, log := app.Config, app.Log

	// Initialize services
	capacity := service.NewSlotCapacityService(app.RedisClient, log, app.repos.tokens, cfg.Engine)
	events := service.NewTokenEventService(log, app.repos.events)

	// Initialize usecases
	reallocationUsecase := usecase.NewTokenReallocationUsecase(log, app.repos.tokens, app.repos.doctors, app.repos.patients, app.queue, capacity, events)
	allocationUsecase := usecase.NewTokenAllocationUsecase(log, app.repos.tokens, app.repos.doctors, app.repos.patients, app.queue, capacity, events, reallocationUsecase)
	queryUsecase := usecase.NewTokenQueryUsecase(log, app.repos.tokens, capacity, events)
	doctorUsecase := usecase.NewDoctorUsecase(log, app.repos.doctors)
	patientUsecase := usecase.NewPatientUsecase(log, app.repos.patients)

	// Initialize handlers
	customValidator := validator.NewValidator()
	tokenHandler := handler.NewTokenHandler(allocationUsecase, reallocationUsecase, queryUsecase, customValidator)
	slotHandler := handler.NewSlotHandler(reallocationUsecase, queryUsecase, customValidator)
	doctorHandler := handler.NewDoctorHandler(doctorUsecase, customValidator)
	patientHandler := handler.NewPatientHandler(patientUsecase, customValidator)
	healthHandler := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"postgres": func(ctx context.Context) error { return database.Ping(ctx, app.DB) },
		"redis":    func(ctx context.Context) error { return app.RedisClient.Ping(ctx).Err() },
	})

	// Initialize middleware
	jwtService := jwt.NewJWTService(cfg.JWT)
	if !jwtService.Enabled() {
		log.Warn("JWT_SECRET is empty, staff endpoints are not protected")
	}
	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	corsMiddleware := middleware.NewCORSMiddleware("")
	loggingMiddleware := middleware.NewLoggingMiddleware(log)

	// Initialize router
	router := deliveryHttp.NewRouter(tokenHandler, slotHandler, doctorHandler, patientHandler, healthHandler, authMiddleware, corsMiddleware, loggingMiddleware)

	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.App.Port),
		Handler:           otelhttp.NewHandler(router.Setup(), cfg.Telemetry.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Reconcile rebuilds the slot queues once for visit dates on or after from.
func (app *App) Reconcile(ctx context.Context, from time.Time) (*service.ReconcileResult, error) {
	return app.reconciler.Reconcile(ctx, from)
}

// Seed inserts fake doctors and patients.
func (app *App) Seed(ctx context.Context, doctors, patients int, seedValue uint64) (*seed.Result, error) {
	return seed.NewSeeder(app.Log, app.repos.doctors, app.repos.patients, seedValue).Run(ctx, doctors, patients)
}

// Run starts tracing, rebuilds the queues when configured, serves HTTP and
// blocks until SIGINT or SIGTERM.
func (app *App) Run(ctx context.Context) error {
	app.shutdownTracing = telemetry.Setup(ctx, app.Config.Telemetry, app.Log)

	if app.Config.Engine.ReconcileOnStartup {
		if _, err := app.Reconcile(ctx, entity.NormalizeDate(time.Now())); err != nil {
			app.Log.Warnf("Startup reconciliation failed, serving with current queues: %+v", err)
		}
	}
	app.reconciler.Start(app.Config.Engine.ReconcileInterval)

	app.Server = app.initializeServer()

	errCh := make(chan error, 1)
	go func() {
		app.Log.Infof("Server starting on port %s", app.Config.App.Port)
		app.Log.Infof("Environment: %s", app.Config.App.Env)
		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-errCh:
		app.Log.Errorf("Server failed: %v", serveErr)
	}

	app.shutdown()
	return serveErr
}

// shutdown drains the HTTP server, stops background work and closes connections
func (app *App) shutdown() {
	app.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Server.Shutdown(ctx); err != nil {
		app.Log.Errorf("Server forced to shutdown: %v", err)
	}

	app.reconciler.Stop()

	if app.shutdownTracing != nil {
		if err := app.shutdownTracing(ctx); err != nil {
			app.Log.Warnf("Tracer shutdown failed: %v", err)
		}
	}

	app.Close()

	app.Log.Info("Server shutdown complete")
}

// Close closes all connections (database, redis)
func (app *App) Close() {
	if app.DB != nil {
		if sqlDB, err := app.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}

	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}

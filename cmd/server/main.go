package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chessreg/backend/internal/application/reconcile"
	"github.com/chessreg/backend/internal/domain/school"
	"github.com/chessreg/backend/internal/infrastructure/billing"
	"github.com/chessreg/backend/internal/infrastructure/config"
	"github.com/chessreg/backend/internal/infrastructure/event"
	"github.com/chessreg/backend/internal/infrastructure/idgen"
	"github.com/chessreg/backend/internal/infrastructure/lock"
	"github.com/chessreg/backend/internal/infrastructure/logger"
	"github.com/chessreg/backend/internal/infrastructure/persistence"
	"github.com/chessreg/backend/internal/infrastructure/scheduler"
	"github.com/chessreg/backend/internal/infrastructure/telemetry"
	"github.com/chessreg/backend/internal/interfaces/http/handler"
	"github.com/chessreg/backend/internal/interfaces/http/middleware"
	"github.com/chessreg/backend/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting registration reconciler",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	// Tracing
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.ConfigFrom(cfg.Telemetry, version), log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), 200*time.Millisecond)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if cfg.Database.Driver == "sqlite" {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to create sqlite schema", zap.Error(err))
		}
	}
	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = tracerProvider.IsEnabled()
	dbTracing.TracerProvider = tracerProvider.Provider()
	if err := telemetry.RegisterDBTracing(db.DB, dbTracing, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	// Record locks
	locker, closeLocker, err := lock.New(cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to initialize record locks", zap.Error(err))
	}

	// Billing service
	squareConfig, err := billing.NewSquareConfig(cfg.Billing)
	if err != nil {
		log.Fatal("Invalid billing configuration", zap.Error(err))
	}
	square, err := billing.NewSquareAdapter(squareConfig, log)
	if err != nil {
		log.Fatal("Billing service is not configured", zap.Error(err))
	}

	ids, err := idgen.New(cfg.Import.NodeID)
	if err != nil {
		log.Fatal("Failed to initialize id generator", zap.Error(err))
	}

	// Repositories
	registrantRepo := persistence.NewGormRegistrantRepository(db.DB)
	summaryRepo := persistence.NewGormInvoiceSummaryRepository(db.DB)
	changeRequestRepo := persistence.NewGormChangeRequestRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// Event bus
	eventBus := event.NewInMemoryEventBus(log)
	auditHandler := event.NewAuditLogHandler(log)
	eventBus.Subscribe(auditHandler, auditHandler.EventTypes()...)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Application services
	importService := reconcile.NewImportService(reconcile.ImportServiceConfig{
		Billing:           square,
		Registrants:       registrantRepo,
		Summaries:         summaryRepo,
		TxScope:           txScope,
		Locker:            locker,
		EventPublisher:    eventBus,
		Resolver:          school.NewResolver(cfg.Import.SchoolCodes),
		IDs:               ids,
		Logger:            log,
		Workers:           cfg.Import.Workers,
		InvoiceTimeout:    cfg.Import.InvoiceTimeout,
		Actor:             cfg.Import.Actor,
		PlaceholderPrefix: cfg.Import.PlaceholderPrefix,
	})
	statusService := reconcile.NewStatusService(reconcile.StatusServiceConfig{
		Processor:      square,
		Summaries:      summaryRepo,
		Locker:         locker,
		EventPublisher: eventBus,
		Logger:         log,
		Timeout:        cfg.Import.InvoiceTimeout,
	})
	supersessionService := reconcile.NewSupersessionService(reconcile.SupersessionServiceConfig{
		Creator:        square,
		Registrants:    registrantRepo,
		Summaries:      summaryRepo,
		ChangeRequests: changeRequestRepo,
		TxScope:        txScope,
		Locker:         locker,
		EventPublisher: eventBus,
		Logger:         log,
		MembershipFee:  squareConfig.MembershipFee,
		CreateTimeout:  cfg.Import.InvoiceTimeout,
	})

	// Scheduled status sweep
	sweeper := scheduler.NewStatusSweeper(scheduler.SweeperConfigFrom(cfg.Sweep), summaryRepo, statusService, log)
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal("Failed to start status sweeper", zap.Error(err))
	}

	// HTTP
	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Tracing:        tracerProvider.IsEnabled(),
		TracerProvider: tracerProvider.Provider(),
	}, log)
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	healthHandler := handler.NewHealthHandler(db, version)
	engine.GET("/health", healthHandler.Health)

	var importLimit gin.HandlerFunc
	if cfg.HTTP.ImportsPerMinute > 0 {
		importLimit = middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.ImportsPerMinute, cfg.HTTP.ImportBurst))
	}
	r := router.NewRouter(engine)
	r.Register(handler.NewReconcileHandler(importService, statusService, supersessionService, importLimit))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := sweeper.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping status sweeper", zap.Error(err))
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping event bus", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := closeLocker(); err != nil {
		log.Error("Error closing lock client", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

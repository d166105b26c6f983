// Package main provides the entry point of the Yamata WABA outbound campaign service
//
// @title Yamata WABA API
// @version 1.0
// @description Multi-tenant WhatsApp Business outbound campaign pipeline
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/Yamata-WABA/app/handlers"
	"github.com/amirphl/Yamata-WABA/app/middleware"
	"github.com/amirphl/Yamata-WABA/app/router"
	"github.com/amirphl/Yamata-WABA/app/scheduler"
	"github.com/amirphl/Yamata-WABA/app/services"
	businessflow "github.com/amirphl/Yamata-WABA/business_flow"
	"github.com/amirphl/Yamata-WABA/config"
	"github.com/amirphl/Yamata-WABA/migrations"
	"github.com/amirphl/Yamata-WABA/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
	closers   []io.Closer
}

func main() {
	log.Println("Starting Yamata WABA application...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	// Stop background workers after the HTTP server stops taking work
	for _, fn := range app.stopFuncs {
		fn()
	}
	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			log.Printf("Error during close: %v", err)
		}
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	gormCfg := &gorm.Config{}
	if cfg.SlowQueryLog {
		gormCfg.Logger = gormlogger.New(log.Default(), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := migrations.Apply(ctx, sqlDB); err != nil {
		return nil, err
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache returns nil when caching is disabled
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// initializeNotifier falls back to polling only when AMQP is disabled
func initializeNotifier(cfg config.AMQPConfig) (services.JobNotifier, error) {
	if !cfg.Enabled {
		return services.NoopJobNotifier{}, nil
	}
	n, err := services.NewAMQPJobNotifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize job notifier: %w", err)
	}
	log.Printf("AMQP job notifier connected (exchange=%s queue=%s)", cfg.Exchange, cfg.Queue)
	return n, nil
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var (
		stopFuncs []func()
		closers   []io.Closer
	)

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		closers = append(closers, rc)
	}

	notifier, err := initializeNotifier(cfg.AMQP)
	if err != nil {
		return nil, err
	}
	closers = append(closers, notifier)

	// Repositories
	tx := repository.NewTransactor(db)
	campaignRepo := repository.NewCampaignRepository(db)
	templateRepo := repository.NewMessageTemplateRepository(db)
	contactRepo := repository.NewContactRepository(db)
	csvBatchRepo := repository.NewCsvBatchRepository(db)
	audienceRepo := repository.NewAudienceRepository(db)
	mappingRepo := repository.NewTemplateVariableMappingRepository(db)
	recipientRepo := repository.NewMaterializedRecipientRepository(db)
	jobRepo := repository.NewOutboundCampaignJobRepository(db)
	eventRepo := repository.NewProviderBillingEventRepository(db)
	logRepo := repository.NewMessageLogRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Services
	tokenService, err := services.NewTokenService(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	sender := services.NewWhatsAppSender(cfg.WhatsApp)
	if cfg.WhatsApp.AppSecret == "" {
		log.Println("Warning: WHATSAPP_APP_SECRET is not set; webhook payloads are accepted without a signature check")
	}

	// Flows
	mappingFlow := businessflow.NewVariableMappingFlow(campaignRepo, mappingRepo, auditRepo, tx)
	materializeFlow := businessflow.NewMaterializeFlow(
		campaignRepo,
		templateRepo,
		mappingRepo,
		contactRepo,
		csvBatchRepo,
		audienceRepo,
		recipientRepo,
		auditRepo,
		tx,
		businessflow.NewPhoneNormalizer(cfg.WhatsApp),
	)
	planFlow := businessflow.NewDispatchPlanFlow(campaignRepo, templateRepo, recipientRepo, cfg.Dispatch)
	jobFlow := businessflow.NewOutboundJobFlow(campaignRepo, jobRepo, auditRepo, tx, notifier, cfg.Queue)
	ingestFlow := businessflow.NewBillingIngestFlow(eventRepo, logRepo, recipientRepo, tx, rc, cfg.Cache, cfg.WhatsApp)
	reportFlow := businessflow.NewBillingReportFlow(eventRepo, logRepo, rc, cfg.Cache, cfg.Billing)
	sendFlow := businessflow.NewCampaignSendFlow(
		campaignRepo,
		templateRepo,
		recipientRepo,
		logRepo,
		jobFlow,
		ingestFlow,
		sender,
		cfg.Dispatch,
		cfg.Queue,
	)

	// Background worker
	workerLogger, logCloser := scheduler.NewLogger(cfg.Logging, "worker ")
	closers = append(closers, logCloser)

	worker := scheduler.NewOutboundWorker(jobFlow, sendFlow, notifier, cfg.Queue, workerLogger)
	stopWorker, err := worker.Start(context.Background())
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, stopWorker)

	// HTTP
	appRouter := router.NewFiberRouter(
		cfg,
		handlers.NewVariableMappingHandler(mappingFlow),
		handlers.NewMaterializeHandler(materializeFlow),
		handlers.NewDispatchPlanHandler(planFlow),
		handlers.NewOutboundJobHandler(jobFlow),
		handlers.NewBillingHandler(reportFlow),
		handlers.NewWebhookHandler(ingestFlow),
		middleware.NewAuthMiddleware(tokenService),
	)

	fiberRouter := appRouter.(*router.FiberRouter)
	return &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
		closers:   closers,
	}, nil
}

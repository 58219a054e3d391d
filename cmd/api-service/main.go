package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/ngthanhbui/imageflow-be/internal/api/auth"
	"github.com/ngthanhbui/imageflow-be/internal/api/consume"
	"github.com/ngthanhbui/imageflow-be/internal/api/dispatch"
	"github.com/ngthanhbui/imageflow-be/internal/api/handler"
	"github.com/ngthanhbui/imageflow-be/internal/api/notify"
	"github.com/ngthanhbui/imageflow-be/internal/api/router"
	"github.com/ngthanhbui/imageflow-be/internal/api/storage"
	"github.com/ngthanhbui/imageflow-be/internal/config"
	"github.com/ngthanhbui/imageflow-be/shared/logger"
	"github.com/ngthanhbui/imageflow-be/shared/postgresql"
	"github.com/ngthanhbui/imageflow-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Wire the job pipeline
	store := storage.NewStorage(dbClient)

	dispatcher := dispatch.NewDispatcher(store, rabbitClient, dispatch.Config{
		MaxPayloadBytes:   cfg.Dispatch.MaxPayloadBytes,
		PublishTimeout:    cfg.Dispatch.PublishTimeout,
		AllowedOperations: cfg.Dispatch.AllowedOperations,
	}, appLogger.Logger)

	registry := notify.NewRegistry(cfg.Notifier.EventBufferSize, appLogger.Logger)

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// Start the status consumer before accepting requests so terminal
	// updates are applied from the moment jobs can be submitted.
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	statusConsumer := consume.NewConsumer(store, registry, rabbitClient, consume.Config{
		ConsumerTag:   cfg.App.Name,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
	}, appLogger.Logger)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := statusConsumer.Run(consumerCtx); err != nil {
			appLogger.Error("Status consumer stopped",
				slog.Any("error", err),
			)
		}
	}()

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, store, dispatcher, registry, tokens)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	// Cleanup function to close all resources
	cleanup := func() {
		cancel()
		stopConsumer()
		<-consumerDone
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	topics := make([]rabbitmq.TopicConfig, 0, len(cfg.Topics))
	for _, t := range cfg.Topics {
		topics = append(topics, rabbitmq.TopicConfig{
			Name:       t.Name,
			Queue:      t.Queue,
			RoutingKey: t.RoutingKey,
			Durable:    t.Durable,
			AutoDelete: t.AutoDelete,
			Exclusive:  t.Exclusive,
		})
	}

	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		Topics:             topics,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
		ChannelPoolSize:    cfg.Connection.ChannelPoolSize,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(
	cfg *config.Config,
	logger *slog.Logger,
	store *storage.Storage,
	dispatcher *dispatch.Dispatcher,
	registry *notify.Registry,
	tokens *auth.TokenIssuer,
) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger:     logger,
		Storage:    store,
		Dispatcher: dispatcher,
		Registry:   registry,
		Tokens:     tokens,
		BcryptCost: cfg.Auth.BcryptCost,
	}

	return router.SetupRouter(handlerDeps)
}

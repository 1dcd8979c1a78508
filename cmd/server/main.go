package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/benvon/todo-digest/internal/app"
	"github.com/benvon/todo-digest/internal/config"
	"github.com/benvon/todo-digest/internal/database"
	"github.com/benvon/todo-digest/internal/handlers"
	"github.com/benvon/todo-digest/internal/logger"
	"github.com/benvon/todo-digest/internal/middleware"
	"github.com/benvon/todo-digest/internal/queue"
	"github.com/benvon/todo-digest/internal/services/oidc"
	"github.com/benvon/todo-digest/internal/telemetry"
)

const serviceName = "todo-digest-api"

// version is set at build time
var version = "dev"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.String("timezone", cfg.Timezone),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:     cfg.OTELEnabled,
		ServiceName: serviceName,
		Endpoint:    cfg.OTELEndpoint,
		Version:     version,
	})
	if err != nil {
		zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
	}
	zapLogger.Info("connected_to_database")

	redisClient := app.ConnectRedis(ctx, cfg, zapLogger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
	}

	// The queue is optional for the API: without it only streaming generation is offered.
	var jobQueue *queue.RabbitMQQueue
	if cfg.RabbitMQURL != "" {
		jobQueue, err = app.ConnectQueue(ctx, cfg, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
		}
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
	}

	generationService, err := app.NewGenerationService(cfg, db, redisClient, zapLogger, debugMode)
	if err != nil {
		zapLogger.Fatal("failed_to_create_generation_service", zap.Error(err))
	}

	if cfg.OIDCIssuer == "" || cfg.OIDCJWKSURL == "" {
		zapLogger.Fatal("oidc_not_configured")
	}
	verifier := oidc.NewVerifier(oidc.NewJWKSManager(), cfg.OIDCIssuer, cfg.OIDCJWKSURL)

	limiterStore, err := middleware.NewLimiterStore(redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_store", zap.Error(err))
	}
	rateLimitMW, err := middleware.RateLimit(limiterStore, cfg.GenerateRate)
	if err != nil {
		zapLogger.Fatal("invalid_generate_rate", zap.String("rate", cfg.GenerateRate), zap.Error(err))
	}

	var jobs handlers.JobEnqueuer
	if jobQueue != nil {
		jobs = jobQueue
	}
	generateHandler := handlers.NewGenerateHandler(generationService, jobs, zapLogger)
	todoHandler := handlers.NewTodoHandler(database.NewTodoRepository(db), zapLogger)
	settingsHandler := handlers.NewSettingsHandler(
		database.NewSettingsRepository(db),
		database.NewConnectionRepository(db),
		zapLogger,
	)

	healthChecker := handlers.NewHealthChecker().Register("database", db.HealthCheck)
	if redisClient != nil {
		healthChecker.Register("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}
	if jobQueue != nil {
		healthChecker.Register("rabbitmq", jobQueue.HealthCheck)
	}

	r := mux.NewRouter()

	// The first registered middleware is the outermost.
	r.Use(otelmux.Middleware(serviceName))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(zapLogger))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.FrontendURL))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.Auth(verifier, database.NewUserRepository(db), zapLogger))

	// Streaming routes bypass the timeout handler, which buffers responses.
	streamRouter := apiRouter.PathPrefix("/todos").Subrouter()
	streamRouter.Use(rateLimitMW)
	generateHandler.RegisterStreamRoutes(streamRouter)

	asyncRouter := apiRouter.PathPrefix("/todos").Subrouter()
	asyncRouter.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	asyncRouter.Use(rateLimitMW)
	generateHandler.RegisterRoutes(asyncRouter)

	restRouter := apiRouter.PathPrefix("").Subrouter()
	restRouter.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	todoHandler.RegisterRoutes(restRouter.PathPrefix("/todos").Subrouter())
	settingsHandler.RegisterRoutes(restRouter)

	// CORS answers preflights before routing; this keeps unmatched OPTIONS from returning 405.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      middleware.DefaultRequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		zapLogger.Info("server_listening", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		zapLogger.Info("server_shutting_down")
	case err := <-serverErr:
		if err != nil {
			zapLogger.Error("server_failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
		os.Exit(1)
	}

	zapLogger.Info("server_exited")
}

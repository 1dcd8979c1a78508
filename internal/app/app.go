// Package app assembles the generation pipeline shared by the server, worker and CLI binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/benvon/todo-digest/internal/cache"
	"github.com/benvon/todo-digest/internal/config"
	"github.com/benvon/todo-digest/internal/database"
	"github.com/benvon/todo-digest/internal/logger"
	"github.com/benvon/todo-digest/internal/queue"
	"github.com/benvon/todo-digest/internal/services/ai"
	"github.com/benvon/todo-digest/internal/services/generation"
	"github.com/benvon/todo-digest/internal/services/sources"
	"github.com/benvon/todo-digest/internal/services/sources/gmail"
	"github.com/benvon/todo-digest/internal/services/sources/notion"
	"github.com/benvon/todo-digest/internal/services/sources/slack"
	"github.com/benvon/todo-digest/internal/telemetry"
)

const (
	queueConnectAttempts = 10
	queueInitialDelay    = 2 * time.Second
	queueMaxDelay        = 30 * time.Second
)

// NewGenerator creates the configured language model provider
func NewGenerator(cfg *config.Config, log *zap.Logger, debugMode bool) (ai.Generator, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not configured")
	}
	logger.OrNop(log).Info("ai_provider_configured",
		zap.String("provider", cfg.AIProvider),
		zap.String("model", cfg.AIModel),
		zap.String("api_key", ai.SanitizeAPIKey(cfg.OpenAIKey)))

	registry := ai.NewDefaultRegistry()
	return registry.GetProvider(cfg.AIProvider, ai.ProviderConfig{
		APIKey:      cfg.OpenAIKey,
		BaseURL:     cfg.AIBaseURL,
		Model:       cfg.AIModel,
		MaxTokens:   cfg.AIMaxTokens,
		Temperature: cfg.AITemperature,
		Timeout:     cfg.AITimeout,
		Logger:      log,
		DebugMode:   debugMode,
	})
}

// NewFetchers creates the Slack, Gmail and Notion fetchers. Slack user names are cached in
// Redis when redisClient is non-nil.
func NewFetchers(cfg *config.Config, redisClient *redis.Client, log *zap.Logger) []sources.Fetcher {
	var slackOpts []slack.Option
	if redisClient != nil {
		slackOpts = append(slackOpts, slack.WithUserDirectory(cache.NewSlackUsers(redisClient, 0, log)))
	}
	return []sources.Fetcher{
		slack.NewFetcher(cfg.Limits.Slack, log, slackOpts...),
		gmail.NewFetcher(cfg.Limits.Gmail, log),
		notion.NewFetcher(cfg.Limits.Notion, log),
	}
}

// NewGenerationService wires repositories, fetchers and the model into a generation service
func NewGenerationService(cfg *config.Config, db *database.DB, redisClient *redis.Client, log *zap.Logger, debugMode bool) (*generation.Service, error) {
	generator, err := NewGenerator(cfg, log, debugMode)
	if err != nil {
		return nil, err
	}
	return generation.NewService(generation.Deps{
		Todos:       database.NewTodoRepository(db),
		Settings:    database.NewSettingsRepository(db),
		Credentials: database.NewConnectionRepository(db),
		Generator:   generator,
		Fetchers:    NewFetchers(cfg, redisClient, log),
		Limits:      cfg.Limits.Generation,
		LLMTimeout:  cfg.AITimeout,
		Location:    cfg.Location(),
		Logger:      log,
		Tracer:      telemetry.Tracer("generation"),
	}), nil
}

// ConnectRedis returns a Redis client, or nil when Redis is not configured or unreachable
func ConnectRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) *redis.Client {
	log = logger.OrNop(log)
	if cfg.RedisURL == "" {
		return nil
	}
	client, err := cache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn("redis_unavailable_continuing_without_cache", zap.Error(err))
		return nil
	}
	log.Info("connected_to_redis")
	return client
}

// ConnectQueue dials RabbitMQ, retrying with exponential backoff while the broker starts
func ConnectQueue(ctx context.Context, cfg *config.Config, log *zap.Logger) (*queue.RabbitMQQueue, error) {
	log = logger.OrNop(log)
	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is not configured")
	}

	var lastErr error
	delay := queueInitialDelay
	for attempt := 1; attempt <= queueConnectAttempts; attempt++ {
		q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, log)
		if err == nil {
			log.Info("connected_to_rabbitmq", zap.Int("attempt", attempt))
			return q, nil
		}
		lastErr = err
		log.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", queueConnectAttempts),
			zap.Duration("retry_delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, queueMaxDelay)
	}
	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", queueConnectAttempts, lastErr)
}

// Package cache holds Redis-backed caches shared by the server and worker.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/benvon/todo-digest/internal/logger"
)

// DefaultUserDirectoryTTL bounds how long a workspace's user names are reused
const DefaultUserDirectoryTTL = 6 * time.Hour

// NewClient parses a redis:// URL and verifies the server is reachable
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// SlackUsers caches Slack user-id to display-name maps per workspace in a Redis hash.
// Redis failures are logged and treated as cache misses.
type SlackUsers struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewSlackUsers creates a Slack user directory cache
func NewSlackUsers(client redis.Cmdable, ttl time.Duration, log *zap.Logger) *SlackUsers {
	if ttl <= 0 {
		ttl = DefaultUserDirectoryTTL
	}
	return &SlackUsers{client: client, ttl: ttl, logger: logger.OrNop(log)}
}

func slackUsersKey(team string) string {
	if team == "" {
		team = "default"
	}
	return "slack:users:" + team
}

// Get returns the cached names for team
func (s *SlackUsers) Get(ctx context.Context, team string) (map[string]string, bool) {
	names, err := s.client.HGetAll(ctx, slackUsersKey(team)).Result()
	if err != nil {
		s.logger.Debug("slack_users_cache_read_failed",
			zap.String("team", team),
			zap.String("error", logger.SanitizeError(err)))
		return nil, false
	}
	if len(names) == 0 {
		return nil, false
	}
	return names, true
}

// Put replaces the cached names for team
func (s *SlackUsers) Put(ctx context.Context, team string, names map[string]string) {
	if len(names) == 0 {
		return
	}
	key := slackUsersKey(team)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, names)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		s.logger.Debug("slack_users_cache_write_failed",
			zap.String("team", team),
			zap.String("error", logger.SanitizeError(err)))
	}
}

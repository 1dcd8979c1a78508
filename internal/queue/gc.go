package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/todo-digest/internal/logger"
	"github.com/benvon/todo-digest/internal/metrics"
)

const (
	// DefaultGCInterval is how often dead-lettered jobs are checked
	DefaultGCInterval = time.Hour
	// DefaultDLQRetention is how long dead-lettered jobs are kept for inspection
	DefaultDLQRetention = 24 * time.Hour

	purgeTimeout = 2 * time.Minute
)

// GarbageCollector drops dead-lettered generation jobs once they are older than the retention period
type GarbageCollector struct {
	purger    DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// NewGarbageCollector creates a DLQ garbage collector. Non-positive durations take the defaults.
func NewGarbageCollector(purger DLQPurger, interval, retention time.Duration, log *zap.Logger) *GarbageCollector {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	if retention <= 0 {
		retention = DefaultDLQRetention
	}
	return &GarbageCollector{
		purger:    purger,
		interval:  interval,
		retention: retention,
		logger:    logger.OrNop(log),
	}
}

// Start purges once immediately, then every interval until ctx is cancelled.
// It returns ctx.Err() on cancellation.
func (gc *GarbageCollector) Start(ctx context.Context) error {
	gc.logger.Info("dlq_gc_started",
		zap.Duration("interval", gc.interval),
		zap.Duration("retention", gc.retention))

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := gc.collect(ctx); err != nil {
			gc.logger.Warn("dlq_gc_failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// collect runs one purge and reports how many jobs were removed
func (gc *GarbageCollector) collect(ctx context.Context) (int, error) {
	if gc.purger == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()

	n, err := gc.purger.PurgeOlderThan(ctx, gc.retention)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead-lettered jobs: %w", err)
	}
	metrics.RecordDLQPurge(n)
	if n > 0 {
		gc.logger.Info("dlq_gc_purged", zap.Int("count", n), zap.Duration("retention", gc.retention))
	}
	return n, nil
}

// Package dedup guards publishing slots against double execution across
// process restarts.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/siyinging/social-publisher/internal/domain"
	"github.com/siyinging/social-publisher/internal/logger"
)

// SlotGuard records which (kind, day) slots already published. It is a fast
// pre-check only; the content store remains the source of truth, so a Redis
// outage degrades to store-only idempotence instead of blocking publishes.
type SlotGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewSlotGuard creates a guard. ttl bounds how long a slot marker lives;
// anything past the slot day is enough.
func NewSlotGuard(client *redis.Client, ttl time.Duration, log logger.Logger) *SlotGuard {
	return &SlotGuard{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

func (g *SlotGuard) key(kind domain.Kind, day string) string {
	return fmt.Sprintf("published:slot:%s:%s", kind, day)
}

// HasPublished reports whether the slot already published. Redis errors are
// logged and treated as "not published" so the store-level check decides.
func (g *SlotGuard) HasPublished(ctx context.Context, kind domain.Kind, day string) bool {
	key := g.key(kind, day)

	exists, err := g.client.Exists(ctx, key).Result()
	if err != nil {
		g.logger.Warn("slot guard check failed, deferring to store",
			logger.String("redis_key", key),
			logger.Error(err))
		return false
	}
	return exists == 1
}

// MarkPublished records that the slot published. Failures are returned but
// callers may treat them as non-fatal.
func (g *SlotGuard) MarkPublished(ctx context.Context, kind domain.Kind, day string) error {
	key := g.key(kind, day)
	if err := g.client.Set(ctx, key, "1", g.ttl).Err(); err != nil {
		g.logger.Warn("slot guard mark failed",
			logger.String("redis_key", key),
			logger.Error(err))
		return fmt.Errorf("mark slot published: %w", err)
	}
	return nil
}

// Clear removes a slot marker, letting an operator force a re-run.
func (g *SlotGuard) Clear(ctx context.Context, kind domain.Kind, day string) error {
	if err := g.client.Del(ctx, g.key(kind, day)).Err(); err != nil {
		return fmt.Errorf("clear slot marker: %w", err)
	}
	return nil
}

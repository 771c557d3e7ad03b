package subscription

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventDeduper is a best-effort guard against reprocessing redelivered
// webhook events. It is an optimization, not a correctness mechanism: the
// reconciler's transitions are idempotent with or without it.
type EventDeduper interface {
	// SeenBefore reports whether the event id was already processed.
	SeenBefore(ctx context.Context, eventID string) (bool, error)

	// MarkProcessed records the event id as processed.
	MarkProcessed(ctx context.Context, eventID string) error
}

const (
	dedupKeyPrefix = "billing:webhook:event:"
	dedupTTL       = 48 * time.Hour
)

// RedisEventDeduper implements EventDeduper on a redis keyspace with a TTL
// comfortably longer than any provider's redelivery window.
type RedisEventDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisEventDeduper creates a deduper backed by the given redis client.
func NewRedisEventDeduper(client *redis.Client) *RedisEventDeduper {
	return &RedisEventDeduper{client: client, ttl: dedupTTL}
}

func (d *RedisEventDeduper) SeenBefore(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, dedupKeyPrefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisEventDeduper) MarkProcessed(ctx context.Context, eventID string) error {
	return d.client.Set(ctx, dedupKeyPrefix+eventID, 1, d.ttl).Err()
}

package bounce

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedup implements DedupStore with SET NX, so the seen-check and the
// mark are one atomic Redis operation shared by every host.
type RedisDedup struct {
	client *redis.Client
	prefix string
}

// NewRedisDedup creates a Redis-backed dedup store.
func NewRedisDedup(client *redis.Client) *RedisDedup {
	return &RedisDedup{client: client, prefix: "bounce:seen:"}
}

// MarkSeen records the event ID and reports whether it was new.
func (d *RedisDedup) MarkSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+eventID, 1, ttl).Result()
}

// Unmark releases the claim on an event ID so a retry counts as new.
func (d *RedisDedup) Unmark(ctx context.Context, eventID string) error {
	return d.client.Del(ctx, d.prefix+eventID).Err()
}

// MemoryDedup is an in-process DedupStore for single-host deployments and
// tests. Expired entries are pruned lazily on access.
type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]time.Time // event ID -> expiry
}

// NewMemoryDedup creates an in-memory dedup store.
func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{seen: make(map[string]time.Time)}
}

// MarkSeen records the event ID and reports whether it was new.
func (d *MemoryDedup) MarkSeen(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.seen[eventID]; ok && exp.After(now) {
		return false, nil
	}
	d.seen[eventID] = now.Add(ttl)

	// Opportunistic prune to keep the map from growing unbounded.
	if len(d.seen) > 100000 {
		for id, exp := range d.seen {
			if exp.Before(now) {
				delete(d.seen, id)
			}
		}
	}
	return true, nil
}

// Unmark releases the claim on an event ID so a retry counts as new.
func (d *MemoryDedup) Unmark(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
	return nil
}

// Package counter caches per-event availability in Redis so the public
// availability endpoint does not hit the database on every poll. The
// database aggregate stays authoritative; cache entries are short-lived
// and invalidated on every allocation change.
package counter

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gateleaf/ticket-engine/internal/model"
)

// DefaultTTL bounds staleness even if an invalidation is lost.
const DefaultTTL = 10 * time.Second

// Loader fetches authoritative availability from storage.
// repository.EventRepo.Availability satisfies it.
type Loader func(ctx context.Context, eventID uint64) (model.Availability, error)

// Cache is a read-through availability cache. A nil Redis client
// disables caching entirely and every call falls through to the
// loader, matching how the rest of the server degrades without Redis.
type Cache struct {
	client *redis.Client
	load   Loader
	ttl    time.Duration
}

// New builds a Cache. client may be nil.
func New(client *redis.Client, load Loader, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, load: load, ttl: ttl}
}

func key(eventID uint64) string {
	return fmt.Sprintf("availability:%d", eventID)
}

// Availability returns the cached availability for the event, loading
// and caching it on a miss. Redis failures are logged and treated as
// misses; they never fail the request.
func (c *Cache) Availability(ctx context.Context, eventID uint64) (model.Availability, error) {
	if c.client != nil {
		raw, err := c.client.Get(ctx, key(eventID)).Bytes()
		if err == nil {
			var av model.Availability
			if jsonErr := json.Unmarshal(raw, &av); jsonErr == nil {
				return av, nil
			}
		} else if err != redis.Nil {
			log.Printf("counter: cache read failed event_id=%d: %v", eventID, err)
		}
	}
	av, err := c.load(ctx, eventID)
	if err != nil {
		return model.Availability{}, err
	}
	if c.client != nil {
		if raw, err := json.Marshal(av); err == nil {
			if err := c.client.Set(ctx, key(eventID), raw, c.ttl).Err(); err != nil {
				log.Printf("counter: cache write failed event_id=%d: %v", eventID, err)
			}
		}
	}
	return av, nil
}

// Invalidate drops the cached entry for the event. Called after every
// claim, unclaim, assignment, deletion and reconcile.
func (c *Cache) Invalidate(ctx context.Context, eventID uint64) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key(eventID)).Err(); err != nil {
		log.Printf("counter: invalidation failed event_id=%d: %v", eventID, err)
	}
}

package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	versionKey    = "analytics:version"
	invalidations = "analytics.bump"
)

// Cache keeps summaries in Redis under keys that embed a version counter,
// plus the latest one in process memory. Bumping the counter orphans every
// stored summary; the Redis TTL reclaims them. Until Subscribe is called the
// in-memory copy is only trusted after checking the version in Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration

	listening atomic.Bool
	// floor is the newest version this process has seen bumped; older
	// summaries are never kept in memory.
	floor atomic.Int64
	mu    sync.Mutex
	local *snapshot
}

type snapshot struct {
	month   string
	version int64
	expires time.Time
	summary Summary
}

// NewCache returns a Cache backed by client. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	if err := c.client.SetNX(ctx, versionKey, 1, 0).Err(); err != nil {
		return 0, err
	}
	return c.client.Get(ctx, versionKey).Int64()
}

func summaryKey(month string, version int64) string {
	return fmt.Sprintf("analytics:summary:%s:%d", month, version)
}

// Get looks up the summary for month at the current version. The version is
// returned on a miss so the caller can store the rebuilt summary under it.
func (c *Cache) Get(ctx context.Context, month string) (Summary, int64, bool, error) {
	if !c.enabled() {
		return Summary{}, 0, false, nil
	}
	l := c.memo(month)
	if l != nil && c.listening.Load() {
		return l.summary, l.version, true, nil
	}
	ver, err := c.version(ctx)
	if err != nil {
		return Summary{}, 0, false, err
	}
	if l != nil && l.version == ver {
		return l.summary, ver, true, nil
	}
	raw, err := c.client.Get(ctx, summaryKey(month, ver)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Summary{}, ver, false, nil
	}
	if err != nil {
		return Summary{}, ver, false, err
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return Summary{}, ver, false, fmt.Errorf("decode cached summary: %w", err)
	}
	c.remember(month, ver, s)
	return s, ver, true, nil
}

// Put stores s for month under version.
func (c *Cache) Put(ctx context.Context, month string, version int64, s Summary) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, summaryKey(month, version), raw, c.ttl).Err(); err != nil {
		return err
	}
	c.remember(month, version, s)
	return nil
}

// Bump moves the version forward and tells other processes to drop their
// in-memory copy.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey).Result()
	if err != nil {
		return err
	}
	c.forget(ver)
	return c.client.Publish(ctx, invalidations, strconv.FormatInt(ver, 10)).Err()
}

// Subscribe drops the in-memory summary whenever any process bumps the
// version. It returns once the subscription is confirmed; the listener stops
// with ctx.
func (c *Cache) Subscribe(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, invalidations)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	c.forget(0)
	c.listening.Store(true)
	go func() {
		defer func() {
			c.listening.Store(false)
			_ = pubsub.Close()
		}()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, _ := strconv.ParseInt(msg.Payload, 10, 64)
				c.forget(ver)
			}
		}
	}()
	return nil
}

func (c *Cache) memo(month string) *snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.local
	if l == nil || l.month != month || time.Now().After(l.expires) {
		return nil
	}
	return l
}

func (c *Cache) remember(month string, ver int64, s Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ver < c.floor.Load() {
		return
	}
	c.local = &snapshot{month: month, version: ver, expires: time.Now().Add(c.ttl), summary: s}
}

// forget drops the in-memory summary and raises the floor to ver.
func (c *Cache) forget(ver int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ver > c.floor.Load() {
		c.floor.Store(ver)
	}
	c.local = nil
}

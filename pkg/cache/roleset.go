package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xceleratortech/communitiesx/pkg/observability"
	"github.com/xceleratortech/communitiesx/pkg/rbac"
)

const cacheName = "roleset"

// l1Entry is an L1 cache value with its own expiry; the LRU itself has
// no TTL support.
type l1Entry struct {
	roleSet   rbac.RoleSet
	expiresAt time.Time
}

// RoleSetCache caches each user's resolved RoleSet. L1 is an in-process
// LRU, L2 is Redis (optional, nil client disables it). Redis errors are
// treated as misses so the cache never makes requests fail.
type RoleSetCache struct {
	l1      *lru.Cache[int64, l1Entry]
	redis   *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewRoleSetCache creates the cache. redisClient may be nil.
func NewRoleSetCache(l1Entries int, redisClient *redis.Client, ttl time.Duration, metrics *observability.Metrics, logger *observability.Logger) (*RoleSetCache, error) {
	if l1Entries <= 0 {
		l1Entries = 1024
	}
	l1, err := lru.New[int64, l1Entry](l1Entries)
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 cache: %w", err)
	}

	return &RoleSetCache{
		l1:      l1,
		redis:   redisClient,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}, nil
}

func redisKey(userID int64) string {
	return fmt.Sprintf("roleset:%d", userID)
}

// Get returns the cached role set for the user, if present.
func (c *RoleSetCache) Get(ctx context.Context, userID int64) (rbac.RoleSet, bool) {
	if entry, ok := c.l1.Get(userID); ok {
		if time.Now().Before(entry.expiresAt) {
			c.hit("l1")
			return entry.roleSet, true
		}
		c.l1.Remove(userID)
	}
	c.miss("l1")

	if c.redis == nil {
		return rbac.RoleSet{}, false
	}

	data, err := c.redis.Get(ctx, redisKey(userID)).Result()
	if err == redis.Nil {
		c.miss("l2")
		return rbac.RoleSet{}, false
	}
	if err != nil {
		c.logger.WithError(err).Debug("roleset L2 read failed")
		c.miss("l2")
		return rbac.RoleSet{}, false
	}

	var rs rbac.RoleSet
	if err := json.Unmarshal([]byte(data), &rs); err != nil {
		// Corrupt entry, drop it.
		c.redis.Del(ctx, redisKey(userID))
		c.miss("l2")
		return rbac.RoleSet{}, false
	}

	c.hit("l2")
	c.l1.Add(userID, l1Entry{roleSet: rs, expiresAt: time.Now().Add(c.ttl)})
	return rs, true
}

// Set stores the user's role set in both tiers.
func (c *RoleSetCache) Set(ctx context.Context, userID int64, rs rbac.RoleSet) {
	c.l1.Add(userID, l1Entry{roleSet: rs, expiresAt: time.Now().Add(c.ttl)})

	if c.redis == nil {
		return
	}

	data, err := json.Marshal(rs)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisKey(userID), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Debug("roleset L2 write failed")
	}
}

// Invalidate drops the user's cached role set from both tiers. Called on
// membership or role changes.
func (c *RoleSetCache) Invalidate(ctx context.Context, userID int64) {
	c.l1.Remove(userID)

	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, redisKey(userID)).Err(); err != nil {
		c.logger.WithError(err).Warn("roleset L2 invalidation failed")
	}
}

// Purge clears the L1 tier. Used by tests and full reloads.
func (c *RoleSetCache) Purge() {
	c.l1.Purge()
}

func (c *RoleSetCache) hit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(cacheName, tier).Inc()
	}
}

func (c *RoleSetCache) miss(tier string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(cacheName, tier).Inc()
	}
}

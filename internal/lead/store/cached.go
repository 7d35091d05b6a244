package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"lead-engine/internal/common/logger"
	"lead-engine/internal/models"
)

const cacheKeyPrefix = "lead:"

// Cached puts a Redis read-through cache in front of GetByID. Misses fill the
// cache with SET NX and writes replace the entry, so a slow filler holding an
// older copy can never overwrite a newer write. Cache failures are logged and
// never surface to callers; the backing Store is authoritative.
type Cached struct {
	Store
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCached(backing Store, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *Cached {
	return &Cached{
		Store:  backing,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "lead-cache"}),
	}
}

// Ping reports the backing store's health. The cache is not checked.
func (c *Cached) Ping(ctx context.Context) error {
	if p, ok := c.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func CacheKey(id string) string {
	return cacheKeyPrefix + id
}

func (c *Cached) GetByID(ctx context.Context, id string) (*models.Lead, error) {
	key := CacheKey(id)
	if val, err := c.redis.Get(ctx, key).Result(); err == nil {
		var lead models.Lead
		if err := json.Unmarshal([]byte(val), &lead); err == nil {
			return &lead, nil
		}
		c.logger.Warn("discarding undecodable cache entry", map[string]interface{}{"key": key})
	} else if err != redis.Nil {
		c.logger.Warn("cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
	}

	lead, err := c.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.put(ctx, lead)
	return lead, nil
}

// GetByIDFresh reads the backing store, skipping the cache. Read-modify-write
// callers use it so they never build on a cached copy.
func (c *Cached) GetByIDFresh(ctx context.Context, id string) (*models.Lead, error) {
	return c.Store.GetByID(ctx, id)
}

func (c *Cached) Update(ctx context.Context, lead *models.Lead) error {
	if err := c.Store.Update(ctx, lead); err != nil {
		return err
	}
	c.replace(ctx, lead)
	return nil
}

func (c *Cached) SaveQualification(ctx context.Context, lead *models.Lead, record models.ScoreRecord) error {
	if err := c.Store.SaveQualification(ctx, lead, record); err != nil {
		return err
	}
	c.replace(ctx, lead)
	return nil
}

// put fills an empty slot only.
func (c *Cached) put(ctx context.Context, lead *models.Lead) {
	data, err := json.Marshal(lead)
	if err != nil {
		return
	}
	if err := c.redis.SetNX(ctx, CacheKey(lead.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache fill failed", map[string]interface{}{"leadId": lead.ID, "error": err.Error()})
	}
}

// replace overwrites the entry with a just-written lead. If that fails the
// entry is dropped instead.
func (c *Cached) replace(ctx context.Context, lead *models.Lead) {
	data, err := json.Marshal(lead)
	if err == nil {
		err = c.redis.Set(ctx, CacheKey(lead.ID), data, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{"leadId": lead.ID, "error": err.Error()})
		c.invalidate(ctx, lead.ID)
	}
}

func (c *Cached) invalidate(ctx context.Context, id string) {
	if err := c.redis.Del(ctx, CacheKey(id)).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", map[string]interface{}{"leadId": id, "error": err.Error()})
	}
}

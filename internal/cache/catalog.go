// Package cache keeps per-category catalog snapshots in Redis so search does
// not reload the whole item table on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const DefaultTTL = 5 * time.Minute

// CatalogCache is safe to use with a nil client; every call is then a miss
// or a no-op.
type CatalogCache struct {
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

func NewCatalogCache(client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *CatalogCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CatalogCache{client: client, ttl: ttl, log: log.WithField("component", "catalog_cache")}
}

func key(category string) string {
	return fmt.Sprintf("catalog:items:%s", category)
}

// genKey counts invalidations of a category. A snapshot is only stored if
// the count has not moved since the loader started reading.
func genKey(category string) string {
	return fmt.Sprintf("catalog:gen:%s", category)
}

var errStaleSnapshot = errors.New("catalog changed while loading")

func (c *CatalogCache) enabled() bool {
	return c != nil && c.client != nil
}

// Items returns the cached snapshot for category. Redis failures are logged
// and reported as a miss.
func (c *CatalogCache) Items(ctx context.Context, category string) ([]models.CatalogItem, bool) {
	if !c.enabled() {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key(category)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).WithField("category", category).Warn("Catalog cache read failed")
		}
		return nil, false
	}

	var items []models.CatalogItem
	if err := json.Unmarshal(raw, &items); err != nil {
		c.log.WithError(err).WithField("category", category).Warn("Discarding corrupt catalog cache entry")
		c.Invalidate(ctx, category)
		return nil, false
	}
	return items, true
}

// Generation reads the category's invalidation count. Call it before loading
// from the store and pass the result to SetItems. ok is false when the cache
// is off or Redis cannot be read, and the snapshot should then not be stored.
func (c *CatalogCache) Generation(ctx context.Context, category string) (gen int64, ok bool) {
	if !c.enabled() {
		return 0, false
	}
	gen, err := c.client.Get(ctx, genKey(category)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.WithError(err).WithField("category", category).Warn("Catalog cache generation read failed")
		return 0, false
	}
	return gen, true
}

// SetItems stores the snapshot unless the category was invalidated after gen
// was read.
func (c *CatalogCache) SetItems(ctx context.Context, category string, gen int64, items []models.CatalogItem) {
	if !c.enabled() {
		return
	}
	raw, err := json.Marshal(items)
	if err != nil {
		c.log.WithError(err).Warn("Failed to encode catalog snapshot")
		return
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey(category)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleSnapshot
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(category), raw, c.ttl)
			return nil
		})
		return err
	}, genKey(category))

	switch {
	case err == nil:
	case errors.Is(err, errStaleSnapshot), errors.Is(err, redis.TxFailedErr):
		c.log.WithField("category", category).Debug("Catalog changed while loading; snapshot not cached")
	default:
		c.log.WithError(err).WithField("category", category).Warn("Catalog cache write failed")
	}
}

// Invalidate drops the snapshot and bumps the generation so an in-flight
// loader cannot write back what it read before the change. Called after any
// item or rating change.
func (c *CatalogCache) Invalidate(ctx context.Context, category string) {
	if !c.enabled() {
		return
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(category))
		pipe.Del(ctx, key(category))
		return nil
	})
	if err != nil {
		c.log.WithError(err).WithField("category", category).Warn("Catalog cache invalidation failed")
	}
}

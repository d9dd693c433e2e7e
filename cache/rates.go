// Package cache keeps short-lived copies of backend data in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RatesKey is the Redis key of the currency exchange table.
const RatesKey = "gateway:currency_exchange:v1"

// RateTable maps from-currency to to-currency to multiplier.
type RateTable map[string]map[string]decimal.Decimal

// Lookup returns the multiplier converting from into to.
func (t RateTable) Lookup(from, to string) (decimal.Decimal, bool) {
	r, ok := t[from][to]
	return r, ok
}

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Observer is told about every cache lookup.
type Observer interface {
	ObserveCache(name string, hit bool)
}

// RateCache caches the exchange table. Redis failures degrade to a miss and
// never fail the caller.
type RateCache struct {
	store    Store
	ttl      time.Duration
	log      *zap.Logger
	observer Observer
}

// NewRateCache returns a cache over store. A nil store disables caching.
func NewRateCache(store Store, ttl time.Duration, log *zap.Logger, observer Observer) *RateCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateCache{store: store, ttl: ttl, log: log, observer: observer}
}

// Get returns the cached table.
func (c *RateCache) Get(ctx context.Context) (RateTable, bool) {
	if c.store == nil {
		return nil, false
	}
	raw, err := c.store.Get(ctx, RatesKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("Failed to read exchange rates from cache", zap.Error(err))
		}
		c.observe(false)
		return nil, false
	}

	var table RateTable
	if err := json.Unmarshal(raw, &table); err != nil {
		c.log.Warn("Failed to unmarshal cached exchange rates", zap.Error(err))
		c.observe(false)
		return nil, false
	}
	c.observe(true)
	return table, true
}

// Set stores the table for the configured TTL.
func (c *RateCache) Set(ctx context.Context, table RateTable) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(table)
	if err != nil {
		c.log.Warn("Failed to marshal exchange rates for cache", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, RatesKey, raw, c.ttl).Err(); err != nil {
		c.log.Warn("Failed to cache exchange rates", zap.Error(err))
	}
}

// GetOrLoad returns the cached table or loads and caches a fresh one.
func (c *RateCache) GetOrLoad(ctx context.Context, load func(context.Context) (RateTable, error)) (RateTable, error) {
	if table, ok := c.Get(ctx); ok {
		return table, nil
	}
	table, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(ctx, table)
	return table, nil
}

func (c *RateCache) observe(hit bool) {
	if c.observer != nil {
		c.observer.ObserveCache("currency_exchange", hit)
	}
}

// NewRedisClient parses redisURL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

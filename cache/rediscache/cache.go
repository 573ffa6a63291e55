// Package rediscache stores resolved entitlement snapshots in Redis so that
// several API replicas share one cache and see each other's invalidations.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/bursar/entitlement"
)

// DefaultPrefix namespaces snapshot keys.
const DefaultPrefix = "bursar:entitlements:"

// Cache implements entitlement.Cache on a Redis client.
type Cache struct {
	client redis.UniversalClient
	prefix string
}

var _ entitlement.Cache = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// New wraps an existing client. The caller owns the client.
func New(client redis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config is the connection configuration used by Dial.
type Config struct {
	Addr     string `json:"addr"     mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db"       mapstructure:"db"`
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rediscache: connect to %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func (c *Cache) key(tenantID string) string { return c.prefix + tenantID }

func (c *Cache) GetSnapshot(ctx context.Context, tenantID string) (*entitlement.Snapshot, error) {
	raw, err := c.client.Get(ctx, c.key(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, entitlement.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("rediscache: get %s: %w", tenantID, err)
	}

	var snap entitlement.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// An undecodable entry is treated as absent and dropped.
		_ = c.client.Del(ctx, c.key(tenantID)).Err()
		return nil, entitlement.ErrCacheMiss
	}
	return &snap, nil
}

// SetSnapshot stores s for ttl. A non-positive ttl stores nothing.
func (c *Cache) SetSnapshot(ctx context.Context, s *entitlement.Snapshot, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("rediscache: encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key(s.TenantID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: set %s: %w", s.TenantID, err)
	}
	return nil
}

func (c *Cache) InvalidateSnapshot(ctx context.Context, tenantID string) error {
	if err := c.client.Del(ctx, c.key(tenantID)).Err(); err != nil {
		return fmt.Errorf("rediscache: invalidate %s: %w", tenantID, err)
	}
	return nil
}

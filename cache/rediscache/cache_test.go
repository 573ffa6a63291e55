package rediscache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bursar/cache/rediscache"
	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/entitlement"
)

func setup(t *testing.T) (*miniredis.Miniredis, *rediscache.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, rediscache.New(client, rediscache.WithPrefix("test:"))
}

func premiumSnapshot(t *testing.T) *entitlement.Snapshot {
	t.Helper()
	c := catalog.Default()
	e, ok := c.ByCode(catalog.EditionPremium)
	require.True(t, ok)
	return entitlement.Resolve("t1", c, e, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, cache := setup(t)

	_, err := cache.GetSnapshot(ctx, "t1")
	require.ErrorIs(t, err, entitlement.ErrCacheMiss)

	snap := premiumSnapshot(t)
	require.NoError(t, cache.SetSnapshot(ctx, snap, time.Minute))
	assert.True(t, mr.Exists("test:t1"))

	got, err := cache.GetSnapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, snap.EditionCode, got.EditionCode)
	assert.Equal(t, snap.Modules, got.Modules)
	assert.Equal(t, snap.CatalogVersion, got.CatalogVersion)

	require.NoError(t, cache.InvalidateSnapshot(ctx, "t1"))
	_, err = cache.GetSnapshot(ctx, "t1")
	assert.ErrorIs(t, err, entitlement.ErrCacheMiss)
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	mr, cache := setup(t)

	require.NoError(t, cache.SetSnapshot(ctx, premiumSnapshot(t), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := cache.GetSnapshot(ctx, "t1")
	assert.ErrorIs(t, err, entitlement.ErrCacheMiss)
}

func TestZeroTTLSkipsWrite(t *testing.T) {
	mr, cache := setup(t)
	require.NoError(t, cache.SetSnapshot(context.Background(), premiumSnapshot(t), 0))
	assert.False(t, mr.Exists("test:t1"))
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	mr, cache := setup(t)

	require.NoError(t, mr.Set("test:t1", "{not json"))
	_, err := cache.GetSnapshot(ctx, "t1")
	assert.ErrorIs(t, err, entitlement.ErrCacheMiss)
	assert.False(t, mr.Exists("test:t1"))
}

func TestBackendErrorsAreReturned(t *testing.T) {
	mr, cache := setup(t)
	mr.Close()

	_, err := cache.GetSnapshot(context.Background(), "t1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, entitlement.ErrCacheMiss)
}

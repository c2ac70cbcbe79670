package redisclient

import (
	"context"
	"testing"
	"time"

	"warehouse-service/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewClientFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestProductCacheRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, hit, err := c.GetProduct(ctx, 7)
	require.NoError(t, err)
	assert.False(t, hit)

	p := &models.Product{ID: 7, Name: "pallet", Price: decimal.RequireFromString("12.50"), Stock: 4}
	require.NoError(t, c.SetProduct(ctx, p, 0, time.Minute))
	assert.True(t, mr.Exists("product:7"))

	got, hit, err := c.GetProduct(ctx, 7)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "pallet", got.Name)
	assert.Equal(t, 4, got.Stock)
	assert.True(t, p.Price.Equal(got.Price))

	mr.FastForward(2 * time.Minute)
	_, hit, err = c.GetProduct(ctx, 7)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSetProductZeroTTLSkipsCache(t *testing.T) {
	c, mr := newTestClient(t)

	require.NoError(t, c.SetProduct(context.Background(), &models.Product{ID: 1}, 0, 0))
	assert.False(t, mr.Exists("product:1"))
}

func TestInvalidateProduct(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetProduct(ctx, &models.Product{ID: 1}, 0, time.Minute))
	require.NoError(t, c.SetProduct(ctx, &models.Product{ID: 2}, 0, time.Minute))

	require.NoError(t, c.InvalidateProduct(ctx, 1, 2, 3))
	assert.False(t, mr.Exists("product:1"))
	assert.False(t, mr.Exists("product:2"))
	require.NoError(t, c.InvalidateProduct(ctx))

	version, err := c.ProductVersion(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestSetProductSkipsFillOlderThanInvalidation(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	version, err := c.ProductVersion(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)

	// A stock change commits between the version read and the fill.
	require.NoError(t, c.InvalidateProduct(ctx, 9))

	require.NoError(t, c.SetProduct(ctx, &models.Product{ID: 9, Stock: 10}, version, time.Minute))
	assert.False(t, mr.Exists("product:9"))

	version, err = c.ProductVersion(ctx, 9)
	require.NoError(t, err)
	require.NoError(t, c.SetProduct(ctx, &models.Product{ID: 9, Stock: 6}, version, time.Minute))

	got, hit, err := c.GetProduct(ctx, 9)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 6, got.Stock)
}

func TestCorruptCacheEntryIsDropped(t *testing.T) {
	c, mr := newTestClient(t)
	require.NoError(t, mr.Set("product:5", "{not json"))

	_, hit, err := c.GetProduct(context.Background(), 5)
	assert.Error(t, err)
	assert.False(t, hit)
	assert.False(t, mr.Exists("product:5"))
}

func TestIdempotencyKey(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, found, err := c.GetIdempotencyKey(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetIdempotencyKey(ctx, "abc", 42, time.Hour))
	id, found, err := c.GetIdempotencyKey(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, time.Hour, mr.TTL("idempotency:abc"))
}

func TestLock(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ok, err := c.AcquireLock(ctx, "order:abc", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, "order:abc", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "order:abc"))
	ok, err = c.AcquireLock(ctx, "order:abc", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisErrorsSurface(t *testing.T) {
	c, mr := newTestClient(t)
	mr.Close()

	_, _, err := c.GetIdempotencyKey(context.Background(), "abc")
	assert.Error(t, err)
	assert.Error(t, c.Ping(context.Background()))
}

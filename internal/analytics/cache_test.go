package analytics

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestGenerationStartsAtOneAndBumps(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), gen)

	require.NoError(t, c.Bump(ctx))
	gen, err = c.Generation(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), gen)

	stored, err := mr.Get(generationKey)
	require.NoError(t, err)
	require.Equal(t, "2", stored)
}

func TestObserveBumpOnlyMovesForward(t *testing.T) {
	c, _ := newTestCache(t)
	c.gen.Store(5)

	c.observeBump("3")
	require.Equal(t, int64(5), c.gen.Load())

	c.observeBump("9")
	require.Equal(t, int64(9), c.gen.Load())

	c.observeBump("garbage")
	require.Zero(t, c.gen.Load())
}

func TestGetTreatsUndecodablePayloadAsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("k", "{not json"))

	var out Utilization
	hit, err := c.get(context.Background(), "k", &out)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestMetricKeyCarriesGenerationAndZone(t *testing.T) {
	f := Filter{From: testNow.AddDate(0, 0, -30), To: testNow}
	require.Equal(t, "wms:analytics:velocity:20260301:20260331:-:4", metricKey(4, "velocity", f))
	f.Zone = "B"
	require.Equal(t, "wms:analytics:velocity:20260301:20260331:B:4", metricKey(4, "velocity", f))
}

func TestNilCacheIsDisabled(t *testing.T) {
	var c *Cache
	gen, err := c.Generation(context.Background())
	require.NoError(t, err)
	require.Zero(t, gen)
	require.NoError(t, c.Bump(context.Background()))
	require.NoError(t, c.ListenForInvalidation(context.Background(), ""))
}

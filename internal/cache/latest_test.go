package cache

import (
	"context"
	"testing"
	"time"

	"github.com/ks-vishal/stot-ub/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func f64(v float64) *float64 { return &v }

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *LatestCache) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	c := NewLatestCache(redisClient, "telemetry:shipment:", 60*time.Second, zap.NewNop())
	return mr, c
}

func TestLatestCache_PutAndGet(t *testing.T) {
	_, c := setupTestCache(t)
	ctx := context.Background()

	sample := &models.TelemetrySample{
		ShipmentID:  "SHIP-1",
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Temperature: f64(5.5),
		Humidity:    f64(52),
		Latitude:    40.1,
		Longitude:   -3.7,
	}

	require.NoError(t, c.Put(ctx, sample))

	got, err := c.Get(ctx, "SHIP-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sample.Temperature, got.Temperature)
	assert.True(t, sample.Timestamp.Equal(got.Timestamp))
}

func TestLatestCache_Miss(t *testing.T) {
	_, c := setupTestCache(t)

	got, err := c.Get(context.Background(), "SHIP-unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestCache_OverwriteOnNextSample(t *testing.T) {
	_, c := setupTestCache(t)
	ctx := context.Background()

	first := &models.TelemetrySample{ShipmentID: "SHIP-1", Temperature: f64(4), Timestamp: time.Now().UTC()}
	second := &models.TelemetrySample{ShipmentID: "SHIP-1", Temperature: f64(6), Timestamp: time.Now().UTC().Add(5 * time.Second)}

	require.NoError(t, c.Put(ctx, first))
	require.NoError(t, c.Put(ctx, second))

	got, err := c.Get(ctx, "SHIP-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 6.0, *got.Temperature)
}

func TestLatestCache_Invalidate(t *testing.T) {
	_, c := setupTestCache(t)
	ctx := context.Background()

	sample := &models.TelemetrySample{ShipmentID: "SHIP-1", Temperature: f64(5), Timestamp: time.Now().UTC()}
	require.NoError(t, c.Put(ctx, sample))

	c.Invalidate(ctx, "SHIP-1")

	got, err := c.Get(ctx, "SHIP-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestCache_TTLExpiry(t *testing.T) {
	mr, c := setupTestCache(t)
	ctx := context.Background()

	sample := &models.TelemetrySample{ShipmentID: "SHIP-1", Temperature: f64(5), Timestamp: time.Now().UTC()}
	require.NoError(t, c.Put(ctx, sample))

	mr.FastForward(2 * time.Minute)

	got, err := c.Get(ctx, "SHIP-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

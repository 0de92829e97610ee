package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ks-vishal/stot-ub/internal/models"
	"github.com/ks-vishal/stot-ub/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func f64(v float64) *float64 { return &v }

type fakeTelemetryReader struct {
	latest  *models.TelemetrySample
	history []models.TelemetrySample
	reads   int
}

func (f *fakeTelemetryReader) GetLatestSample(_ context.Context, _ string) (*models.TelemetrySample, error) {
	f.reads++
	if f.latest == nil {
		return nil, models.ErrNotFound
	}
	return f.latest, nil
}

func (f *fakeTelemetryReader) GetHistory(_ context.Context, _ string, _ repository.HistoryFilters) ([]models.TelemetrySample, error) {
	return f.history, nil
}

type fakeLatestCache struct {
	sample *models.TelemetrySample
	err    error
}

func (f *fakeLatestCache) Get(_ context.Context, _ string) (*models.TelemetrySample, error) {
	return f.sample, f.err
}

func TestTelemetryService_LatestCacheHit(t *testing.T) {
	reader := &fakeTelemetryReader{}
	cached := &models.TelemetrySample{ShipmentID: "SHIP-1", Temperature: f64(5.1), Timestamp: time.Now().UTC()}
	svc := NewTelemetryService(reader, &fakeLatestCache{sample: cached}, zap.NewNop())

	got, err := svc.Latest(context.Background(), "SHIP-1")
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	assert.Equal(t, 0, reader.reads, "cache hit must not touch the database")
}

func TestTelemetryService_LatestCacheMissFallsBack(t *testing.T) {
	stored := &models.TelemetrySample{ShipmentID: "SHIP-1", Temperature: f64(6.0)}
	reader := &fakeTelemetryReader{latest: stored}
	svc := NewTelemetryService(reader, &fakeLatestCache{}, zap.NewNop())

	got, err := svc.Latest(context.Background(), "SHIP-1")
	require.NoError(t, err)
	assert.Equal(t, stored, got)
	assert.Equal(t, 1, reader.reads)
}

func TestTelemetryService_LatestCacheErrorDegrades(t *testing.T) {
	stored := &models.TelemetrySample{ShipmentID: "SHIP-1"}
	reader := &fakeTelemetryReader{latest: stored}
	svc := NewTelemetryService(reader, &fakeLatestCache{err: errors.New("redis down")}, zap.NewNop())

	got, err := svc.Latest(context.Background(), "SHIP-1")
	require.NoError(t, err, "cache failure must degrade to the database, not error")
	assert.Equal(t, stored, got)
}

func TestTelemetryService_LatestNoSamples(t *testing.T) {
	svc := NewTelemetryService(&fakeTelemetryReader{}, &fakeLatestCache{}, zap.NewNop())

	_, err := svc.Latest(context.Background(), "SHIP-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTelemetryService_History(t *testing.T) {
	reader := &fakeTelemetryReader{history: []models.TelemetrySample{
		{ShipmentID: "SHIP-1", Temperature: f64(4)},
		{ShipmentID: "SHIP-1", Temperature: f64(5)},
	}}
	svc := NewTelemetryService(reader, nil, zap.NewNop())

	samples, err := svc.History(context.Background(), "SHIP-1", repository.HistoryFilters{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

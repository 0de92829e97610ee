package config

import (
	"testing"

	"github.com/ks-vishal/stot-ub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "telemetry:shipment:", cfg.Telemetry.CachePrefix)
	assert.Equal(t, 60, cfg.Telemetry.CacheTTLSec)
	assert.Equal(t, 32, cfg.Fanout.QueueSize)
	assert.Equal(t, "stotub:events", cfg.Fanout.Stream)
	assert.Equal(t, 60.0, cfg.Planner.SpeedKmh)
	assert.Nil(t, cfg.Planner.PriorityFactors)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("TELEMETRY_CACHE_TTL", "120")
	t.Setenv("PLANNER_SPEED_KMH", "80")
	t.Setenv("PRIORITY_FACTORS", "urgent=4,high=2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, 120, cfg.Telemetry.CacheTTLSec)
	assert.Equal(t, 80.0, cfg.Planner.SpeedKmh)
	assert.Equal(t, map[models.PriorityLevel]float64{
		models.PriorityUrgent: 4,
		models.PriorityHigh:   2.5,
	}, cfg.Planner.PriorityFactors)
}

func TestParsePriorityFactors(t *testing.T) {
	assert.Nil(t, parsePriorityFactors(""))
	assert.Nil(t, parsePriorityFactors("garbage"))
	assert.Nil(t, parsePriorityFactors("rush=3"), "unknown level is rejected")
	assert.Nil(t, parsePriorityFactors("urgent=-1"), "non-positive factor is rejected")

	factors := parsePriorityFactors("urgent=3, high=2, medium=1.5, low=1")
	require.NotNil(t, factors)
	assert.Len(t, factors, 4)
	assert.Equal(t, 1.5, factors[models.PriorityMedium])
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ks-vishal/stot-ub/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// LatestCache 最新样本缓存
// 以运输单为键的短生命周期缓存；事实来源是 Postgres，
// 失效点明确：下一条样本覆盖，运输单完成时删除
type LatestCache struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
	logger      *zap.Logger
}

// NewLatestCache 创建最新样本缓存
func NewLatestCache(redisClient *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *LatestCache {
	if keyPrefix == "" {
		keyPrefix = "telemetry:shipment:"
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &LatestCache{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		ttl:         ttl,
		logger:      logger,
	}
}

func (c *LatestCache) key(shipmentID string) string {
	return fmt.Sprintf("%s%s:latest", c.keyPrefix, shipmentID)
}

// Put 写入最新样本（覆盖前一条，带TTL防止无限增长）
func (c *LatestCache) Put(ctx context.Context, sample *models.TelemetrySample) error {
	jsonData, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	if err := c.redisClient.Set(ctx, c.key(sample.ShipmentID), jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set latest sample cache: %w", err)
	}

	return nil
}

// Get 读取最新样本
// 缓存未命中返回 (nil, nil)，调用方回退到 Postgres
func (c *LatestCache) Get(ctx context.Context, shipmentID string) (*models.TelemetrySample, error) {
	val, err := c.redisClient.Get(ctx, c.key(shipmentID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest sample cache: %w", err)
	}

	var sample models.TelemetrySample
	if err := json.Unmarshal([]byte(val), &sample); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached sample: %w", err)
	}

	return &sample, nil
}

// Invalidate 删除缓存（运输单完成/取消时调用）
func (c *LatestCache) Invalidate(ctx context.Context, shipmentID string) {
	if err := c.redisClient.Del(ctx, c.key(shipmentID)).Err(); err != nil {
		c.logger.Warn("Failed to invalidate latest sample cache",
			zap.String("shipment_id", shipmentID),
			zap.Error(err),
		)
	}
}

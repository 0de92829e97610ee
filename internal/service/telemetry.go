package service

import (
	"context"

	"github.com/ks-vishal/stot-ub/internal/models"
	"github.com/ks-vishal/stot-ub/internal/repository"

	"go.uber.org/zap"
)

// TelemetryReader 遥测样本读取
type TelemetryReader interface {
	GetLatestSample(ctx context.Context, shipmentID string) (*models.TelemetrySample, error)
	GetHistory(ctx context.Context, shipmentID string, filters repository.HistoryFilters) ([]models.TelemetrySample, error)
}

// LatestCache 最新样本缓存读取（未命中返回nil, nil）
type LatestCache interface {
	Get(ctx context.Context, shipmentID string) (*models.TelemetrySample, error)
}

// TelemetryService 遥测读取服务（缓存优先, Postgres兜底）
type TelemetryService struct {
	telemetry TelemetryReader
	cache     LatestCache
	logger    *zap.Logger
}

// NewTelemetryService 创建遥测读取服务
func NewTelemetryService(telemetry TelemetryReader, cache LatestCache, logger *zap.Logger) *TelemetryService {
	return &TelemetryService{telemetry: telemetry, cache: cache, logger: logger}
}

// Latest 运单的最新样本
// 先查Redis缓存, 未命中回源Postgres; 缓存故障降级为直接回源
func (s *TelemetryService) Latest(ctx context.Context, shipmentID string) (*models.TelemetrySample, error) {
	if s.cache != nil {
		sample, err := s.cache.Get(ctx, shipmentID)
		if err != nil {
			s.logger.Warn("Latest-sample cache lookup failed, falling back to database",
				zap.String("shipment_id", shipmentID),
				zap.Error(err))
		} else if sample != nil {
			return sample, nil
		}
	}
	return s.telemetry.GetLatestSample(ctx, shipmentID)
}

// History 运单的历史样本（时间升序）
func (s *TelemetryService) History(ctx context.Context, shipmentID string, filters repository.HistoryFilters) ([]models.TelemetrySample, error) {
	return s.telemetry.GetHistory(ctx, shipmentID, filters)
}

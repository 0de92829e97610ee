package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ks-vishal/stot-ub/internal/evaluator"
	"github.com/ks-vishal/stot-ub/internal/fanout"
	"github.com/ks-vishal/stot-ub/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ShipmentResolver 运单解析（支持旧版生产者的数字主键回退）
type ShipmentResolver interface {
	ResolveShipment(ctx context.Context, key string) (*models.Shipment, error)
}

// TelemetryStore 遥测样本存储
type TelemetryStore interface {
	InsertSample(ctx context.Context, s *models.TelemetrySample) (bool, error)
}

// CourierStore 无人机位置与电量更新
type CourierStore interface {
	UpdateTelemetry(ctx context.Context, courierID string, lat, lng float64, battery *float64) error
}

// CargoStore 货物位置更新
type CargoStore interface {
	UpdatePosition(ctx context.Context, cargoID string, lat, lng float64) error
}

// AlertStore 告警去重与创建
type AlertStore interface {
	ExistsForSample(ctx context.Context, shipmentID string, category models.AlertCategory, sampleTS time.Time) (bool, error)
	CreateAlert(ctx context.Context, a *models.Alert) (bool, error)
}

// SampleCache 最新样本缓存
type SampleCache interface {
	Put(ctx context.Context, sample *models.TelemetrySample) error
}

// Pipeline 遥测摄入管道
// 单条样本的处理链: 解析 -> 入库 -> 位置同步 -> 阈值评估 -> 告警 -> 实时推送
type Pipeline struct {
	shipments ShipmentResolver
	telemetry TelemetryStore
	couriers  CourierStore
	cargo     CargoStore
	alerts    AlertStore
	cache     SampleCache
	hub       *fanout.Hub
	limits    evaluator.Limits
	logger    *zap.Logger

	// 同一运单的样本串行处理, 保证推送顺序与摄入顺序一致
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPipeline 创建摄入管道
func NewPipeline(
	shipments ShipmentResolver,
	telemetry TelemetryStore,
	couriers CourierStore,
	cargo CargoStore,
	alerts AlertStore,
	cache SampleCache,
	hub *fanout.Hub,
	limits evaluator.Limits,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		shipments: shipments,
		telemetry: telemetry,
		couriers:  couriers,
		cargo:     cargo,
		alerts:    alerts,
		cache:     cache,
		hub:       hub,
		limits:    limits,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// shipmentLock 获取运单级互斥锁
func (p *Pipeline) shipmentLock(shipmentID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[shipmentID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[shipmentID] = l
	}
	return l
}

// evictShipmentLock 运单终态后回收互斥锁, 防止锁表随历史运单无限增长
func (p *Pipeline) evictShipmentLock(shipmentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.locks, shipmentID)
}

func (p *Pipeline) lockCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}

// Ingest 处理一条原始遥测消息
// 传输层是fire-and-forget, 丢弃只记日志不返回错误; 仅内部故障返回error
func (p *Pipeline) Ingest(ctx context.Context, shipmentKey string, payload []byte) (bool, int, error) {
	receivedAt := time.Now().UTC()

	// 1. 解析载荷
	var raw models.TelemetryPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		p.logger.Warn("Dropping malformed telemetry payload",
			zap.String("shipment_key", shipmentKey),
			zap.Error(err))
		return false, 0, nil
	}

	// 2. 解析运单（先按shipment_id, 再按数字主键回退）
	shipment, err := p.shipments.ResolveShipment(ctx, shipmentKey)
	if err != nil {
		p.logger.Warn("Dropping sample for unknown shipment",
			zap.String("shipment_key", shipmentKey),
			zap.Error(err))
		return false, 0, nil
	}
	if shipment.Status.IsTerminal() {
		p.logger.Warn("Dropping sample for terminal shipment",
			zap.String("shipment_id", shipment.ShipmentID),
			zap.String("status", string(shipment.Status)))
		p.evictShipmentLock(shipment.ShipmentID)
		return false, 0, nil
	}

	sample := &models.TelemetrySample{
		ShipmentID:     shipment.ShipmentID,
		CargoID:        shipment.CargoID,
		CourierID:      shipment.CourierID,
		Timestamp:      raw.ParseTimestamp(receivedAt),
		Temperature:    raw.Temperature,
		Humidity:       raw.Humidity,
		Pressure:       raw.Pressure,
		Altitude:       raw.Altitude,
		Latitude:       raw.Latitude,
		Longitude:      raw.Longitude,
		Speed:          raw.Speed,
		BatteryLevel:   raw.BatteryLevel,
		SignalStrength: raw.SignalStrength,
		Vibration:      raw.Vibration,
		Light:          raw.Light,
	}

	lock := p.shipmentLock(shipment.ShipmentID)
	lock.Lock()
	defer lock.Unlock()

	// 3. 入库（自然键冲突视为重复投递, no-op）
	stored, err := p.telemetry.InsertSample(ctx, sample)
	if err != nil {
		// 单条样本尽力而为, 后续样本会自我修正
		p.logger.Error("Dropping sample after storage failure",
			zap.String("shipment_id", shipment.ShipmentID),
			zap.Error(err))
		return false, 0, nil
	}
	if !stored {
		p.logger.Debug("Duplicate sample ignored",
			zap.String("shipment_id", shipment.ShipmentID),
			zap.Time("timestamp", sample.Timestamp))
		return false, 0, nil
	}

	// 4. 同步无人机/货物位置
	if err := p.couriers.UpdateTelemetry(ctx, shipment.CourierID, sample.Latitude, sample.Longitude, sample.BatteryLevel); err != nil {
		p.logger.Error("Failed to update courier position",
			zap.String("courier_id", shipment.CourierID),
			zap.Error(err))
	}
	if shipment.Status == models.ShipmentInTransit {
		if err := p.cargo.UpdatePosition(ctx, shipment.CargoID, sample.Latitude, sample.Longitude); err != nil {
			p.logger.Error("Failed to update cargo position",
				zap.String("cargo_id", shipment.CargoID),
				zap.Error(err))
		}
	}

	// 5. 阈值评估与告警
	violations := evaluator.Evaluate(sample, p.limits)
	fired := p.raiseAlerts(ctx, shipment, sample, violations)

	// 6. 刷新最新样本缓存
	if err := p.cache.Put(ctx, sample); err != nil {
		p.logger.Warn("Failed to cache latest sample",
			zap.String("shipment_id", shipment.ShipmentID),
			zap.Error(err))
	}

	// 7. 实时推送
	p.hub.PublishSample(shipment.ShipmentID, sample.Timestamp, sample)
	if len(fired) > 0 {
		p.hub.PublishAlert(shipment.ShipmentID, sample.Timestamp, map[string]interface{}{
			"violations": violations,
			"alerts":     fired,
			"sample":     sample,
		})
	}

	return true, len(violations), nil
}

// raiseAlerts 为每个违规码创建去重后的告警
func (p *Pipeline) raiseAlerts(ctx context.Context, shipment *models.Shipment, sample *models.TelemetrySample, violations []evaluator.Violation) []*models.Alert {
	if len(violations) == 0 {
		return nil
	}

	sensorData, _ := json.Marshal(sample)
	fired := make([]*models.Alert, 0, len(violations))

	for _, v := range violations {
		category := v.Category()

		exists, err := p.alerts.ExistsForSample(ctx, shipment.ShipmentID, category, sample.Timestamp)
		if err != nil {
			p.logger.Error("Failed to check alert dedup",
				zap.String("shipment_id", shipment.ShipmentID),
				zap.String("category", string(category)),
				zap.Error(err))
			continue
		}
		if exists {
			continue
		}

		alert := &models.Alert{
			AlertID:    uuid.New().String(),
			Category:   category,
			Severity:   v.Severity(),
			ShipmentID: shipment.ShipmentID,
			CargoID:    shipment.CargoID,
			CourierID:  shipment.CourierID,
			Message:    v.Message(),
			SampleTS:   sample.Timestamp,
			SensorData: sensorData,
		}

		created, err := p.alerts.CreateAlert(ctx, alert)
		if err != nil {
			p.logger.Error("Failed to create alert",
				zap.String("shipment_id", shipment.ShipmentID),
				zap.String("category", string(category)),
				zap.Error(err))
			continue
		}
		if !created {
			// 并发投递下的竞态: 唯一约束兜底
			continue
		}

		p.logger.Info("Alert created",
			zap.String("alert_id", alert.AlertID),
			zap.String("shipment_id", shipment.ShipmentID),
			zap.String("category", string(category)),
			zap.String("severity", string(alert.Severity)))
		fired = append(fired, alert)
	}

	return fired
}

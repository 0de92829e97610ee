package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ks-vishal/stot-ub/internal/ledger"
	"github.com/ks-vishal/stot-ub/internal/models"
	"github.com/ks-vishal/stot-ub/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ShipmentStore 运输单持久化操作
type ShipmentStore interface {
	GetShipment(ctx context.Context, shipmentID string) (*models.Shipment, error)
	ListShipments(ctx context.Context) ([]models.ShipmentSummary, error)
	CreateShipment(ctx context.Context, s *models.Shipment, entry *models.LedgerEntry) error
	Start(ctx context.Context, shipmentID string, entry *models.LedgerEntry) (*models.Shipment, error)
	ConfirmArrival(ctx context.Context, shipmentID string, lat, lng float64, entry *models.LedgerEntry) (*models.Shipment, error)
	Complete(ctx context.Context, shipmentID string, p repository.CompleteParams, entry *models.LedgerEntry) (*models.Shipment, error)
	Abort(ctx context.Context, shipmentID string, final models.ShipmentStatus, entry *models.LedgerEntry) (*models.Shipment, error)
	DeletePending(ctx context.Context, shipmentID string) error
}

// CargoReader 货物读取
type CargoReader interface {
	GetCargo(ctx context.Context, cargoID string) (*models.Cargo, error)
}

// CourierReader 无人机读取
type CourierReader interface {
	GetCourier(ctx context.Context, courierID string) (*models.Courier, error)
}

// LedgerQuerier 账本历史查询
type LedgerQuerier interface {
	QueryEntries(ctx context.Context, filters models.LedgerFilters) ([]models.LedgerEntry, error)
}

// CacheInvalidator 最新样本缓存失效
type CacheInvalidator interface {
	Invalidate(ctx context.Context, shipmentID string)
}

// Service 运输生命周期状态机
// 本地状态转移在单个SQL事务内完成; 账本上报在提交后异步进行, 失败不回滚转移
type Service struct {
	shipments ShipmentStore
	cargo     CargoReader
	couriers  CourierReader
	ledgerDB  LedgerQuerier
	reporter  *ledger.Reporter
	cache     CacheInvalidator
	planner   *DurationPlanner
	logger    *zap.Logger
}

// NewService 创建运输服务
func NewService(
	shipments ShipmentStore,
	cargo CargoReader,
	couriers CourierReader,
	ledgerDB LedgerQuerier,
	reporter *ledger.Reporter,
	cache CacheInvalidator,
	planner *DurationPlanner,
	logger *zap.Logger,
) *Service {
	if planner == nil {
		planner = NewDurationPlanner(0, nil)
	}
	return &Service{
		shipments: shipments,
		cargo:     cargo,
		couriers:  couriers,
		ledgerDB:  ledgerDB,
		reporter:  reporter,
		cache:     cache,
		planner:   planner,
		logger:    logger,
	}
}

// CreateShipmentRequest 创建运输单的请求
type CreateShipmentRequest struct {
	CargoID    string `json:"cargo_id"`
	CourierID  string `json:"courier_id"`
	OperatorID string `json:"-"`
	RouteNotes string `json:"route_notes,omitempty"`
}

// CreateShipment 创建运输单
// 校验货物可用性与无人机可用性, 按起讫坐标和优先级估算时长;
// 互斥约束（货物/无人机各自至多挂一个非终态运输单）由存储层在事务内保证
func (s *Service) CreateShipment(ctx context.Context, req *CreateShipmentRequest) (*models.Shipment, error) {
	// 1. 参数校验
	if req.CargoID == "" || req.CourierID == "" {
		return nil, fmt.Errorf("%w: cargo_id and courier_id are required", models.ErrValidation)
	}
	if req.OperatorID == "" {
		return nil, fmt.Errorf("%w: operator is required", models.ErrValidation)
	}

	// 2. 货物可用性
	cargo, err := s.cargo.GetCargo(ctx, req.CargoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cargo: %w", err)
	}
	switch cargo.Status {
	case models.CargoPending, models.CargoContainerAssigned, models.CargoSealed:
	default:
		return nil, fmt.Errorf("%w: cargo %s is not available for transport (status=%s)",
			models.ErrConflict, cargo.CargoID, cargo.Status)
	}

	// 3. 无人机可用性
	courier, err := s.couriers.GetCourier(ctx, req.CourierID)
	if err != nil {
		return nil, fmt.Errorf("failed to load courier: %w", err)
	}
	if courier.Status != models.CourierAvailable {
		return nil, fmt.Errorf("%w: courier %s is not available (status=%s)",
			models.ErrConflict, courier.CourierID, courier.Status)
	}

	// 4. 估算运输时长
	distanceKm := HaversineKm(cargo.OriginLat, cargo.OriginLng, cargo.DestinationLat, cargo.DestinationLng)
	estimated := s.planner.PlannedMinutes(distanceKm, cargo.PriorityLevel)

	endLat, endLng := cargo.DestinationLat, cargo.DestinationLng
	shipment := &models.Shipment{
		ShipmentID:        fmt.Sprintf("SHIP-%s", uuid.New().String()),
		CargoID:           cargo.CargoID,
		CourierID:         courier.CourierID,
		OperatorID:        req.OperatorID,
		Status:            models.ShipmentPending,
		StartLat:          cargo.OriginLat,
		StartLng:          cargo.OriginLng,
		EndLat:            &endLat,
		EndLng:            &endLng,
		EstimatedDuration: estimated,
		RouteNotes:        req.RouteNotes,
	}

	entry := s.newEntry(models.EventShipmentCreated, shipment, req.OperatorID, map[string]interface{}{
		"distance_km":        distanceKm,
		"estimated_duration": estimated,
		"priority_level":     cargo.PriorityLevel,
	})

	// 5. 事务内创建运输单 + 账本写入意向
	if err := s.shipments.CreateShipment(ctx, shipment, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Shipment created",
		zap.String("shipment_id", shipment.ShipmentID),
		zap.String("cargo_id", shipment.CargoID),
		zap.String("courier_id", shipment.CourierID),
		zap.Float64("distance_km", distanceKm),
		zap.Int("estimated_duration", estimated))

	// 6. 异步上报账本
	s.reporter.Submit(entry)
	return shipment, nil
}

// GetShipment 查询单个运输单
func (s *Service) GetShipment(ctx context.Context, shipmentID string) (*models.Shipment, error) {
	return s.shipments.GetShipment(ctx, shipmentID)
}

// ListShipments 运输单列表（含货物/无人机摘要）
func (s *Service) ListShipments(ctx context.Context) ([]models.ShipmentSummary, error) {
	return s.shipments.ListShipments(ctx)
}

// Start 启动运输: pending → in_transit
// 无人机转in_use, 货物转in_transit
func (s *Service) Start(ctx context.Context, shipmentID, operatorID string) (*models.Shipment, error) {
	entry := s.newEntryFor(models.EventShipmentStarted, shipmentID, operatorID, nil)
	shipment, err := s.shipments.Start(ctx, shipmentID, entry)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Shipment started",
		zap.String("shipment_id", shipmentID),
		zap.String("operator_id", operatorID))
	s.reporter.Submit(entry)
	return shipment, nil
}

// ConfirmArrival 确认到达: in_transit → arrived
// 到达确认是可选步骤, 允许从in_transit直接complete
func (s *Service) ConfirmArrival(ctx context.Context, shipmentID string, lat, lng float64, notes, operatorID string) (*models.Shipment, error) {
	entry := s.newEntryFor(models.EventShipmentArrived, shipmentID, operatorID, map[string]interface{}{
		"lat":   lat,
		"lng":   lng,
		"notes": notes,
	})
	shipment, err := s.shipments.ConfirmArrival(ctx, shipmentID, lat, lng, entry)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Shipment arrival confirmed",
		zap.String("shipment_id", shipmentID),
		zap.Float64("lat", lat),
		zap.Float64("lng", lng))
	s.reporter.Submit(entry)
	return shipment, nil
}

// CompleteRequest 完成运输的请求
type CompleteRequest struct {
	EndLat            float64  `json:"end_lat"`
	EndLng            float64  `json:"end_lng"`
	DistanceCoveredKm *float64 `json:"distance_covered_km,omitempty"`
	AverageSpeedKmh   *float64 `json:"average_speed_kmh,omitempty"`
	OperatorID        string   `json:"-"`
}

// Complete 完成运输: {in_transit, arrived} → completed
// 货物转delivered并落终点坐标, 无人机归还available并清空位置
func (s *Service) Complete(ctx context.Context, shipmentID string, req *CompleteRequest) (*models.Shipment, error) {
	entry := s.newEntryFor(models.EventShipmentCompleted, shipmentID, req.OperatorID, map[string]interface{}{
		"end_lat":             req.EndLat,
		"end_lng":             req.EndLng,
		"distance_covered_km": req.DistanceCoveredKm,
		"average_speed_kmh":   req.AverageSpeedKmh,
	})

	shipment, err := s.shipments.Complete(ctx, shipmentID, repository.CompleteParams{
		EndLat:            req.EndLat,
		EndLng:            req.EndLng,
		DistanceCoveredKm: req.DistanceCoveredKm,
		AverageSpeedKmh:   req.AverageSpeedKmh,
	}, entry)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, shipmentID)
	s.logger.Info("Shipment completed",
		zap.String("shipment_id", shipmentID),
		zap.Intp("actual_duration", shipment.ActualDuration))
	s.reporter.Submit(entry)
	return shipment, nil
}

// Cancel 取消运输（任意非终态均可）
// 货物回退到pending可重新调度, 无人机归还available
func (s *Service) Cancel(ctx context.Context, shipmentID, reason, operatorID string) (*models.Shipment, error) {
	return s.abort(ctx, shipmentID, models.ShipmentCancelled, reason, operatorID)
}

// Fail 标记运输失败（任意非终态均可）
// 货物标记failed, 无人机归还available
func (s *Service) Fail(ctx context.Context, shipmentID, reason, operatorID string) (*models.Shipment, error) {
	return s.abort(ctx, shipmentID, models.ShipmentFailed, reason, operatorID)
}

func (s *Service) abort(ctx context.Context, shipmentID string, final models.ShipmentStatus, reason, operatorID string) (*models.Shipment, error) {
	entry := s.newEntryFor(models.EventEmergencyStop, shipmentID, operatorID, map[string]interface{}{
		"final_status": final,
		"reason":       reason,
	})
	shipment, err := s.shipments.Abort(ctx, shipmentID, final, entry)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, shipmentID)
	s.logger.Warn("Shipment aborted",
		zap.String("shipment_id", shipmentID),
		zap.String("final_status", string(final)),
		zap.String("reason", reason))
	s.reporter.Submit(entry)
	return shipment, nil
}

// DeletePending 删除仍处于pending的运输单（硬删除）
// 其他状态一律Conflict, 历史不可变
func (s *Service) DeletePending(ctx context.Context, shipmentID string) error {
	if err := s.shipments.DeletePending(ctx, shipmentID); err != nil {
		return err
	}
	s.logger.Info("Pending shipment deleted", zap.String("shipment_id", shipmentID))
	return nil
}

// ChainOfCustody 重建运输单的监管链（账本记录, 默认时间升序）
func (s *Service) ChainOfCustody(ctx context.Context, shipmentID string, descending bool) ([]models.LedgerEntry, error) {
	if _, err := s.shipments.GetShipment(ctx, shipmentID); err != nil {
		return nil, err
	}
	return s.ledgerDB.QueryEntries(ctx, models.LedgerFilters{
		ShipmentID: &shipmentID,
		Descending: descending,
	})
}

// newEntry 为已构建的运输单生成账本写入意向
func (s *Service) newEntry(kind models.EventKind, shipment *models.Shipment, operatorID string, data map[string]interface{}) *models.LedgerEntry {
	eventData, _ := json.Marshal(data)
	return &models.LedgerEntry{
		EntryID:     uuid.New().String(),
		EventKind:   kind,
		ShipmentID:  &shipment.ShipmentID,
		CargoID:     &shipment.CargoID,
		CourierID:   &shipment.CourierID,
		OperatorID:  operatorID,
		TxReference: ledger.MockReference,
		EventData:   eventData,
		Status:      models.LedgerPending,
	}
}

// newEntryFor 按运输单ID生成账本写入意向（货物/无人机引用由事务内回填）
func (s *Service) newEntryFor(kind models.EventKind, shipmentID, operatorID string, data map[string]interface{}) *models.LedgerEntry {
	var eventData json.RawMessage
	if data != nil {
		eventData, _ = json.Marshal(data)
	}
	return &models.LedgerEntry{
		EntryID:     uuid.New().String(),
		EventKind:   kind,
		ShipmentID:  &shipmentID,
		OperatorID:  operatorID,
		TxReference: ledger.MockReference,
		EventData:   eventData,
		Status:      models.LedgerPending,
	}
}

package service

import (
	"context"
	"fmt"

	"github.com/ks-vishal/stot-ub/internal/models"

	"go.uber.org/zap"
)

// CourierStore 无人机持久化操作
type CourierStore interface {
	GetCourier(ctx context.Context, courierID string) (*models.Courier, error)
	ListCouriers(ctx context.Context) ([]models.Courier, error)
	CreateCourier(ctx context.Context, c *models.Courier) error
}

// CourierService 无人机机队登记与查询
type CourierService struct {
	couriers CourierStore
	logger   *zap.Logger
}

// NewCourierService 创建无人机服务
func NewCourierService(couriers CourierStore, logger *zap.Logger) *CourierService {
	return &CourierService{couriers: couriers, logger: logger}
}

// RegisterRequest 无人机登记请求
type RegisterRequest struct {
	CourierID       string  `json:"courier_id"`
	Model           string  `json:"model"`
	Manufacturer    string  `json:"manufacturer"`
	MaxPayloadKg    float64 `json:"max_payload_kg"`
	MaxRangeKm      float64 `json:"max_range_km"`
	MaxFlightMin    int     `json:"max_flight_min"`
	BatteryCapacity float64 `json:"battery_capacity"`
}

// Register 登记一台新无人机（初始状态available, 满电）
func (s *CourierService) Register(ctx context.Context, req *RegisterRequest) (*models.Courier, error) {
	if req.CourierID == "" || req.Model == "" {
		return nil, fmt.Errorf("%w: courier_id and model are required", models.ErrValidation)
	}
	if req.MaxPayloadKg <= 0 || req.MaxRangeKm <= 0 {
		return nil, fmt.Errorf("%w: max_payload_kg and max_range_km must be positive", models.ErrValidation)
	}

	courier := &models.Courier{
		CourierID:       req.CourierID,
		Model:           req.Model,
		Manufacturer:    req.Manufacturer,
		MaxPayloadKg:    req.MaxPayloadKg,
		MaxRangeKm:      req.MaxRangeKm,
		MaxFlightMin:    req.MaxFlightMin,
		BatteryCapacity: req.BatteryCapacity,
		CurrentBattery:  req.BatteryCapacity,
		Status:          models.CourierAvailable,
	}

	if err := s.couriers.CreateCourier(ctx, courier); err != nil {
		return nil, err
	}

	s.logger.Info("Courier registered",
		zap.String("courier_id", courier.CourierID),
		zap.String("model", courier.Model))
	return courier, nil
}

// Get 查询单台无人机
func (s *CourierService) Get(ctx context.Context, courierID string) (*models.Courier, error) {
	return s.couriers.GetCourier(ctx, courierID)
}

// List 机队列表
func (s *CourierService) List(ctx context.Context) ([]models.Courier, error) {
	return s.couriers.ListCouriers(ctx)
}

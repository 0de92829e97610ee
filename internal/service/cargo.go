package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ks-vishal/stot-ub/internal/ledger"
	"github.com/ks-vishal/stot-ub/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CargoStore 货物持久化操作
type CargoStore interface {
	GetCargo(ctx context.Context, cargoID string) (*models.Cargo, error)
	ListCargo(ctx context.Context) ([]models.Cargo, error)
	CreateCargo(ctx context.Context, c *models.Cargo) error
	UpdateContainer(ctx context.Context, cargoID, containerID string, status models.CargoStatus) error
}

// EntryStore 账本记录的创建与查询
type EntryStore interface {
	CreateEntry(ctx context.Context, entry *models.LedgerEntry) error
	QueryEntries(ctx context.Context, filters models.LedgerFilters) ([]models.LedgerEntry, error)
}

// CargoService 货物登记与容器工作流
type CargoService struct {
	cargo    CargoStore
	entries  EntryStore
	reporter *ledger.Reporter
	logger   *zap.Logger
}

// NewCargoService 创建货物服务
func NewCargoService(cargo CargoStore, entries EntryStore, reporter *ledger.Reporter, logger *zap.Logger) *CargoService {
	return &CargoService{cargo: cargo, entries: entries, reporter: reporter, logger: logger}
}

// IntakeRequest 器官取出确认（登记）请求
type IntakeRequest struct {
	CargoID              string               `json:"cargo_id"`
	OrganType            string               `json:"organ_type"`
	BloodType            string               `json:"blood_type"`
	DonorID              string               `json:"donor_id"`
	RecipientID          string               `json:"recipient_id"`
	DonorHospital        string               `json:"donor_hospital"`
	RecipientHospital    string               `json:"recipient_hospital"`
	OriginLat            float64              `json:"origin_lat"`
	OriginLng            float64              `json:"origin_lng"`
	DestinationLat       float64              `json:"destination_lat"`
	DestinationLng       float64              `json:"destination_lng"`
	PriorityLevel        models.PriorityLevel `json:"priority_level"`
	PreservationLimitMin int                  `json:"preservation_time_limit"`
	OperatorID           string               `json:"-"`
}

// ConfirmRetrieval 确认器官取出并登记货物
// 写入 cargo_registered 账本记录
func (s *CargoService) ConfirmRetrieval(ctx context.Context, req *IntakeRequest) (*models.Cargo, error) {
	// 1. 校验
	if req.CargoID == "" || req.OrganType == "" {
		return nil, fmt.Errorf("%w: cargo_id and organ_type are required", models.ErrValidation)
	}
	if req.PriorityLevel == "" {
		req.PriorityLevel = models.PriorityMedium
	}
	if !models.ValidPriority(req.PriorityLevel) {
		return nil, fmt.Errorf("%w: invalid priority_level %q", models.ErrValidation, req.PriorityLevel)
	}
	if req.PreservationLimitMin <= 0 {
		return nil, fmt.Errorf("%w: preservation_time_limit must be positive", models.ErrValidation)
	}

	cargo := &models.Cargo{
		CargoID:              req.CargoID,
		OrganType:            req.OrganType,
		BloodType:            req.BloodType,
		DonorID:              req.DonorID,
		RecipientID:          req.RecipientID,
		DonorHospital:        req.DonorHospital,
		RecipientHospital:    req.RecipientHospital,
		OriginLat:            req.OriginLat,
		OriginLng:            req.OriginLng,
		DestinationLat:       req.DestinationLat,
		DestinationLng:       req.DestinationLng,
		PriorityLevel:        req.PriorityLevel,
		PreservationLimitMin: req.PreservationLimitMin,
	}

	// 2. 落库
	if err := s.cargo.CreateCargo(ctx, cargo); err != nil {
		return nil, err
	}

	// 3. 账本记录
	entry := s.cargoEntry(models.EventCargoRegistered, cargo.CargoID, req.OperatorID, map[string]interface{}{
		"organ_type":     cargo.OrganType,
		"priority_level": cargo.PriorityLevel,
		"donor_hospital": cargo.DonorHospital,
	})
	s.persistAndReport(ctx, entry)

	s.logger.Info("Cargo registered",
		zap.String("cargo_id", cargo.CargoID),
		zap.String("organ_type", cargo.OrganType),
		zap.String("priority_level", string(cargo.PriorityLevel)))
	return cargo, nil
}

// GetCargo 查询单个货物
func (s *CargoService) GetCargo(ctx context.Context, cargoID string) (*models.Cargo, error) {
	return s.cargo.GetCargo(ctx, cargoID)
}

// ListCargo 货物列表
func (s *CargoService) ListCargo(ctx context.Context) ([]models.Cargo, error) {
	return s.cargo.ListCargo(ctx)
}

// AssignContainer 把货物装入温控容器: pending → container_assigned
func (s *CargoService) AssignContainer(ctx context.Context, cargoID, containerID, operatorID string) (*models.Cargo, error) {
	if containerID == "" {
		return nil, fmt.Errorf("%w: container_id is required", models.ErrValidation)
	}

	cargo, err := s.cargo.GetCargo(ctx, cargoID)
	if err != nil {
		return nil, err
	}
	if cargo.Status != models.CargoPending {
		return nil, fmt.Errorf("%w: cargo %s is %s, container can only be assigned while pending",
			models.ErrInvalidState, cargoID, cargo.Status)
	}

	if err := s.cargo.UpdateContainer(ctx, cargoID, containerID, models.CargoContainerAssigned); err != nil {
		return nil, err
	}
	cargo.Status = models.CargoContainerAssigned
	cargo.ContainerID = &containerID

	entry := s.cargoEntry(models.EventContainerAssigned, cargoID, operatorID, map[string]interface{}{
		"container_id": containerID,
	})
	s.persistAndReport(ctx, entry)

	s.logger.Info("Container assigned",
		zap.String("cargo_id", cargoID),
		zap.String("container_id", containerID))
	return cargo, nil
}

// SealRequest 容器封装请求
// 封装前需人工核验, 同时留档封装时的温湿度
type SealRequest struct {
	Verified    bool     `json:"verified"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	OperatorID  string   `json:"-"`
}

// SealContainer 封装容器: container_assigned → sealed
func (s *CargoService) SealContainer(ctx context.Context, cargoID string, req *SealRequest) (*models.Cargo, error) {
	if !req.Verified {
		return nil, fmt.Errorf("%w: seal requires verification", models.ErrValidation)
	}

	cargo, err := s.cargo.GetCargo(ctx, cargoID)
	if err != nil {
		return nil, err
	}
	if cargo.Status != models.CargoContainerAssigned {
		return nil, fmt.Errorf("%w: cargo %s is %s, only an assigned container can be sealed",
			models.ErrInvalidState, cargoID, cargo.Status)
	}
	if cargo.ContainerID == nil {
		return nil, fmt.Errorf("%w: cargo %s has no container", models.ErrInvalidState, cargoID)
	}

	if err := s.cargo.UpdateContainer(ctx, cargoID, *cargo.ContainerID, models.CargoSealed); err != nil {
		return nil, err
	}
	cargo.Status = models.CargoSealed

	entry := s.cargoEntry(models.EventContainerSealed, cargoID, req.OperatorID, map[string]interface{}{
		"container_id": *cargo.ContainerID,
		"temperature":  req.Temperature,
		"humidity":     req.Humidity,
	})
	s.persistAndReport(ctx, entry)

	s.logger.Info("Container sealed",
		zap.String("cargo_id", cargoID),
		zap.String("container_id", *cargo.ContainerID))
	return cargo, nil
}

// UnsealContainer 解封容器: sealed → container_assigned
func (s *CargoService) UnsealContainer(ctx context.Context, cargoID, operatorID string) (*models.Cargo, error) {
	cargo, err := s.cargo.GetCargo(ctx, cargoID)
	if err != nil {
		return nil, err
	}
	if cargo.Status != models.CargoSealed {
		return nil, fmt.Errorf("%w: cargo %s is %s, only a sealed container can be unsealed",
			models.ErrInvalidState, cargoID, cargo.Status)
	}
	if cargo.ContainerID == nil {
		return nil, fmt.Errorf("%w: cargo %s has no container", models.ErrInvalidState, cargoID)
	}

	if err := s.cargo.UpdateContainer(ctx, cargoID, *cargo.ContainerID, models.CargoContainerAssigned); err != nil {
		return nil, err
	}
	cargo.Status = models.CargoContainerAssigned

	entry := s.cargoEntry(models.EventContainerUnsealed, cargoID, operatorID, map[string]interface{}{
		"container_id": *cargo.ContainerID,
	})
	s.persistAndReport(ctx, entry)

	s.logger.Info("Container unsealed",
		zap.String("cargo_id", cargoID),
		zap.String("container_id", *cargo.ContainerID))
	return cargo, nil
}

// CustodyTrail 货物的监管链（账本记录, 默认时间升序）
func (s *CargoService) CustodyTrail(ctx context.Context, cargoID string, descending bool) ([]models.LedgerEntry, error) {
	if _, err := s.cargo.GetCargo(ctx, cargoID); err != nil {
		return nil, err
	}
	return s.entries.QueryEntries(ctx, models.LedgerFilters{
		CargoID:    &cargoID,
		Descending: descending,
	})
}

func (s *CargoService) cargoEntry(kind models.EventKind, cargoID, operatorID string, data map[string]interface{}) *models.LedgerEntry {
	eventData, _ := json.Marshal(data)
	return &models.LedgerEntry{
		EntryID:     uuid.New().String(),
		EventKind:   kind,
		CargoID:     &cargoID,
		OperatorID:  operatorID,
		TxReference: ledger.MockReference,
		EventData:   eventData,
		Status:      models.LedgerPending,
	}
}

// persistAndReport 落库账本记录并异步上报
// 账本是尽力而为: 本地失败只记日志, 不回滚业务转移
func (s *CargoService) persistAndReport(ctx context.Context, entry *models.LedgerEntry) {
	if err := s.entries.CreateEntry(ctx, entry); err != nil {
		s.logger.Error("Failed to persist ledger entry",
			zap.String("entry_id", entry.EntryID),
			zap.String("event_kind", string(entry.EventKind)),
			zap.Error(err))
		return
	}
	s.reporter.Submit(entry)
}

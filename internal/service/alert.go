package service

import (
	"context"
	"encoding/json"

	"github.com/ks-vishal/stot-ub/internal/ledger"
	"github.com/ks-vishal/stot-ub/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertStore 告警持久化操作
type AlertStore interface {
	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)
	ListAlerts(ctx context.Context, filters models.AlertFilters) ([]models.Alert, error)
	Resolve(ctx context.Context, alertID, operatorID string, notes string) (*models.Alert, error)
	ResolveAll(ctx context.Context, filters models.AlertFilters, operatorID string) (int64, error)
}

// AlertService 告警查询与处置
type AlertService struct {
	alerts   AlertStore
	entries  EntryStore
	reporter *ledger.Reporter
	logger   *zap.Logger
}

// NewAlertService 创建告警服务
func NewAlertService(alerts AlertStore, entries EntryStore, reporter *ledger.Reporter, logger *zap.Logger) *AlertService {
	return &AlertService{alerts: alerts, entries: entries, reporter: reporter, logger: logger}
}

// Get 查询单条告警
func (s *AlertService) Get(ctx context.Context, alertID string) (*models.Alert, error) {
	return s.alerts.GetAlert(ctx, alertID)
}

// List 按条件查询告警
func (s *AlertService) List(ctx context.Context, filters models.AlertFilters) ([]models.Alert, error) {
	return s.alerts.ListAlerts(ctx, filters)
}

// Resolve 处置告警（重复处置返回Conflict）
// 写入 alert_resolved 账本记录
func (s *AlertService) Resolve(ctx context.Context, alertID, operatorID, notes string) (*models.Alert, error) {
	alert, err := s.alerts.Resolve(ctx, alertID, operatorID, notes)
	if err != nil {
		return nil, err
	}

	eventData, _ := json.Marshal(map[string]interface{}{
		"alert_id": alert.AlertID,
		"category": alert.Category,
		"severity": alert.Severity,
		"notes":    notes,
	})
	entry := &models.LedgerEntry{
		EntryID:     uuid.New().String(),
		EventKind:   models.EventAlertResolved,
		ShipmentID:  &alert.ShipmentID,
		CargoID:     &alert.CargoID,
		CourierID:   &alert.CourierID,
		OperatorID:  operatorID,
		TxReference: ledger.MockReference,
		EventData:   eventData,
		Status:      models.LedgerPending,
	}
	if err := s.entries.CreateEntry(ctx, entry); err != nil {
		s.logger.Error("Failed to persist alert_resolved entry",
			zap.String("alert_id", alertID),
			zap.Error(err))
	} else {
		s.reporter.Submit(entry)
	}

	s.logger.Info("Alert resolved",
		zap.String("alert_id", alertID),
		zap.String("operator_id", operatorID))
	return alert, nil
}

// ResolveAll 按条件批量处置, 返回处置数量
func (s *AlertService) ResolveAll(ctx context.Context, filters models.AlertFilters, operatorID string) (int64, error) {
	count, err := s.alerts.ResolveAll(ctx, filters, operatorID)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Alerts bulk resolved",
		zap.Int64("count", count),
		zap.String("operator_id", operatorID))
	return count, nil
}

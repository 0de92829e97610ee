package models

import (
	"encoding/json"
	"time"
)

// AlertCategory 报警类别
type AlertCategory string

const (
	AlertTemperature AlertCategory = "temperature"
	AlertHumidity    AlertCategory = "humidity"
	AlertBattery     AlertCategory = "battery"
	AlertVibration   AlertCategory = "vibration"
	AlertLocation    AlertCategory = "location"
	AlertOther       AlertCategory = "other"
)

// AlertSeverity 报警级别
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Alert 阈值违规报警
// 去重键：(shipment_id, category, sample_ts)；
// resolved_at 当且仅当 is_resolved=true 时有值
type Alert struct {
	ID         int64           `json:"id"`
	AlertID    string          `json:"alert_id"`
	Category   AlertCategory   `json:"category"`
	Severity   AlertSeverity   `json:"severity"`
	ShipmentID string          `json:"shipment_id"`
	CargoID    string          `json:"cargo_id"`
	CourierID  string          `json:"courier_id"`
	Message    string          `json:"message"`
	SampleTS   time.Time       `json:"sample_ts"`
	SensorData json.RawMessage `json:"sensor_data,omitempty"`
	IsResolved bool            `json:"is_resolved"`
	ResolvedBy *string         `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
	Notes      *string         `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AlertFilters 报警查询过滤条件
type AlertFilters struct {
	Severity   *AlertSeverity
	Category   *AlertCategory
	Resolved   *bool
	ShipmentID *string
	Limit      int
}

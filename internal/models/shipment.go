package models

import "time"

// ShipmentStatus 运输单生命周期状态
// 严格单向推进：pending → in_transit → arrived → completed；
// failed/cancelled 是吸收态，可从任意非终态进入
type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "pending"
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentArrived   ShipmentStatus = "arrived"
	ShipmentCompleted ShipmentStatus = "completed"
	ShipmentFailed    ShipmentStatus = "failed"
	ShipmentCancelled ShipmentStatus = "cancelled"
)

// IsTerminal 是否处于终态
func (s ShipmentStatus) IsTerminal() bool {
	return s == ShipmentCompleted || s == ShipmentFailed || s == ShipmentCancelled
}

// Shipment 一次运输：一个 Cargo 绑定一台 Courier
// 不变式：同一时刻一台 Courier/一个 Cargo 至多关联一个非终态 Shipment
type Shipment struct {
	ID                 int64          `json:"id"`
	ShipmentID         string         `json:"shipment_id"`
	CargoID            string         `json:"cargo_id"`
	CourierID          string         `json:"courier_id"`
	OperatorID         string         `json:"operator_id"`
	Status             ShipmentStatus `json:"status"`
	StartLat           float64        `json:"start_lat"`
	StartLng           float64        `json:"start_lng"`
	EndLat             *float64       `json:"end_lat,omitempty"`
	EndLng             *float64       `json:"end_lng,omitempty"`
	EstimatedDuration  int            `json:"estimated_duration"` // 分钟
	ActualDuration     *int           `json:"actual_duration,omitempty"`
	StartTime          *time.Time     `json:"start_time,omitempty"`
	EndTime            *time.Time     `json:"end_time,omitempty"`
	ArrivalConfirmedAt *time.Time     `json:"arrival_confirmed_at,omitempty"`
	DistanceCoveredKm  *float64       `json:"distance_covered_km,omitempty"`
	AverageSpeedKmh    *float64       `json:"average_speed_kmh,omitempty"`
	RouteNotes         string         `json:"route_notes,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// ShipmentSummary 列表视图（关联 Cargo/Courier 摘要）
type ShipmentSummary struct {
	Shipment
	OrganType     string        `json:"organ_type"`
	Priority      PriorityLevel `json:"priority_level"`
	CargoStatus   CargoStatus   `json:"cargo_status"`
	CourierModel  string        `json:"courier_model"`
	CourierStatus CourierStatus `json:"courier_status"`
}

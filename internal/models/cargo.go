package models

import "time"

// CargoStatus 货物（器官）生命周期状态
type CargoStatus string

const (
	CargoPending           CargoStatus = "pending"
	CargoContainerAssigned CargoStatus = "container_assigned"
	CargoSealed            CargoStatus = "sealed"
	CargoInTransit         CargoStatus = "in_transit"
	CargoDelivered         CargoStatus = "delivered"
	CargoFailed            CargoStatus = "failed"
	CargoCancelled         CargoStatus = "cancelled"
)

// PriorityLevel 优先级（有序：low < medium < high < urgent）
type PriorityLevel string

const (
	PriorityLow    PriorityLevel = "low"
	PriorityMedium PriorityLevel = "medium"
	PriorityHigh   PriorityLevel = "high"
	PriorityUrgent PriorityLevel = "urgent"
)

// Cargo 器官及其运输元数据
// cargo_id 由外部指定（如 ORG-1）；终态记录不删除，保留审计
type Cargo struct {
	ID                   int64         `json:"id"`
	CargoID              string        `json:"cargo_id"`
	OrganType            string        `json:"organ_type"`
	BloodType            string        `json:"blood_type"`
	DonorID              string        `json:"donor_id"`
	RecipientID          string        `json:"recipient_id"`
	DonorHospital        string        `json:"donor_hospital"`
	RecipientHospital    string        `json:"recipient_hospital"`
	OriginLat            float64       `json:"origin_lat"`
	OriginLng            float64       `json:"origin_lng"`
	DestinationLat       float64       `json:"destination_lat"`
	DestinationLng       float64       `json:"destination_lng"`
	PriorityLevel        PriorityLevel `json:"priority_level"`
	Status               CargoStatus   `json:"status"`
	PreservationLimitMin int           `json:"preservation_time_limit"`
	ContainerID          *string       `json:"container_id,omitempty"`
	CurrentLat           *float64      `json:"current_lat,omitempty"`
	CurrentLng           *float64      `json:"current_lng,omitempty"`
	AssignedCourierID    *string       `json:"assigned_courier_id,omitempty"`
	AssignedOperatorID   *string       `json:"assigned_operator_id,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// IsTerminal 是否处于终态
func (s CargoStatus) IsTerminal() bool {
	return s == CargoDelivered || s == CargoFailed || s == CargoCancelled
}

// ValidPriority 优先级是否合法
func ValidPriority(p PriorityLevel) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

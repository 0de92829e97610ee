package models

import (
	"encoding/json"
	"time"
)

// EventKind 账本事件类型（封闭枚举）
type EventKind string

const (
	EventCargoRegistered   EventKind = "cargo_registered"
	EventShipmentCreated   EventKind = "shipment_created"
	EventShipmentStarted   EventKind = "shipment_started"
	EventShipmentUpdated   EventKind = "shipment_updated"
	EventShipmentArrived   EventKind = "shipment_arrived"
	EventShipmentCompleted EventKind = "shipment_completed"
	EventContainerAssigned EventKind = "container_assigned"
	EventContainerSealed   EventKind = "container_sealed"
	EventContainerUnsealed EventKind = "container_unsealed"
	EventAlertResolved     EventKind = "alert_resolved"
	EventEmergencyStop     EventKind = "emergency_stop"
)

// LedgerStatus 账本记录状态
type LedgerStatus string

const (
	LedgerPending   LedgerStatus = "pending"
	LedgerConfirmed LedgerStatus = "confirmed"
	LedgerFailed    LedgerStatus = "failed"
)

// LedgerEntry 审计账本记录
// 每个改变状态的动作一行；监管链查询的事实来源
type LedgerEntry struct {
	ID          int64           `json:"id"`
	EntryID     string          `json:"entry_id"`
	EventKind   EventKind       `json:"event_kind"`
	ShipmentID  *string         `json:"shipment_id,omitempty"`
	CargoID     *string         `json:"cargo_id,omitempty"`
	CourierID   *string         `json:"courier_id,omitempty"`
	OperatorID  string          `json:"operator_id"`
	TxReference string          `json:"tx_reference"`
	EventData   json.RawMessage `json:"event_data,omitempty"`
	Status      LedgerStatus    `json:"status"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LedgerFilters 账本查询过滤条件
type LedgerFilters struct {
	ShipmentID *string
	CargoID    *string
	EventKind  *EventKind
	Descending bool // 默认按创建时间升序（监管链时序）
	Limit      int
}

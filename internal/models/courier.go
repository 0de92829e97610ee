package models

import "time"

// CourierStatus 运输无人机生命周期状态
type CourierStatus string

const (
	CourierAvailable   CourierStatus = "available"
	CourierInUse       CourierStatus = "in_use"
	CourierMaintenance CourierStatus = "maintenance"
	CourierOffline     CourierStatus = "offline"
)

// Courier 执行实际运输的UAV
// 独立于任何运输单存在；运输单在其存续期间借用一台 Courier，
// 完成或失败时必须归还为 available
type Courier struct {
	ID              int64         `json:"id"`
	CourierID       string        `json:"courier_id"`
	Model           string        `json:"model"`
	Manufacturer    string        `json:"manufacturer,omitempty"`
	MaxPayloadKg    float64       `json:"max_payload_kg"`
	MaxRangeKm      float64       `json:"max_range_km"`
	MaxFlightMin    int           `json:"max_flight_min"`
	BatteryCapacity float64       `json:"battery_capacity"`
	CurrentBattery  float64       `json:"current_battery"`
	Status          CourierStatus `json:"status"`
	CurrentLat      *float64      `json:"current_lat,omitempty"`
	CurrentLng      *float64      `json:"current_lng,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// TelemetrySample 一条遥测样本
// 自然键 (shipment_id, ts) 唯一；只追加，不修改
type TelemetrySample struct {
	ID             int64     `json:"id"`
	ShipmentID     string    `json:"shipment_id"`
	CargoID        string    `json:"cargo_id"`
	CourierID      string    `json:"courier_id"`
	Timestamp      time.Time `json:"timestamp"`
	Temperature    *float64  `json:"temperature,omitempty"`
	Humidity       *float64  `json:"humidity,omitempty"`
	Pressure       *float64  `json:"pressure,omitempty"`
	Altitude       float64   `json:"altitude"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Speed          *float64  `json:"speed,omitempty"`
	BatteryLevel   *float64  `json:"battery_level,omitempty"`
	SignalStrength *int      `json:"signal_strength,omitempty"`
	Vibration      *float64  `json:"vibration,omitempty"`
	Light          *int      `json:"light,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TelemetryPayload 设备上报的原始JSON载荷
// timestamp 可以是 ISO-8601 字符串或 epoch 毫秒数，缺省取到达时间；
// message_id 仅用于日志关联，不参与去重（去重用自然键）
type TelemetryPayload struct {
	Timestamp      json.RawMessage `json:"timestamp,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	Humidity       *float64        `json:"humidity,omitempty"`
	Pressure       *float64        `json:"pressure,omitempty"`
	Altitude       float64         `json:"altitude"`
	Latitude       float64         `json:"latitude"`
	Longitude      float64         `json:"longitude"`
	Speed          *float64        `json:"speed,omitempty"`
	BatteryLevel   *float64        `json:"batteryLevel,omitempty"`
	Vibration      *float64        `json:"vibration,omitempty"`
	SignalStrength *int            `json:"signalStrength,omitempty"`
	Light          *int            `json:"light,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
}

// ParseTimestamp 解析载荷时间戳
// 支持 ISO-8601 字符串和 epoch 毫秒；解析失败或缺省时返回 fallback
func (p *TelemetryPayload) ParseTimestamp(fallback time.Time) time.Time {
	if len(p.Timestamp) == 0 {
		return fallback
	}
	raw := strings.TrimSpace(string(p.Timestamp))
	if raw == "" || raw == "null" {
		return fallback
	}
	// JSON 字符串：ISO-8601
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(p.Timestamp, &s); err != nil {
			return fallback
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
		return fallback
	}
	// JSON 数字：epoch 毫秒
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return fallback
}

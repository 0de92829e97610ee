package evaluator

import (
	"fmt"
	"strings"

	"github.com/ks-vishal/stot-ub/internal/models"
)

// Violation 阈值违规代码
type Violation string

const (
	LowTemperature  Violation = "LOW_TEMPERATURE"
	HighTemperature Violation = "HIGH_TEMPERATURE"
	LowHumidity     Violation = "LOW_HUMIDITY"
	HighHumidity    Violation = "HIGH_HUMIDITY"
	HighVibration   Violation = "HIGH_VIBRATION"
	LowBattery      Violation = "LOW_BATTERY"
)

// Limits 单个运输单的安全阈值
// 按运输单下发（默认 DefaultLimits），允许将来按器官类型覆盖
type Limits struct {
	TemperatureMin float64
	TemperatureMax float64
	HumidityMin    float64
	HumidityMax    float64
	VibrationMax   float64
	BatteryMin     float64
}

// DefaultLimits 默认阈值
// 温度 [2,8]°C，湿度 [45,65]%，振动 ≤5g，电量 ≥20%
func DefaultLimits() Limits {
	return Limits{
		TemperatureMin: 2,
		TemperatureMax: 8,
		HumidityMin:    45,
		HumidityMax:    65,
		VibrationMax:   5,
		BatteryMin:     20,
	}
}

// Evaluate 评估样本，返回零或多个违规代码
// 纯函数：无副作用、无I/O；一个样本可同时触发多个代码
// 载荷缺省的读数不参与评估（缺失不等于越界）
func Evaluate(sample *models.TelemetrySample, limits Limits) []Violation {
	var violations []Violation

	if sample.Temperature != nil && *sample.Temperature < limits.TemperatureMin {
		violations = append(violations, LowTemperature)
	}
	if sample.Temperature != nil && *sample.Temperature > limits.TemperatureMax {
		violations = append(violations, HighTemperature)
	}
	if sample.Humidity != nil && *sample.Humidity < limits.HumidityMin {
		violations = append(violations, LowHumidity)
	}
	if sample.Humidity != nil && *sample.Humidity > limits.HumidityMax {
		violations = append(violations, HighHumidity)
	}
	if sample.Vibration != nil && *sample.Vibration > limits.VibrationMax {
		violations = append(violations, HighVibration)
	}
	if sample.BatteryLevel != nil && *sample.BatteryLevel < limits.BatteryMin {
		violations = append(violations, LowBattery)
	}

	return violations
}

// Category 违规代码对应的报警类别
func (v Violation) Category() models.AlertCategory {
	switch v {
	case LowTemperature, HighTemperature:
		return models.AlertTemperature
	case LowHumidity, HighHumidity:
		return models.AlertHumidity
	case HighVibration:
		return models.AlertVibration
	case LowBattery:
		return models.AlertBattery
	}
	return models.AlertOther
}

// Severity 违规代码对应的报警级别
// 温度越界直接威胁器官存活，定为 critical；其余默认 high
func (v Violation) Severity() models.AlertSeverity {
	switch v {
	case LowTemperature, HighTemperature:
		return models.SeverityCritical
	}
	return models.SeverityHigh
}

// Message 面向操作员的报警文本
func (v Violation) Message() string {
	return fmt.Sprintf("%s detected", strings.ReplaceAll(string(v), "_", " "))
}

package transport

import (
	"math"

	"github.com/ks-vishal/stot-ub/internal/models"
)

// 地球平均半径（公里）
const earthRadiusKm = 6371

// 规划时使用的默认无人机巡航速度（公里/小时）
const defaultCruiseSpeedKmh = 60

// DefaultPriorityFactors 默认优先级因子：计划时长与优先级成反比
func DefaultPriorityFactors() map[models.PriorityLevel]float64 {
	return map[models.PriorityLevel]float64{
		models.PriorityUrgent: 3,
		models.PriorityHigh:   2,
		models.PriorityMedium: 1.5,
		models.PriorityLow:    1,
	}
}

// HaversineKm 计算两点间大圆距离（公里）
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// DurationPlanner 运输时长估算器
// 因子表和巡航速度可由配置覆盖
type DurationPlanner struct {
	SpeedKmh float64
	Factors  map[models.PriorityLevel]float64
}

// NewDurationPlanner 创建估算器；nil因子表使用默认值
func NewDurationPlanner(speedKmh float64, factors map[models.PriorityLevel]float64) *DurationPlanner {
	if speedKmh <= 0 {
		speedKmh = defaultCruiseSpeedKmh
	}
	if len(factors) == 0 {
		factors = DefaultPriorityFactors()
	}
	return &DurationPlanner{SpeedKmh: speedKmh, Factors: factors}
}

// PlannedMinutes 按距离和优先级估算运输时长（分钟）
// 基准时长 = 距离/巡航速度；优先级越高时长越短
func (p *DurationPlanner) PlannedMinutes(distanceKm float64, priority models.PriorityLevel) int {
	factor, ok := p.Factors[priority]
	if !ok || factor <= 0 {
		factor = DefaultPriorityFactors()[models.PriorityMedium]
	}
	baseMinutes := distanceKm / p.SpeedKmh * 60
	return int(math.Ceil(baseMinutes / factor))
}

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/ks-vishal/stot-ub/internal/models"
	"github.com/ks-vishal/stot-ub/pkg/config"
)

// Config 运输追踪服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig
	Ledger   config.LedgerConfig

	HTTP struct {
		Addr string // 监听地址, 如 ":8080"
	}

	Telemetry struct {
		CachePrefix string // 最新样本缓存键前缀
		CacheTTLSec int    // 最新样本缓存TTL（秒）
		MQTTQoS     byte   // 传感器订阅QoS
	}

	Fanout struct {
		QueueSize int    // 每个订阅者的缓冲队列长度
		Stream    string // 事件镜像流名称, 置空关闭镜像
	}

	Planner struct {
		SpeedKmh float64 // 规划巡航速度
		// 优先级因子, 可通过 PRIORITY_FACTORS 覆盖
		// 格式: "urgent=3,high=2,medium=1.5,low=1"
		PriorityFactors map[models.PriorityLevel]float64
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置（带默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "stotub",
		SSLMode:  "disable",
		MaxConns: 25,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "stotub-server",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Ledger = config.LedgerConfig{TimeoutSec: 10}
	cfg.Ledger.LoadFromEnv("LEDGER")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Telemetry.CachePrefix = getEnv("TELEMETRY_CACHE_PREFIX", "telemetry:shipment:")
	cfg.Telemetry.CacheTTLSec = getEnvInt("TELEMETRY_CACHE_TTL", 60)
	cfg.Telemetry.MQTTQoS = byte(getEnvInt("MQTT_QOS", 1))

	cfg.Fanout.QueueSize = getEnvInt("FANOUT_QUEUE_SIZE", 32)
	cfg.Fanout.Stream = getEnv("FANOUT_STREAM", "stotub:events")

	cfg.Planner.SpeedKmh = getEnvFloat("PLANNER_SPEED_KMH", 60)
	cfg.Planner.PriorityFactors = parsePriorityFactors(os.Getenv("PRIORITY_FACTORS"))

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// parsePriorityFactors 解析 "urgent=3,high=2" 形式的因子表
// 空串或解析失败返回nil, 调用方使用内置默认值
func parsePriorityFactors(raw string) map[models.PriorityLevel]float64 {
	if raw == "" {
		return nil
	}
	factors := make(map[models.PriorityLevel]float64)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		level := models.PriorityLevel(strings.TrimSpace(parts[0]))
		if !models.ValidPriority(level) {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || f <= 0 {
			continue
		}
		factors[level] = f
	}
	if len(factors) == 0 {
		return nil
	}
	return factors
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

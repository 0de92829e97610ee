package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ks-vishal/stot-ub/internal/models"
	"github.com/ks-vishal/stot-ub/pkg/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// MockReference 降级模式下的确定性占位引用
// 网关不可用或未配置时返回，用于事后对账
const MockReference = "0x" + "0000000000000000000000000000000000000000000000000000000000000000"

// Receipt 账本记录回执
// Confirmed=false 表示降级模式（网关禁用或调用失败）；
// 调用方绝不因此回滚本地状态转换
type Receipt struct {
	Reference string `json:"reference"`
	Confirmed bool   `json:"confirmed"`
}

// EventRefs 事件关联的业务标识
type EventRefs struct {
	ShipmentID string `json:"shipment_id,omitempty"`
	CargoID    string `json:"cargo_id,omitempty"`
	CourierID  string `json:"courier_id,omitempty"`
	OperatorID string `json:"operator_id"`
}

// Recorder 外部只追加事件账本的抽象
// 核心业务不感知账本是否启用：降级完全由 Receipt.Confirmed 表达
type Recorder interface {
	// Record 记录事件，返回交易引用
	// 永不返回会中断状态转换的错误：失败以 Confirmed=false 表达
	Record(ctx context.Context, kind models.EventKind, refs EventRefs, payload interface{}) Receipt
}

// recordRequest 网关请求体
type recordRequest struct {
	EventKind string      `json:"event_kind"`
	Refs      EventRefs   `json:"refs"`
	Payload   interface{} `json:"payload,omitempty"`
}

// recordResponse 网关响应体
type recordResponse struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

// GatewayRecorder 通过HTTP网关写入分布式账本
type GatewayRecorder struct {
	client *resty.Client
	logger *zap.Logger
}

// NewGatewayRecorder 创建账本网关客户端
// cfg.GatewayURL 为空时返回 disabled 模式的 Recorder
func NewGatewayRecorder(cfg *config.LedgerConfig, logger *zap.Logger) Recorder {
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		logger.Warn("Ledger integration disabled - no gateway URL configured")
		return &disabledRecorder{logger: logger}
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.GatewayURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}

	logger.Info("Ledger integration enabled",
		zap.String("gateway_url", cfg.GatewayURL),
	)

	return &GatewayRecorder{
		client: client,
		logger: logger,
	}
}

// Record 转发事件到账本网关
// 任何失败（网络、超时、非2xx）都降级为 mock 引用 + Confirmed=false
func (r *GatewayRecorder) Record(ctx context.Context, kind models.EventKind, refs EventRefs, payload interface{}) Receipt {
	var result recordResponse

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(recordRequest{
			EventKind: string(kind),
			Refs:      refs,
			Payload:   payload,
		}).
		SetResult(&result).
		Post("/api/v1/events")

	if err != nil {
		r.logger.Error("Ledger record failed",
			zap.String("event_kind", string(kind)),
			zap.String("shipment_id", refs.ShipmentID),
			zap.Error(err),
		)
		return Receipt{Reference: MockReference, Confirmed: false}
	}

	if resp.IsError() || result.TxHash == "" {
		r.logger.Error("Ledger gateway rejected event",
			zap.String("event_kind", string(kind)),
			zap.Int("status_code", resp.StatusCode()),
		)
		return Receipt{Reference: MockReference, Confirmed: false}
	}

	return Receipt{Reference: result.TxHash, Confirmed: true}
}

// disabledRecorder 账本未配置时的降级实现
type disabledRecorder struct {
	logger *zap.Logger
}

func (r *disabledRecorder) Record(ctx context.Context, kind models.EventKind, refs EventRefs, payload interface{}) Receipt {
	r.logger.Info(fmt.Sprintf("Mock: record %s", kind),
		zap.String("shipment_id", refs.ShipmentID),
		zap.String("cargo_id", refs.CargoID),
	)
	return Receipt{Reference: MockReference, Confirmed: false}
}

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ks-vishal/stot-ub/pkg/mqtt"

	"go.uber.org/zap"
)

// 传感器遥测主题: stotub/sensors/<shipment_key>
const SensorTopicPrefix = "stotub/sensors/"

// MQTTConsumer 订阅传感器主题并交给管道处理
type MQTTConsumer struct {
	client   *mqtt.Client
	pipeline *Pipeline
	qos      byte
	logger   *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(client *mqtt.Client, p *Pipeline, qos byte, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		client:   client,
		pipeline: p,
		qos:      qos,
		logger:   logger,
	}
}

// Start 订阅通配主题
func (c *MQTTConsumer) Start(ctx context.Context) error {
	topic := SensorTopicPrefix + "+"
	if err := c.client.Subscribe(topic, c.qos, func(msgTopic string, payload []byte) error {
		return c.handleMessage(ctx, msgTopic, payload)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to sensor topic: %w", err)
	}
	c.logger.Info("MQTT consumer started", zap.String("topic", topic))
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop() {
	if err := c.client.Unsubscribe(SensorTopicPrefix + "+"); err != nil {
		c.logger.Warn("Failed to unsubscribe sensor topic", zap.Error(err))
	}
}

// handleMessage 处理单条MQTT消息
func (c *MQTTConsumer) handleMessage(ctx context.Context, topic string, payload []byte) error {
	// 1. 从主题中提取运单标识
	key := strings.TrimPrefix(topic, SensorTopicPrefix)
	if key == "" || key == topic || strings.Contains(key, "/") {
		c.logger.Warn("Ignoring message on unexpected topic", zap.String("topic", topic))
		return nil
	}

	// 2. 交给管道（丢弃不回传错误, fire-and-forget）
	stored, violations, err := c.pipeline.Ingest(ctx, key, payload)
	if err != nil {
		c.logger.Error("Telemetry ingest failed",
			zap.String("topic", topic),
			zap.Error(err))
		return nil
	}

	if stored {
		c.logger.Debug("Telemetry sample processed",
			zap.String("shipment_key", key),
			zap.Int("violations", violations))
	}
	return nil
}

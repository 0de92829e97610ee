package fanout

import (
	"context"
	"time"

	pkgredis "github.com/ks-vishal/stot-ub/pkg/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 镜像写入的单次超时
const mirrorTimeout = 2 * time.Second

// 镜像待写队列长度
const mirrorQueueSize = 256

// StreamMirror 把实时事件镜像到 Redis Streams
// 供进程外消费者（审计、回放）使用; 写入在后台协程进行,
// Redis 不可用时不阻塞在线推送, 队列满则丢弃并记日志
type StreamMirror struct {
	client *redis.Client
	stream string
	queue  chan *Event
	done   chan struct{}
	logger *zap.Logger
}

// NewStreamMirror 创建事件镜像并启动后台写入协程
func NewStreamMirror(client *redis.Client, stream string, logger *zap.Logger) *StreamMirror {
	m := &StreamMirror{
		client: client,
		stream: stream,
		queue:  make(chan *Event, mirrorQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go m.run()
	return m
}

// Mirror 投递一条事件到后台写入队列（永不阻塞调用方）
func (m *StreamMirror) Mirror(event *Event) {
	select {
	case m.queue <- event:
	default:
		m.logger.Warn("Mirror queue full, dropping event",
			zap.String("stream", m.stream),
			zap.String("shipment_id", event.ShipmentID))
	}
}

// Close 停止后台写入协程, 队列中未写出的事件被丢弃
func (m *StreamMirror) Close() {
	close(m.done)
}

func (m *StreamMirror) run() {
	for {
		select {
		case event := <-m.queue:
			m.write(event)
		case <-m.done:
			return
		}
	}
}

func (m *StreamMirror) write(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	_, err := pkgredis.PublishJSONToStream(ctx, m.client, m.stream, event)
	if err != nil {
		m.logger.Warn("Failed to mirror event to stream",
			zap.String("stream", m.stream),
			zap.String("shipment_id", event.ShipmentID),
			zap.Error(err))
	}
}

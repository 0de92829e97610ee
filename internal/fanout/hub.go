package fanout

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// 事件类型
const (
	EventSample = "sample" // 遥测样本事件
	EventAlert  = "alert"  // 告警事件
)

// 默认每个订阅者的缓冲队列长度
const defaultQueueSize = 32

// Event 推送给订阅者的实时事件
type Event struct {
	Type       string      `json:"type"`
	ShipmentID string      `json:"shipment_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       interface{} `json:"data"`
}

// Subscriber 单个运单主题的订阅者
// 队列满时丢弃最旧的事件, 慢消费者不会阻塞发布方
type Subscriber struct {
	shipmentID string
	ch         chan []byte
}

// Events 订阅者的接收通道
func (s *Subscriber) Events() <-chan []byte {
	return s.ch
}

// Mirror 事件镜像（进程外消费者）
type Mirror interface {
	Mirror(event *Event)
}

// Hub 按运单分主题的实时事件分发器
// 发布方永不阻塞: 订阅者队列满时按先进先出丢弃最旧事件
type Hub struct {
	mu        sync.RWMutex
	topics    map[string]map[*Subscriber]struct{} // shipmentID -> subscribers
	queueSize int
	mirror    Mirror
	logger    *zap.Logger
}

// NewHub 创建事件分发器
func NewHub(queueSize int, logger *zap.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		topics:    make(map[string]map[*Subscriber]struct{}),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Subscribe 订阅指定运单的实时事件
func (h *Hub) Subscribe(shipmentID string) *Subscriber {
	sub := &Subscriber{
		shipmentID: shipmentID,
		ch:         make(chan []byte, h.queueSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[shipmentID]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.topics[shipmentID] = subs
	}
	subs[sub] = struct{}{}

	h.logger.Debug("Subscriber added",
		zap.String("shipment_id", shipmentID),
		zap.Int("subscribers", len(subs)))
	return sub
}

// Unsubscribe 移除订阅者并关闭其通道
// 对已移除的订阅者重复调用是安全的
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[sub.shipmentID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.topics, sub.shipmentID)
	}
}

// SetMirror 挂载事件镜像（启动时一次性设置, 不做并发保护）
func (h *Hub) SetMirror(m Mirror) {
	h.mirror = m
}

// Publish 向运单主题的所有订阅者广播事件
// 没有订阅者时直接丢弃, 不做任何缓存
func (h *Hub) Publish(event *Event) {
	if h.mirror != nil {
		h.mirror.Mirror(event)
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal fanout event",
			zap.String("shipment_id", event.ShipmentID),
			zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.topics[event.ShipmentID]
	if !ok {
		return
	}

	for sub := range subs {
		select {
		case sub.ch <- data:
		default:
			// 队列已满: 丢弃最旧事件后重试一次
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- data:
			default:
			}
			h.logger.Warn("Subscriber queue full, dropped oldest event",
				zap.String("shipment_id", event.ShipmentID))
		}
	}
}

// PublishSample 广播遥测样本事件
func (h *Hub) PublishSample(shipmentID string, ts time.Time, sample interface{}) {
	h.Publish(&Event{
		Type:       EventSample,
		ShipmentID: shipmentID,
		Timestamp:  ts,
		Data:       sample,
	})
}

// PublishAlert 广播告警事件
func (h *Hub) PublishAlert(shipmentID string, ts time.Time, alert interface{}) {
	h.Publish(&Event{
		Type:       EventAlert,
		ShipmentID: shipmentID,
		Timestamp:  ts,
		Data:       alert,
	})
}

// SubscriberCount 返回指定运单当前的订阅者数量
func (h *Hub) SubscriberCount(shipmentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[shipmentID])
}

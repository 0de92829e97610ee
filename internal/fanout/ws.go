package fanout

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WSHandler 运单实时事件的WebSocket接入端点
type WSHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler 创建WebSocket处理器
func NewWSHandler(hub *Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 鉴权由外部网关负责
				return true
			},
		},
		logger: logger,
	}
}

// ServeShipment 处理 GET /ws/shipments/{shipment_id} 的升级请求
// 连接断开时静默移除订阅, 不影响其他订阅者
func (h *WSHandler) ServeShipment(w http.ResponseWriter, r *http.Request, shipmentID string) {
	// 1. 升级HTTP连接
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			zap.String("shipment_id", shipmentID),
			zap.Error(err))
		return
	}

	// 2. 注册订阅
	sub := h.hub.Subscribe(shipmentID)
	h.logger.Info("WebSocket client connected",
		zap.String("shipment_id", shipmentID),
		zap.String("remote_addr", r.RemoteAddr))

	// 3. 读循环只用于感知断开
	go func() {
		defer h.hub.Unsubscribe(sub)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// 4. 写循环: 事件推送 + 心跳
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		h.hub.Unsubscribe(sub)
		h.logger.Info("WebSocket client disconnected",
			zap.String("shipment_id", shipmentID),
			zap.String("remote_addr", r.RemoteAddr))
	}()

	for {
		select {
		case data, ok := <-sub.Events():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

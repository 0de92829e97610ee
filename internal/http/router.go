package httpapi

import (
	"net/http"
	"strings"

	"github.com/ks-vishal/stot-ub/internal/fanout"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// pathID 提取 prefix 之后的单段路径参数, 可带一个固定后缀
// "/api/v1/shipments/SHIP-1/start" -> ("SHIP-1", true) 当 suffix="/start"
func pathID(path, prefix, suffix string) (string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path {
		return "", false
	}
	if suffix != "" {
		if !strings.HasSuffix(rest, suffix) {
			return "", false
		}
		rest = strings.TrimSuffix(rest, suffix)
	}
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// RegisterShipmentRoutes 运输单生命周期 + 遥测读取 + 状态汇总 + 监管链
func (r *Router) RegisterShipmentRoutes(h *ShipmentHandler, t *TelemetryHandler, st *StatusHandler) {
	r.Handle("/api/v1/shipments", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			h.Create(w, req)
		case http.MethodGet:
			h.List(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	r.Handle("/api/v1/shipments/", func(w http.ResponseWriter, req *http.Request) {
		const prefix = "/api/v1/shipments/"

		// 子资源动作
		type action struct {
			suffix  string
			method  string
			handler func(http.ResponseWriter, *http.Request, string)
		}
		actions := []action{
			{"/start", http.MethodPost, h.Start},
			{"/arrive", http.MethodPost, h.ConfirmArrival},
			{"/complete", http.MethodPost, h.Complete},
			{"/cancel", http.MethodPost, h.Cancel},
			{"/fail", http.MethodPost, h.MarkFailed},
			{"/custody", http.MethodGet, h.ChainOfCustody},
			{"/status", http.MethodGet, st.Status},
			{"/telemetry/latest", http.MethodGet, t.Latest},
			{"/telemetry/history", http.MethodGet, t.History},
		}
		for _, a := range actions {
			if id, ok := pathID(req.URL.Path, prefix, a.suffix); ok {
				if req.Method != a.method {
					w.WriteHeader(http.StatusMethodNotAllowed)
					return
				}
				a.handler(w, req, id)
				return
			}
		}

		// GET/DELETE /api/v1/shipments/{id}
		id, ok := pathID(req.URL.Path, prefix, "")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch req.Method {
		case http.MethodGet:
			h.Get(w, req, id)
		case http.MethodDelete:
			h.Delete(w, req, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// RegisterCargoRoutes 货物登记与容器工作流
func (r *Router) RegisterCargoRoutes(h *CargoHandler) {
	r.Handle("/api/v1/cargo", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			h.ConfirmRetrieval(w, req)
		case http.MethodGet:
			h.List(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	r.Handle("/api/v1/cargo/", func(w http.ResponseWriter, req *http.Request) {
		const prefix = "/api/v1/cargo/"

		type action struct {
			suffix  string
			method  string
			handler func(http.ResponseWriter, *http.Request, string)
		}
		actions := []action{
			{"/container/seal", http.MethodPost, h.SealContainer},
			{"/container/unseal", http.MethodPost, h.UnsealContainer},
			{"/container", http.MethodPost, h.AssignContainer},
			{"/custody", http.MethodGet, h.CustodyTrail},
		}
		for _, a := range actions {
			if id, ok := pathID(req.URL.Path, prefix, a.suffix); ok {
				if req.Method != a.method {
					w.WriteHeader(http.StatusMethodNotAllowed)
					return
				}
				a.handler(w, req, id)
				return
			}
		}

		id, ok := pathID(req.URL.Path, prefix, "")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Get(w, req, id)
	})
}

// RegisterCourierRoutes 无人机机队
func (r *Router) RegisterCourierRoutes(h *CourierHandler) {
	r.Handle("/api/v1/couriers", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			h.Register(w, req)
		case http.MethodGet:
			h.List(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	r.Handle("/api/v1/couriers/", func(w http.ResponseWriter, req *http.Request) {
		id, ok := pathID(req.URL.Path, "/api/v1/couriers/", "")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Get(w, req, id)
	})
}

// RegisterAlertRoutes 告警查询与处置
func (r *Router) RegisterAlertRoutes(h *AlertHandler) {
	r.Handle("/api/v1/alerts", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.List(w, req)
	})

	r.Handle("/api/v1/alerts/resolve-all", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ResolveAll(w, req)
	})

	r.Handle("/api/v1/alerts/", func(w http.ResponseWriter, req *http.Request) {
		const prefix = "/api/v1/alerts/"

		if id, ok := pathID(req.URL.Path, prefix, "/resolve"); ok {
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Resolve(w, req, id)
			return
		}

		id, ok := pathID(req.URL.Path, prefix, "")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Get(w, req, id)
	})
}

// RegisterLedgerRoutes 审计账本查询
func (r *Router) RegisterLedgerRoutes(h *LedgerHandler) {
	r.Handle("/api/v1/ledger", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Query(w, req)
	})
}

// RegisterWSRoutes 运单实时事件WebSocket
func (r *Router) RegisterWSRoutes(ws *fanout.WSHandler) {
	r.Handle("/ws/shipments/", func(w http.ResponseWriter, req *http.Request) {
		id, ok := pathID(req.URL.Path, "/ws/shipments/", "")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		ws.ServeShipment(w, req, id)
	})
}

// RegisterHealthRoutes 健康检查
func (r *Router) RegisterHealthRoutes(check func() error) {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := check(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, Fail(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, Ok("ok"))
	})
}

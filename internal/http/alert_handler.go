package httpapi

import (
	"net/http"
	"strconv"

	"github.com/ks-vishal/stot-ub/internal/models"
	"github.com/ks-vishal/stot-ub/internal/service"

	"go.uber.org/zap"
)

// AlertHandler 告警查询与处置API
type AlertHandler struct {
	svc    *service.AlertService
	logger *zap.Logger
}

func NewAlertHandler(svc *service.AlertService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{svc: svc, logger: logger}
}

// alertFilters 从查询参数构造过滤条件
// ?severity=critical&category=temperature&resolved=false&shipment_id=SHIP-1&limit=50
func alertFilters(r *http.Request) models.AlertFilters {
	q := r.URL.Query()
	filters := models.AlertFilters{
		Limit: parseInt(q.Get("limit"), 0),
	}
	if s := q.Get("severity"); s != "" {
		sev := models.AlertSeverity(s)
		filters.Severity = &sev
	}
	if c := q.Get("category"); c != "" {
		cat := models.AlertCategory(c)
		filters.Category = &cat
	}
	if v := q.Get("resolved"); v != "" {
		if resolved, err := strconv.ParseBool(v); err == nil {
			filters.Resolved = &resolved
		}
	}
	if id := q.Get("shipment_id"); id != "" {
		filters.ShipmentID = &id
	}
	return filters
}

// GET /api/v1/alerts
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.svc.List(r.Context(), alertFilters(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alerts))
}

// GET /api/v1/alerts/{id}
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request, alertID string) {
	alert, err := h.svc.Get(r.Context(), alertID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

type resolveRequest struct {
	Notes string `json:"notes,omitempty"`
}

// POST /api/v1/alerts/{id}/resolve
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request, alertID string) {
	var req resolveRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	op := operatorID(r)
	if op == "" {
		writeJSON(w, http.StatusBadRequest, Fail("operator identity is required"))
		return
	}

	alert, err := h.svc.Resolve(r.Context(), alertID, op, req.Notes)
	if err != nil {
		h.logger.Warn("Alert resolve failed",
			zap.String("alert_id", alertID),
			zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

// POST /api/v1/alerts/resolve-all
func (h *AlertHandler) ResolveAll(w http.ResponseWriter, r *http.Request) {
	op := operatorID(r)
	if op == "" {
		writeJSON(w, http.StatusBadRequest, Fail("operator identity is required"))
		return
	}

	count, err := h.svc.ResolveAll(r.Context(), alertFilters(r), op)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]int64{"resolved": count}))
}

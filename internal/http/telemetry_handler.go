package httpapi

import (
	"net/http"

	"github.com/ks-vishal/stot-ub/internal/repository"
	"github.com/ks-vishal/stot-ub/internal/service"

	"go.uber.org/zap"
)

// TelemetryHandler 遥测读取API
type TelemetryHandler struct {
	svc    *service.TelemetryService
	logger *zap.Logger
}

func NewTelemetryHandler(svc *service.TelemetryService, logger *zap.Logger) *TelemetryHandler {
	return &TelemetryHandler{svc: svc, logger: logger}
}

// GET /api/v1/shipments/{id}/telemetry/latest
func (h *TelemetryHandler) Latest(w http.ResponseWriter, r *http.Request, shipmentID string) {
	sample, err := h.svc.Latest(r.Context(), shipmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(sample))
}

// GET /api/v1/shipments/{id}/telemetry/history?from=&to=&limit=
func (h *TelemetryHandler) History(w http.ResponseWriter, r *http.Request, shipmentID string) {
	q := r.URL.Query()
	filters := repository.HistoryFilters{
		From:  parseTime(q.Get("from")),
		To:    parseTime(q.Get("to")),
		Limit: parseInt(q.Get("limit"), 0),
	}

	samples, err := h.svc.History(r.Context(), shipmentID, filters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(samples))
}

package httpapi

import (
	"errors"
	"net/http"

	"github.com/ks-vishal/stot-ub/internal/models"
	"github.com/ks-vishal/stot-ub/internal/service"
	"github.com/ks-vishal/stot-ub/internal/transport"

	"go.uber.org/zap"
)

// StatusHandler 运输单状态汇总（运单 + 最新样本 + 未处理告警）
type StatusHandler struct {
	shipments *transport.Service
	telemetry *service.TelemetryService
	alerts    *service.AlertService
	logger    *zap.Logger
}

func NewStatusHandler(shipments *transport.Service, telemetry *service.TelemetryService, alerts *service.AlertService, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		shipments: shipments,
		telemetry: telemetry,
		alerts:    alerts,
		logger:    logger,
	}
}

type statusSummary struct {
	Shipment     *models.Shipment        `json:"shipment"`
	LatestSample *models.TelemetrySample `json:"latest_sample"`
	OpenAlerts   []models.Alert          `json:"open_alerts"`
}

// Status GET /api/v1/shipments/{id}/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request, shipmentID string) {
	ctx := r.Context()

	shipment, err := h.shipments.GetShipment(ctx, shipmentID)
	if err != nil {
		writeError(w, err)
		return
	}

	// 尚无遥测不是错误
	sample, err := h.telemetry.Latest(ctx, shipmentID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		writeError(w, err)
		return
	}

	resolved := false
	openAlerts, err := h.alerts.List(ctx, models.AlertFilters{
		ShipmentID: &shipmentID,
		Resolved:   &resolved,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(statusSummary{
		Shipment:     shipment,
		LatestSample: sample,
		OpenAlerts:   openAlerts,
	}))
}

package httpapi

import (
	"net/http"

	"github.com/ks-vishal/stot-ub/internal/service"

	"go.uber.org/zap"
)

// CourierHandler 无人机机队API
type CourierHandler struct {
	svc    *service.CourierService
	logger *zap.Logger
}

func NewCourierHandler(svc *service.CourierService, logger *zap.Logger) *CourierHandler {
	return &CourierHandler{svc: svc, logger: logger}
}

// POST /api/v1/couriers
func (h *CourierHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	courier, err := h.svc.Register(r.Context(), &req)
	if err != nil {
		h.logger.Warn("Courier registration failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(courier))
}

// GET /api/v1/couriers
func (h *CourierHandler) List(w http.ResponseWriter, r *http.Request) {
	couriers, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(couriers))
}

// GET /api/v1/couriers/{id}
func (h *CourierHandler) Get(w http.ResponseWriter, r *http.Request, courierID string) {
	courier, err := h.svc.Get(r.Context(), courierID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(courier))
}

package httpapi

import (
	"net/http"

	"github.com/ks-vishal/stot-ub/internal/transport"

	"go.uber.org/zap"
)

// ShipmentHandler 运输单生命周期API
type ShipmentHandler struct {
	svc    *transport.Service
	logger *zap.Logger
}

func NewShipmentHandler(svc *transport.Service, logger *zap.Logger) *ShipmentHandler {
	return &ShipmentHandler{svc: svc, logger: logger}
}

// POST /api/v1/shipments
func (h *ShipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req transport.CreateShipmentRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	req.OperatorID = operatorID(r)

	shipment, err := h.svc.CreateShipment(r.Context(), &req)
	if err != nil {
		h.logger.Warn("Create shipment failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(shipment))
}

// GET /api/v1/shipments
func (h *ShipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	shipments, err := h.svc.ListShipments(r.Context())
	if err != nil {
		h.logger.Error("List shipments failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(shipments))
}

// GET /api/v1/shipments/{id}
func (h *ShipmentHandler) Get(w http.ResponseWriter, r *http.Request, shipmentID string) {
	shipment, err := h.svc.GetShipment(r.Context(), shipmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(shipment))
}

// DELETE /api/v1/shipments/{id}（仅pending）
func (h *ShipmentHandler) Delete(w http.ResponseWriter, r *http.Request, shipmentID string) {
	if err := h.svc.DeletePending(r.Context(), shipmentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"shipment_id": shipmentID}))
}

// POST /api/v1/shipments/{id}/start
func (h *ShipmentHandler) Start(w http.ResponseWriter, r *http.Request, shipmentID string) {
	shipment, err := h.svc.Start(r.Context(), shipmentID, operatorID(r))
	if err != nil {
		h.logger.Warn("Start shipment failed",
			zap.String("shipment_id", shipmentID),
			zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(shipment))
}

type arrivalRequest struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Notes string  `json:"notes,omitempty"`
}

// POST /api/v1/shipments/{id}/arrive
func (h *ShipmentHandler) ConfirmArrival(w http.ResponseWriter, r *http.Request, shipmentID string) {
	var req arrivalRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	shipment, err := h.svc.ConfirmArrival(r.Context(), shipmentID, req.Lat, req.Lng, req.Notes, operatorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(shipment))
}

// POST /api/v1/shipments/{id}/complete
func (h *ShipmentHandler) Complete(w http.ResponseWriter, r *http.Request, shipmentID string) {
	var req transport.CompleteRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	req.OperatorID = operatorID(r)

	shipment, err := h.svc.Complete(r.Context(), shipmentID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(shipment))
}

type abortRequest struct {
	Reason string `json:"reason,omitempty"`
}

// POST /api/v1/shipments/{id}/cancel
func (h *ShipmentHandler) Cancel(w http.ResponseWriter, r *http.Request, shipmentID string) {
	var req abortRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	shipment, err := h.svc.Cancel(r.Context(), shipmentID, req.Reason, operatorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(shipment))
}

// POST /api/v1/shipments/{id}/fail
func (h *ShipmentHandler) MarkFailed(w http.ResponseWriter, r *http.Request, shipmentID string) {
	var req abortRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	shipment, err := h.svc.Fail(r.Context(), shipmentID, req.Reason, operatorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(shipment))
}

// GET /api/v1/shipments/{id}/custody
func (h *ShipmentHandler) ChainOfCustody(w http.ResponseWriter, r *http.Request, shipmentID string) {
	descending := r.URL.Query().Get("order") == "desc"
	trail, err := h.svc.ChainOfCustody(r.Context(), shipmentID, descending)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(trail))
}

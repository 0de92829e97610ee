package httpapi

import (
	"net/http"

	"github.com/ks-vishal/stot-ub/internal/service"

	"go.uber.org/zap"
)

// CargoHandler 货物登记与容器工作流API
type CargoHandler struct {
	svc    *service.CargoService
	logger *zap.Logger
}

func NewCargoHandler(svc *service.CargoService, logger *zap.Logger) *CargoHandler {
	return &CargoHandler{svc: svc, logger: logger}
}

// POST /api/v1/cargo（器官取出确认）
func (h *CargoHandler) ConfirmRetrieval(w http.ResponseWriter, r *http.Request) {
	var req service.IntakeRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	req.OperatorID = operatorID(r)

	cargo, err := h.svc.ConfirmRetrieval(r.Context(), &req)
	if err != nil {
		h.logger.Warn("Cargo intake failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(cargo))
}

// GET /api/v1/cargo
func (h *CargoHandler) List(w http.ResponseWriter, r *http.Request) {
	cargo, err := h.svc.ListCargo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(cargo))
}

// GET /api/v1/cargo/{id}
func (h *CargoHandler) Get(w http.ResponseWriter, r *http.Request, cargoID string) {
	cargo, err := h.svc.GetCargo(r.Context(), cargoID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(cargo))
}

type assignContainerRequest struct {
	ContainerID string `json:"container_id"`
}

// POST /api/v1/cargo/{id}/container
func (h *CargoHandler) AssignContainer(w http.ResponseWriter, r *http.Request, cargoID string) {
	var req assignContainerRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	cargo, err := h.svc.AssignContainer(r.Context(), cargoID, req.ContainerID, operatorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(cargo))
}

// POST /api/v1/cargo/{id}/container/seal
func (h *CargoHandler) SealContainer(w http.ResponseWriter, r *http.Request, cargoID string) {
	var req service.SealRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	req.OperatorID = operatorID(r)

	cargo, err := h.svc.SealContainer(r.Context(), cargoID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(cargo))
}

// POST /api/v1/cargo/{id}/container/unseal
func (h *CargoHandler) UnsealContainer(w http.ResponseWriter, r *http.Request, cargoID string) {
	cargo, err := h.svc.UnsealContainer(r.Context(), cargoID, operatorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(cargo))
}

// GET /api/v1/cargo/{id}/custody
func (h *CargoHandler) CustodyTrail(w http.ResponseWriter, r *http.Request, cargoID string) {
	descending := r.URL.Query().Get("order") == "desc"
	trail, err := h.svc.CustodyTrail(r.Context(), cargoID, descending)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(trail))
}

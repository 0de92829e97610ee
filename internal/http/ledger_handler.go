package httpapi

import (
	"context"
	"net/http"

	"github.com/ks-vishal/stot-ub/internal/models"

	"go.uber.org/zap"
)

// EntryQuerier 账本历史查询
type EntryQuerier interface {
	QueryEntries(ctx context.Context, filters models.LedgerFilters) ([]models.LedgerEntry, error)
}

// LedgerHandler 审计账本查询API
type LedgerHandler struct {
	entries EntryQuerier
	logger  *zap.Logger
}

func NewLedgerHandler(entries EntryQuerier, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{entries: entries, logger: logger}
}

// GET /api/v1/ledger?shipment_id=&cargo_id=&event_kind=&order=&limit=
func (h *LedgerHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := models.LedgerFilters{
		Descending: q.Get("order") == "desc",
		Limit:      parseInt(q.Get("limit"), 0),
	}
	if id := q.Get("shipment_id"); id != "" {
		filters.ShipmentID = &id
	}
	if id := q.Get("cargo_id"); id != "" {
		filters.CargoID = &id
	}
	if k := q.Get("event_kind"); k != "" {
		kind := models.EventKind(k)
		filters.EventKind = &kind
	}

	entries, err := h.entries.QueryEntries(r.Context(), filters)
	if err != nil {
		h.logger.Error("Ledger query failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(entries))
}

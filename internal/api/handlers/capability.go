package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/speclens/internal/dispatch"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CapabilityHandler exposes the dispatch table over HTTP.
type CapabilityHandler struct {
	table  *dispatch.Table
	logger *zap.Logger
}

func NewCapabilityHandler(table *dispatch.Table, logger *zap.Logger) *CapabilityHandler {
	return &CapabilityHandler{table: table, logger: logger}
}

func (h *CapabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	caps := h.table.Capabilities()
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, c.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": names})
}

// Dispatch runs one capability. A gate denial is answered with 403 and the
// blocked result, which names the policy and the remediation.
func (h *CapabilityHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	c := dispatch.Capability{Agent: chi.URLParam(r, "agent"), Action: chi.URLParam(r, "action")}

	var req dispatch.Request
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.table.Dispatch(r.Context(), c, req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if res.Status == dispatch.StatusBlocked {
		writeJSON(w, StatusForKind(res.Blocked.Kind), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

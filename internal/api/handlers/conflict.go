package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/speclens/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ConflictHandler struct {
	conflicts *service.ConflictService
	logger    *zap.Logger
}

func NewConflictHandler(conflicts *service.ConflictService, logger *zap.Logger) *ConflictHandler {
	return &ConflictHandler{conflicts: conflicts, logger: logger}
}

func (h *ConflictHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	query, err := service.ConflictQueryFrom(q.Get("status"), q.Get("severity"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	records, err := h.conflicts.List(r.Context(), projectID, query)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Resolve applies a resolution. Resolving an already resolved conflict
// returns the stored record unchanged.
func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req service.ResolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	rec, err := h.conflicts.Resolve(r.Context(), uuid.Nil, id, req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

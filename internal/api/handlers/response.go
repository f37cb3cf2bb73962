package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error       string           `json:"error"`
	Kind        domain.ErrorKind `json:"kind"`
	Remediation string           `json:"remediation,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: domain.KindValidation})
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflictBlocking:
		return http.StatusConflict
	case domain.KindLLMTimeout:
		return http.StatusGatewayTimeout
	case domain.KindSchemaParse:
		return http.StatusUnprocessableEntity
	case domain.KindGateDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes a classified error with its kind and remediation.
// Unclassified errors are logged and reported as internal.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var e *domain.Error
	if errors.As(err, &e) {
		writeJSON(w, StatusForKind(e.Kind), errorResponse{Error: e.Error(), Kind: e.Kind, Remediation: e.Remediation})
		return
	}
	logger.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: "internal"})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.Validationf("invalid request body: %v", err)
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.Validationf("invalid %s", name)
	}
	return id, nil
}

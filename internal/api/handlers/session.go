package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/speclens/internal/service"
	"go.uber.org/zap"
)

// SessionHandler serves the question and answer loop. Routes are nested
// under the project so the session's ownership is checked on every call.
type SessionHandler struct {
	elicitation *service.ElicitationService
	logger      *zap.Logger
}

func NewSessionHandler(elicitation *service.ElicitationService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{elicitation: elicitation, logger: logger}
}

func (h *SessionHandler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	next, err := h.elicitation.GenerateQuestion(r.Context(), projectID, sessionID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

type submitAnswerRequest struct {
	QuestionID string `json:"question_id"`
	AnswerText string `json:"answer_text"`
}

func (h *SessionHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req submitAnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	res, err := h.elicitation.SubmitAnswer(r.Context(), projectID, sessionID, req.QuestionID, req.AnswerText)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

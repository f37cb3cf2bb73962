package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/Harshitk-cp/speclens/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProjectHandler struct {
	projects    *service.ProjectService
	phases      *service.PhaseService
	maturity    *service.MaturityService
	elicitation *service.ElicitationService
	quality     *service.QualityService
	export      *service.ExportService
	logger      *zap.Logger
}

func NewProjectHandler(svc service.Services, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{
		projects:    svc.Projects,
		phases:      svc.Phases,
		maturity:    svc.Maturity,
		elicitation: svc.Elicitation,
		quality:     svc.Quality,
		export:      svc.Export,
		logger:      logger,
	}
}

type createProjectRequest struct {
	Name     string `json:"name"`
	DomainID string `json:"domain_id"`
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if req.DomainID == "" {
		writeError(w, http.StatusBadRequest, "domain_id is required")
		return
	}

	p, err := h.projects.Create(r.Context(), req.Name, req.DomainID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *ProjectHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	p, err := h.projects.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProjectHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	sess, err := h.projects.StartSession(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

type setPhaseRequest struct {
	Phase domain.Phase `json:"phase"`
}

// SetPhase is the administrative override; it skips the maturity gate.
func (h *ProjectHandler) SetPhase(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req setPhaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	p, err := h.phases.Set(r.Context(), id, req.Phase)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Advance answers 200 for both outcomes; a refusal carries advanced=false
// with a reason.
func (h *ProjectHandler) Advance(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	out, err := h.phases.Advance(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProjectHandler) Maturity(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	m, err := h.maturity.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *ProjectHandler) Statements(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	query, err := service.StatementQueryFrom(q.Get("category"), q.Get("key"), q.Get("status"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	statements, err := h.projects.ListStatements(r.Context(), id, query)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, statements)
}

// SetStatement records a statement entered directly by the user.
func (h *ProjectHandler) SetStatement(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req service.ManualStatement
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	res, err := h.elicitation.SetStatement(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ProjectHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	history, err := h.projects.History(r.Context(), id, q.Get("category"), q.Get("key"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type extractRequest struct {
	Text string `json:"text"`
}

func (h *ProjectHandler) Extract(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req extractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	res, err := h.elicitation.ExtractSpecifications(r.Context(), id, req.Text)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ProjectHandler) Quality(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	report, err := h.quality.Analyze(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Export writes the rendered document as is, with the format's media type.
func (h *ProjectHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	doc, err := h.export.Export(r.Context(), id, chi.URLParam(r, "format"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", doc.MediaType)
	if doc.Extension != "" {
		w.Header().Set("Content-Disposition", `inline; filename="specification.`+doc.Extension+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc.Content))
}

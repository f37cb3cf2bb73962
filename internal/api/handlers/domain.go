package handlers

import (
	"context"
	"net/http"

	"github.com/Harshitk-cp/speclens/internal/catalog"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DomainSource lists and resolves registered domains.
type DomainSource interface {
	IDs() []string
	Get(ctx context.Context, id string) (*catalog.Domain, error)
}

type DomainHandler struct {
	domains DomainSource
	logger  *zap.Logger
}

func NewDomainHandler(domains DomainSource, logger *zap.Logger) *DomainHandler {
	return &DomainHandler{domains: domains, logger: logger}
}

type domainSummary struct {
	catalog.Meta
	Questions        int `json:"questions"`
	ExportFormats    int `json:"export_formats"`
	ConflictRules    int `json:"conflict_rules"`
	QualityAnalyzers int `json:"quality_analyzers"`
}

type domainDetail struct {
	catalog.Meta
	Questions        []*catalog.Question        `json:"questions"`
	ExportFormats    []*catalog.ExportFormat    `json:"export_formats"`
	ConflictRules    []*catalog.ConflictRule    `json:"conflict_rules"`
	QualityAnalyzers []*catalog.QualityAnalyzer `json:"quality_analyzers"`
}

type domainError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// List returns every discovered domain. Domains that fail to load are
// reported separately instead of failing the listing.
func (h *DomainHandler) List(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Domains []domainSummary `json:"domains"`
		Errors  []domainError   `json:"errors,omitempty"`
	}{Domains: []domainSummary{}}

	for _, id := range h.domains.IDs() {
		d, err := h.domains.Get(r.Context(), id)
		if err != nil {
			resp.Errors = append(resp.Errors, domainError{ID: id, Error: err.Error()})
			continue
		}
		resp.Domains = append(resp.Domains, domainSummary{
			Meta:             d.Meta,
			Questions:        d.Questions.Len(),
			ExportFormats:    d.ExportFormats.Len(),
			ConflictRules:    d.ConflictRules.Len(),
			QualityAnalyzers: d.QualityAnalyzers.Len(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *DomainHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	d, err := h.domains.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, domainDetail{
		Meta:             d.Meta,
		Questions:        d.Questions.All(),
		ExportFormats:    d.ExportFormats.All(),
		ConflictRules:    d.ConflictRules.All(),
		QualityAnalyzers: d.QualityAnalyzers.All(),
	})
}

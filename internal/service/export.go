package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/Harshitk-cp/speclens/internal/catalog"
	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExportSection is one category in an export template's data.
type ExportSection struct {
	ID         string
	Name       string
	Score      float64
	Statements []domain.Statement
}

// ExportData is the value export format templates are executed against.
type ExportData struct {
	Project  *domain.Project
	Domain   *catalog.Domain
	Maturity *domain.MaturityRecord
	Sections []ExportSection
}

type ExportDocument struct {
	Format    string `json:"format"`
	MediaType string `json:"media_type"`
	Extension string `json:"extension,omitempty"`
	Content   string `json:"content"`
}

type ExportService struct {
	statements domain.StatementStore
	maturity   *MaturityService
	logger     *zap.Logger
}

func NewExportService(statements domain.StatementStore, maturity *MaturityService, logger *zap.Logger) *ExportService {
	return &ExportService{statements: statements, maturity: maturity, logger: logger}
}

// Export renders the project's current statements through a domain export format.
func (s *ExportService) Export(ctx context.Context, projectID uuid.UUID, formatID string) (*ExportDocument, error) {
	p, d, err := s.maturity.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	m, err := s.maturity.Recompute(ctx, p, d)
	if err != nil {
		return nil, err
	}
	current, err := s.statements.ListCurrent(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list current statements: %w", err)
	}
	return Render(d, formatID, p, m, current)
}

// Render executes an export format. Statements are grouped by category in
// domain order and sorted by key.
func Render(d *catalog.Domain, formatID string, p *domain.Project, m *domain.MaturityRecord, statements []domain.Statement) (*ExportDocument, error) {
	f, ok := d.ExportFormats.Get(formatID)
	if !ok || !f.IsEnabled() {
		return nil, ErrFormatNotFound
	}
	tmpl := f.Compiled()
	if tmpl == nil {
		return nil, fmt.Errorf("export format %s has no compiled template", f.ID)
	}

	include := make(map[string]bool, len(f.Categories))
	for _, c := range f.Categories {
		include[c] = true
	}
	byCategory := make(map[string][]domain.Statement)
	for _, st := range statements {
		if st.Status == domain.StatusCurrent {
			byCategory[st.Category] = append(byCategory[st.Category], st)
		}
	}

	data := ExportData{Project: p, Domain: d, Maturity: m}
	for _, c := range d.Categories {
		if len(include) > 0 && !include[c.ID] {
			continue
		}
		stmts := byCategory[c.ID]
		sort.SliceStable(stmts, func(i, j int) bool { return stmts[i].Key < stmts[j].Key })
		name := c.Name
		if name == "" {
			name = c.ID
		}
		data.Sections = append(data.Sections, ExportSection{ID: c.ID, Name: name, Score: m.PerCategory[c.ID], Statements: stmts})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", f.ID, err)
	}
	mediaType := f.MediaType
	if mediaType == "" {
		mediaType = "text/plain"
	}
	return &ExportDocument{Format: f.ID, MediaType: mediaType, Extension: f.Extension, Content: buf.String()}, nil
}

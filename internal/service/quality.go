package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Harshitk-cp/speclens/internal/catalog"
	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Finding is one problem reported by a quality analyzer.
type Finding struct {
	AnalyzerID  string          `json:"analyzer_id"`
	Severity    domain.Severity `json:"severity"`
	Category    string          `json:"category"`
	Key         string          `json:"key,omitempty"`
	StatementID *uuid.UUID      `json:"statement_id,omitempty"`
	Message     string          `json:"message"`
}

type QualityReport struct {
	ProjectID uuid.UUID               `json:"project_id"`
	Findings  []Finding               `json:"findings"`
	Counts    map[domain.Severity]int `json:"counts"`
	// Passed is false when any error-severity finding exists.
	Passed bool `json:"passed"`
}

// QualityService runs a domain's quality analyzers over a project's current
// statements.
type QualityService struct {
	statements domain.StatementStore
	maturity   *MaturityService
	logger     *zap.Logger
}

func NewQualityService(statements domain.StatementStore, maturity *MaturityService, logger *zap.Logger) *QualityService {
	return &QualityService{statements: statements, maturity: maturity, logger: logger}
}

func (s *QualityService) Analyze(ctx context.Context, projectID uuid.UUID) (*QualityReport, error) {
	p, d, err := s.maturity.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	current, err := s.statements.ListCurrent(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list current statements: %w", err)
	}
	report := AnalyzeStatements(d, current)
	report.ProjectID = p.ID
	s.logger.Debug("quality analyzed",
		zap.String("project_id", p.ID.String()),
		zap.Int("findings", len(report.Findings)))
	return report, nil
}

// AnalyzeStatements applies every enabled analyzer to the categories it
// matches. Findings are ordered by category, analyzer and key.
func AnalyzeStatements(d *catalog.Domain, statements []domain.Statement) *QualityReport {
	byCategory := make(map[string][]domain.Statement)
	for _, st := range statements {
		if st.Status == domain.StatusCurrent {
			byCategory[st.Category] = append(byCategory[st.Category], st)
		}
	}

	report := &QualityReport{Findings: []Finding{}, Counts: map[domain.Severity]int{}, Passed: true}
	for _, cat := range d.CategoryIDs() {
		stmts := byCategory[cat]
		sort.SliceStable(stmts, func(i, j int) bool { return stmts[i].Key < stmts[j].Key })
		for _, a := range d.AnalyzersFor(cat) {
			for _, f := range runAnalyzer(a, cat, stmts) {
				report.Findings = append(report.Findings, f)
				report.Counts[f.Severity]++
				if f.Severity.Blocking() {
					report.Passed = false
				}
			}
		}
	}
	return report
}

func runAnalyzer(a *catalog.QualityAnalyzer, category string, stmts []domain.Statement) []Finding {
	finding := func(key string, id *uuid.UUID, def string) Finding {
		msg := a.Message
		if msg == "" {
			msg = def
		}
		return Finding{AnalyzerID: a.ID, Severity: a.Severity, Category: category, Key: key, StatementID: id, Message: msg}
	}

	var out []Finding
	switch a.Kind {
	case catalog.AnalyzerRequiredKeys:
		have := make(map[string]bool, len(stmts))
		for _, st := range stmts {
			have[st.Key] = true
		}
		for _, k := range a.Params.Keys {
			if !have[k] {
				out = append(out, finding(k, nil, fmt.Sprintf("%s.%s is missing", category, k)))
			}
		}
	case catalog.AnalyzerMinConfidence:
		for _, st := range stmts {
			if st.Confidence < a.Params.Threshold {
				id := st.ID
				out = append(out, finding(st.Key, &id,
					fmt.Sprintf("%s.%s has confidence %.2f, below %.2f", category, st.Key, st.Confidence, a.Params.Threshold)))
			}
		}
	case catalog.AnalyzerVagueTerms:
		for _, st := range stmts {
			if term, ok := containsTerm(st.Value, a.Params.Terms); ok {
				id := st.ID
				out = append(out, finding(st.Key, &id, fmt.Sprintf("%s.%s uses the vague term %q", category, st.Key, term)))
			}
		}
	case catalog.AnalyzerMinStatements:
		if len(stmts) < a.Params.Count {
			out = append(out, finding("", nil,
				fmt.Sprintf("%s has %d statement(s), at least %d expected", category, len(stmts), a.Params.Count)))
		}
	}
	return out
}

func containsTerm(value string, terms []string) (string, bool) {
	words := strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		return !(r == '-' || r == '\'' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9'))
	})
	padded := " " + strings.Join(words, " ") + " "
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && strings.Contains(padded, " "+t+" ") {
			return t, true
		}
	}
	return "", false
}

package service

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/speclens/internal/dispatch"
	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/google/uuid"
)

// Services is the set of services exposed through the capability table.
type Services struct {
	Projects    *ProjectService
	Elicitation *ElicitationService
	Conflicts   *ConflictService
	Maturity    *MaturityService
	Phases      *PhaseService
	Quality     *QualityService
	Export      *ExportService
	Codegen     *CodegenService
}

// Capability names.
var (
	CapGenerateQuestion      = dispatch.Capability{Agent: "questions", Action: "generate_question"}
	CapSubmitAnswer          = dispatch.Capability{Agent: "specifications", Action: "submit_answer"}
	CapExtractSpecifications = dispatch.Capability{Agent: "specifications", Action: "extract_specifications"}
	CapListStatements        = dispatch.Capability{Agent: "specifications", Action: "list_statements"}
	CapResolveConflict       = dispatch.Capability{Agent: "conflicts", Action: "resolve_conflict"}
	CapListConflicts         = dispatch.Capability{Agent: "conflicts", Action: "list_conflicts"}
	CapGetMaturity           = dispatch.Capability{Agent: "maturity", Action: "get_maturity"}
	CapAdvancePhase          = dispatch.Capability{Agent: "project", Action: "advance_phase"}
	CapAnalyzeQuality        = dispatch.Capability{Agent: "quality", Action: "analyze_quality"}
	CapExport                = dispatch.Capability{Agent: "export", Action: "export_specifications"}
	CapGenerateCode          = dispatch.Capability{Agent: "code", Action: "generate_code"}
)

// Bindings returns the static capability table. generate_code is gated on
// full maturity and on the absence of blocking conflicts; nothing else is.
func Bindings(svc Services, conflicts domain.ConflictStore, codegenMinMaturity float64) []dispatch.Binding {
	return []dispatch.Binding{
		{Capability: CapGenerateQuestion, Handler: func(ctx context.Context, req dispatch.Request) (any, error) {
			if req.SessionID == uuid.Nil {
				return nil, domain.Validationf("session_id is required")
			}
			return svc.Elicitation.GenerateQuestion(ctx, req.ProjectID, req.SessionID)
		}},
		{Capability: CapSubmitAnswer, Handler: func(ctx context.Context, req dispatch.Request) (any, error) {
			var p struct {
				QuestionID string `json:"question_id"`
				AnswerText string `json:"answer_text"`
			}
			if err := req.DecodeParams(&p); err != nil {
				return nil, err
			}
			return svc.Elicitation.SubmitAnswer(ctx, req.ProjectID, req.SessionID, p.QuestionID, p.AnswerText)
		}},
		{Capability: CapExtractSpecifications, Handler: func(ctx context.Context, req dispatch.Request) (any, error) {
			var p struct {
				Text string `json:"text"`
			}
			if err := req.DecodeParams(&p); err != nil {
				return nil, err
			}
			return svc.Elicitation.ExtractSpecifications(ctx, req.ProjectID, p.Text)
		}},
		{Capability: CapListStatements, Handler: func(ctx context.Context, req dispatch.Request) (any, error) {
			var p struct {
				Category string `json:"category"`
				Key      string `json:"key"`
				Status   string `json:"status"`
			}
			if err := req.DecodeParams(&p); err != nil {
				return nil, err
			}
			q, err := StatementQueryFrom(p.Category, p.Key, p.Status)
			if err != nil {
				return nil, err
			}
			return svc.Projects.ListStatements(ctx, req.ProjectID, q)
		}},
		{Capability: CapResolveConflict, Handler: func(ctx context.Context, req dispatch.Request) (any, error) {
			var p struct {
				ConflictID uuid.UUID `json:"conflict_id"`
				ResolveRequest
			}
			if err := req.DecodeParams(&p); err != nil {
				return nil, err
			}
			if p.ConflictID == uuid.Nil {
				return nil, domain.Validationf("conflict_id is required")
			}
			return svc.Conflicts.Resolve(ctx, req.ProjectID, p.ConflictID, p.ResolveRequest)
		}},
		{Capability: CapListConflicts, Handler: func(ctx context.Context, req dispatch.Request) (any, error) {
			var p struct {
				Status   string `json:"status"`
				Severity string `json:"severity"`
			}
			if err := req.DecodeParams(&p); err != nil {
				return nil, err
			}
			q, err := ConflictQueryFrom(p.Status, p.Severity)
			if err != nil {
				return nil, err
			}
			return svc.Conflicts.List(ctx, req.ProjectID, q)
		}},
		{Capability: CapGetMaturity, Handler: func(ctx context.Context, req dispatch.Request) (any, error) {
			return svc.Maturity.Get(ctx, req.ProjectID)
		}},
		{Capability: CapAdvancePhase, Handler: func(ctx context.Context, req dispatch.Request) (any, error) {
			return svc.Phases.Advance(ctx, req.ProjectID)
		}},
		{Capability: CapAnalyzeQuality, Handler: func(ctx context.Context, req dispatch.Request) (any, error) {
			return svc.Quality.Analyze(ctx, req.ProjectID)
		}},
		{Capability: CapExport, Handler: func(ctx context.Context, req dispatch.Request) (any, error) {
			var p struct {
				Format string `json:"format"`
			}
			if err := req.DecodeParams(&p); err != nil {
				return nil, err
			}
			if p.Format == "" {
				p.Format = DefaultCodegenFormat
			}
			return svc.Export.Export(ctx, req.ProjectID, p.Format)
		}},
		{
			Capability: CapGenerateCode,
			Handler: func(ctx context.Context, req dispatch.Request) (any, error) {
				var p struct {
					Format string `json:"format"`
				}
				if err := req.DecodeParams(&p); err != nil {
					return nil, err
				}
				return svc.Codegen.Generate(ctx, req.ProjectID, p.Format)
			},
			Policies: []dispatch.Policy{
				MaturityGate(svc.Maturity, codegenMinMaturity),
				NoBlockingConflicts(conflicts),
			},
		},
	}
}

// MaturityGate denies requests for projects whose overall maturity is below required.
func MaturityGate(maturity *MaturityService, required float64) dispatch.Policy {
	return dispatch.PolicyFunc{ID: "maturity", Fn: func(ctx context.Context, req dispatch.Request) (*dispatch.Denial, error) {
		m, err := maturity.Get(ctx, req.ProjectID)
		if err != nil {
			return nil, err
		}
		if m.Overall >= required {
			return nil, nil
		}
		details := map[string]any{"overall": m.Overall, "required": required}
		remediation := "answer more questions"
		if _, d, err := maturity.load(ctx, req.ProjectID); err == nil {
			gaps := m.Gaps(d.CategoryIDs())
			details["gaps"] = gaps
			if len(gaps) > 0 {
				remediation = fmt.Sprintf("answer more questions, starting with %s (%.2f)", gaps[0].Category, gaps[0].Score)
			}
		}
		return &dispatch.Denial{
			Reason:      fmt.Sprintf("overall maturity %.2f is below the required %.2f", m.Overall, required),
			Remediation: remediation,
			Details:     details,
		}, nil
	}}
}

// NoBlockingConflicts denies requests while the project has unresolved
// error-severity conflicts.
func NoBlockingConflicts(conflicts domain.ConflictStore) dispatch.Policy {
	return dispatch.PolicyFunc{ID: "conflicts", Fn: func(ctx context.Context, req dispatch.Request) (*dispatch.Denial, error) {
		n, err := conflicts.CountBlocking(ctx, req.ProjectID)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		return &dispatch.Denial{
			Reason:      fmt.Sprintf("%d unresolved error conflict(s)", n),
			Remediation: "resolve the project's error conflicts",
			Details:     map[string]any{"blocking_conflicts": n},
		}, nil
	}}
}

// StatementQueryFrom builds a statement filter from request parameters.
func StatementQueryFrom(category, key, status string) (domain.StatementQuery, error) {
	q := domain.StatementQuery{Category: category, Key: key}
	if status != "" {
		if !domain.ValidStatementStatus(status) {
			return q, domain.Validationf("invalid status %q", status)
		}
		st := domain.StatementStatus(status)
		q.Status = &st
	}
	return q, nil
}

// ConflictQueryFrom builds a conflict filter from request parameters.
func ConflictQueryFrom(status, severity string) (domain.ConflictQuery, error) {
	var q domain.ConflictQuery
	if status != "" {
		st := domain.ConflictStatus(status)
		if st != domain.ConflictUnresolved && st != domain.ConflictResolved {
			return q, domain.Validationf("invalid status %q", status)
		}
		q.Status = &st
	}
	if severity != "" {
		if !domain.ValidSeverity(severity) {
			return q, domain.Validationf("invalid severity %q", severity)
		}
		sev := domain.Severity(severity)
		q.Severity = &sev
	}
	return q, nil
}

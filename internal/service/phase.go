package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/Harshitk-cp/speclens/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultPhaseThreshold = 60.0

// PhaseThresholds maps a target phase to the overall maturity required to
// enter it. Missing phases use DefaultPhaseThreshold.
type PhaseThresholds map[domain.Phase]float64

func (t PhaseThresholds) For(target domain.Phase) float64 {
	if v, ok := t[target]; ok {
		return v
	}
	return DefaultPhaseThreshold
}

// PhaseOutcome is the result of an advance attempt. A refused transition is a
// normal outcome with a reason, not an error.
type PhaseOutcome struct {
	Advanced          bool                   `json:"advanced"`
	From              domain.Phase           `json:"from"`
	To                domain.Phase           `json:"to,omitempty"`
	Reason            string                 `json:"reason,omitempty"`
	Remediation       string                 `json:"remediation,omitempty"`
	Threshold         float64                `json:"threshold,omitempty"`
	Maturity          *domain.MaturityRecord `json:"maturity,omitempty"`
	BlockingConflicts int                    `json:"blocking_conflicts"`
}

// PhaseService drives the forward-only project lifecycle.
type PhaseService struct {
	projects   domain.ProjectStore
	tx         domain.TxManager
	maturity   *MaturityService
	thresholds PhaseThresholds
	logger     *zap.Logger
}

func NewPhaseService(projects domain.ProjectStore, tx domain.TxManager, maturity *MaturityService, thresholds PhaseThresholds, logger *zap.Logger) *PhaseService {
	if thresholds == nil {
		thresholds = PhaseThresholds{}
	}
	return &PhaseService{
		projects:   projects,
		tx:         tx,
		maturity:   maturity,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Advance moves the project to its next phase when the overall maturity
// reaches the target phase's threshold and no blocking conflict is open.
func (s *PhaseService) Advance(ctx context.Context, projectID uuid.UUID) (*PhaseOutcome, error) {
	p, d, err := s.maturity.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := &PhaseOutcome{From: p.Phase}

	to, ok := p.Phase.Next()
	if !ok {
		out.Reason = fmt.Sprintf("%s is the final phase", p.Phase)
		out.Remediation = "no further transition exists"
		return out, nil
	}
	out.To = to
	out.Threshold = s.thresholds.For(to)

	m, err := s.maturity.Recompute(ctx, p, d)
	if err != nil {
		return nil, err
	}
	out.Maturity = m

	// The blocking count and the phase swap share the project lock so a
	// conflict recorded concurrently cannot slip past the gate.
	err = s.tx.WithProjectTx(ctx, p.ID, func(tx domain.Tx) error {
		blocking, err := tx.Conflicts().CountBlocking(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("count blocking conflicts: %w", err)
		}
		out.BlockingConflicts = blocking
		if m.Overall < out.Threshold || blocking > 0 {
			return nil
		}
		if err := tx.Projects().UpdatePhase(ctx, p.ID, p.Phase, to); err != nil {
			if errors.Is(err, store.ErrPhaseChanged) {
				out.Reason = "project phase changed while advancing"
				out.Remediation = "reload the project and try again"
				return nil
			}
			return fmt.Errorf("update phase: %w", err)
		}
		out.Advanced = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m.Overall < out.Threshold {
		out.Reason = fmt.Sprintf("overall maturity %.2f is below the %.2f required for %s", m.Overall, out.Threshold, to)
		if gaps := m.Gaps(d.CategoryIDs()); len(gaps) > 0 {
			out.Remediation = fmt.Sprintf("answer more questions, starting with %s (%.2f)", gaps[0].Category, gaps[0].Score)
		} else {
			out.Remediation = "answer more questions"
		}
		return out, nil
	}
	if out.BlockingConflicts > 0 {
		out.Reason = fmt.Sprintf("%d unresolved error conflict(s)", out.BlockingConflicts)
		out.Remediation = "resolve the project's error conflicts"
		return out, nil
	}
	if !out.Advanced {
		return out, nil
	}
	s.logger.Info("project advanced",
		zap.String("project_id", p.ID.String()),
		zap.String("from", string(p.Phase)),
		zap.String("to", string(to)))
	return out, nil
}

// Set moves the project forward to any later phase without checking gates.
func (s *PhaseService) Set(ctx context.Context, projectID uuid.UUID, to domain.Phase) (*domain.Project, error) {
	if !domain.ValidPhase(string(to)) {
		return nil, &domain.Error{Kind: domain.KindValidation, Message: fmt.Sprintf("unknown phase %q", to), Remediation: "use discovery, analysis, design or implementation"}
	}
	p, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	if to.Index() <= p.Phase.Index() {
		return nil, &domain.Error{
			Kind:        domain.KindValidation,
			Message:     fmt.Sprintf("cannot move from %s to %s", p.Phase, to),
			Remediation: "phases only move forward",
		}
	}
	if err := s.projects.UpdatePhase(ctx, p.ID, p.Phase, to); err != nil {
		if errors.Is(err, store.ErrPhaseChanged) {
			return nil, &domain.Error{Kind: domain.KindValidation, Message: "project phase changed concurrently", Remediation: "reload the project and try again", Err: err}
		}
		return nil, fmt.Errorf("update phase: %w", err)
	}
	s.logger.Warn("project phase overridden",
		zap.String("project_id", p.ID.String()),
		zap.String("from", string(p.Phase)),
		zap.String("to", string(to)))
	p.Phase = to
	return p, nil
}

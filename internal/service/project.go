package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/Harshitk-cp/speclens/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ProjectService struct {
	projects   domain.ProjectStore
	sessions   domain.SessionStore
	statements domain.StatementStore
	maturity   *MaturityService
	logger     *zap.Logger
	now        func() time.Time
}

func NewProjectService(projects domain.ProjectStore, sessions domain.SessionStore, statements domain.StatementStore, maturity *MaturityService, logger *zap.Logger) *ProjectService {
	return &ProjectService{
		projects:   projects,
		sessions:   sessions,
		statements: statements,
		maturity:   maturity,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create starts a project in the discovery phase against a known domain.
func (s *ProjectService) Create(ctx context.Context, name, domainID string) (*domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if strings.TrimSpace(domainID) == "" {
		return nil, &domain.Error{Kind: domain.KindValidation, Message: "domain_id is required", Remediation: "pick a domain from GET /v1/domains"}
	}
	d, err := s.maturity.domains.Get(ctx, domainID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &domain.Project{
		ID:        uuid.New(),
		Name:      name,
		DomainID:  d.ID,
		Phase:     domain.PhaseDiscovery,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	if _, err := s.maturity.Recompute(ctx, p, d); err != nil {
		return nil, err
	}
	s.logger.Info("project created", zap.String("project_id", p.ID.String()), zap.String("domain", d.ID))
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	p, err := s.projects.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *ProjectService) List(ctx context.Context) ([]domain.Project, error) {
	return s.projects.List(ctx)
}

// StartSession opens an elicitation session. Asked questions are tracked per
// session; answered questions are tracked per project.
func (s *ProjectService) StartSession(ctx context.Context, projectID uuid.UUID) (*domain.Session, error) {
	if _, err := s.Get(ctx, projectID); err != nil {
		return nil, err
	}
	now := s.now()
	sess := &domain.Session{
		ID:               uuid.New(),
		ProjectID:        projectID,
		AskedQuestionIDs: []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// ListStatements returns the project's statements. With no status filter only
// current statements are returned.
func (s *ProjectService) ListStatements(ctx context.Context, projectID uuid.UUID, q domain.StatementQuery) ([]domain.Statement, error) {
	if _, err := s.Get(ctx, projectID); err != nil {
		return nil, err
	}
	if q.Status == nil {
		current := domain.StatusCurrent
		q.Status = &current
	}
	return s.statements.List(ctx, projectID, q)
}

// History returns every version recorded for one slot, oldest first.
func (s *ProjectService) History(ctx context.Context, projectID uuid.UUID, category, key string) ([]domain.Statement, error) {
	if category == "" || key == "" {
		return nil, &domain.Error{Kind: domain.KindValidation, Message: "category and key are required", Remediation: "pass both category and key"}
	}
	if _, err := s.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.statements.List(ctx, projectID, domain.StatementQuery{Category: category, Key: key})
}

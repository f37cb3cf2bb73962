package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Harshitk-cp/speclens/internal/catalog"
	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/Harshitk-cp/speclens/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DomainSource resolves a domain configuration by id.
type DomainSource interface {
	Get(ctx context.Context, id string) (*catalog.Domain, error)
}

// MaturityService recomputes and caches a project's maturity record.
type MaturityService struct {
	projects   domain.ProjectStore
	statements domain.StatementStore
	records    domain.MaturityStore
	domains    DomainSource
	logger     *zap.Logger
	now        func() time.Time
}

func NewMaturityService(projects domain.ProjectStore, statements domain.StatementStore, records domain.MaturityStore, domains DomainSource, logger *zap.Logger) *MaturityService {
	return &MaturityService{
		projects:   projects,
		statements: statements,
		records:    records,
		domains:    domains,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Get recomputes the project's maturity from its live statements.
func (s *MaturityService) Get(ctx context.Context, projectID uuid.UUID) (*domain.MaturityRecord, error) {
	p, d, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.Recompute(ctx, p, d)
}

// Recompute scores the current statements and stores the result. A failed
// cache write is logged; the computed record is still returned.
func (s *MaturityService) Recompute(ctx context.Context, p *domain.Project, d *catalog.Domain) (*domain.MaturityRecord, error) {
	current, err := s.statements.ListCurrent(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list current statements: %w", err)
	}
	rec := ComputeMaturity(p.ID, current, d)
	rec.ComputedAt = s.now()
	if err := s.records.Upsert(ctx, rec); err != nil {
		s.logger.Warn("failed to cache maturity", zap.String("project_id", p.ID.String()), zap.Error(err))
	}
	return rec, nil
}

// load fetches the project and its domain configuration.
func (s *MaturityService) load(ctx context.Context, projectID uuid.UUID) (*domain.Project, *catalog.Domain, error) {
	p, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrProjectNotFound
		}
		return nil, nil, err
	}
	d, err := s.domains.Get(ctx, p.DomainID)
	if err != nil {
		return nil, nil, err
	}
	return p, d, nil
}

// ComputeMaturity scores the current statements of a project against a domain.
// It is a pure function: the same statements always produce the same record.
// ComputedAt is left for the caller to stamp.
func ComputeMaturity(projectID uuid.UUID, statements []domain.Statement, d *catalog.Domain) *domain.MaturityRecord {
	sorted := make([]domain.Statement, 0, len(statements))
	for _, s := range statements {
		if s.Status == domain.StatusCurrent && d.HasCategory(s.Category) {
			sorted = append(sorted, s)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.ID.String() < b.ID.String()
	})

	sums := make(map[string]float64, len(d.Categories))
	for _, s := range sorted {
		sums[s.Category] += clamp01(s.Confidence)
	}

	rec := &domain.MaturityRecord{
		ProjectID:   projectID,
		DomainID:    d.ID,
		PerCategory: make(map[string]float64, len(d.Categories)),
	}

	var weighted, totalWeight float64
	for _, c := range d.CategoryIDs() {
		expected := float64(d.ExpectedCount(c))
		score := math.Min(sums[c]/expected, 1) * 100
		rec.PerCategory[c] = round2(score)

		w := d.Weight(c)
		weighted += w * score
		totalWeight += w
	}
	if totalWeight > 0 {
		rec.Overall = round2(weighted / totalWeight)
	}
	return rec
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

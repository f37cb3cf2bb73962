package store

import (
	"context"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaturityStore caches the last computed maturity per project.
type MaturityStore struct {
	db *pgxpool.Pool
}

func NewMaturityStore(db *pgxpool.Pool) *MaturityStore {
	return &MaturityStore{db: db}
}

func (s *MaturityStore) Upsert(ctx context.Context, m *domain.MaturityRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO maturity (project_id, domain_id, per_category, overall, computed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (project_id) DO UPDATE
		 SET domain_id = EXCLUDED.domain_id,
		     per_category = EXCLUDED.per_category,
		     overall = EXCLUDED.overall,
		     computed_at = EXCLUDED.computed_at
		 WHERE maturity.computed_at <= EXCLUDED.computed_at`,
		m.ProjectID, m.DomainID, m.PerCategory, m.Overall, m.ComputedAt,
	)
	return err
}

func (s *MaturityStore) Get(ctx context.Context, projectID uuid.UUID) (*domain.MaturityRecord, error) {
	m := &domain.MaturityRecord{}
	err := s.db.QueryRow(ctx,
		`SELECT project_id, domain_id, per_category, overall, computed_at
		 FROM maturity WHERE project_id = $1`,
		projectID,
	).Scan(&m.ProjectID, &m.DomainID, &m.PerCategory, &m.Overall, &m.ComputedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

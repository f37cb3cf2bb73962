package store

import (
	"context"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProjectStore struct {
	db querier
}

func NewProjectStore(db *pgxpool.Pool) *ProjectStore {
	return &ProjectStore{db: db}
}

func (s *ProjectStore) Create(ctx context.Context, p *domain.Project) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO projects (id, name, domain_id, phase)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		p.ID, p.Name, p.DomainID, p.Phase,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

const projectColumns = `id, name, domain_id, phase, created_at, updated_at`

func scanProject(row pgx.Row) (*domain.Project, error) {
	p := &domain.Project{}
	if err := row.Scan(&p.ID, &p.Name, &p.DomainID, &p.Phase, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *ProjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	return scanProject(s.db.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
}

func (s *ProjectStore) List(ctx context.Context) ([]domain.Project, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// UpdatePhase is a compare-and-swap on the project's phase.
func (s *ProjectStore) UpdatePhase(ctx context.Context, id uuid.UUID, from, to domain.Phase) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE projects SET phase = $3, updated_at = NOW()
		 WHERE id = $1 AND phase = $2`,
		id, from, to,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrPhaseChanged
}

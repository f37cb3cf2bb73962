package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StatementStore persists versioned statements. At most one row per
// (project, category, key) slot is current; a partial unique index enforces it.
type StatementStore struct {
	db querier
}

func NewStatementStore(db *pgxpool.Pool) *StatementStore {
	return &StatementStore{db: db}
}

const statementColumns = `id, project_id, category, key, value, source_type, source_id, confidence,
	reasoning, status, version, created_at, superseded_at, superseded_by`

func scanStatement(row pgx.Row) (*domain.Statement, error) {
	st := &domain.Statement{}
	err := row.Scan(&st.ID, &st.ProjectID, &st.Category, &st.Key, &st.Value,
		&st.Source.Type, &st.Source.SourceID, &st.Confidence, &st.Reasoning,
		&st.Status, &st.Version, &st.CreatedAt, &st.SupersededAt, &st.SupersededBy)
	if err != nil {
		return nil, notFound(err)
	}
	return st, nil
}

func (s *StatementStore) Create(ctx context.Context, st *domain.Statement) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO statements (id, project_id, category, key, value, source_type, source_id,
		                         confidence, reasoning, status, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		st.ID, st.ProjectID, st.Category, st.Key, st.Value, st.Source.Type, st.Source.SourceID,
		st.Confidence, st.Reasoning, st.Status, st.Version,
	).Scan(&st.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *StatementStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Statement, error) {
	return scanStatement(s.db.QueryRow(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE id = $1`, id))
}

func (s *StatementStore) GetCurrent(ctx context.Context, projectID uuid.UUID, category, key string) (*domain.Statement, error) {
	return scanStatement(s.db.QueryRow(ctx,
		`SELECT `+statementColumns+`
		 FROM statements
		 WHERE project_id = $1 AND category = $2 AND key = $3 AND status = 'current'`,
		projectID, category, key))
}

func (s *StatementStore) ListCurrent(ctx context.Context, projectID uuid.UUID) ([]domain.Statement, error) {
	current := domain.StatusCurrent
	return s.List(ctx, projectID, domain.StatementQuery{Status: &current})
}

func (s *StatementStore) List(ctx context.Context, projectID uuid.UUID, q domain.StatementQuery) ([]domain.Statement, error) {
	var conditions []string
	var args []any

	conditions = append(conditions, fmt.Sprintf("project_id = $%d", len(args)+1))
	args = append(args, projectID)

	if q.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*q.Status))
	}
	if q.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, q.Category)
	}
	if q.Key != "" {
		conditions = append(conditions, fmt.Sprintf("key = $%d", len(args)+1))
		args = append(args, q.Key)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM statements WHERE %s ORDER BY category, key, version, created_at`,
		statementColumns, strings.Join(conditions, " AND "),
	)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()

	statements := []domain.Statement{}
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		statements = append(statements, *st)
	}
	return statements, rows.Err()
}

// Supersede retires the current statement oldID and makes next current in
// one step. A pending row with next's id is promoted in place.
func (s *StatementStore) Supersede(ctx context.Context, oldID uuid.UUID, next *domain.Statement) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE statements
			 SET status = 'superseded', superseded_at = NOW(), superseded_by = $2
			 WHERE id = $1 AND status = 'current'`,
			oldID, next.ID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			if _, err := (&StatementStore{db: tx}).GetByID(ctx, oldID); err != nil {
				return err
			}
			return ErrConflict
		}

		next.Status = domain.StatusCurrent
		err = tx.QueryRow(ctx,
			`INSERT INTO statements (id, project_id, category, key, value, source_type, source_id,
			                         confidence, reasoning, status, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'current', $10)
			 ON CONFLICT (id) DO UPDATE
			 SET value = EXCLUDED.value,
			     confidence = EXCLUDED.confidence,
			     reasoning = EXCLUDED.reasoning,
			     status = 'current',
			     version = EXCLUDED.version,
			     superseded_at = NULL,
			     superseded_by = NULL
			 WHERE statements.status = 'pending'
			 RETURNING created_at`,
			next.ID, next.ProjectID, next.Category, next.Key, next.Value, next.Source.Type, next.Source.SourceID,
			next.Confidence, next.Reasoning, next.Version,
		).Scan(&next.CreatedAt)
		if err != nil {
			// No row back means the id exists but is not pending.
			if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}
		return nil
	})
}

func (s *StatementStore) Promote(ctx context.Context, id uuid.UUID, version int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE statements SET status = 'current', version = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (s *StatementStore) Reject(ctx context.Context, id uuid.UUID, by uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE statements SET status = 'superseded', superseded_at = NOW(), superseded_by = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, by,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

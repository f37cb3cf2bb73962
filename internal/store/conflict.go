package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConflictStore struct {
	db querier
}

func NewConflictStore(db *pgxpool.Pool) *ConflictStore {
	return &ConflictStore{db: db}
}

const conflictColumns = `id, project_id, old_statement_id, candidate_statement_id, rule_id, severity,
	category, key, message, status, resolution_kind, merged_value, resolved_at, created_at`

func scanConflict(row pgx.Row) (*domain.ConflictRecord, error) {
	c := &domain.ConflictRecord{}
	var (
		kind        *string
		mergedValue string
		resolvedAt  *time.Time
	)
	err := row.Scan(&c.ID, &c.ProjectID, &c.OldStatementID, &c.CandidateStatementID, &c.RuleID, &c.Severity,
		&c.Category, &c.Key, &c.Message, &c.Status, &kind, &mergedValue, &resolvedAt, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if kind != nil && resolvedAt != nil {
		c.Resolution = &domain.Resolution{
			Kind:        domain.ResolutionKind(*kind),
			MergedValue: mergedValue,
			ResolvedAt:  *resolvedAt,
		}
	}
	return c, nil
}

func (s *ConflictStore) Create(ctx context.Context, c *domain.ConflictRecord) error {
	var (
		kind        *string
		mergedValue string
		resolvedAt  *time.Time
	)
	if r := c.Resolution; r != nil {
		k := string(r.Kind)
		kind, mergedValue, resolvedAt = &k, r.MergedValue, &r.ResolvedAt
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO conflicts (id, project_id, old_statement_id, candidate_statement_id, rule_id, severity,
		                        category, key, message, status, resolution_kind, merged_value, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at`,
		c.ID, c.ProjectID, c.OldStatementID, c.CandidateStatementID, c.RuleID, c.Severity,
		c.Category, c.Key, c.Message, c.Status, kind, mergedValue, resolvedAt,
	).Scan(&c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *ConflictStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ConflictRecord, error) {
	return scanConflict(s.db.QueryRow(ctx,
		`SELECT `+conflictColumns+` FROM conflicts WHERE id = $1`, id))
}

func (s *ConflictStore) List(ctx context.Context, projectID uuid.UUID, q domain.ConflictQuery) ([]domain.ConflictRecord, error) {
	var conditions []string
	var args []any

	conditions = append(conditions, fmt.Sprintf("project_id = $%d", len(args)+1))
	args = append(args, projectID)

	if q.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*q.Status))
	}
	if q.Severity != nil {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)+1))
		args = append(args, string(*q.Severity))
	}

	return s.query(ctx, fmt.Sprintf(
		`SELECT %s FROM conflicts WHERE %s ORDER BY created_at, id`,
		conflictColumns, strings.Join(conditions, " AND "),
	), args...)
}

func (s *ConflictStore) CountBlocking(ctx context.Context, projectID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM conflicts
		 WHERE project_id = $1 AND status = 'unresolved' AND severity = 'error'`,
		projectID,
	).Scan(&n)
	return n, err
}

func (s *ConflictStore) FindUnresolved(ctx context.Context, projectID uuid.UUID, category, key string) ([]domain.ConflictRecord, error) {
	return s.query(ctx,
		`SELECT `+conflictColumns+`
		 FROM conflicts
		 WHERE project_id = $1 AND category = $2 AND key = $3 AND status = 'unresolved'
		 ORDER BY created_at, id`,
		projectID, category, key)
}

func (s *ConflictStore) Resolve(ctx context.Context, id uuid.UUID, r domain.Resolution) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE conflicts
		 SET status = 'resolved', resolution_kind = $2, merged_value = $3, resolved_at = $4
		 WHERE id = $1 AND status = 'unresolved'`,
		id, string(r.Kind), r.MergedValue, r.ResolvedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyResolved
	}
	return nil
}

func (s *ConflictStore) query(ctx context.Context, sql string, args ...any) ([]domain.ConflictRecord, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	records := []domain.ConflictRecord{}
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *c)
	}
	return records, rows.Err()
}

package store

import (
	"context"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionStore persists sessions, their answers and generated follow-up questions.
type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	if sess.AskedQuestionIDs == nil {
		sess.AskedQuestionIDs = []string{}
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO sessions (id, project_id, asked_question_ids)
		 VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		sess.ID, sess.ProjectID, sess.AskedQuestionIDs,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *SessionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	sess := &domain.Session{}
	err := s.db.QueryRow(ctx,
		`SELECT id, project_id, asked_question_ids, created_at, updated_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.ProjectID, &sess.AskedQuestionIDs, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return sess, nil
}

// RecordAsked appends the question id once; asking again is a no-op.
func (s *SessionStore) RecordAsked(ctx context.Context, sessionID uuid.UUID, questionID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sessions
		 SET asked_question_ids = CASE
		         WHEN $2 = ANY(asked_question_ids) THEN asked_question_ids
		         ELSE array_append(asked_question_ids, $2)
		     END,
		     updated_at = NOW()
		 WHERE id = $1`,
		sessionID, questionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SessionStore) RecordAnswer(ctx context.Context, a *domain.Answer) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO answers (id, project_id, session_id, question_id, answer_text)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		a.ID, a.ProjectID, a.SessionID, a.QuestionID, a.AnswerText,
	).Scan(&a.CreatedAt)
}

func (s *SessionStore) AnsweredQuestionIDs(ctx context.Context, projectID uuid.UUID) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT question_id FROM answers WHERE project_id = $1 ORDER BY question_id`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SessionStore) SaveGeneratedQuestion(ctx context.Context, q *domain.GeneratedQuestion) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO generated_questions (id, project_id, category, text, help_text, example_answer)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		q.ID, q.ProjectID, q.Category, q.Text, q.HelpText, q.ExampleAnswer,
	).Scan(&q.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *SessionStore) GetGeneratedQuestion(ctx context.Context, projectID uuid.UUID, id string) (*domain.GeneratedQuestion, error) {
	q := &domain.GeneratedQuestion{}
	err := s.db.QueryRow(ctx,
		`SELECT id, project_id, category, text, help_text, example_answer, created_at
		 FROM generated_questions WHERE project_id = $1 AND id = $2`,
		projectID, id,
	).Scan(&q.ID, &q.ProjectID, &q.Category, &q.Text, &q.HelpText, &q.ExampleAnswer, &q.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

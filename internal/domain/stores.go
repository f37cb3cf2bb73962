package domain

import (
	"context"

	"github.com/google/uuid"
)

type ProjectStore interface {
	Create(ctx context.Context, p *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	List(ctx context.Context) ([]Project, error)
	UpdatePhase(ctx context.Context, id uuid.UUID, from, to Phase) error
}

type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	RecordAsked(ctx context.Context, sessionID uuid.UUID, questionID string) error
	RecordAnswer(ctx context.Context, a *Answer) error
	// AnsweredQuestionIDs returns the distinct question ids answered anywhere in the project.
	AnsweredQuestionIDs(ctx context.Context, projectID uuid.UUID) ([]string, error)
	SaveGeneratedQuestion(ctx context.Context, q *GeneratedQuestion) error
	GetGeneratedQuestion(ctx context.Context, projectID uuid.UUID, id string) (*GeneratedQuestion, error)
}

type StatementQuery struct {
	Status   *StatementStatus
	Category string
	Key      string
}

type StatementStore interface {
	Create(ctx context.Context, s *Statement) error
	GetByID(ctx context.Context, id uuid.UUID) (*Statement, error)
	// GetCurrent returns the single current statement for the slot, or store.ErrNotFound.
	GetCurrent(ctx context.Context, projectID uuid.UUID, category, key string) (*Statement, error)
	ListCurrent(ctx context.Context, projectID uuid.UUID) ([]Statement, error)
	List(ctx context.Context, projectID uuid.UUID, q StatementQuery) ([]Statement, error)
	// Supersede atomically marks old as superseded by next and makes next current.
	// next is inserted, or promoted when a pending row with its id already exists.
	Supersede(ctx context.Context, oldID uuid.UUID, next *Statement) error
	// Promote moves a pending statement to current for a slot that has no current statement.
	Promote(ctx context.Context, id uuid.UUID, version int) error
	// Reject retires a pending candidate, pointing it at the statement that won the slot.
	Reject(ctx context.Context, id uuid.UUID, by uuid.UUID) error
}

type ConflictQuery struct {
	Status   *ConflictStatus
	Severity *Severity
}

type ConflictStore interface {
	Create(ctx context.Context, c *ConflictRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*ConflictRecord, error)
	List(ctx context.Context, projectID uuid.UUID, q ConflictQuery) ([]ConflictRecord, error)
	CountBlocking(ctx context.Context, projectID uuid.UUID) (int, error)
	// FindUnresolved returns unresolved records for a (category, key) slot.
	FindUnresolved(ctx context.Context, projectID uuid.UUID, category, key string) ([]ConflictRecord, error)
	// Resolve sets the resolution on an unresolved record. Resolving an already
	// resolved record returns store.ErrAlreadyResolved.
	Resolve(ctx context.Context, id uuid.UUID, r Resolution) error
}

type MaturityStore interface {
	Upsert(ctx context.Context, m *MaturityRecord) error
	Get(ctx context.Context, projectID uuid.UUID) (*MaturityRecord, error)
}

// Tx exposes the stores bound to a single per-project transaction.
type Tx interface {
	Projects() ProjectStore
	Statements() StatementStore
	Conflicts() ConflictStore
}

// TxManager serializes mutations per project. fn runs inside a transaction
// that holds the project's lock; its writes commit together or not at all.
type TxManager interface {
	WithProjectTx(ctx context.Context, projectID uuid.UUID, fn func(tx Tx) error) error
}

// CompletionClient is the external natural-language completion service.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

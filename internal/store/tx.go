package store

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/Harshitk-cp/speclens/internal/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultTxAttempts = 3
	txRetryBackoff    = 25 * time.Millisecond
)

type txStores struct {
	projects   *ProjectStore
	statements *StatementStore
	conflicts  *ConflictStore
}

func (t txStores) Projects() domain.ProjectStore     { return t.projects }
func (t txStores) Statements() domain.StatementStore { return t.statements }
func (t txStores) Conflicts() domain.ConflictStore   { return t.conflicts }

// TxManager serializes mutations per project. Inside the process a keyed
// lock orders callers; across processes pg_advisory_xact_lock does.
type TxManager struct {
	db       *pgxpool.Pool
	locks    *keyedLock
	attempts int
	logger   *zap.Logger
}

func NewTxManager(db *pgxpool.Pool, logger *zap.Logger) *TxManager {
	return &TxManager{db: db, locks: newKeyedLock(), attempts: defaultTxAttempts, logger: logger}
}

// WithProjectTx runs fn in a transaction holding the project's lock.
// Serialization failures, deadlocks and lock timeouts are retried.
func (m *TxManager) WithProjectTx(ctx context.Context, projectID uuid.UUID, fn func(tx domain.Tx) error) error {
	release, err := m.locks.acquire(ctx, projectID)
	if err != nil {
		return err
	}
	defer release()

	for attempt := 1; ; attempt++ {
		err := pgx.BeginFunc(ctx, m.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryKey(projectID)); err != nil {
				return err
			}
			return fn(txStores{
				projects:   &ProjectStore{db: tx},
				statements: &StatementStore{db: tx},
				conflicts:  &ConflictStore{db: tx},
			})
		})
		if err == nil || !retryable(err) || attempt >= m.attempts {
			return err
		}

		metrics.CountTxRetry(pgCode(err))
		m.logger.Warn("retrying project transaction",
			zap.String("project_id", projectID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * txRetryBackoff):
		}
	}
}

func retryable(err error) bool {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

// advisoryKey folds the project id into the bigint key space of Postgres
// advisory locks.
func advisoryKey(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]) ^ binary.BigEndian.Uint64(id[8:]))
}

// keyedLock is a set of per-key binary semaphores. Entries are dropped when
// no caller holds or waits on them.
type keyedLock struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{entries: make(map[uuid.UUID]*lockEntry)}
}

func (l *keyedLock) acquire(ctx context.Context, key uuid.UUID) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.drop(key, e)
		return nil, err
	}
	return func() {
		e.sem.Release(1)
		l.drop(key, e)
	}, nil
}

func (l *keyedLock) drop(key uuid.UUID, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *keyedLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"lock not available", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "55P03"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"no rows", pgx.ErrNoRows, false},
		{"plain error", errors.New("boom"), false},
		{"context", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestNotFound(t *testing.T) {
	assert.Equal(t, ErrNotFound, notFound(pgx.ErrNoRows))
	assert.Equal(t, ErrNotFound, notFound(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
	other := errors.New("other")
	assert.Equal(t, other, notFound(other))
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
}

func TestAdvisoryKey(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, advisoryKey(id), advisoryKey(id))
	assert.NotEqual(t, advisoryKey(id), advisoryKey(uuid.New()))
	assert.Equal(t, int64(0), advisoryKey(uuid.Nil))
}

func TestKeyedLock_SerializesSameKey(t *testing.T) {
	l := newKeyedLock()
	key := uuid.New()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.acquire(ctx, key)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			running++
			if running > maxSeen {
				maxSeen = running
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, l.size(), "idle entries are dropped")
}

func TestKeyedLock_IndependentKeys(t *testing.T) {
	l := newKeyedLock()
	ctx := context.Background()

	releaseA, err := l.acquire(ctx, uuid.New())
	require.NoError(t, err)
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := l.acquire(ctx, uuid.New())
		if assert.NoError(t, err) {
			releaseB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a different key blocked")
	}
}

func TestKeyedLock_ContextCancelled(t *testing.T) {
	l := newKeyedLock()
	key := uuid.New()

	release, err := l.acquire(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.acquire(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.size())

	release()
	assert.Zero(t, l.size())
}

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrations, "migrations")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, _, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	defer down.Close()
}

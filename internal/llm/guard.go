package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/Harshitk-cp/speclens/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// GuardedClient bounds every completion call in time and caps how many run
// at once. A call that outlives its timeout fails with a domain LLM timeout
// error; a call whose parent context is cancelled returns the context error.
type GuardedClient struct {
	next    domain.CompletionClient
	timeout time.Duration
	sem     *semaphore.Weighted
	logger  *zap.Logger
}

func NewGuardedClient(next domain.CompletionClient, timeout time.Duration, maxConcurrent int, logger *zap.Logger) *GuardedClient {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardedClient{
		next:    next,
		timeout: timeout,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		logger:  logger,
	}
}

func (g *GuardedClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer g.sem.Release(1)

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := g.next.Complete(callCtx, prompt, maxTokens)
	elapsed := time.Since(start)
	metrics.ObserveCompletion(elapsed, err)

	if err == nil {
		g.logger.Debug("completion finished", zap.Duration("elapsed", elapsed), zap.Int("chars", len(out)))
		return out, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
		g.logger.Warn("completion timed out", zap.Duration("timeout", g.timeout))
		return "", &domain.Error{
			Kind:        domain.KindLLMTimeout,
			Message:     fmt.Sprintf("completion service did not answer within %s", g.timeout),
			Remediation: "retry the request; if it keeps failing raise LLM_TIMEOUT or check the provider status",
			Err:         err,
		}
	}
	return "", err
}

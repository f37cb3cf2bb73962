package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Harshitk-cp/speclens/internal/catalog"
	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/Harshitk-cp/speclens/internal/metrics"
	"github.com/Harshitk-cp/speclens/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DetectionResult reports what happened to a batch of candidates.
type DetectionResult struct {
	Promoted   []domain.Statement      `json:"promoted"`
	Superseded []domain.Statement      `json:"superseded"`
	Held       []domain.Statement      `json:"held"`
	Conflicts  []domain.ConflictRecord `json:"conflicts"`
	Duplicates int                     `json:"duplicates"`
}

// Extracted is the number of candidates that became current.
func (r *DetectionResult) Extracted() int {
	return len(r.Promoted) + len(r.Superseded)
}

// ConflictDetector applies candidates to a project's statement set. It must be
// called inside the project's transaction.
type ConflictDetector struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewConflictDetector(logger *zap.Logger) *ConflictDetector {
	return &ConflictDetector{logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (cd *ConflictDetector) Apply(ctx context.Context, tx domain.Tx, d *catalog.Domain, projectID uuid.UUID, source domain.StatementSource, candidates []domain.StatementCandidate) (*DetectionResult, error) {
	res := &DetectionResult{}
	for _, c := range candidates {
		if err := cd.applyOne(ctx, tx, d, projectID, source, c, res); err != nil {
			return nil, fmt.Errorf("apply %s.%s: %w", c.Category, c.Key, err)
		}
	}
	return res, nil
}

func (cd *ConflictDetector) applyOne(ctx context.Context, tx domain.Tx, d *catalog.Domain, projectID uuid.UUID, source domain.StatementSource, c domain.StatementCandidate, res *DetectionResult) error {
	stmts := tx.Statements()
	now := cd.now()

	next := &domain.Statement{
		ID:         uuid.New(),
		ProjectID:  projectID,
		Category:   c.Category,
		Key:        c.Key,
		Value:      c.Value,
		Source:     source,
		Confidence: clamp01(c.Confidence),
		Reasoning:  c.Reasoning,
		Status:     domain.StatusCurrent,
		Version:    1,
		CreatedAt:  now,
	}

	cur, err := stmts.GetCurrent(ctx, projectID, c.Category, c.Key)
	if errors.Is(err, store.ErrNotFound) {
		if err := stmts.Create(ctx, next); err != nil {
			return err
		}
		res.Promoted = append(res.Promoted, *next)
		metrics.CountStatement(metrics.OutcomePromoted)
		return nil
	}
	if err != nil {
		return err
	}

	if cur.SameValue(c.Value) {
		res.Duplicates++
		metrics.CountStatement(metrics.OutcomeDuplicate)
		return nil
	}

	open, err := tx.Conflicts().FindUnresolved(ctx, projectID, c.Category, c.Key)
	if err != nil {
		return err
	}
	held, err := cd.heldSameValue(ctx, tx, open, c)
	if err != nil {
		return err
	}
	if held {
		res.Duplicates++
		metrics.CountStatement(metrics.OutcomeDuplicate)
		return nil
	}

	next.Version = cur.Version + 1
	in := catalog.RuleInput{Category: c.Category, Key: c.Key, OldValue: cur.Value, NewValue: c.Value}

	// A slot held by an error conflict accepts no new current value until
	// that conflict is resolved, whatever the rules say about this change.
	if blocking := firstBlocking(open); blocking != nil {
		rec := &domain.ConflictRecord{
			ID:             uuid.New(),
			ProjectID:      projectID,
			OldStatementID: cur.ID,
			RuleID:         blocking.RuleID,
			Severity:       blocking.Severity,
			Category:       c.Category,
			Key:            c.Key,
			Message:        fmt.Sprintf("%q for %s.%s waits on unresolved conflict %s", c.Value, c.Category, c.Key, blocking.ID),
			CreatedAt:      now,
		}
		metrics.CountConflict(string(blocking.Severity))
		return cd.hold(ctx, tx, next, rec, res)
	}

	rule := catalog.StrongestRule(d.RulesFor(c.Category, c.Key), in)

	if rule == nil {
		if err := stmts.Supersede(ctx, cur.ID, next); err != nil {
			return err
		}
		res.Superseded = append(res.Superseded, *next)
		metrics.CountStatement(metrics.OutcomeSuperseded)
		return nil
	}

	rec := &domain.ConflictRecord{
		ID:             uuid.New(),
		ProjectID:      projectID,
		OldStatementID: cur.ID,
		RuleID:         rule.ID,
		Severity:       rule.Severity,
		Category:       c.Category,
		Key:            c.Key,
		Message:        cd.message(rule, in),
		CreatedAt:      now,
	}
	metrics.CountConflict(string(rule.Severity))

	if rule.Severity.Blocking() {
		return cd.hold(ctx, tx, next, rec, res)
	}

	if err := stmts.Supersede(ctx, cur.ID, next); err != nil {
		return err
	}
	rec.CandidateStatementID = next.ID
	rec.Status = domain.ConflictResolved
	rec.Resolution = &domain.Resolution{Kind: domain.ResolutionAuto, ResolvedAt: now}
	if err := tx.Conflicts().Create(ctx, rec); err != nil {
		return err
	}
	res.Superseded = append(res.Superseded, *next)
	res.Conflicts = append(res.Conflicts, *rec)
	metrics.CountStatement(metrics.OutcomeSuperseded)
	return nil
}

// hold stores next as pending behind an unresolved conflict record.
func (cd *ConflictDetector) hold(ctx context.Context, tx domain.Tx, next *domain.Statement, rec *domain.ConflictRecord, res *DetectionResult) error {
	next.Status = domain.StatusPending
	if err := tx.Statements().Create(ctx, next); err != nil {
		return err
	}
	rec.CandidateStatementID = next.ID
	rec.Status = domain.ConflictUnresolved
	if err := tx.Conflicts().Create(ctx, rec); err != nil {
		return err
	}
	res.Held = append(res.Held, *next)
	res.Conflicts = append(res.Conflicts, *rec)
	metrics.CountStatement(metrics.OutcomeHeld)
	cd.logger.Info("statement held by conflict",
		zap.String("project_id", next.ProjectID.String()),
		zap.String("slot", next.SlotKey()),
		zap.String("rule", rec.RuleID))
	return nil
}

func firstBlocking(open []domain.ConflictRecord) *domain.ConflictRecord {
	for i := range open {
		if open[i].Blocking() {
			return &open[i]
		}
	}
	return nil
}

// heldSameValue reports whether an unresolved conflict already holds a
// pending candidate with the same value for the slot.
func (cd *ConflictDetector) heldSameValue(ctx context.Context, tx domain.Tx, open []domain.ConflictRecord, c domain.StatementCandidate) (bool, error) {
	for _, rec := range open {
		pending, err := tx.Statements().GetByID(ctx, rec.CandidateStatementID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if pending.SameValue(c.Value) {
			return true, nil
		}
	}
	return false, nil
}

func (cd *ConflictDetector) message(rule *catalog.ConflictRule, in catalog.RuleInput) string {
	msg, err := rule.RenderMessage(in)
	if err != nil {
		cd.logger.Warn("render conflict message", zap.String("rule", rule.ID), zap.Error(err))
		return fmt.Sprintf("%s.%s changed from %q to %q", in.Category, in.Key, in.OldValue, in.NewValue)
	}
	return msg
}

// ConflictService lists and resolves conflict records.
type ConflictService struct {
	conflicts domain.ConflictStore
	tx        domain.TxManager
	maturity  *MaturityService
	logger    *zap.Logger
	now       func() time.Time
}

func NewConflictService(conflicts domain.ConflictStore, tx domain.TxManager, maturity *MaturityService, logger *zap.Logger) *ConflictService {
	return &ConflictService{
		conflicts: conflicts,
		tx:        tx,
		maturity:  maturity,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ConflictService) List(ctx context.Context, projectID uuid.UUID, q domain.ConflictQuery) ([]domain.ConflictRecord, error) {
	if _, _, err := s.maturity.load(ctx, projectID); err != nil {
		return nil, err
	}
	return s.conflicts.List(ctx, projectID, q)
}

// ResolveRequest carries a user's decision on a conflict.
type ResolveRequest struct {
	Kind        domain.ResolutionKind `json:"kind"`
	MergedValue string                `json:"merged_value,omitempty"`
}

func (r ResolveRequest) validate() error {
	if !domain.ValidResolutionKind(string(r.Kind)) {
		return &domain.Error{
			Kind:        domain.KindValidation,
			Message:     fmt.Sprintf("invalid resolution kind %q", r.Kind),
			Remediation: "use keep_old, use_new or merge",
		}
	}
	if r.Kind == domain.ResolutionMerge && strings.TrimSpace(r.MergedValue) == "" {
		return &domain.Error{
			Kind:        domain.KindValidation,
			Message:     "merge requires merged_value",
			Remediation: "send the combined value in merged_value",
		}
	}
	return nil
}

// Resolve applies a resolution to an unresolved conflict and recomputes the
// project's maturity. Resolving an already resolved conflict returns the
// record unchanged.
func (s *ConflictService) Resolve(ctx context.Context, projectID, conflictID uuid.UUID, req ResolveRequest) (*domain.ConflictRecord, error) {
	rec, err := s.conflicts.GetByID(ctx, conflictID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConflictNotFound
		}
		return nil, err
	}
	if projectID != uuid.Nil && rec.ProjectID != projectID {
		return nil, ErrConflictNotFound
	}
	if rec.Status == domain.ConflictResolved {
		return rec, nil
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	changed := false
	err = s.tx.WithProjectTx(ctx, rec.ProjectID, func(tx domain.Tx) error {
		latest, err := tx.Conflicts().GetByID(ctx, conflictID)
		if err != nil {
			return err
		}
		rec = latest
		if latest.Status == domain.ConflictResolved {
			return nil
		}
		if err := s.applyResolution(ctx, tx, latest, req); err != nil {
			return err
		}
		resolution := domain.Resolution{Kind: req.Kind, MergedValue: strings.TrimSpace(req.MergedValue), ResolvedAt: s.now()}
		if err := tx.Conflicts().Resolve(ctx, latest.ID, resolution); err != nil && !errors.Is(err, store.ErrAlreadyResolved) {
			return err
		}
		latest.Status = domain.ConflictResolved
		latest.Resolution = &resolution
		changed = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve conflict: %w", err)
	}

	if changed {
		s.logger.Info("conflict resolved",
			zap.String("conflict_id", rec.ID.String()),
			zap.String("kind", string(req.Kind)))
		if _, err := s.maturity.Get(ctx, rec.ProjectID); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (s *ConflictService) applyResolution(ctx context.Context, tx domain.Tx, rec *domain.ConflictRecord, req ResolveRequest) error {
	stmts := tx.Statements()
	cand, err := stmts.GetByID(ctx, rec.CandidateStatementID)
	if err != nil {
		return err
	}
	if cand.Status != domain.StatusPending {
		return nil
	}

	cur, err := stmts.GetCurrent(ctx, rec.ProjectID, rec.Category, rec.Key)
	if errors.Is(err, store.ErrNotFound) {
		cur = nil
	} else if err != nil {
		return err
	}

	nextVersion := 1
	if cur != nil {
		nextVersion = cur.Version + 1
	}

	switch req.Kind {
	case domain.ResolutionKeepOld:
		winner := rec.OldStatementID
		if cur != nil {
			winner = cur.ID
		}
		return stmts.Reject(ctx, cand.ID, winner)

	case domain.ResolutionUseNew:
		if cur == nil {
			return stmts.Promote(ctx, cand.ID, nextVersion)
		}
		next := *cand
		next.Status = domain.StatusCurrent
		next.Version = nextVersion
		return stmts.Supersede(ctx, cur.ID, &next)

	case domain.ResolutionMerge:
		confidence := cand.Confidence
		if cur != nil {
			confidence = math.Max(cur.Confidence, cand.Confidence)
		}
		merged := &domain.Statement{
			ID:         uuid.New(),
			ProjectID:  rec.ProjectID,
			Category:   rec.Category,
			Key:        rec.Key,
			Value:      strings.TrimSpace(req.MergedValue),
			Source:     domain.StatementSource{Type: domain.SourceResolution, SourceID: rec.ID.String()},
			Confidence: confidence,
			Status:     domain.StatusCurrent,
			Version:    nextVersion,
			CreatedAt:  s.now(),
		}
		if cur == nil {
			if err := stmts.Create(ctx, merged); err != nil {
				return err
			}
		} else if err := stmts.Supersede(ctx, cur.ID, merged); err != nil {
			return err
		}
		return stmts.Reject(ctx, cand.ID, merged.ID)
	}
	return domain.Validationf("invalid resolution kind %q", req.Kind)
}

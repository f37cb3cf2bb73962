package domain

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func ValidSeverity(s string) bool {
	switch Severity(s) {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// Rank orders severities so the most severe matching rule can be chosen.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	default:
		return 0
	}
}

// Blocking reports whether a conflict of this severity holds the candidate back.
func (s Severity) Blocking() bool {
	return s == SeverityError
}

type ConflictStatus string

const (
	ConflictUnresolved ConflictStatus = "unresolved"
	ConflictResolved   ConflictStatus = "resolved"
)

type ResolutionKind string

const (
	ResolutionKeepOld ResolutionKind = "keep_old"
	ResolutionUseNew  ResolutionKind = "use_new"
	ResolutionMerge   ResolutionKind = "merge"
	// ResolutionAuto marks info/warning conflicts recorded as an informational trail.
	ResolutionAuto ResolutionKind = "auto"
)

func ValidResolutionKind(k string) bool {
	switch ResolutionKind(k) {
	case ResolutionKeepOld, ResolutionUseNew, ResolutionMerge:
		return true
	}
	return false
}

type Resolution struct {
	Kind        ResolutionKind `json:"kind"`
	MergedValue string         `json:"merged_value,omitempty"`
	ResolvedAt  time.Time      `json:"resolved_at"`
}

type ConflictRecord struct {
	ID                   uuid.UUID      `json:"id"`
	ProjectID            uuid.UUID      `json:"project_id"`
	OldStatementID       uuid.UUID      `json:"old_statement_id"`
	CandidateStatementID uuid.UUID      `json:"candidate_statement_id"`
	RuleID               string         `json:"rule_id"`
	Severity             Severity       `json:"severity"`
	Category             string         `json:"category"`
	Key                  string         `json:"key"`
	Message              string         `json:"message"`
	Status               ConflictStatus `json:"status"`
	Resolution           *Resolution    `json:"resolution,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}

// Blocking reports whether the record currently prevents promotion or gated actions.
func (c *ConflictRecord) Blocking() bool {
	return c.Status == ConflictUnresolved && c.Severity.Blocking()
}

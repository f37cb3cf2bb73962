package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type StatementStatus string

const (
	StatusCurrent    StatementStatus = "current"
	StatusSuperseded StatementStatus = "superseded"
	StatusPending    StatementStatus = "pending"
)

func ValidStatementStatus(s string) bool {
	switch StatementStatus(s) {
	case StatusCurrent, StatusSuperseded, StatusPending:
		return true
	}
	return false
}

type SourceType string

const (
	SourceAnswer     SourceType = "answer"
	SourceExtraction SourceType = "extraction"
	SourceResolution SourceType = "resolution"
	SourceManual     SourceType = "manual"
)

type StatementSource struct {
	Type     SourceType `json:"type"`
	SourceID string     `json:"source_id,omitempty"`
}

type Statement struct {
	ID           uuid.UUID       `json:"id"`
	ProjectID    uuid.UUID       `json:"project_id"`
	Category     string          `json:"category"`
	Key          string          `json:"key"`
	Value        string          `json:"value"`
	Source       StatementSource `json:"source"`
	Confidence   float64         `json:"confidence"`
	Reasoning    string          `json:"reasoning,omitempty"`
	Status       StatementStatus `json:"status"`
	Version      int             `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	SupersededAt *time.Time      `json:"superseded_at,omitempty"`
	SupersededBy *uuid.UUID      `json:"superseded_by,omitempty"`
}

// SameValue compares statement values the way duplicate detection does:
// surrounding whitespace and letter case are ignored.
func (s *Statement) SameValue(value string) bool {
	return strings.EqualFold(strings.TrimSpace(s.Value), strings.TrimSpace(value))
}

// SlotKey identifies the (category, key) slot a statement occupies within a project.
func (s *Statement) SlotKey() string {
	return s.Category + "." + s.Key
}

// StatementCandidate is one validated entry returned by the extraction prompt.
type StatementCandidate struct {
	Category   string  `json:"category"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

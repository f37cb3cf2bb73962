package domain

import (
	"time"

	"github.com/google/uuid"
)

type Phase string

const (
	PhaseDiscovery      Phase = "discovery"
	PhaseAnalysis       Phase = "analysis"
	PhaseDesign         Phase = "design"
	PhaseImplementation Phase = "implementation"
)

var phaseOrder = []Phase{PhaseDiscovery, PhaseAnalysis, PhaseDesign, PhaseImplementation}

func ValidPhase(p string) bool {
	switch Phase(p) {
	case PhaseDiscovery, PhaseAnalysis, PhaseDesign, PhaseImplementation:
		return true
	}
	return false
}

// Index returns the position of the phase in the forward-only lifecycle, or -1.
func (p Phase) Index() int {
	for i, q := range phaseOrder {
		if q == p {
			return i
		}
	}
	return -1
}

// Next returns the phase that follows p. The second value is false when p is
// terminal or unknown.
func (p Phase) Next() (Phase, bool) {
	i := p.Index()
	if i < 0 || i == len(phaseOrder)-1 {
		return "", false
	}
	return phaseOrder[i+1], true
}

func (p Phase) IsTerminal() bool {
	return p == PhaseImplementation
}

type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	DomainID  string    `json:"domain_id"`
	Phase     Phase     `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Session struct {
	ID               uuid.UUID `json:"id"`
	ProjectID        uuid.UUID `json:"project_id"`
	AskedQuestionIDs []string  `json:"asked_question_ids"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasAsked reports whether the question was already put to the user in this session.
func (s *Session) HasAsked(questionID string) bool {
	for _, id := range s.AskedQuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

type Answer struct {
	ID         uuid.UUID `json:"id"`
	ProjectID  uuid.UUID `json:"project_id"`
	SessionID  uuid.UUID `json:"session_id"`
	QuestionID string    `json:"question_id"`
	AnswerText string    `json:"answer_text"`
	CreatedAt  time.Time `json:"created_at"`
}

// GeneratedQuestion is a follow-up question produced by the completion service
// when a category has no templated question left. It is persisted so the
// answer can reference it by id.
type GeneratedQuestion struct {
	ID            string    `json:"id"`
	ProjectID     uuid.UUID `json:"project_id"`
	Category      string    `json:"category"`
	Text          string    `json:"text"`
	HelpText      string    `json:"help_text,omitempty"`
	ExampleAnswer string    `json:"example_answer,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

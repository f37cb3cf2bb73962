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
	"github.com/Harshitk-cp/speclens/internal/llm"
	"github.com/Harshitk-cp/speclens/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GeneratedQuestionPrefix marks question ids produced by the completion service.
const GeneratedQuestionPrefix = "gen-"

const questionMaxTokens = 512

type ElicitationOptions struct {
	MaxTokens        int
	DynamicQuestions bool
}

// NextQuestion is the answer to generate_question: either a question or the
// reason elicitation has nothing more to ask.
type NextQuestion struct {
	Question *catalog.Question     `json:"question,omitempty"`
	Done     *NoFurtherQuestion    `json:"done,omitempty"`
	Maturity *domain.MaturityRecord `json:"maturity"`
}

type SubmitResult struct {
	AnswerID       uuid.UUID               `json:"answer_id"`
	SpecsExtracted int                     `json:"specs_extracted"`
	Statements     []domain.Statement      `json:"statements"`
	Held           []domain.Statement      `json:"held,omitempty"`
	Conflicts      []domain.ConflictRecord `json:"conflicts"`
	Duplicates     int                     `json:"duplicates"`
	Dropped        []DroppedEntry          `json:"dropped,omitempty"`
	Maturity       *domain.MaturityRecord  `json:"maturity"`
}

// ElicitationService runs the question and answer loop of a session.
type ElicitationService struct {
	sessions   domain.SessionStore
	statements domain.StatementStore
	tx         domain.TxManager
	maturity   *MaturityService
	client     domain.CompletionClient
	extractor  *Extractor
	detector   *ConflictDetector
	dynamic    bool
	logger     *zap.Logger
	now        func() time.Time
}

func NewElicitationService(
	sessions domain.SessionStore,
	statements domain.StatementStore,
	tx domain.TxManager,
	maturity *MaturityService,
	client domain.CompletionClient,
	opts ElicitationOptions,
	logger *zap.Logger,
) *ElicitationService {
	return &ElicitationService{
		sessions:   sessions,
		statements: statements,
		tx:         tx,
		maturity:   maturity,
		client:     client,
		extractor:  NewExtractor(client, opts.MaxTokens, logger),
		detector:   NewConflictDetector(logger),
		dynamic:    opts.DynamicQuestions,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GenerateQuestion selects the next question for the session and records it
// as asked.
func (s *ElicitationService) GenerateQuestion(ctx context.Context, projectID, sessionID uuid.UUID) (*NextQuestion, error) {
	p, d, err := s.maturity.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sess, err := s.session(ctx, projectID, sessionID)
	if err != nil {
		return nil, err
	}
	m, err := s.maturity.Recompute(ctx, p, d)
	if err != nil {
		return nil, err
	}

	answeredIDs, err := s.sessions.AnsweredQuestionIDs(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("answered questions: %w", err)
	}
	answered := toSet(answeredIDs)
	asked := toSet(sess.AskedQuestionIDs)

	sel := SelectQuestion(d, m, answered, asked)
	if sel.Question != nil {
		if err := s.sessions.RecordAsked(ctx, sess.ID, sel.Question.ID); err != nil {
			return nil, fmt.Errorf("record asked: %w", err)
		}
		return &NextQuestion{Question: sel.Question, Maturity: m}, nil
	}

	if sel.Done.Reason == ReasonNoSelectable && s.dynamic && sel.Category != "" {
		q, err := s.generateFollowUp(ctx, p, d, sess, sel.Category, m.PerCategory[sel.Category])
		if err == nil {
			return &NextQuestion{Question: q, Maturity: m}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("follow-up question generation failed",
			zap.String("project_id", p.ID.String()),
			zap.String("category", sel.Category),
			zap.Error(err))
	}
	return &NextQuestion{Done: sel.Done, Maturity: m}, nil
}

func (s *ElicitationService) generateFollowUp(ctx context.Context, p *domain.Project, d *catalog.Domain, sess *domain.Session, category string, score float64) (*catalog.Question, error) {
	var asked []string
	for _, q := range d.Questions.Filter(catalog.Filter{Category: category}) {
		if q.Category == category {
			asked = append(asked, q.Text)
		}
	}
	current, err := s.statements.ListCurrent(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	var known []string
	for _, st := range current {
		if st.Category == category {
			known = append(known, st.Key+" = "+st.Value)
		}
	}

	name := d.Name
	if name == "" {
		name = d.ID
	}
	out, err := s.client.Complete(ctx, llm.QuestionPrompt(llm.QuestionPromptInput{
		DomainName: name,
		Category:   category,
		Score:      score,
		Asked:      asked,
		Known:      known,
	}), questionMaxTokens)
	if err != nil {
		return nil, err
	}
	g, err := llm.ParseJSON[llm.GeneratedQuestion](out)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(g.Text) == "" {
		return nil, errors.New("generated question has no text")
	}

	gq := &domain.GeneratedQuestion{
		ID:            GeneratedQuestionPrefix + uuid.NewString(),
		ProjectID:     p.ID,
		Category:      category,
		Text:          strings.TrimSpace(g.Text),
		HelpText:      strings.TrimSpace(g.HelpText),
		ExampleAnswer: strings.TrimSpace(g.ExampleAnswer),
		CreatedAt:     s.now(),
	}
	if err := s.sessions.SaveGeneratedQuestion(ctx, gq); err != nil {
		return nil, fmt.Errorf("save generated question: %w", err)
	}
	if err := s.sessions.RecordAsked(ctx, sess.ID, gq.ID); err != nil {
		return nil, fmt.Errorf("record asked: %w", err)
	}
	return generatedToQuestion(gq), nil
}

// SubmitAnswer extracts statements from an answer, runs them through
// conflict detection and returns the updated maturity.
func (s *ElicitationService) SubmitAnswer(ctx context.Context, projectID, sessionID uuid.UUID, questionID, text string) (*SubmitResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyAnswer
	}
	if strings.TrimSpace(questionID) == "" {
		return nil, &domain.Error{Kind: domain.KindValidation, Message: "question_id is required", Remediation: "answer the question returned by generate_question"}
	}

	p, d, err := s.maturity.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.session(ctx, projectID, sessionID); err != nil {
		return nil, err
	}
	q, err := s.question(ctx, d, projectID, questionID)
	if err != nil {
		return nil, err
	}

	answer := &domain.Answer{
		ID:         uuid.New(),
		ProjectID:  projectID,
		SessionID:  sessionID,
		QuestionID: q.ID,
		AnswerText: text,
		CreatedAt:  s.now(),
	}
	source := domain.StatementSource{Type: domain.SourceAnswer, SourceID: answer.ID.String()}
	det, extraction, err := s.extractAndApply(ctx, p, d, q.ID, q.Text, text, source)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.RecordAnswer(ctx, answer); err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}

	m, err := s.maturity.Recompute(ctx, p, d)
	if err != nil {
		return nil, err
	}

	s.logger.Info("answer processed",
		zap.String("project_id", p.ID.String()),
		zap.String("question_id", q.ID),
		zap.Int("extracted", det.Extracted()),
		zap.Int("held", len(det.Held)),
		zap.Int("duplicates", det.Duplicates),
		zap.Int("dropped", len(extraction.Dropped)),
		zap.Float64("overall", m.Overall))

	return &SubmitResult{
		AnswerID:       answer.ID,
		SpecsExtracted: det.Extracted(),
		Statements:     append(det.Promoted, det.Superseded...),
		Held:           det.Held,
		Conflicts:      nonNilConflicts(det.Conflicts),
		Duplicates:     det.Duplicates,
		Dropped:        extraction.Dropped,
		Maturity:       m,
	}, nil
}

// ExtractSpecifications extracts statements from free text that does not
// answer a particular question.
func (s *ElicitationService) ExtractSpecifications(ctx context.Context, projectID uuid.UUID, text string) (*SubmitResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &domain.Error{Kind: domain.KindValidation, Message: "text is required", Remediation: "send the text to extract from"}
	}
	p, d, err := s.maturity.load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	source := domain.StatementSource{Type: domain.SourceExtraction}
	det, extraction, err := s.extractAndApply(ctx, p, d, "free_text", "(unprompted description)", text, source)
	if err != nil {
		return nil, err
	}
	m, err := s.maturity.Recompute(ctx, p, d)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{
		SpecsExtracted: det.Extracted(),
		Statements:     append(det.Promoted, det.Superseded...),
		Held:           det.Held,
		Conflicts:      nonNilConflicts(det.Conflicts),
		Duplicates:     det.Duplicates,
		Dropped:        extraction.Dropped,
		Maturity:       m,
	}, nil
}

func (s *ElicitationService) extractAndApply(ctx context.Context, p *domain.Project, d *catalog.Domain, questionID, questionText, text string, source domain.StatementSource) (*DetectionResult, *ExtractionResult, error) {
	existing, err := s.statements.ListCurrent(ctx, p.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list current statements: %w", err)
	}
	extraction, err := s.extractor.Extract(ctx, ExtractionInput{
		Domain:       d,
		QuestionID:   questionID,
		QuestionText: questionText,
		Answer:       text,
		Existing:     existing,
	})
	if err != nil {
		return nil, nil, err
	}
	// A cancelled request promotes nothing.
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var det *DetectionResult
	err = s.tx.WithProjectTx(ctx, p.ID, func(tx domain.Tx) error {
		var err error
		det, err = s.detector.Apply(ctx, tx, d, p.ID, source, extraction.Candidates)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("apply statements: %w", err)
	}
	return det, extraction, nil
}

// ManualStatement is a statement entered directly by a user.
type ManualStatement struct {
	Category   string   `json:"category"`
	Key        string   `json:"key"`
	Value      string   `json:"value"`
	Confidence *float64 `json:"confidence,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// SetStatement records a user-entered statement through conflict detection.
// It is refused while the slot has an unresolved error conflict.
func (s *ElicitationService) SetStatement(ctx context.Context, projectID uuid.UUID, in ManualStatement) (*SubmitResult, error) {
	p, d, err := s.maturity.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !d.HasCategory(in.Category) {
		return nil, &domain.Error{Kind: domain.KindValidation, Message: fmt.Sprintf("unknown category %q", in.Category), Remediation: "use one of: " + strings.Join(d.CategoryIDs(), ", ")}
	}
	key := NormalizeKey(in.Key)
	if key == "" || strings.TrimSpace(in.Value) == "" {
		return nil, &domain.Error{Kind: domain.KindValidation, Message: "key and value are required", Remediation: "send a non-empty key and value"}
	}
	confidence := 1.0
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return nil, &domain.Error{Kind: domain.KindValidation, Message: "confidence must be between 0 and 1", Remediation: "omit confidence or send a value in [0,1]"}
	}
	cand := domain.StatementCandidate{
		Category:   in.Category,
		Key:        key,
		Value:      strings.TrimSpace(in.Value),
		Confidence: confidence,
		Reasoning:  strings.TrimSpace(in.Reasoning),
	}

	var det *DetectionResult
	err = s.tx.WithProjectTx(ctx, p.ID, func(tx domain.Tx) error {
		open, err := tx.Conflicts().FindUnresolved(ctx, p.ID, cand.Category, cand.Key)
		if err != nil {
			return err
		}
		for _, rec := range open {
			if rec.Blocking() {
				return &domain.Error{
					Kind:        domain.KindConflictBlocking,
					Message:     fmt.Sprintf("%s.%s has an unresolved conflict", cand.Category, cand.Key),
					Remediation: "resolve conflict " + rec.ID.String() + " first",
				}
			}
		}
		det, err = s.detector.Apply(ctx, tx, d, p.ID, domain.StatementSource{Type: domain.SourceManual}, []domain.StatementCandidate{cand})
		return err
	})
	if err != nil {
		return nil, err
	}

	m, err := s.maturity.Recompute(ctx, p, d)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{
		SpecsExtracted: det.Extracted(),
		Statements:     append(det.Promoted, det.Superseded...),
		Held:           det.Held,
		Conflicts:      nonNilConflicts(det.Conflicts),
		Duplicates:     det.Duplicates,
		Maturity:       m,
	}, nil
}

func (s *ElicitationService) session(ctx context.Context, projectID, sessionID uuid.UUID) (*domain.Session, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.ProjectID != projectID {
		return nil, ErrSessionMismatch
	}
	return sess, nil
}

func (s *ElicitationService) question(ctx context.Context, d *catalog.Domain, projectID uuid.UUID, id string) (*catalog.Question, error) {
	if q, ok := d.Question(id); ok {
		return q, nil
	}
	if !strings.HasPrefix(id, GeneratedQuestionPrefix) {
		return nil, ErrQuestionNotFound
	}
	gq, err := s.sessions.GetGeneratedQuestion(ctx, projectID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	return generatedToQuestion(gq), nil
}

func generatedToQuestion(gq *domain.GeneratedQuestion) *catalog.Question {
	return &catalog.Question{
		ID:            gq.ID,
		Text:          gq.Text,
		Category:      gq.Category,
		HelpText:      gq.HelpText,
		ExampleAnswer: gq.ExampleAnswer,
		Generated:     true,
	}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func nonNilConflicts(c []domain.ConflictRecord) []domain.ConflictRecord {
	if c == nil {
		return []domain.ConflictRecord{}
	}
	return c
}

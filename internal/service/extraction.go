package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Harshitk-cp/speclens/internal/catalog"
	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/Harshitk-cp/speclens/internal/llm"
	"github.com/Harshitk-cp/speclens/internal/metrics"
	"go.uber.org/zap"
)

const DefaultExtractionMaxTokens = 2048

// ExtractionInput is everything the extraction prompt is built from.
type ExtractionInput struct {
	Domain       *catalog.Domain
	QuestionID   string
	QuestionText string
	Answer       string
	Existing     []domain.Statement
}

// DroppedEntry is an extraction result entry that failed validation.
type DroppedEntry struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Raw    string `json:"raw,omitempty"`
}

type ExtractionResult struct {
	Candidates []domain.StatementCandidate `json:"candidates"`
	Dropped    []DroppedEntry              `json:"dropped,omitempty"`
}

// Extractor turns an answer into statement candidates through the
// completion service.
type Extractor struct {
	client    domain.CompletionClient
	maxTokens int
	logger    *zap.Logger
}

func NewExtractor(client domain.CompletionClient, maxTokens int, logger *zap.Logger) *Extractor {
	if maxTokens <= 0 {
		maxTokens = DefaultExtractionMaxTokens
	}
	return &Extractor{client: client, maxTokens: maxTokens, logger: logger}
}

// Extract calls the completion service and validates every returned entry on
// its own. Invalid entries are dropped; they never fail the batch. A timed
// out call is retried once before the timeout is returned.
func (e *Extractor) Extract(ctx context.Context, in ExtractionInput) (*ExtractionResult, error) {
	existing := make([]string, 0, len(in.Existing))
	for _, s := range in.Existing {
		if s.Status == domain.StatusCurrent {
			existing = append(existing, fmt.Sprintf("%s.%s = %s", s.Category, s.Key, s.Value))
		}
	}
	name := in.Domain.Name
	if name == "" {
		name = in.Domain.ID
	}
	prompt := llm.ExtractionPrompt(llm.ExtractionPromptInput{
		DomainName:   name,
		Categories:   in.Domain.CategoryIDs(),
		QuestionID:   in.QuestionID,
		QuestionText: in.QuestionText,
		Answer:       in.Answer,
		Existing:     existing,
	})

	raw, err := e.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	entries, err := llm.ParseArray(raw)
	if err != nil {
		e.logger.Warn("extraction output is not a JSON array", zap.Error(err), zap.String("output", truncate(raw, 200)))
		return nil, &domain.Error{
			Kind:        domain.KindSchemaParse,
			Message:     "completion service returned no readable statement list",
			Remediation: "submit the answer again; rephrasing it may help",
			Err:         err,
		}
	}

	return e.validateEntries(in.Domain, entries), nil
}

func (e *Extractor) complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		out, err := e.client.Complete(ctx, prompt, e.maxTokens)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		if !errors.Is(err, domain.ErrLLMTimeout) {
			break
		}
		e.logger.Warn("extraction timed out", zap.Int("attempt", attempt))
	}
	if errors.Is(lastErr, domain.ErrLLMTimeout) {
		return "", lastErr
	}
	return "", fmt.Errorf("extraction completion: %w", lastErr)
}

type rawEntry struct {
	Category   *string         `json:"category"`
	Key        *string         `json:"key"`
	Value      json.RawMessage `json:"value"`
	Confidence *float64        `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
}

func (e *Extractor) validateEntries(d *catalog.Domain, entries []json.RawMessage) *ExtractionResult {
	res := &ExtractionResult{}
	index := make(map[string]int)

	for i, rawJSON := range entries {
		c, reason := parseEntry(d, rawJSON)
		if reason != "" {
			res.Dropped = append(res.Dropped, DroppedEntry{Index: i, Reason: reason, Raw: truncate(string(rawJSON), 200)})
			metrics.CountStatement(metrics.OutcomeDropped)
			e.logger.Warn("dropped extraction entry",
				zap.String("kind", string(domain.KindSchemaParse)),
				zap.Int("index", i),
				zap.String("reason", reason))
			continue
		}
		slot := c.Category + "." + c.Key
		if j, seen := index[slot]; seen {
			if c.Confidence > res.Candidates[j].Confidence {
				res.Candidates[j] = c
			}
			continue
		}
		index[slot] = len(res.Candidates)
		res.Candidates = append(res.Candidates, c)
	}
	return res
}

func parseEntry(d *catalog.Domain, data json.RawMessage) (domain.StatementCandidate, string) {
	var c domain.StatementCandidate
	var r rawEntry
	if err := json.Unmarshal(data, &r); err != nil {
		return c, "entry is not an object: " + err.Error()
	}
	switch {
	case r.Category == nil || strings.TrimSpace(*r.Category) == "":
		return c, "missing category"
	case r.Key == nil || strings.TrimSpace(*r.Key) == "":
		return c, "missing key"
	case len(r.Value) == 0 || string(r.Value) == "null":
		return c, "missing value"
	case r.Confidence == nil:
		return c, "missing confidence"
	}
	if math.IsNaN(*r.Confidence) || *r.Confidence < 0 || *r.Confidence > 1 {
		return c, fmt.Sprintf("confidence %v out of range [0,1]", *r.Confidence)
	}
	category := strings.TrimSpace(*r.Category)
	if !d.HasCategory(category) {
		return c, fmt.Sprintf("unknown category %q", category)
	}
	key := NormalizeKey(*r.Key)
	if key == "" {
		return c, "key has no usable characters"
	}
	value, ok := scalarValue(r.Value)
	if !ok || strings.TrimSpace(value) == "" {
		return c, "value must be a non-empty string, number or boolean"
	}
	return domain.StatementCandidate{
		Category:   category,
		Key:        key,
		Value:      strings.TrimSpace(value),
		Confidence: *r.Confidence,
		Reasoning:  strings.TrimSpace(r.Reasoning),
	}, ""
}

func scalarValue(raw json.RawMessage) (string, bool) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s, true
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return strconv.FormatBool(b), true
	}
	return "", false
}

// NormalizeKey lowercases a key and joins its words with underscores.
func NormalizeKey(k string) string {
	var sb strings.Builder
	pendingSep := false
	prevLower := false
	for _, r := range strings.TrimSpace(k) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && prevLower {
				pendingSep = true
			}
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pendingSep = false
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
			sb.WriteRune(unicode.ToLower(r))
		default:
			pendingSep = true
			prevLower = false
		}
	}
	return sb.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

package llm

import (
	"fmt"
	"strings"
)

const extractPrompt = `You are a requirements analyst. Convert the user's answer into discrete specification statements.

Domain: %s
Allowed categories (use these ids exactly): %s

Question (%s): %s

Answer:
%s

Statements already recorded for this project (category.key = value):
%s

For every fact that is explicit in the answer or clearly implied by it, produce one statement:
- category: one of the allowed category ids
- key: a short lower_snake_case name for the fact; reuse an existing key when the answer updates it
- value: the fact itself, as short as possible while staying unambiguous
- confidence: a number between 0 and 1; 0.9 or more only for explicit statements
- reasoning: one sentence on why the statement follows from the answer

Respond ONLY with a JSON array. No markdown, no explanation. Example:
[{"category":"tech_stack","key":"database","value":"PostgreSQL","confidence":0.95,"reasoning":"The user names PostgreSQL as the database."}]

If the answer contains no usable facts, respond with an empty array: []`

const questionPrompt = `You are a requirements analyst running an elicitation interview for a %s project.

The category "%s" is only %.0f%% covered. Questions already asked in this category:
%s

Known facts in this category:
%s

Write ONE new follow-up question that would uncover the most important missing information in this category.
Do not repeat a question that was already asked.

Respond ONLY with a JSON object. No markdown, no explanation:
{"text":"...","help_text":"...","example_answer":"..."}`

const codegenPrompt = `You are a senior engineer. Using the specification below, produce an implementation plan and a starter scaffold.

Include:
1. A short architecture overview
2. The module/package layout with one line per file
3. The key data types
4. An ordered list of implementation steps

Specification:
%s`

// ExtractionPromptInput is the data rendered into the extraction prompt.
type ExtractionPromptInput struct {
	DomainName   string
	Categories   []string
	QuestionID   string
	QuestionText string
	Answer       string
	Existing     []string
}

func ExtractionPrompt(in ExtractionPromptInput) string {
	return fmt.Sprintf(extractPrompt,
		in.DomainName,
		strings.Join(in.Categories, ", "),
		in.QuestionID,
		in.QuestionText,
		in.Answer,
		bulletList(in.Existing, "(none)"),
	)
}

// QuestionPromptInput is the data rendered into the question-generation prompt.
type QuestionPromptInput struct {
	DomainName string
	Category   string
	Score      float64
	Asked      []string
	Known      []string
}

func QuestionPrompt(in QuestionPromptInput) string {
	return fmt.Sprintf(questionPrompt,
		in.DomainName,
		in.Category,
		in.Score,
		bulletList(in.Asked, "(none)"),
		bulletList(in.Known, "(none)"),
	)
}

func CodegenPrompt(specification string) string {
	return fmt.Sprintf(codegenPrompt, specification)
}

// GeneratedQuestion is the JSON object returned by the question-generation prompt.
type GeneratedQuestion struct {
	Text          string `json:"text"`
	HelpText      string `json:"help_text"`
	ExampleAnswer string `json:"example_answer"`
}

func bulletList(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

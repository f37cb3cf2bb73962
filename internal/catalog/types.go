package catalog

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Harshitk-cp/speclens/internal/domain"
)

// Template is implemented by every record type a template engine manages.
type Template interface {
	TemplateID() string
	TemplateCategory() string
	TemplateSeverity() domain.Severity
	TemplateTags() []string
	IsEnabled() bool
	validate(vc *validationContext) []ValidationError
}

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

func ValidDifficulty(d string) bool {
	switch Difficulty(d) {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// Category is a topic within a domain that maturity is scored against.
type Category struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name,omitempty" json:"name,omitempty"`
	Weight        *float64 `yaml:"weight,omitempty" json:"weight,omitempty"`
	ExpectedCount *int     `yaml:"expected_count,omitempty" json:"expected_count,omitempty"`
}

type Question struct {
	ID            string     `yaml:"id" json:"id"`
	Text          string     `yaml:"text" json:"text"`
	Category      string     `yaml:"category" json:"category"`
	Difficulty    Difficulty `yaml:"difficulty,omitempty" json:"difficulty,omitempty"`
	HelpText      string     `yaml:"help_text,omitempty" json:"help_text,omitempty"`
	ExampleAnswer string     `yaml:"example_answer,omitempty" json:"example_answer,omitempty"`
	DependsOn     []string   `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Priority      int        `yaml:"priority,omitempty" json:"priority"`
	Tags          []string   `yaml:"tags,omitempty" json:"tags,omitempty"`
	Enabled       *bool      `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	// Generated is set for follow-up questions produced at runtime.
	Generated bool `yaml:"-" json:"generated,omitempty"`
}

func (q *Question) TemplateID() string                { return q.ID }
func (q *Question) TemplateCategory() string          { return q.Category }
func (q *Question) TemplateSeverity() domain.Severity { return "" }
func (q *Question) TemplateTags() []string            { return q.Tags }
func (q *Question) IsEnabled() bool                   { return enabled(q.Enabled) }

func (q *Question) validate(vc *validationContext) []ValidationError {
	var errs []ValidationError
	if strings.TrimSpace(q.Text) == "" {
		errs = append(errs, vc.fieldErr(q.ID, "text", "is required"))
	}
	if q.Category == "" {
		errs = append(errs, vc.fieldErr(q.ID, "category", "is required"))
	} else if !vc.categories[q.Category] {
		errs = append(errs, vc.fieldErr(q.ID, "category", fmt.Sprintf("unknown category %q", q.Category)))
	}
	if q.Difficulty != "" && !ValidDifficulty(string(q.Difficulty)) {
		errs = append(errs, vc.fieldErr(q.ID, "difficulty", fmt.Sprintf("invalid difficulty %q", q.Difficulty)))
	}
	for _, dep := range q.DependsOn {
		if dep == q.ID {
			errs = append(errs, vc.fieldErr(q.ID, "depends_on", "question depends on itself"))
		} else if !vc.questions[dep] {
			errs = append(errs, vc.fieldErr(q.ID, "depends_on", fmt.Sprintf("unknown question %q", dep)))
		}
	}
	return errs
}

// ExportFormat renders a project's current statements into a document.
type ExportFormat struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	MediaType   string   `yaml:"media_type,omitempty" json:"media_type,omitempty"`
	Extension   string   `yaml:"extension,omitempty" json:"extension,omitempty"`
	Template    string   `yaml:"template" json:"template"`
	Categories  []string `yaml:"categories,omitempty" json:"categories,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Enabled     *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	tmpl *template.Template
}

func (f *ExportFormat) TemplateID() string                { return f.ID }
func (f *ExportFormat) TemplateCategory() string          { return "" }
func (f *ExportFormat) TemplateSeverity() domain.Severity { return "" }
func (f *ExportFormat) TemplateTags() []string            { return f.Tags }
func (f *ExportFormat) IsEnabled() bool                   { return enabled(f.Enabled) }

// Compiled returns the parsed document template. It is only set on formats
// that passed validation.
func (f *ExportFormat) Compiled() *template.Template { return f.tmpl }

func (f *ExportFormat) validate(vc *validationContext) []ValidationError {
	var errs []ValidationError
	if f.Name == "" {
		errs = append(errs, vc.fieldErr(f.ID, "name", "is required"))
	}
	if strings.TrimSpace(f.Template) == "" {
		errs = append(errs, vc.fieldErr(f.ID, "template", "is required"))
	} else {
		t, err := template.New(f.ID).Funcs(ExportFuncs).Parse(f.Template)
		if err != nil {
			errs = append(errs, vc.fieldErr(f.ID, "template", err.Error()))
		} else {
			f.tmpl = t
		}
	}
	for _, c := range f.Categories {
		if !vc.categories[c] {
			errs = append(errs, vc.fieldErr(f.ID, "categories", fmt.Sprintf("unknown category %q", c)))
		}
	}
	return errs
}

type Condition string

const (
	// ConditionValueDiffers matches any change of value.
	ConditionValueDiffers Condition = "value_differs"
	// ConditionMutuallyExclusive matches when both values are distinct members of Values.
	ConditionMutuallyExclusive Condition = "mutually_exclusive"
	// ConditionContainsAny matches when the new value mentions any of Values.
	ConditionContainsAny Condition = "contains_any"
	// ConditionNumericChange matches when both values are numbers whose relative
	// change is at least Threshold.
	ConditionNumericChange Condition = "numeric_change"
)

func ValidCondition(c string) bool {
	switch Condition(c) {
	case ConditionValueDiffers, ConditionMutuallyExclusive, ConditionContainsAny, ConditionNumericChange:
		return true
	}
	return false
}

type ConflictRule struct {
	ID              string          `yaml:"id" json:"id"`
	Category        string          `yaml:"category" json:"category"`
	Key             string          `yaml:"key,omitempty" json:"key,omitempty"`
	Severity        domain.Severity `yaml:"severity" json:"severity"`
	Condition       Condition       `yaml:"condition" json:"condition"`
	Values          []string        `yaml:"values,omitempty" json:"values,omitempty"`
	Threshold       float64         `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	MessageTemplate string          `yaml:"message_template" json:"message_template"`
	Tags            []string        `yaml:"tags,omitempty" json:"tags,omitempty"`
	Enabled         *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	msg *template.Template
}

func (r *ConflictRule) TemplateID() string                { return r.ID }
func (r *ConflictRule) TemplateCategory() string          { return r.Category }
func (r *ConflictRule) TemplateSeverity() domain.Severity { return r.Severity }
func (r *ConflictRule) TemplateTags() []string            { return r.Tags }
func (r *ConflictRule) IsEnabled() bool                   { return enabled(r.Enabled) }

// KeyPattern returns the key glob, defaulting to every key.
func (r *ConflictRule) KeyPattern() string {
	if r.Key == "" {
		return "*"
	}
	return r.Key
}

func (r *ConflictRule) validate(vc *validationContext) []ValidationError {
	var errs []ValidationError
	errs = append(errs, vc.patternErrs(r.ID, "category", r.Category)...)
	if !isValidPattern(r.KeyPattern()) {
		errs = append(errs, vc.fieldErr(r.ID, "key", fmt.Sprintf("invalid pattern %q", r.Key)))
	}
	if !domain.ValidSeverity(string(r.Severity)) {
		errs = append(errs, vc.fieldErr(r.ID, "severity", fmt.Sprintf("invalid severity %q", r.Severity)))
	}
	if !ValidCondition(string(r.Condition)) {
		errs = append(errs, vc.fieldErr(r.ID, "condition", fmt.Sprintf("invalid condition %q", r.Condition)))
	}
	switch r.Condition {
	case ConditionMutuallyExclusive:
		if len(r.Values) < 2 {
			errs = append(errs, vc.fieldErr(r.ID, "values", "mutually_exclusive needs at least two values"))
		}
	case ConditionContainsAny:
		if len(r.Values) == 0 {
			errs = append(errs, vc.fieldErr(r.ID, "values", "contains_any needs at least one value"))
		}
	case ConditionNumericChange:
		if r.Threshold <= 0 {
			errs = append(errs, vc.fieldErr(r.ID, "threshold", "numeric_change needs a positive threshold"))
		}
	}
	if strings.TrimSpace(r.MessageTemplate) == "" {
		errs = append(errs, vc.fieldErr(r.ID, "message_template", "is required"))
	} else {
		t, err := template.New(r.ID).Option("missingkey=error").Parse(r.MessageTemplate)
		if err != nil {
			errs = append(errs, vc.fieldErr(r.ID, "message_template", err.Error()))
		} else {
			r.msg = t
		}
	}
	return errs
}

type AnalyzerKind string

const (
	AnalyzerRequiredKeys  AnalyzerKind = "required_keys"
	AnalyzerMinConfidence AnalyzerKind = "min_confidence"
	AnalyzerVagueTerms    AnalyzerKind = "vague_terms"
	AnalyzerMinStatements AnalyzerKind = "min_statements"
)

func ValidAnalyzerKind(k string) bool {
	switch AnalyzerKind(k) {
	case AnalyzerRequiredKeys, AnalyzerMinConfidence, AnalyzerVagueTerms, AnalyzerMinStatements:
		return true
	}
	return false
}

type AnalyzerParams struct {
	Keys      []string `yaml:"keys,omitempty" json:"keys,omitempty"`
	Threshold float64  `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Terms     []string `yaml:"terms,omitempty" json:"terms,omitempty"`
	Count     int      `yaml:"count,omitempty" json:"count,omitempty"`
}

// QualityAnalyzer inspects the current statements of a category and reports findings.
type QualityAnalyzer struct {
	ID       string          `yaml:"id" json:"id"`
	Name     string          `yaml:"name" json:"name"`
	Category string          `yaml:"category" json:"category"`
	Kind     AnalyzerKind    `yaml:"kind" json:"kind"`
	Params   AnalyzerParams  `yaml:"params,omitempty" json:"params,omitempty"`
	Severity domain.Severity `yaml:"severity" json:"severity"`
	Message  string          `yaml:"message,omitempty" json:"message,omitempty"`
	Tags     []string        `yaml:"tags,omitempty" json:"tags,omitempty"`
	Enabled  *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

func (a *QualityAnalyzer) TemplateID() string                { return a.ID }
func (a *QualityAnalyzer) TemplateCategory() string          { return a.Category }
func (a *QualityAnalyzer) TemplateSeverity() domain.Severity { return a.Severity }
func (a *QualityAnalyzer) TemplateTags() []string            { return a.Tags }
func (a *QualityAnalyzer) IsEnabled() bool                   { return enabled(a.Enabled) }

func (a *QualityAnalyzer) validate(vc *validationContext) []ValidationError {
	var errs []ValidationError
	if a.Name == "" {
		errs = append(errs, vc.fieldErr(a.ID, "name", "is required"))
	}
	errs = append(errs, vc.patternErrs(a.ID, "category", a.Category)...)
	if !domain.ValidSeverity(string(a.Severity)) {
		errs = append(errs, vc.fieldErr(a.ID, "severity", fmt.Sprintf("invalid severity %q", a.Severity)))
	}
	if !ValidAnalyzerKind(string(a.Kind)) {
		errs = append(errs, vc.fieldErr(a.ID, "kind", fmt.Sprintf("invalid kind %q", a.Kind)))
	}
	switch a.Kind {
	case AnalyzerRequiredKeys:
		if len(a.Params.Keys) == 0 {
			errs = append(errs, vc.fieldErr(a.ID, "params.keys", "required_keys needs at least one key"))
		}
	case AnalyzerMinConfidence:
		if a.Params.Threshold <= 0 || a.Params.Threshold > 1 {
			errs = append(errs, vc.fieldErr(a.ID, "params.threshold", "must be in (0, 1]"))
		}
	case AnalyzerVagueTerms:
		if len(a.Params.Terms) == 0 {
			errs = append(errs, vc.fieldErr(a.ID, "params.terms", "vague_terms needs at least one term"))
		}
	case AnalyzerMinStatements:
		if a.Params.Count <= 0 {
			errs = append(errs, vc.fieldErr(a.ID, "params.count", "must be positive"))
		}
	}
	return errs
}

func enabled(b *bool) bool {
	return b == nil || *b
}

// ExportFuncs are available inside export format templates.
var ExportFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join":  strings.Join,
	"title": func(s string) string {
		s = strings.ReplaceAll(s, "_", " ")
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"pct": func(f float64) string { return fmt.Sprintf("%.0f%%", f) },
}

package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"gopkg.in/yaml.v3"
)

// Subsystem names double as the top-level key of each collection file.
const (
	SubsystemQuestions        = "questions"
	SubsystemExportFormats    = "export_formats"
	SubsystemConflictRules    = "conflict_rules"
	SubsystemQualityAnalyzers = "quality_analyzers"
)

// Filter selects records from an engine. Zero fields match everything.
type Filter struct {
	Category    string
	Severity    domain.Severity
	Tag         string
	EnabledOnly bool
}

func (f Filter) match(t Template) bool {
	if f.EnabledOnly && !t.IsEnabled() {
		return false
	}
	if f.Category != "" {
		c := t.TemplateCategory()
		if c != f.Category && !matchPattern(c, f.Category) {
			return false
		}
	}
	if f.Severity != "" && t.TemplateSeverity() != f.Severity {
		return false
	}
	if f.Tag != "" && !slices.Contains(t.TemplateTags(), f.Tag) {
		return false
	}
	return true
}

// Engine holds one declarative collection of a domain: parsed from YAML,
// converted to typed records, validated, and indexed by id.
type Engine[T Template] struct {
	subsystem string
	items     []T
	index     map[string]T
}

func NewEngine[T Template](subsystem string, items ...T) *Engine[T] {
	e := &Engine[T]{subsystem: subsystem}
	e.set(items)
	return e
}

func (e *Engine[T]) set(items []T) {
	e.items = items
	e.index = make(map[string]T, len(items))
	for _, it := range items {
		if _, dup := e.index[it.TemplateID()]; !dup {
			e.index[it.TemplateID()] = it
		}
	}
}

func (e *Engine[T]) Subsystem() string { return e.subsystem }

// Load decodes a collection document. Unknown fields are rejected so a typo in
// a rule never silently disables it.
func (e *Engine[T]) Load(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		e.set(nil)
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc map[string][]T
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", e.subsystem, err)
	}
	for k := range doc {
		if k != e.subsystem {
			return fmt.Errorf("parse %s: unexpected top-level key %q", e.subsystem, k)
		}
	}
	e.set(doc[e.subsystem])
	return nil
}

// Marshal returns the collection in its on-disk form.
func (e *Engine[T]) Marshal() ([]byte, error) {
	items := e.items
	if items == nil {
		items = []T{}
	}
	return yaml.Marshal(map[string][]T{e.subsystem: items})
}

// Unmarshal replaces the collection from its serialized form. It is the
// inverse of Marshal; callers must re-run validation afterwards.
func (e *Engine[T]) Unmarshal(data []byte) error {
	return e.Load(data)
}

func (e *Engine[T]) All() []T {
	return e.items
}

func (e *Engine[T]) Len() int {
	return len(e.items)
}

func (e *Engine[T]) Get(id string) (T, bool) {
	t, ok := e.index[id]
	return t, ok
}

// Filter returns matching records ordered by id.
func (e *Engine[T]) Filter(f Filter) []T {
	var out []T
	for _, it := range e.items {
		if f.match(it) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TemplateID() < out[j].TemplateID() })
	return out
}

// Validate checks required ids, duplicates, and each record's own constraints.
func (e *Engine[T]) Validate(vc *validationContext) []ValidationError {
	sub := *vc
	sub.subsystem = e.subsystem

	var errs []ValidationError
	seen := make(map[string]bool, len(e.items))
	for i, it := range e.items {
		id := it.TemplateID()
		if id == "" {
			errs = append(errs, sub.fieldErr(fmt.Sprintf("#%d", i), "id", "is required"))
			continue
		}
		if seen[id] {
			errs = append(errs, sub.fieldErr(id, "id", "duplicate id"))
			continue
		}
		seen[id] = true
		errs = append(errs, it.validate(&sub)...)
	}
	return errs
}

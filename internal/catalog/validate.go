package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidationError describes one problem found while validating a domain.
type ValidationError struct {
	Domain    string `json:"domain"`
	Subsystem string `json:"subsystem"`
	ID        string `json:"id,omitempty"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
}

func (e ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Domain)
	if e.Subsystem != "" {
		b.WriteString("/" + e.Subsystem)
	}
	if e.ID != "" {
		b.WriteString("[" + e.ID + "]")
	}
	if e.Field != "" {
		b.WriteString("." + e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors is returned when a domain is rejected at load time.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(errs), strings.Join(msgs, "; "))
}

type validationContext struct {
	domain     string
	subsystem  string
	categories map[string]bool
	questions  map[string]bool
}

func (vc *validationContext) fieldErr(id, field, msg string) ValidationError {
	return ValidationError{Domain: vc.domain, Subsystem: vc.subsystem, ID: id, Field: field, Message: msg}
}

// patternErrs checks a category glob: it must be well formed and match at
// least one declared category, otherwise the rule could never fire.
func (vc *validationContext) patternErrs(id, field, pattern string) []ValidationError {
	if pattern == "" {
		return []ValidationError{vc.fieldErr(id, field, "is required")}
	}
	if !isValidPattern(pattern) {
		return []ValidationError{vc.fieldErr(id, field, fmt.Sprintf("invalid pattern %q", pattern))}
	}
	for c := range vc.categories {
		if matchPattern(pattern, c) {
			return nil
		}
	}
	return []ValidationError{vc.fieldErr(id, field, fmt.Sprintf("pattern %q matches no declared category", pattern))}
}

func isValidPattern(p string) bool {
	return doublestar.ValidatePattern(p)
}

func matchPattern(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// dependencyCycles returns one error per distinct cycle in the depends_on graph.
func dependencyCycles(vc *validationContext, questions []*Question) []ValidationError {
	deps := make(map[string][]string, len(questions))
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		if _, dup := deps[q.ID]; dup {
			continue
		}
		deps[q.ID] = q.DependsOn
		ids = append(ids, q.ID)
	}
	sort.Strings(ids)

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(ids))
	var stack []string
	var errs []ValidationError

	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range deps[id] {
			if _, known := deps[dep]; !known || dep == id {
				continue
			}
			switch color[dep] {
			case white:
				visit(dep)
			case grey:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), dep)
				errs = append(errs, vc.fieldErr(dep, "depends_on", "circular dependency: "+strings.Join(cycle, " -> ")))
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range ids {
		if color[id] == white {
			visit(id)
		}
	}
	return errs
}

package catalog

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RuleInput is the pair of values a conflict rule is evaluated against. It is
// also the data passed to the rule's message template.
type RuleInput struct {
	Category string
	Key      string
	OldValue string
	NewValue string
}

// Matches reports whether the rule fires for the value change in in.
func (r *ConflictRule) Matches(in RuleInput) bool {
	oldV := strings.TrimSpace(in.OldValue)
	newV := strings.TrimSpace(in.NewValue)
	if strings.EqualFold(oldV, newV) {
		return false
	}

	switch r.Condition {
	case ConditionValueDiffers:
		return true
	case ConditionMutuallyExclusive:
		return r.hasValue(oldV) && r.hasValue(newV)
	case ConditionContainsAny:
		lower := strings.ToLower(newV)
		for _, v := range r.Values {
			if v != "" && strings.Contains(lower, strings.ToLower(v)) {
				return true
			}
		}
		return false
	case ConditionNumericChange:
		a, errA := strconv.ParseFloat(oldV, 64)
		b, errB := strconv.ParseFloat(newV, 64)
		if errA != nil || errB != nil {
			return false
		}
		if a == 0 {
			return b != 0
		}
		return math.Abs(b-a)/math.Abs(a) >= r.Threshold
	}
	return false
}

func (r *ConflictRule) hasValue(v string) bool {
	for _, c := range r.Values {
		if strings.EqualFold(strings.TrimSpace(c), v) {
			return true
		}
	}
	return false
}

// RenderMessage executes the rule's message template. It falls back to a
// generic message for rules that were never validated.
func (r *ConflictRule) RenderMessage(in RuleInput) (string, error) {
	if r.msg == nil {
		return fmt.Sprintf("%s.%s changed from %q to %q", in.Category, in.Key, in.OldValue, in.NewValue), nil
	}
	var buf bytes.Buffer
	if err := r.msg.Execute(&buf, in); err != nil {
		return "", fmt.Errorf("render rule %s: %w", r.ID, err)
	}
	return buf.String(), nil
}

// StrongestRule evaluates rules in order and returns the matching rule with
// the highest severity. Ties go to the lowest id.
func StrongestRule(rules []*ConflictRule, in RuleInput) *ConflictRule {
	var best *ConflictRule
	for _, r := range rules {
		if !r.IsEnabled() || !r.Matches(in) {
			continue
		}
		switch {
		case best == nil:
			best = r
		case r.Severity.Rank() > best.Severity.Rank():
			best = r
		case r.Severity.Rank() == best.Severity.Rank() && r.ID < best.ID:
			best = r
		}
	}
	return best
}

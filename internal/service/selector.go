package service

import (
	"sort"

	"github.com/Harshitk-cp/speclens/internal/catalog"
	"github.com/Harshitk-cp/speclens/internal/domain"
)

// Reasons reported when no question is returned.
const (
	ReasonFullyCovered = "all categories are fully covered"
	ReasonNoSelectable = "no selectable question remains; answer prerequisites or add questions to the domain"
)

// NoFurtherQuestion is the normal end of elicitation, not an error.
type NoFurtherQuestion struct {
	Reason string       `json:"reason"`
	Gaps   []domain.Gap `json:"gaps,omitempty"`
}

// Selection is the outcome of SelectQuestion: exactly one of Question and
// Done is set.
type Selection struct {
	Question *catalog.Question `json:"question,omitempty"`
	Done     *NoFurtherQuestion `json:"done,omitempty"`
	// Category is the lowest-coverage category still below 100, even when
	// no templated question remains in it.
	Category string `json:"category,omitempty"`
}

// SelectQuestion picks the next question. Categories are visited from the
// lowest score up; the first category with a selectable question wins.
func SelectQuestion(d *catalog.Domain, m *domain.MaturityRecord, answered, askedInSession map[string]bool) Selection {
	type catScore struct {
		id    string
		score float64
	}
	cats := make([]catScore, 0, len(d.Categories))
	for _, id := range d.CategoryIDs() {
		cats = append(cats, catScore{id: id, score: m.PerCategory[id]})
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].score != cats[j].score {
			return cats[i].score < cats[j].score
		}
		return cats[i].id < cats[j].id
	})

	var lowest string
	for _, c := range cats {
		if c.score >= 100 {
			continue
		}
		if lowest == "" {
			lowest = c.id
		}
		if q := pickInCategory(d, c.id, answered, askedInSession); q != nil {
			return Selection{Question: q, Category: c.id}
		}
	}

	if lowest == "" {
		return Selection{Done: &NoFurtherQuestion{Reason: ReasonFullyCovered}}
	}
	return Selection{
		Done:     &NoFurtherQuestion{Reason: ReasonNoSelectable, Gaps: m.Gaps(d.CategoryIDs())},
		Category: lowest,
	}
}

func pickInCategory(d *catalog.Domain, category string, answered, askedInSession map[string]bool) *catalog.Question {
	var candidates []*catalog.Question
	for _, q := range d.Questions.Filter(catalog.Filter{Category: category, EnabledOnly: true}) {
		if q.Category != category || answered[q.ID] || !dependenciesMet(q, answered) {
			continue
		}
		candidates = append(candidates, q)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if askedA, askedB := askedInSession[a.ID], askedInSession[b.ID]; askedA != askedB {
			return !askedA
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
	return candidates[0]
}

func dependenciesMet(q *catalog.Question, answered map[string]bool) bool {
	for _, dep := range q.DependsOn {
		if !answered[dep] {
			return false
		}
	}
	return true
}

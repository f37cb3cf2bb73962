package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// MaturityRecord is a derived cache of completeness scores. It is never edited
// directly; it is recomputed from the live statement set.
type MaturityRecord struct {
	ProjectID   uuid.UUID          `json:"project_id"`
	DomainID    string             `json:"domain_id"`
	PerCategory map[string]float64 `json:"per_category"`
	Overall     float64            `json:"overall"`
	ComputedAt  time.Time          `json:"computed_at"`
}

// Gap describes the missing coverage in a single category.
type Gap struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Gaps returns the categories below full coverage, lowest first.
func (m *MaturityRecord) Gaps(order []string) []Gap {
	var gaps []Gap
	for _, c := range order {
		if s, ok := m.PerCategory[c]; ok && s < 100 {
			gaps = append(gaps, Gap{Category: c, Score: s})
		}
	}
	sort.SliceStable(gaps, func(i, j int) bool { return gaps[i].Score < gaps[j].Score })
	return gaps
}

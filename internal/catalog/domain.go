package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// MetaFile is the file that marks a directory as a domain.
const MetaFile = "domain.yaml"

// Meta is the content of domain.yaml.
type Meta struct {
	ID          string     `yaml:"id" json:"id"`
	Version     string     `yaml:"version" json:"version"`
	Name        string     `yaml:"name,omitempty" json:"name,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Categories  []Category `yaml:"categories" json:"categories"`
}

// Domain is a validated, immutable bundle of the four template engines.
type Domain struct {
	Meta
	Questions        *Engine[*Question]
	ExportFormats    *Engine[*ExportFormat]
	ConflictRules    *Engine[*ConflictRule]
	QualityAnalyzers *Engine[*QualityAnalyzer]

	dir        string
	categories map[string]Category
}

// Parts groups the collections used to assemble a domain in code.
type Parts struct {
	Questions        []*Question
	ExportFormats    []*ExportFormat
	ConflictRules    []*ConflictRule
	QualityAnalyzers []*QualityAnalyzer
}

// New assembles and validates a domain. It fails with ValidationErrors when
// any record is invalid; no partially valid domain is ever returned.
func New(meta Meta, parts Parts) (*Domain, error) {
	d := &Domain{
		Meta:             meta,
		Questions:        NewEngine(SubsystemQuestions, parts.Questions...),
		ExportFormats:    NewEngine(SubsystemExportFormats, parts.ExportFormats...),
		ConflictRules:    NewEngine(SubsystemConflictRules, parts.ConflictRules...),
		QualityAnalyzers: NewEngine(SubsystemQualityAnalyzers, parts.QualityAnalyzers...),
	}
	if errs := d.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return d, nil
}

// Validate runs every check over the domain and returns all problems found.
func (d *Domain) Validate() []ValidationError {
	vc := &validationContext{
		domain:     d.ID,
		categories: make(map[string]bool, len(d.Categories)),
		questions:  make(map[string]bool, d.Questions.Len()),
	}

	var errs []ValidationError
	metaErr := func(field, msg string) {
		errs = append(errs, ValidationError{Domain: d.ID, Subsystem: "domain", Field: field, Message: msg})
	}
	if d.ID == "" {
		metaErr("id", "is required")
	}
	if d.Version == "" {
		metaErr("version", "is required")
	}
	if len(d.Categories) == 0 {
		metaErr("categories", "at least one category is required")
	}
	var totalWeight float64
	for i, c := range d.Categories {
		if c.ID == "" {
			metaErr(fmt.Sprintf("categories[%d].id", i), "is required")
			continue
		}
		if vc.categories[c.ID] {
			metaErr("categories", fmt.Sprintf("duplicate category %q", c.ID))
			continue
		}
		vc.categories[c.ID] = true
		if c.Weight != nil && *c.Weight < 0 {
			metaErr(fmt.Sprintf("categories[%s].weight", c.ID), "must not be negative")
		}
		if c.ExpectedCount != nil && *c.ExpectedCount <= 0 {
			metaErr(fmt.Sprintf("categories[%s].expected_count", c.ID), "must be positive")
		}
		totalWeight += categoryWeight(c)
	}
	if len(d.Categories) > 0 && totalWeight <= 0 {
		metaErr("categories", "at least one category needs a positive weight")
	}

	for _, q := range d.Questions.All() {
		vc.questions[q.ID] = true
	}

	errs = append(errs, d.Questions.Validate(vc)...)
	qc := *vc
	qc.subsystem = SubsystemQuestions
	errs = append(errs, dependencyCycles(&qc, d.Questions.All())...)
	errs = append(errs, d.ExportFormats.Validate(vc)...)
	errs = append(errs, d.ConflictRules.Validate(vc)...)
	errs = append(errs, d.QualityAnalyzers.Validate(vc)...)

	if len(errs) == 0 {
		d.categories = make(map[string]Category, len(d.Categories))
		for _, c := range d.Categories {
			d.categories[c.ID] = c
		}
	}
	return errs
}

// Dir is the directory the domain was loaded from, empty for in-code domains.
func (d *Domain) Dir() string { return d.dir }

func (d *Domain) CategoryIDs() []string {
	ids := make([]string, len(d.Categories))
	for i, c := range d.Categories {
		ids[i] = c.ID
	}
	return ids
}

func (d *Domain) HasCategory(id string) bool {
	_, ok := d.categories[id]
	return ok
}

// Weight returns the category weight used for the overall maturity score.
func (d *Domain) Weight(category string) float64 {
	c, ok := d.categories[category]
	if !ok {
		return 0
	}
	return categoryWeight(c)
}

// ExpectedCount returns how many full-confidence statements make a category
// complete: the configured value, otherwise the number of enabled questions
// in the category, never less than one.
func (d *Domain) ExpectedCount(category string) int {
	if c, ok := d.categories[category]; ok && c.ExpectedCount != nil {
		return *c.ExpectedCount
	}
	n := len(d.Questions.Filter(Filter{Category: category, EnabledOnly: true}))
	if n < 1 {
		n = 1
	}
	return n
}

// Question looks up an enabled or disabled question by id.
func (d *Domain) Question(id string) (*Question, bool) {
	return d.Questions.Get(id)
}

// RulesFor returns the enabled conflict rules whose category and key patterns
// match the slot, ordered by id.
func (d *Domain) RulesFor(category, key string) []*ConflictRule {
	var out []*ConflictRule
	for _, r := range d.ConflictRules.Filter(Filter{EnabledOnly: true}) {
		if matchPattern(r.Category, category) && matchPattern(r.KeyPattern(), key) {
			out = append(out, r)
		}
	}
	return out
}

// AnalyzersFor returns enabled quality analyzers matching the category.
func (d *Domain) AnalyzersFor(category string) []*QualityAnalyzer {
	return d.QualityAnalyzers.Filter(Filter{Category: category, EnabledOnly: true})
}

func categoryWeight(c Category) float64 {
	if c.Weight == nil {
		return 1
	}
	return *c.Weight
}

var collectionFiles = map[string]string{
	SubsystemQuestions:        "questions.yaml",
	SubsystemExportFormats:    "export_formats.yaml",
	SubsystemConflictRules:    "conflict_rules.yaml",
	SubsystemQualityAnalyzers: "quality_analyzers.yaml",
}

// LoadDir reads a domain directory. The four collections are parsed
// concurrently; the assembled domain is validated before it is returned.
func LoadDir(ctx context.Context, dir string) (*Domain, error) {
	meta, err := ReadMeta(dir)
	if err != nil {
		return nil, err
	}

	d := &Domain{
		Meta:             *meta,
		Questions:        NewEngine[*Question](SubsystemQuestions),
		ExportFormats:    NewEngine[*ExportFormat](SubsystemExportFormats),
		ConflictRules:    NewEngine[*ConflictRule](SubsystemConflictRules),
		QualityAnalyzers: NewEngine[*QualityAnalyzer](SubsystemQualityAnalyzers),
		dir:              dir,
	}

	loaders := map[string]func([]byte) error{
		SubsystemQuestions:        d.Questions.Load,
		SubsystemExportFormats:    d.ExportFormats.Load,
		SubsystemConflictRules:    d.ConflictRules.Load,
		SubsystemQualityAnalyzers: d.QualityAnalyzers.Load,
	}

	g, ctx := errgroup.WithContext(ctx)
	for sub, load := range loaders {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := readOptional(filepath.Join(dir, collectionFiles[sub]))
			if err != nil {
				return err
			}
			if err := load(data); err != nil {
				return ValidationErrors{{Domain: meta.ID, Subsystem: sub, Message: err.Error()}}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if errs := d.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return d, nil
}

// ReadMeta parses domain.yaml in dir.
func ReadMeta(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, fmt.Errorf("read domain meta: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var meta Meta
	if err := dec.Decode(&meta); err != nil {
		return nil, ValidationErrors{{Domain: filepath.Base(dir), Subsystem: "domain", Message: "parse domain.yaml: " + err.Error()}}
	}
	meta.ID = strings.TrimSpace(meta.ID)
	return &meta, nil
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// sortedKeys returns map keys in a stable order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/speclens/internal/catalog"
	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/Harshitk-cp/speclens/internal/llm"
	"github.com/Harshitk-cp/speclens/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memDB is an in-memory backing for every store interface. Transactions are
// serialized and roll back statements and conflicts on error.
type memDB struct {
	mu         sync.Mutex
	txMu       sync.Mutex
	projects   map[uuid.UUID]domain.Project
	sessions   map[uuid.UUID]domain.Session
	answers    []domain.Answer
	generated  map[string]domain.GeneratedQuestion
	statements map[uuid.UUID]domain.Statement
	conflicts  map[uuid.UUID]domain.ConflictRecord
	order      []uuid.UUID
	maturity   map[uuid.UUID]domain.MaturityRecord
	txCount    int
}

func newMemDB() *memDB {
	return &memDB{
		projects:   make(map[uuid.UUID]domain.Project),
		sessions:   make(map[uuid.UUID]domain.Session),
		generated:  make(map[string]domain.GeneratedQuestion),
		statements: make(map[uuid.UUID]domain.Statement),
		conflicts:  make(map[uuid.UUID]domain.ConflictRecord),
		maturity:   make(map[uuid.UUID]domain.MaturityRecord),
	}
}

type fakeProjects struct{ db *memDB }

func (f fakeProjects) Create(_ context.Context, p *domain.Project) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.projects[p.ID]; ok {
		return store.ErrConflict
	}
	f.db.projects[p.ID] = *p
	return nil
}

func (f fakeProjects) GetByID(_ context.Context, id uuid.UUID) (*domain.Project, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (f fakeProjects) List(_ context.Context) ([]domain.Project, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []domain.Project
	for _, p := range f.db.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f fakeProjects) UpdatePhase(_ context.Context, id uuid.UUID, from, to domain.Phase) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.projects[id]
	if !ok {
		return store.ErrNotFound
	}
	if p.Phase != from {
		return store.ErrPhaseChanged
	}
	p.Phase = to
	f.db.projects[id] = p
	return nil
}

type fakeSessions struct{ db *memDB }

func (f fakeSessions) Create(_ context.Context, s *domain.Session) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.sessions[s.ID] = *s
	return nil
}

func (f fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	s.AskedQuestionIDs = append([]string(nil), s.AskedQuestionIDs...)
	return &s, nil
}

func (f fakeSessions) RecordAsked(_ context.Context, sessionID uuid.UUID, questionID string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	if !s.HasAsked(questionID) {
		s.AskedQuestionIDs = append(s.AskedQuestionIDs, questionID)
	}
	f.db.sessions[sessionID] = s
	return nil
}

func (f fakeSessions) RecordAnswer(_ context.Context, a *domain.Answer) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.answers = append(f.db.answers, *a)
	return nil
}

func (f fakeSessions) AnsweredQuestionIDs(_ context.Context, projectID uuid.UUID) ([]string, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, a := range f.db.answers {
		if a.ProjectID == projectID && !seen[a.QuestionID] {
			seen[a.QuestionID] = true
			out = append(out, a.QuestionID)
		}
	}
	return out, nil
}

func (f fakeSessions) SaveGeneratedQuestion(_ context.Context, q *domain.GeneratedQuestion) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.generated[q.ID] = *q
	return nil
}

func (f fakeSessions) GetGeneratedQuestion(_ context.Context, projectID uuid.UUID, id string) (*domain.GeneratedQuestion, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	q, ok := f.db.generated[id]
	if !ok || q.ProjectID != projectID {
		return nil, store.ErrNotFound
	}
	return &q, nil
}

type fakeStatements struct{ db *memDB }

func (f fakeStatements) Create(_ context.Context, s *domain.Statement) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.statements[s.ID]; ok {
		return store.ErrConflict
	}
	if s.Status == domain.StatusCurrent && f.currentLocked(s.ProjectID, s.Category, s.Key) != nil {
		return store.ErrConflict
	}
	f.db.statements[s.ID] = *s
	return nil
}

func (f fakeStatements) currentLocked(projectID uuid.UUID, category, key string) *domain.Statement {
	for _, s := range f.db.statements {
		if s.ProjectID == projectID && s.Category == category && s.Key == key && s.Status == domain.StatusCurrent {
			return &s
		}
	}
	return nil
}

func (f fakeStatements) GetByID(_ context.Context, id uuid.UUID) (*domain.Statement, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.statements[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (f fakeStatements) GetCurrent(_ context.Context, projectID uuid.UUID, category, key string) (*domain.Statement, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if s := f.currentLocked(projectID, category, key); s != nil {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (f fakeStatements) ListCurrent(ctx context.Context, projectID uuid.UUID) ([]domain.Statement, error) {
	current := domain.StatusCurrent
	return f.List(ctx, projectID, domain.StatementQuery{Status: &current})
}

func (f fakeStatements) List(_ context.Context, projectID uuid.UUID, q domain.StatementQuery) ([]domain.Statement, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []domain.Statement
	for _, s := range f.db.statements {
		if s.ProjectID != projectID ||
			(q.Status != nil && s.Status != *q.Status) ||
			(q.Category != "" && s.Category != q.Category) ||
			(q.Key != "" && s.Key != q.Key) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out, nil
}

func (f fakeStatements) Supersede(_ context.Context, oldID uuid.UUID, next *domain.Statement) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	old, ok := f.db.statements[oldID]
	if !ok {
		return store.ErrNotFound
	}
	if old.Status != domain.StatusCurrent {
		return store.ErrConflict
	}
	now := time.Now().UTC()
	old.Status = domain.StatusSuperseded
	old.SupersededAt = &now
	old.SupersededBy = &next.ID
	f.db.statements[oldID] = old

	n := *next
	n.Status = domain.StatusCurrent
	f.db.statements[n.ID] = n
	return nil
}

func (f fakeStatements) Promote(_ context.Context, id uuid.UUID, version int) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.statements[id]
	if !ok {
		return store.ErrNotFound
	}
	if f.currentLocked(s.ProjectID, s.Category, s.Key) != nil {
		return store.ErrConflict
	}
	s.Status = domain.StatusCurrent
	s.Version = version
	f.db.statements[id] = s
	return nil
}

func (f fakeStatements) Reject(_ context.Context, id uuid.UUID, by uuid.UUID) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.statements[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	s.Status = domain.StatusSuperseded
	s.SupersededAt = &now
	s.SupersededBy = &by
	f.db.statements[id] = s
	return nil
}

type fakeConflicts struct{ db *memDB }

func (f fakeConflicts) Create(_ context.Context, c *domain.ConflictRecord) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.conflicts[c.ID] = *c
	f.db.order = append(f.db.order, c.ID)
	return nil
}

func (f fakeConflicts) GetByID(_ context.Context, id uuid.UUID) (*domain.ConflictRecord, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.conflicts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (f fakeConflicts) List(_ context.Context, projectID uuid.UUID, q domain.ConflictQuery) ([]domain.ConflictRecord, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []domain.ConflictRecord{}
	for _, id := range f.db.order {
		c, ok := f.db.conflicts[id]
		if !ok || c.ProjectID != projectID ||
			(q.Status != nil && c.Status != *q.Status) ||
			(q.Severity != nil && c.Severity != *q.Severity) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f fakeConflicts) CountBlocking(_ context.Context, projectID uuid.UUID) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	n := 0
	for _, c := range f.db.conflicts {
		if c.ProjectID == projectID && c.Blocking() {
			n++
		}
	}
	return n, nil
}

func (f fakeConflicts) FindUnresolved(_ context.Context, projectID uuid.UUID, category, key string) ([]domain.ConflictRecord, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []domain.ConflictRecord
	for _, id := range f.db.order {
		c, ok := f.db.conflicts[id]
		if ok && c.ProjectID == projectID && c.Category == category && c.Key == key && c.Status == domain.ConflictUnresolved {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f fakeConflicts) Resolve(_ context.Context, id uuid.UUID, r domain.Resolution) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.conflicts[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.Status == domain.ConflictResolved {
		return store.ErrAlreadyResolved
	}
	c.Status = domain.ConflictResolved
	c.Resolution = &r
	f.db.conflicts[id] = c
	return nil
}

type fakeMaturity struct{ db *memDB }

func (f fakeMaturity) Upsert(_ context.Context, m *domain.MaturityRecord) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.maturity[m.ProjectID] = *m
	return nil
}

func (f fakeMaturity) Get(_ context.Context, projectID uuid.UUID) (*domain.MaturityRecord, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	m, ok := f.db.maturity[projectID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

type fakeTx struct{ db *memDB }

func (t fakeTx) Projects() domain.ProjectStore     { return fakeProjects{t.db} }
func (t fakeTx) Statements() domain.StatementStore { return fakeStatements{t.db} }
func (t fakeTx) Conflicts() domain.ConflictStore   { return fakeConflicts{t.db} }

type fakeTxManager struct{ db *memDB }

func (m fakeTxManager) WithProjectTx(ctx context.Context, _ uuid.UUID, fn func(tx domain.Tx) error) error {
	m.db.txMu.Lock()
	defer m.db.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	m.db.mu.Lock()
	m.db.txCount++
	stmts := make(map[uuid.UUID]domain.Statement, len(m.db.statements))
	for k, v := range m.db.statements {
		stmts[k] = v
	}
	confs := make(map[uuid.UUID]domain.ConflictRecord, len(m.db.conflicts))
	for k, v := range m.db.conflicts {
		confs[k] = v
	}
	order := append([]uuid.UUID(nil), m.db.order...)
	m.db.mu.Unlock()

	if err := fn(fakeTx{m.db}); err != nil {
		m.db.mu.Lock()
		m.db.statements, m.db.conflicts, m.db.order = stmts, confs, order
		m.db.mu.Unlock()
		return err
	}
	return nil
}

type staticDomains map[string]*catalog.Domain

func (s staticDomains) Get(_ context.Context, id string) (*catalog.Domain, error) {
	d, ok := s[id]
	if !ok {
		return nil, domain.NotFoundf("domain %q not found", id)
	}
	return d, nil
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

// testDomain has two categories, goals (expected 2) and tech_stack
// (expected 2), with an error rule on the database key, a warning rule on
// language, and an info rule on hosting.
func testDomain(t *testing.T) *catalog.Domain {
	t.Helper()
	d, err := catalog.New(catalog.Meta{
		ID:      "software",
		Version: "1.0.0",
		Name:    "Software Project",
		Categories: []catalog.Category{
			{ID: "goals", Name: "Goals", ExpectedCount: intp(2)},
			{ID: "tech_stack", Name: "Tech Stack", ExpectedCount: intp(2)},
		},
	}, catalog.Parts{
		Questions: []*catalog.Question{
			{ID: "goals-problem", Text: "What problem does it solve?", Category: "goals", Priority: 1},
			{ID: "goals-success", Text: "How is success measured?", Category: "goals", Priority: 2, DependsOn: []string{"goals-problem"}},
			{ID: "tech-database", Text: "Which database?", Category: "tech_stack", Priority: 1},
		},
		ExportFormats: []*catalog.ExportFormat{
			{ID: "markdown", Name: "Markdown", MediaType: "text/markdown", Extension: "md",
				Template: "# {{.Project.Name}} ({{pct .Maturity.Overall}})\n{{range .Sections}}## {{.Name}}\n{{range .Statements}}- {{.Key}}: {{.Value}}\n{{end}}{{end}}"},
			{ID: "tech", Name: "Tech only", Categories: []string{"tech_stack"},
				Template: "{{range .Sections}}{{range .Statements}}{{upper .Key}}={{.Value}};{{end}}{{end}}"},
		},
		ConflictRules: []*catalog.ConflictRule{
			{ID: "database-exclusive", Category: "tech_stack", Key: "database", Severity: domain.SeverityError,
				Condition: catalog.ConditionMutuallyExclusive, Values: []string{"PostgreSQL", "MySQL", "MongoDB"},
				MessageTemplate: "database changed from {{.OldValue}} to {{.NewValue}}"},
			{ID: "language-change", Category: "tech_stack", Key: "language", Severity: domain.SeverityWarning,
				Condition: catalog.ConditionValueDiffers, MessageTemplate: "language changed to {{.NewValue}}"},
			{ID: "hosting-change", Category: "tech_stack", Key: "hosting", Severity: domain.SeverityInfo,
				Condition: catalog.ConditionValueDiffers, MessageTemplate: "hosting changed"},
		},
		QualityAnalyzers: []*catalog.QualityAnalyzer{
			{ID: "goals-required", Name: "Goals", Category: "goals", Kind: catalog.AnalyzerRequiredKeys,
				Params: catalog.AnalyzerParams{Keys: []string{"problem", "success_metric"}}, Severity: domain.SeverityWarning},
			{ID: "low-confidence", Name: "Low confidence", Category: "*", Kind: catalog.AnalyzerMinConfidence,
				Params: catalog.AnalyzerParams{Threshold: 0.5}, Severity: domain.SeverityInfo},
			{ID: "vague", Name: "Vague", Category: "*", Kind: catalog.AnalyzerVagueTerms,
				Params: catalog.AnalyzerParams{Terms: []string{"fast", "scalable"}}, Severity: domain.SeverityWarning},
			{ID: "tech-min", Name: "Tech coverage", Category: "tech_stack", Kind: catalog.AnalyzerMinStatements,
				Params: catalog.AnalyzerParams{Count: 2}, Severity: domain.SeverityError},
		},
	})
	require.NoError(t, err)
	return d
}

type testEnv struct {
	db          *memDB
	client      *llm.MockClient
	projects    *ProjectService
	maturity    *MaturityService
	elicitation *ElicitationService
	conflicts   *ConflictService
	phases      *PhaseService
	quality     *QualityService
	export      *ExportService
	codegen     *CodegenService
}

func newTestEnv(t *testing.T, d *catalog.Domain, opts ElicitationOptions) *testEnv {
	t.Helper()
	db := newMemDB()
	logger := zap.NewNop()
	client := llm.NewMockClient()
	domains := staticDomains{d.ID: d}

	maturity := NewMaturityService(fakeProjects{db}, fakeStatements{db}, fakeMaturity{db}, domains, logger)
	export := NewExportService(fakeStatements{db}, maturity, logger)
	return &testEnv{
		db:          db,
		client:      client,
		maturity:    maturity,
		projects:    NewProjectService(fakeProjects{db}, fakeSessions{db}, fakeStatements{db}, maturity, logger),
		elicitation: NewElicitationService(fakeSessions{db}, fakeStatements{db}, fakeTxManager{db}, maturity, client, opts, logger),
		conflicts:   NewConflictService(fakeConflicts{db}, fakeTxManager{db}, maturity, logger),
		phases:      NewPhaseService(fakeProjects{db}, fakeTxManager{db}, maturity, nil, logger),
		quality:     NewQualityService(fakeStatements{db}, maturity, logger),
		export:      export,
		codegen:     NewCodegenService(export, client, 0, logger),
	}
}

func (e *testEnv) services() Services {
	return Services{
		Projects:    e.projects,
		Elicitation: e.elicitation,
		Conflicts:   e.conflicts,
		Maturity:    e.maturity,
		Phases:      e.phases,
		Quality:     e.quality,
		Export:      e.export,
		Codegen:     e.codegen,
	}
}

// newProject creates a project and an open session.
func (e *testEnv) newProject(t *testing.T) (*domain.Project, *domain.Session) {
	t.Helper()
	ctx := context.Background()
	p, err := e.projects.Create(ctx, "Booking", "software")
	require.NoError(t, err)
	sess, err := e.projects.StartSession(ctx, p.ID)
	require.NoError(t, err)
	return p, sess
}

// seed inserts a current statement directly.
func (e *testEnv) seed(t *testing.T, projectID uuid.UUID, category, key, value string, confidence float64) domain.Statement {
	t.Helper()
	s := domain.Statement{
		ID:         uuid.New(),
		ProjectID:  projectID,
		Category:   category,
		Key:        key,
		Value:      value,
		Source:     domain.StatementSource{Type: domain.SourceManual},
		Confidence: confidence,
		Status:     domain.StatusCurrent,
		Version:    1,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, fakeStatements{e.db}.Create(context.Background(), &s))
	return s
}

package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Harshitk-cp/speclens/internal/dispatch"
	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCapabilityTable(t *testing.T, env *testEnv, required float64) *dispatch.Table {
	t.Helper()
	table, err := dispatch.NewTable(zap.NewNop(), Bindings(env.services(), fakeConflicts{env.db}, required)...)
	require.NoError(t, err)
	return table
}

func params(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestBindings_Table(t *testing.T) {
	env := newTestEnv(t, testDomain(t), ElicitationOptions{})
	table := newCapabilityTable(t, env, 100)

	caps := table.Capabilities()
	assert.Len(t, caps, 11)
	for _, c := range []dispatch.Capability{CapGenerateQuestion, CapSubmitAnswer, CapExtractSpecifications, CapResolveConflict, CapGenerateCode} {
		assert.True(t, table.Has(c), c.String())
	}
	assert.Equal(t, "code/generate_code", CapGenerateCode.String())
}

func TestGenerateCode_BlockedBelowFullMaturity(t *testing.T) {
	env := newTestEnv(t, testDomain(t), ElicitationOptions{})
	table := newCapabilityTable(t, env, 100)
	p, _ := env.newProject(t)
	env.seed(t, p.ID, "goals", "problem", "double bookings", 1)

	res, err := table.Dispatch(context.Background(), CapGenerateCode, dispatch.Request{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, dispatch.StatusBlocked, res.Status)
	require.NotNil(t, res.Blocked)
	assert.Equal(t, domain.KindGateDenied, res.Blocked.Kind)
	assert.Equal(t, "maturity", res.Blocked.Policy)
	assert.Equal(t, 25.0, res.Blocked.Details["overall"])
	assert.Equal(t, 100.0, res.Blocked.Details["required"])
	assert.Contains(t, res.Blocked.Remediation, "tech_stack")
	assert.Zero(t, env.client.CallCount(), "the handler never ran")
}

func TestGenerateCode_BlockedByConflictThenAllowed(t *testing.T) {
	env := newTestEnv(t, testDomain(t), ElicitationOptions{})
	table := newCapabilityTable(t, env, 100)
	p, _, c := heldConflict(t, env)
	ctx := context.Background()
	env.seed(t, p.ID, "goals", "problem", "double bookings", 1)
	env.seed(t, p.ID, "goals", "success_metric", "zero double bookings", 1)
	env.seed(t, p.ID, "tech_stack", "language", "Go", 1)
	env.seed(t, p.ID, "tech_stack", "hosting", "Fly.io", 1)

	res, err := table.Dispatch(ctx, CapGenerateCode, dispatch.Request{ProjectID: p.ID})
	require.NoError(t, err)
	require.Equal(t, dispatch.StatusBlocked, res.Status)
	assert.Equal(t, "conflicts", res.Blocked.Policy)
	assert.Equal(t, 1, res.Blocked.Details["blocking_conflicts"])

	res, err = table.Dispatch(ctx, CapResolveConflict, dispatch.Request{
		ProjectID: p.ID,
		Params:    params(t, map[string]any{"conflict_id": c.ID, "kind": "keep_old"}),
	})
	require.NoError(t, err)
	require.Equal(t, dispatch.StatusOK, res.Status)

	calls := env.client.CallCount()
	env.client.Enqueue("plan", nil)
	res, err = table.Dispatch(ctx, CapGenerateCode, dispatch.Request{ProjectID: p.ID})
	require.NoError(t, err)
	require.Equal(t, dispatch.StatusOK, res.Status)
	code, ok := res.Data.(*GeneratedCode)
	require.True(t, ok)
	assert.Equal(t, "plan", code.Content)
	assert.Equal(t, calls+1, env.client.CallCount())
}

func TestExtractSpecifications_NeverGated(t *testing.T) {
	env := newTestEnv(t, testDomain(t), ElicitationOptions{})
	table := newCapabilityTable(t, env, 100)
	p, _ := env.newProject(t)
	env.client.Enqueue(`[{"category":"goals","key":"problem","value":"double bookings","confidence":0.8}]`, nil)

	res, err := table.Dispatch(context.Background(), CapExtractSpecifications, dispatch.Request{
		ProjectID: p.ID,
		Params:    params(t, map[string]string{"text": "We keep double-booking rooms."}),
	})
	require.NoError(t, err)
	assert.Equal(t, dispatch.StatusOK, res.Status)
	out, ok := res.Data.(*SubmitResult)
	require.True(t, ok)
	assert.Equal(t, 1, out.SpecsExtracted)
}

func TestBindings_Validation(t *testing.T) {
	env := newTestEnv(t, testDomain(t), ElicitationOptions{})
	table := newCapabilityTable(t, env, 100)
	p, _ := env.newProject(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cap  dispatch.Capability
		req  dispatch.Request
	}{
		{"question without session", CapGenerateQuestion, dispatch.Request{ProjectID: p.ID}},
		{"resolve without conflict id", CapResolveConflict, dispatch.Request{ProjectID: p.ID, Params: json.RawMessage(`{"kind":"use_new"}`)}},
		{"bad statement status", CapListStatements, dispatch.Request{ProjectID: p.ID, Params: json.RawMessage(`{"status":"archived"}`)}},
		{"bad conflict severity", CapListConflicts, dispatch.Request{ProjectID: p.ID, Params: json.RawMessage(`{"severity":"fatal"}`)}},
		{"malformed params", CapSubmitAnswer, dispatch.Request{ProjectID: p.ID, Params: json.RawMessage(`{"question_id":`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.Dispatch(ctx, tt.cap, tt.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestBindings_ReadOnlyCapabilities(t *testing.T) {
	env := newTestEnv(t, testDomain(t), ElicitationOptions{})
	table := newCapabilityTable(t, env, 100)
	p, _ := env.newProject(t)
	env.seed(t, p.ID, "tech_stack", "database", "PostgreSQL", 1)
	ctx := context.Background()

	res, err := table.Dispatch(ctx, CapListStatements, dispatch.Request{ProjectID: p.ID, Params: json.RawMessage(`{"category":"tech_stack"}`)})
	require.NoError(t, err)
	stmts, ok := res.Data.([]domain.Statement)
	require.True(t, ok)
	require.Len(t, stmts, 1)
	assert.Equal(t, "PostgreSQL", stmts[0].Value)

	res, err = table.Dispatch(ctx, CapGetMaturity, dispatch.Request{ProjectID: p.ID})
	require.NoError(t, err)
	m, ok := res.Data.(*domain.MaturityRecord)
	require.True(t, ok)
	assert.Equal(t, 25.0, m.Overall)

	res, err = table.Dispatch(ctx, CapExport, dispatch.Request{ProjectID: p.ID})
	require.NoError(t, err)
	doc, ok := res.Data.(*ExportDocument)
	require.True(t, ok)
	assert.Equal(t, "markdown", doc.Format)

	_, err = table.Dispatch(ctx, CapGetMaturity, dispatch.Request{ProjectID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatementQueryFrom(t *testing.T) {
	q, err := StatementQueryFrom("goals", "", "")
	require.NoError(t, err)
	assert.Nil(t, q.Status)
	assert.Equal(t, "goals", q.Category)

	q, err = StatementQueryFrom("", "", "pending")
	require.NoError(t, err)
	require.NotNil(t, q.Status)
	assert.Equal(t, domain.StatusPending, *q.Status)

	_, err = StatementQueryFrom("", "", "gone")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harshitk-cp/speclens/internal/catalog"
	"github.com/Harshitk-cp/speclens/internal/dispatch"
	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind domain.ErrorKind
		want int
	}{
		{domain.KindValidation, http.StatusBadRequest},
		{domain.KindNotFound, http.StatusNotFound},
		{domain.KindConflictBlocking, http.StatusConflict},
		{domain.KindLLMTimeout, http.StatusGatewayTimeout},
		{domain.KindSchemaParse, http.StatusUnprocessableEntity},
		{domain.KindGateDenied, http.StatusForbidden},
		{domain.ErrorKind("mystery"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForKind(tt.kind))
		})
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWriteServiceError_DomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	err := fmt.Errorf("wrapped: %w", &domain.Error{
		Kind:        domain.KindNotFound,
		Message:     "project not found",
		Remediation: "create the project first",
	})

	writeServiceError(rec, zap.NewNop(), err)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, domain.KindNotFound, body.Kind)
	assert.Equal(t, "create the project first", body.Remediation)
}

func TestWriteServiceError_UnknownErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()

	writeServiceError(rec, zap.NewNop(), errors.New("connection reset by peer"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, domain.ErrorKind("internal"), body.Kind)
	assert.Equal(t, "internal error", body.Error, "internal details are not leaked")
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Text string `json:"text"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hi"}`))
	require.NoError(t, decodeJSON(r, &v))
	assert.Equal(t, "hi", v.Text)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.NoError(t, decodeJSON(r, &v), "empty body is allowed")

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	err := decodeJSON(r, &v)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

type fakeDomains struct {
	domains map[string]*catalog.Domain
	broken  map[string]error
	order   []string
}

func (f *fakeDomains) IDs() []string { return f.order }

func (f *fakeDomains) Get(_ context.Context, id string) (*catalog.Domain, error) {
	if err, ok := f.broken[id]; ok {
		return nil, err
	}
	d, ok := f.domains[id]
	if !ok {
		return nil, domain.NotFoundf("domain %q not found", id)
	}
	return d, nil
}

func newTestDomain(t *testing.T) *catalog.Domain {
	t.Helper()
	d, err := catalog.New(catalog.Meta{
		ID:      "booking",
		Name:    "Booking",
		Version: "1.0.0",
		Categories: []catalog.Category{
			{ID: "goals"},
		},
	}, catalog.Parts{
		Questions: []*catalog.Question{
			{ID: "q1", Text: "What problem does it solve?", Category: "goals"},
		},
	})
	require.NoError(t, err)
	return d
}

func domainRouter(h *DomainHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/domains", h.List)
	r.Get("/domains/{id}", h.GetByID)
	return r
}

func TestDomainHandler_List(t *testing.T) {
	src := &fakeDomains{
		domains: map[string]*catalog.Domain{"booking": newTestDomain(t)},
		broken:  map[string]error{"broken": errors.New("questions.yaml: bad yaml")},
		order:   []string{"booking", "broken"},
	}
	rec := httptest.NewRecorder()
	domainRouter(NewDomainHandler(src, zap.NewNop())).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/domains", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Domains []struct {
			ID        string `json:"id"`
			Questions int    `json:"questions"`
		} `json:"domains"`
		Errors []domainError `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Domains, 1)
	assert.Equal(t, "booking", body.Domains[0].ID)
	assert.Equal(t, 1, body.Domains[0].Questions)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "broken", body.Errors[0].ID)
}

func TestDomainHandler_GetByID(t *testing.T) {
	src := &fakeDomains{domains: map[string]*catalog.Domain{"booking": newTestDomain(t)}}
	h := domainRouter(NewDomainHandler(src, zap.NewNop()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/domains/booking", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "What problem does it solve?")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/domains/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func capabilityRouter(t *testing.T) http.Handler {
	t.Helper()
	table, err := dispatch.NewTable(nil,
		dispatch.Binding{
			Capability: dispatch.Capability{Agent: "maturity", Action: "get_maturity"},
			Handler: func(_ context.Context, req dispatch.Request) (any, error) {
				return map[string]string{"project": req.ProjectID.String()}, nil
			},
		},
		dispatch.Binding{
			Capability: dispatch.Capability{Agent: "code", Action: "generate_code"},
			Handler: func(context.Context, dispatch.Request) (any, error) {
				t.Fatal("gated handler must not run")
				return nil, nil
			},
			Policies: []dispatch.Policy{dispatch.PolicyFunc{ID: "maturity", Fn: func(context.Context, dispatch.Request) (*dispatch.Denial, error) {
				return &dispatch.Denial{Reason: "maturity below 100", Remediation: "answer tech_stack questions"}, nil
			}}},
		},
	)
	require.NoError(t, err)

	h := NewCapabilityHandler(table, zap.NewNop())
	r := chi.NewRouter()
	r.Get("/capabilities", h.List)
	r.Post("/capabilities/{agent}/{action}", h.Dispatch)
	return r
}

func TestCapabilityHandler_List(t *testing.T) {
	rec := httptest.NewRecorder()
	capabilityRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/capabilities", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Capabilities []string `json:"capabilities"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.ElementsMatch(t, []string{"maturity/get_maturity", "code/generate_code"}, body.Capabilities)
}

func TestCapabilityHandler_Dispatch(t *testing.T) {
	r := capabilityRouter(t)

	rec := httptest.NewRecorder()
	body := `{"project_id":"6f1c2f1e-0d4a-4a53-9d8e-1f0a8f6f5b21"}`
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capabilities/maturity/get_maturity", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "6f1c2f1e-0d4a-4a53-9d8e-1f0a8f6f5b21")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capabilities/code/generate_code", strings.NewReader(body)))
	require.Equal(t, http.StatusForbidden, rec.Code)
	var res dispatch.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, dispatch.StatusBlocked, res.Status)
	require.NotNil(t, res.Blocked)
	assert.Equal(t, "maturity", res.Blocked.Policy)
	assert.Equal(t, "answer tech_stack questions", res.Blocked.Remediation)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capabilities/code/delete_everything", strings.NewReader(body)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

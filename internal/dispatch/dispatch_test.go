package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(_ context.Context, req Request) (any, error) {
	return req.ProjectID, nil
}

func deny(name, reason string) Policy {
	return PolicyFunc{ID: name, Fn: func(context.Context, Request) (*Denial, error) {
		return &Denial{Reason: reason, Remediation: "fix " + name}, nil
	}}
}

func allow(name string, calls *[]string) Policy {
	return PolicyFunc{ID: name, Fn: func(context.Context, Request) (*Denial, error) {
		*calls = append(*calls, name)
		return nil, nil
	}}
}

func TestNewTable_Rejects(t *testing.T) {
	good := Binding{Capability: Capability{"questions", "generate_question"}, Handler: echo}

	tests := []struct {
		name     string
		bindings []Binding
	}{
		{"no bindings", nil},
		{"empty agent", []Binding{{Capability: Capability{"", "x"}, Handler: echo}}},
		{"empty action", []Binding{{Capability: Capability{"x", ""}, Handler: echo}}},
		{"bad characters", []Binding{{Capability: Capability{"Code", "generate-code"}, Handler: echo}}},
		{"duplicate", []Binding{good, good}},
		{"nil handler", []Binding{{Capability: Capability{"a", "b"}}}},
		{"nil policy", []Binding{{Capability: Capability{"a", "b"}, Handler: echo, Policies: []Policy{nil}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(nil, tt.bindings...)
			assert.Error(t, err)
		})
	}
}

func TestDispatch_UnknownCapability(t *testing.T) {
	table, err := NewTable(nil, Binding{Capability: Capability{"a", "b"}, Handler: echo})
	require.NoError(t, err)

	_, err = table.Dispatch(context.Background(), Capability{"a", "c"}, Request{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDispatch_PoliciesRunInOrderAndFirstDenialWins(t *testing.T) {
	var calls []string
	handled := false
	table, err := NewTable(nil, Binding{
		Capability: Capability{"code", "generate_code"},
		Handler: func(context.Context, Request) (any, error) {
			handled = true
			return nil, nil
		},
		Policies: []Policy{allow("first", &calls), deny("maturity", "too early"), deny("conflicts", "unreachable")},
	})
	require.NoError(t, err)

	res, err := table.Dispatch(context.Background(), Capability{"code", "generate_code"}, Request{})
	require.NoError(t, err, "a denial is a result, not an error")
	assert.Equal(t, StatusBlocked, res.Status)
	require.NotNil(t, res.Blocked)
	assert.Equal(t, domain.KindGateDenied, res.Blocked.Kind)
	assert.Equal(t, "maturity", res.Blocked.Policy)
	assert.Equal(t, "too early", res.Blocked.Reason)
	assert.Equal(t, "fix maturity", res.Blocked.Remediation)
	assert.Equal(t, []string{"first"}, calls)
	assert.False(t, handled)
}

func TestDispatch_OK(t *testing.T) {
	var calls []string
	table, err := NewTable(nil, Binding{
		Capability: Capability{"maturity", "get_maturity"},
		Handler:    echo,
		Policies:   []Policy{allow("one", &calls), allow("two", &calls)},
	})
	require.NoError(t, err)

	req := Request{Params: json.RawMessage(`{}`)}
	res, err := table.Dispatch(context.Background(), Capability{"maturity", "get_maturity"}, req)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Nil(t, res.Blocked)
	assert.Equal(t, []string{"one", "two"}, calls)
}

func TestDispatch_PolicyErrorIsError(t *testing.T) {
	boom := errors.New("store down")
	table, err := NewTable(nil, Binding{
		Capability: Capability{"a", "b"},
		Handler:    echo,
		Policies: []Policy{PolicyFunc{ID: "broken", Fn: func(context.Context, Request) (*Denial, error) {
			return nil, boom
		}}},
	})
	require.NoError(t, err)

	_, err = table.Dispatch(context.Background(), Capability{"a", "b"}, Request{})
	assert.ErrorIs(t, err, boom)
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("conflicts/resolve_conflict")
	require.NoError(t, err)
	assert.Equal(t, Capability{"conflicts", "resolve_conflict"}, c)

	_, err = ParseCapability("resolve_conflict")
	assert.Error(t, err)
	_, err = ParseCapability("conflicts/Resolve")
	assert.Error(t, err)
}

func TestRequest_DecodeParams(t *testing.T) {
	var p struct {
		Text string `json:"text"`
	}
	require.NoError(t, Request{}.DecodeParams(&p))
	require.NoError(t, Request{Params: json.RawMessage(`{"text":"hi"}`)}.DecodeParams(&p))
	assert.Equal(t, "hi", p.Text)

	err := Request{Params: json.RawMessage(`{"text":`)}.DecodeParams(&p)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCapabilities_Sorted(t *testing.T) {
	table, err := NewTable(nil,
		Binding{Capability: Capability{"specifications", "submit_answer"}, Handler: echo},
		Binding{Capability: Capability{"code", "generate_code"}, Handler: echo},
	)
	require.NoError(t, err)
	caps := table.Capabilities()
	require.Len(t, caps, 2)
	assert.Equal(t, "code/generate_code", caps[0].String())
	assert.True(t, table.Has(Capability{"specifications", "submit_answer"}))
}

// Package dispatch routes capability requests to handlers through a table
// that is built and validated once at startup.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/Harshitk-cp/speclens/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Capability names one routable action, such as code/generate_code.
type Capability struct {
	Agent  string `json:"agent"`
	Action string `json:"action"`
}

func (c Capability) String() string {
	return c.Agent + "/" + c.Action
}

// ParseCapability parses "agent/action".
func ParseCapability(s string) (Capability, error) {
	agent, action, ok := strings.Cut(s, "/")
	c := Capability{Agent: agent, Action: action}
	if !ok {
		return c, fmt.Errorf("capability %q: want agent/action", s)
	}
	return c, c.validate()
}

func (c Capability) validate() error {
	if !namePattern.MatchString(c.Agent) {
		return fmt.Errorf("capability %q: invalid agent name", c.String())
	}
	if !namePattern.MatchString(c.Action) {
		return fmt.Errorf("capability %q: invalid action name", c.String())
	}
	return nil
}

// Request is the input to a capability handler.
type Request struct {
	ProjectID uuid.UUID       `json:"project_id"`
	SessionID uuid.UUID       `json:"session_id,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// DecodeParams unmarshals the request parameters into v. Missing parameters
// leave v untouched.
func (r Request) DecodeParams(v any) error {
	if len(r.Params) == 0 || string(r.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Params, v); err != nil {
		return domain.Validationf("invalid params: %v", err)
	}
	return nil
}

type Handler func(ctx context.Context, req Request) (any, error)

// Denial is returned by a policy that refuses a request.
type Denial struct {
	Reason      string         `json:"reason"`
	Remediation string         `json:"remediation"`
	Details     map[string]any `json:"details,omitempty"`
}

// Policy is one gate check. A nil Denial lets the request through.
type Policy interface {
	Name() string
	Check(ctx context.Context, req Request) (*Denial, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc struct {
	ID string
	Fn func(ctx context.Context, req Request) (*Denial, error)
}

func (p PolicyFunc) Name() string { return p.ID }

func (p PolicyFunc) Check(ctx context.Context, req Request) (*Denial, error) {
	return p.Fn(ctx, req)
}

// Binding attaches a handler and its ordered gate policies to a capability.
type Binding struct {
	Capability Capability
	Handler    Handler
	Policies   []Policy
}

type Status string

const (
	StatusOK      Status = "ok"
	StatusBlocked Status = "blocked"
)

// Blocked describes a gate denial. It is a normal result, not an error.
type Blocked struct {
	Kind        domain.ErrorKind `json:"kind"`
	Policy      string           `json:"policy"`
	Reason      string           `json:"reason"`
	Remediation string           `json:"remediation"`
	Details     map[string]any   `json:"details,omitempty"`
}

type Result struct {
	Capability string   `json:"capability"`
	Status     Status   `json:"status"`
	Data       any      `json:"data,omitempty"`
	Blocked    *Blocked `json:"blocked,omitempty"`
}

// Table is an immutable capability dispatch table.
type Table struct {
	bindings map[Capability]Binding
	logger   *zap.Logger
}

// NewTable validates every binding and builds the table. Empty, malformed,
// or duplicate capability names and missing handlers are rejected.
func NewTable(logger *zap.Logger, bindings ...Binding) (*Table, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(bindings) == 0 {
		return nil, fmt.Errorf("dispatch table: no bindings")
	}
	t := &Table{bindings: make(map[Capability]Binding, len(bindings)), logger: logger}
	for _, b := range bindings {
		if err := b.Capability.validate(); err != nil {
			return nil, fmt.Errorf("dispatch table: %w", err)
		}
		if b.Handler == nil {
			return nil, fmt.Errorf("dispatch table: capability %q has no handler", b.Capability)
		}
		if _, dup := t.bindings[b.Capability]; dup {
			return nil, fmt.Errorf("dispatch table: capability already registered: %s", b.Capability)
		}
		for i, p := range b.Policies {
			if p == nil {
				return nil, fmt.Errorf("dispatch table: capability %q has nil policy at %d", b.Capability, i)
			}
		}
		t.bindings[b.Capability] = b
	}
	return t, nil
}

// Capabilities lists the registered capabilities in name order.
func (t *Table) Capabilities() []Capability {
	out := make([]Capability, 0, len(t.bindings))
	for c := range t.bindings {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (t *Table) Has(c Capability) bool {
	_, ok := t.bindings[c]
	return ok
}

// Dispatch runs the capability's policies in order and, if none denies the
// request, its handler. Handler errors are returned as errors; denials are
// returned as a blocked Result.
func (t *Table) Dispatch(ctx context.Context, c Capability, req Request) (*Result, error) {
	b, ok := t.bindings[c]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound,
			fmt.Sprintf("unknown capability %q", c),
			"list the available capabilities with GET /v1/capabilities")
	}

	for _, p := range b.Policies {
		denial, err := p.Check(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", p.Name(), err)
		}
		if denial != nil {
			metrics.CountDispatch(c.String(), string(StatusBlocked))
			t.logger.Info("capability blocked",
				zap.String("capability", c.String()),
				zap.String("policy", p.Name()),
				zap.String("project_id", req.ProjectID.String()),
				zap.String("reason", denial.Reason))
			return &Result{
				Capability: c.String(),
				Status:     StatusBlocked,
				Blocked: &Blocked{
					Kind:        domain.KindGateDenied,
					Policy:      p.Name(),
					Reason:      denial.Reason,
					Remediation: denial.Remediation,
					Details:     denial.Details,
				},
			}, nil
		}
	}

	data, err := b.Handler(ctx, req)
	if err != nil {
		metrics.CountDispatch(c.String(), "error")
		return nil, err
	}
	metrics.CountDispatch(c.String(), string(StatusOK))
	return &Result{Capability: c.String(), Status: StatusOK, Data: data}, nil
}
